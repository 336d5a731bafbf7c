package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"ripley/internal"
	"ripley/pkg/logger"
)

var log = logger.Get("Main")

// main is the entry point for Ripley. Configuration is loaded from the YAML
// file provided via -config (falling back to environment variables when no
// file is given), and the server runs until SIGINT/SIGTERM.
func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	if *verbose {
		logger.SetMinLoggingLevel(logger.VERBOSE.Level())
	}

	config := internal.RipleyConfig{}
	if *configPath != "" {
		if err := config.LoadFromFile(*configPath); err != nil {
			log.Emit(logger.FATAL, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
	} else if err := config.LoadFromEnv(); err != nil {
		log.Emit(logger.FATAL, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	ripley, err := internal.New(config)
	if err != nil {
		log.Emit(logger.FATAL, "Failed to initialise Ripley: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := ripley.Run(ctx); err != nil {
		log.Emit(logger.FATAL, "Ripley exited with error: %v\n", err)
		os.Exit(1)
	}

	log.Emit(logger.STOP, "Ripley shutdown complete\n")
}
