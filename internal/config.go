package internal

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
	"ripley/internal/api"
	"ripley/internal/artifact"
	"ripley/internal/ffmpeg"
	"ripley/internal/pipeline"
	"ripley/internal/resolve"
)

// RipleyConfig is the struct used to contain the various user config
// supplied by file and/or environment variables.
type RipleyConfig struct {
	Pipeline  pipeline.Config `yaml:"pipeline"`
	Resolver  resolve.Config  `yaml:"resolver"`
	Ffmpeg    ffmpeg.Config   `yaml:"ffmpeg"`
	Artifacts artifact.Config `yaml:"artifacts"`
	Rest      api.RestConfig  `yaml:"api"`
}

// LoadFromFile loads a configuration file formatted in YAML in to a
// RipleyConfig struct, with environment variables taking precedence
// over values from the file.
func (config *RipleyConfig) LoadFromFile(configPath string) error {
	if err := cleanenv.ReadConfig(configPath, config); err != nil {
		return fmt.Errorf("failed to load configuration for Ripley - %v", err.Error())
	}

	return nil
}

// LoadFromEnv populates the config from environment variables and the
// struct defaults only, for deployments that carry no config file.
func (config *RipleyConfig) LoadFromEnv() error {
	if err := cleanenv.ReadEnv(config); err != nil {
		return fmt.Errorf("failed to load configuration for Ripley - %v", err.Error())
	}

	return nil
}
