package internal

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"ripley/internal/api"
	"ripley/internal/artifact"
	"ripley/internal/event"
	"ripley/internal/fetch"
	"ripley/internal/ffmpeg"
	"ripley/internal/pipeline"
	"ripley/internal/resolve"
	"ripley/pkg/logger"
)

var log = logger.Get("Core")

type (
	RunnableService interface {
		Run(context.Context) error
	}

	PipelineService interface {
		RunnableService
		Process(ctx context.Context, sourceURL string) (*pipeline.Result, error)
		Task(id uuid.UUID) *pipeline.Task
		AllTasks() []*pipeline.Task
	}
)

// Ripley represents the top-level object for the server, and is responsible
// for initialising the stores, services and event handling before running
// them together.
type ripleyImpl struct {
	eventBus event.EventCoordinator
	config   RipleyConfig

	artifactStore   *artifact.Store
	pipelineService PipelineService
	restGateway     RunnableService
}

// New constructs all of Ripley's services. Any precondition failure, such as
// the FFmpeg binary not being invocable or the temp directory being
// unusable, is returned here so the process can refuse to start.
func New(config RipleyConfig) (*ripleyImpl, error) {
	log.Emit(logger.DEBUG, "Bootstrapping Ripley services using config: %#v\n", config)
	ripley := &ripleyImpl{
		eventBus: event.New(),
		config:   config,
	}

	transcoder, err := ffmpeg.New(config.Ffmpeg)
	if err != nil {
		return nil, fmt.Errorf("failed to construct transcoder: %w", err)
	}

	resolver, err := resolve.New(config.Resolver)
	if err != nil {
		return nil, fmt.Errorf("failed to construct resolver: %w", err)
	}

	store, err := artifact.NewStore(config.Artifacts, ripley.eventBus)
	if err != nil {
		return nil, fmt.Errorf("failed to construct artifact store: %w", err)
	}
	ripley.artifactStore = store

	pipelineService, err := pipeline.New(config.Pipeline, resolver, fetch.NewFetcher(), transcoder, store, ripley.eventBus)
	if err != nil {
		return nil, fmt.Errorf("failed to construct pipeline service: %w", err)
	}
	ripley.pipelineService = pipelineService

	ripley.restGateway = api.NewRestGateway(&config.Rest, pipelineService, store, ripley.eventBus)

	return ripley, nil
}

// Run will start all of Ripley's services and will not return until Ripley
// is stopped. To stop Ripley, the provided context must be cancelled. Errors
// from which Ripley cannot recover will also cause it to stop.
func (ripley *ripleyImpl) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	crashHandler := func(label string, err error) {
		log.Emit(logger.FATAL, "Service crash (%s)! %s\n", label, err.Error())
		cancel()
	}

	wg := &sync.WaitGroup{}
	ripley.spawnAsyncService(ctx, wg, ripley.artifactStore, "artifact-store", crashHandler)
	ripley.spawnAsyncService(ctx, wg, ripley.pipelineService, "pipeline-service", crashHandler)
	ripley.spawnAsyncService(ctx, wg, ripley.restGateway, "rest-gateway", crashHandler)
	log.Emit(logger.SUCCESS, "Ripley services spawned!\n")

	wg.Wait()
	return nil
}

// spawnAsyncService will run the provided function/service as it's own
// go-routine, ensuring that the Ripley service waitgroup is updated correctly
func (ripley *ripleyImpl) spawnAsyncService(context context.Context, wg *sync.WaitGroup, service RunnableService, serviceLabel string, crashHandler func(string, error)) {
	log.Emit(logger.NEW, "Spawning %s\n", serviceLabel)
	wg.Add(1)

	go func(wg *sync.WaitGroup, label string, crash func(string, error)) {
		defer func() {
			if r := recover(); r != nil {
				crash(label, fmt.Errorf("panic %v", r))
			}
		}()

		defer wg.Done()
		if err := service.Run(context); err != nil {
			crash(label, err)
		}
	}(wg, serviceLabel, crashHandler)
}
