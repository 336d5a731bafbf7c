// Package pipeline sequences the media acquisition stages for each inbound
// request: resolve the source URL, fetch the video asset, then either fetch
// the standalone audio asset or derive one by transcoding the video. Both
// resulting artifacts are registered with the artifact store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"ripley/internal/artifact"
	"ripley/internal/event"
	"ripley/internal/ffmpeg"
	"ripley/internal/resolve"
	"ripley/pkg/logger"
	"ripley/pkg/worker"
)

var (
	log = logger.Get("PipelineServ")

	// The sentinel errors below are the ONLY errors Process surfaces to
	// callers. Stage-level detail (which upstream, which path) is logged
	// here and never leaked to the response body.
	ErrResolutionFailed = errors.New("media resolution failed")
	ErrFetchFailed      = errors.New("asset fetch failed")
	ErrTranscodeFailed  = errors.New("audio transcode failed")
)

type (
	Config struct {
		Workers int `yaml:"workers" env:"PIPELINE_WORKERS" env-default:"4"`
	}

	resolver interface {
		Resolve(ctx context.Context, sourceURL string) (*resolve.MediaDescriptor, error)
	}

	fetcher interface {
		Fetch(ctx context.Context, assetURL string, destPath string) error
	}

	transcoder interface {
		ExtractAudio(ctx context.Context, inputPath string, outputPath string, updateHandler func(*ffmpeg.Progress)) error
	}

	artifactStore interface {
		Create(kind artifact.Kind) artifact.Artifact
		Remove(artifact artifact.Artifact)
	}

	// Service owns the queue of pipeline tasks and the bounded worker pool
	// that executes them. The pool size is the admission control for the
	// whole system: no more than Config.Workers pipelines (and therefore
	// FFmpeg invocations) run at once, regardless of inbound request volume.
	Service struct {
		*sync.Mutex
		config Config

		resolver   resolver
		fetcher    fetcher
		transcoder transcoder
		store      artifactStore
		eventBus   event.EventCoordinator

		tasks      []*Task
		workerPool *worker.WorkerPool
	}
)

// New constructs the pipeline service and its worker pool. The pool is not
// started until Run is called.
func New(config Config, resolver resolver, fetcher fetcher, transcoder transcoder, store artifactStore, eventBus event.EventCoordinator) (*Service, error) {
	if config.Workers < 1 {
		return nil, fmt.Errorf("pipeline worker count must be at least 1, got %d", config.Workers)
	}

	service := &Service{
		Mutex:      &sync.Mutex{},
		config:     config,
		resolver:   resolver,
		fetcher:    fetcher,
		transcoder: transcoder,
		store:      store,
		eventBus:   eventBus,
		tasks:      make([]*Task, 0),
		workerPool: worker.NewWorkerPool(),
	}

	for i := 0; i < config.Workers; i++ {
		label := fmt.Sprintf("pipeline-worker-%d", i)
		service.workerPool.PushWorker(worker.NewWorker(label, service.performNextTask))
	}

	return service, nil
}

// Run starts the worker pool and blocks until the provided context is
// cancelled, at which point the pool is closed. Workers finish the task they
// hold before exiting; queued tasks that were never claimed are abandoned.
func (service *Service) Run(ctx context.Context) error {
	if err := service.workerPool.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	service.workerPool.Close()
	return nil
}

// Process enqueues a pipeline task for the source URL provided and blocks
// until the task reaches a terminal state, returning the task result (or the
// generic stage error). If the caller's context ends first the caller stops
// waiting, but the task itself is NOT cancelled; once claimed it always runs
// to READY or FAILED.
func (service *Service) Process(ctx context.Context, sourceURL string) (*Result, error) {
	task := newTask(sourceURL)

	service.Lock()
	service.tasks = append(service.tasks, task)
	service.Unlock()

	log.Emit(logger.NEW, "Queued %s for %s\n", task, sourceURL)
	service.workerPool.WakeupWorkers()

	// Wakeup signals are lossy: a worker that was between its empty-queue
	// check and going to sleep misses them, so the wakeup is re-announced
	// periodically while this task remains unfinished.
	wakeupTicker := time.NewTicker(time.Millisecond * 250)
	defer wakeupTicker.Stop()

	for {
		select {
		case <-task.done:
			return task.outcome()
		case <-wakeupTicker.C:
			service.workerPool.WakeupWorkers()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// AllTasks returns a snapshot of the tasks currently queued or running.
func (service *Service) AllTasks() []*Task {
	service.Lock()
	defer service.Unlock()

	snapshot := make([]*Task, len(service.tasks))
	copy(snapshot, service.tasks)
	return snapshot
}

// Task returns the queued/running task with a matching ID, or nil.
func (service *Service) Task(id uuid.UUID) *Task {
	service.Lock()
	defer service.Unlock()

	for _, t := range service.tasks {
		if t.id == id {
			return t
		}
	}

	return nil
}

// performNextTask is the worker function for the pipeline service, called by
// the services WorkerPool. It claims the oldest QUEUED task, runs it to a
// terminal state, and reports whether any work was performed.
func (service *Service) performNextTask(w worker.Worker) (bool, error) {
	task := service.claimQueuedTask()
	if task == nil {
		return false, nil
	}

	service.runTask(task)
	return true, nil
}

// claimQueuedTask finds the oldest QUEUED task and claims it. The service
// mutex guards the task slice; the claim itself is the task's own atomic
// QUEUED to RESOLVING transition, so no two workers can win the same task.
func (service *Service) claimQueuedTask() *Task {
	service.Lock()
	defer service.Unlock()

	for _, task := range service.tasks {
		if task.claim() {
			return task
		}
	}

	return nil
}

// runTask advances the claimed task through the pipeline stages. The stages
// within one task are strictly sequential: the video fetch must complete
// before the audio branch begins.
func (service *Service) runTask(task *Task) {
	defer func() {
		service.removeTask(task.id)
		close(task.done)
	}()

	// Tasks deliberately outlive the requester's context: once claimed there
	// is no cancellation propagation, so stage calls use a fresh context.
	ctx := context.Background()

	service.eventBus.Dispatch(event.PIPELINE_UPDATE, task.id)
	descriptor, err := service.resolver.Resolve(ctx, task.sourceURL)
	if err != nil {
		service.failTask(task, ErrResolutionFailed, err)
		return
	}

	service.transitionTask(task, FETCHING_VIDEO)
	videoArtifact := service.store.Create(artifact.Video)
	if err := service.fetcher.Fetch(ctx, descriptor.VideoURL, videoArtifact.Path); err != nil {
		service.failTask(task, ErrFetchFailed, err)
		return
	}

	audioArtifact := service.store.Create(artifact.Audio)
	if descriptor.AudioURL != "" {
		service.transitionTask(task, FETCHING_AUDIO)
		if err := service.fetcher.Fetch(ctx, descriptor.AudioURL, audioArtifact.Path); err != nil {
			service.store.Remove(videoArtifact)
			service.failTask(task, ErrFetchFailed, err)
			return
		}
	} else {
		service.transitionTask(task, TRANSCODING)
		progressHandler := func(prog *ffmpeg.Progress) {
			log.Emit(logger.VERBOSE, "Transcode progress for %s: %v%%\n", task, prog.Progress)
		}

		if err := service.transcoder.ExtractAudio(ctx, videoArtifact.Path, audioArtifact.Path, progressHandler); err != nil {
			service.store.Remove(videoArtifact)
			service.store.Remove(audioArtifact)
			service.failTask(task, ErrTranscodeFailed, err)
			return
		}
	}

	task.complete(&Result{VideoArtifact: videoArtifact, AudioArtifact: audioArtifact})
	service.eventBus.Dispatch(event.PIPELINE_UPDATE, task.id)
	service.eventBus.Dispatch(event.PIPELINE_COMPLETE, task.id)
	log.Emit(logger.SUCCESS, "%s is ready (video=%s audio=%s)\n", task, videoArtifact.ID, audioArtifact.ID)
}

// transitionTask moves the task to the given state and announces the change
// on the event bus.
func (service *Service) transitionTask(task *Task, state TaskState) {
	task.setState(state)
	service.eventBus.Dispatch(event.PIPELINE_UPDATE, task.id)
}

// failTask marks the task FAILED with the generic stage error provided. The
// underlying cause is recorded in the logs only.
func (service *Service) failTask(task *Task, stageErr error, cause error) {
	log.Emit(logger.ERROR, "%s failed during %s: %v\n", task, task.State(), cause)

	task.fail(stageErr)
	service.eventBus.Dispatch(event.PIPELINE_FAILED, task.id)
}

// removeTask will look for and remove the task with the ID provided
// from the services queue.
func (service *Service) removeTask(taskID uuid.UUID) {
	service.Lock()
	defer service.Unlock()

	for i, v := range service.tasks {
		if v.id == taskID {
			service.tasks = append(service.tasks[:i], service.tasks[i+1:]...)
			return
		}
	}
}
