package pipeline

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"ripley/internal/artifact"
)

type TaskState int

const (
	QUEUED TaskState = iota
	RESOLVING
	FETCHING_VIDEO
	FETCHING_AUDIO
	TRANSCODING
	READY
	FAILED
)

func (state TaskState) String() string {
	switch state {
	case QUEUED:
		return "QUEUED"
	case RESOLVING:
		return "RESOLVING"
	case FETCHING_VIDEO:
		return "FETCHING_VIDEO"
	case FETCHING_AUDIO:
		return "FETCHING_AUDIO"
	case TRANSCODING:
		return "TRANSCODING"
	case READY:
		return "READY"
	case FAILED:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN[%d]", state)
	}
}

type (
	// Result carries the two retrievable artifact handles produced by a
	// successful pipeline run. Callers receive IDs, never raw bytes.
	Result struct {
		VideoArtifact artifact.Artifact
		AudioArtifact artifact.Artifact
	}

	// Task is one request's trip through the pipeline. It is created QUEUED,
	// claimed by a single pipeline worker, and advances strictly through
	// RESOLVING -> FETCHING_VIDEO -> (FETCHING_AUDIO | TRANSCODING) before
	// terminating in READY or FAILED. The done channel is closed exactly once,
	// when a terminal state is reached.
	//
	// The state is guarded by the task's own mutex: the owning worker writes
	// it while the activity feed reads it from other goroutines.
	Task struct {
		id        uuid.UUID
		sourceURL string
		done      chan struct{}

		mutex  sync.Mutex
		state  TaskState
		result *Result
		err    error
	}
)

func newTask(sourceURL string) *Task {
	return &Task{
		id:        uuid.New(),
		sourceURL: sourceURL,
		state:     QUEUED,
		done:      make(chan struct{}),
	}
}

func (task *Task) ID() uuid.UUID     { return task.id }
func (task *Task) SourceURL() string { return task.sourceURL }

func (task *Task) State() TaskState {
	task.mutex.Lock()
	defer task.mutex.Unlock()

	return task.state
}

func (task *Task) setState(state TaskState) {
	task.mutex.Lock()
	defer task.mutex.Unlock()

	task.state = state
}

// claim transitions the task from QUEUED to RESOLVING, returning false if
// another worker already holds it.
func (task *Task) claim() bool {
	task.mutex.Lock()
	defer task.mutex.Unlock()

	if task.state != QUEUED {
		return false
	}

	task.state = RESOLVING
	return true
}

// fail records the generic stage error and moves the task to FAILED.
func (task *Task) fail(stageErr error) {
	task.mutex.Lock()
	defer task.mutex.Unlock()

	task.err = stageErr
	task.state = FAILED
}

// complete records the result and moves the task to READY.
func (task *Task) complete(result *Result) {
	task.mutex.Lock()
	defer task.mutex.Unlock()

	task.result = result
	task.state = READY
}

// outcome returns the terminal result and error. Only meaningful once the
// done channel has closed.
func (task *Task) outcome() (*Result, error) {
	task.mutex.Lock()
	defer task.mutex.Unlock()

	return task.result, task.err
}

func (task *Task) String() string {
	return fmt.Sprintf("Task{ID=%s state=%s}", task.id, task.State())
}

func (task *Task) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID        uuid.UUID `json:"id"`
		SourceURL string    `json:"source_url"`
		State     string    `json:"state"`
	}{
		task.id,
		task.sourceURL,
		task.State().String(),
	})
}
