package worker

import (
	"sync"

	"ripley/pkg/logger"
)

var workerLogger = logger.Get("Worker")

type (
	WakeupChan chan int
	Status     int

	// Task is the unit of work a worker repeatedly executes. It returns true
	// when work was claimed and performed, and false when there was nothing
	// to do (at which point the worker goes back to sleep).
	Task func(Worker) (bool, error)

	Worker interface {
		Start()
		Status() Status
		WakeupChan() WakeupChan
		Label() string
		Sleep() bool
		Close()
	}
)

const (
	Sleeping Status = iota
	Working
	Finished
)

// taskWorker's status is read by the pool from other goroutines when
// deciding who to wake, so it is guarded by the worker's mutex.
type taskWorker struct {
	label      string
	task       Task
	wakeupChan WakeupChan

	mutex         sync.Mutex
	currentStatus Status
}

func NewWorker(label string, task Task) *taskWorker {
	return &taskWorker{
		label:         label,
		task:          task,
		wakeupChan:    make(WakeupChan),
		currentStatus: Sleeping,
	}
}

// Start runs the worker loop: execute the task until it reports no work
// remains, then sleep until woken. The loop exits when the wakeup channel
// is closed via Close.
func (worker *taskWorker) Start() {
	workerLogger.Emit(logger.NEW, "Starting worker %v\n", worker.label)

	for {
		worker.setStatus(Working)
		for {
			didWork, err := worker.task(worker)
			if err != nil {
				workerLogger.Emit(logger.ERROR, "Worker %v task reported an error(%T): %v\n", worker.label, err, err.Error())
			}

			if !didWork {
				break
			}
		}

		if !worker.Sleep() {
			break
		}
	}

	workerLogger.Emit(logger.STOP, "Worker %v has stopped\n", worker.label)
}

// Status returns the current status of this worker.
func (worker *taskWorker) Status() Status {
	worker.mutex.Lock()
	defer worker.mutex.Unlock()

	return worker.currentStatus
}

func (worker *taskWorker) setStatus(status Status) {
	worker.mutex.Lock()
	defer worker.mutex.Unlock()

	worker.currentStatus = status
}

func (worker *taskWorker) WakeupChan() WakeupChan {
	return worker.wakeupChan
}

// Label returns the label for this worker.
func (worker *taskWorker) Label() string {
	return worker.label
}

// Close closes the Worker by closing the WakeupChan.
// Note that this does not interrupt a currently running task.
func (worker *taskWorker) Close() {
	close(worker.wakeupChan)
}

// Sleep puts a worker to sleep until its wakeupChan is
// signalled from another goroutine. Returns a boolean that
// is 'false' if the wakeup channel was closed - indicating
// the worker should quit.
func (worker *taskWorker) Sleep() (isAlive bool) {
	worker.setStatus(Sleeping)

	if _, isAlive = <-worker.wakeupChan; isAlive {
		worker.setStatus(Working)
	} else {
		worker.setStatus(Finished)
	}

	return isAlive
}
