package worker_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ripley/pkg/logger"
	"ripley/pkg/worker"
)

func init() {
	logger.SetMinLoggingLevel(logger.ERROR.Level())
}

func Test_Pool_RunsTaskWhenWoken(t *testing.T) {
	t.Parallel()

	var executions int32
	pending := int32(3)
	task := func(w worker.Worker) (bool, error) {
		if atomic.AddInt32(&pending, -1) < 0 {
			return false, nil
		}

		atomic.AddInt32(&executions, 1)
		return true, nil
	}

	pool := worker.NewWorkerPool()
	require.Nil(t, pool.PushWorker(worker.NewWorker("test-worker", task)))
	require.Nil(t, pool.Start())
	defer pool.Close()

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		assert.EqualValues(c, 3, atomic.LoadInt32(&executions))
	}, time.Second, time.Millisecond*10)

	// Queue more work and wake the worker. The wakeup is retried because
	// a worker only hears it once it has gone back to sleep.
	atomic.StoreInt32(&pending, 2)
	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		assert.Nil(c, pool.WakeupWorkers())
		assert.EqualValues(c, 5, atomic.LoadInt32(&executions))
	}, time.Second, time.Millisecond*10)
}

func Test_Pool_RejectsMutationAfterStart(t *testing.T) {
	t.Parallel()

	pool := worker.NewWorkerPool()
	require.Nil(t, pool.PushWorker(worker.NewWorker("test-worker", func(w worker.Worker) (bool, error) {
		return false, nil
	})))
	require.Nil(t, pool.Start())
	defer pool.Close()

	assert.NotNil(t, pool.Start(), "double start must be rejected")
	assert.NotNil(t, pool.PushWorker(worker.NewWorker("late", nil)), "push after start must be rejected")
}

func Test_Pool_StartAndWakeupAreSafeConcurrently(t *testing.T) {
	t.Parallel()

	pool := worker.NewWorkerPool()
	w := worker.NewWorker("test-worker", func(worker.Worker) (bool, error) { return false, nil })
	require.Nil(t, pool.PushWorker(w))

	// Services start the pool from their own goroutine while requests may
	// already be issuing wakeups and status reads.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			pool.WakeupWorkers()
			w.Status()
		}
	}()
	go func() {
		defer wg.Done()
		assert.Nil(t, pool.Start())
	}()

	wg.Wait()
	pool.Close()
	assert.Equal(t, worker.Finished, w.Status())
}

func Test_Pool_WakeupRequiresStartedPool(t *testing.T) {
	t.Parallel()

	pool := worker.NewWorkerPool()
	assert.NotNil(t, pool.WakeupWorkers())
}

func Test_Pool_CloseStopsSleepingWorkers(t *testing.T) {
	t.Parallel()

	pool := worker.NewWorkerPool()
	w := worker.NewWorker("test-worker", func(w worker.Worker) (bool, error) { return false, nil })
	require.Nil(t, pool.PushWorker(w))
	require.Nil(t, pool.Start())

	closed := make(chan struct{})
	go func() {
		pool.Close()
		close(closed)
	}()

	select {
	case <-closed:
		assert.Equal(t, worker.Finished, w.Status())
	case <-time.After(time.Second * 2):
		t.Fatal("pool close did not complete; worker failed to stop")
	}
}
