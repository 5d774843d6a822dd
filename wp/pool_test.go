package wp_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/liftcord/liftcord/wp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWorkerPool_BasicExecution(t *testing.T) {
	p := wp.NewPool(3, 10)
	defer p.Stop()

	var (
		mu      sync.Mutex
		results []int
		done    sync.WaitGroup
	)

	for i := 1; i <= 3; i++ {
		done.Add(1)
		require.NoError(t, p.Submit(fmt.Sprintf("shard-%d", i), func() {
			defer done.Done()
			mu.Lock()
			results = append(results, i)
			mu.Unlock()
		}))
	}

	done.Wait()
	assert.ElementsMatch(t, []int{1, 2, 3}, results)
}

func TestWorkerPool_SameKeyRunsInOrder(t *testing.T) {
	p := wp.NewPool(4, 2)

	var order []int
	for i := 0; i < 50; i++ {
		require.NoError(t, p.Submit("shard-0", func() {
			// only one worker ever touches order for this key
			order = append(order, i)
		}))
	}
	p.Stop()

	require.Len(t, order, 50)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestWorkerPool_WorkerForIsStable(t *testing.T) {
	p := wp.NewPool(8, 1)
	defer p.Stop()

	assert.Equal(t, 8, p.Size())
	for _, key := range []string{"shard-0", "shard-1", "voice"} {
		w := p.WorkerFor(key)
		assert.GreaterOrEqual(t, w, 0)
		assert.Less(t, w, 8)
		assert.Equal(t, w, p.WorkerFor(key))
	}
}

func TestWorkerPool_GracefullyShutdown(t *testing.T) {
	p := wp.NewPool(3, 5)

	var counter atomic.Int32
	tasks := 10
	for i := 0; i < tasks; i++ {
		require.NoError(t, p.Submit("task", func() {
			counter.Add(1)
		}))
	}

	p.Stop()

	assert.Equal(t, int32(tasks), counter.Load())
}

func TestWorkerPool_NoPanicOnNilTask(t *testing.T) {
	p := wp.NewPool(2, 2)
	defer p.Stop()

	assert.NoError(t, p.Submit("nil-task", nil))
}

func TestWorkerPool_NoSubmitAfterStop(t *testing.T) {
	p := wp.NewPool(2, 2)
	p.Stop()
	p.Stop()

	err := p.Submit("stopped-task", func() {})
	assert.ErrorIs(t, err, wp.ErrPoolStopped)
}

func TestWorkerPool_RecoversPanics(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	p := wp.NewPool(1, 4, wp.WithLogger(zap.New(core)))

	var ran atomic.Bool
	require.NoError(t, p.Submit("k", func() { panic("boom") }))
	require.NoError(t, p.Submit("k", func() { ran.Store(true) }))

	require.Eventually(t, ran.Load, time.Second, time.Millisecond)
	p.Stop()

	entries := logs.FilterMessage("task panicked").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "boom", entries[0].ContextMap()["panic"])
}

func TestWorkerPool_SubmitFromTaskDuringStop(t *testing.T) {
	p := wp.NewPool(1, 1)

	release := make(chan struct{})
	running := make(chan struct{})
	resubmitted := make(chan error, 1)

	require.NoError(t, p.Submit("k", func() {
		close(running)
		<-release
		resubmitted <- p.Submit("k", func() {})
	}))
	<-running

	// fills the single queue slot
	require.NoError(t, p.Submit("k", func() {}))

	blocked := make(chan error, 1)
	go func() { blocked <- p.Submit("k", func() {}) }()

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()

	time.Sleep(20 * time.Millisecond)
	close(release)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return while a task was submitting")
	}

	for _, err := range []error{<-blocked, <-resubmitted} {
		if err != nil {
			assert.ErrorIs(t, err, wp.ErrPoolStopped)
		}
	}
}
