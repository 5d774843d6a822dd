// Package wp is a keyed worker pool. Tasks submitted with the same key are
// executed in submission order on the same worker.
package wp

import (
	"fmt"
	"sync"

	"github.com/segmentio/fasthash/fnv1a"
	"go.uber.org/zap"
)

type Pool struct {
	maxWorkers int
	taskQueues []chan func()
	logger     *zap.Logger

	mu      sync.RWMutex
	stopped bool
	done    chan struct{}
	sending sync.WaitGroup
	wg      sync.WaitGroup
}

type Option func(*Pool)

// WithLogger sets the logger used to report recovered task panics.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewPool(maxWorkers int, queueBuffer int, opts ...Option) *Pool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if queueBuffer < 1 {
		queueBuffer = 1
	}

	p := &Pool{
		maxWorkers: maxWorkers,
		taskQueues: make([]chan func(), maxWorkers),
		logger:     zap.NewNop(),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	for i := 0; i < maxWorkers; i++ {
		p.taskQueues[i] = make(chan func(), queueBuffer)
		p.wg.Add(1)
		go p.startWorker(i, p.taskQueues[i])
	}

	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.maxWorkers }

// WorkerFor returns the index of the worker that runs tasks for key.
func (p *Pool) WorkerFor(key string) int {
	return int(fnv1a.HashString64(key) % uint64(p.maxWorkers))
}

func (p *Pool) startWorker(id int, queue chan func()) {
	defer p.wg.Done()
	for task := range queue {
		p.run(id, task)
	}
}

func (p *Pool) run(id int, task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked",
				zap.Int("worker", id),
				zap.String("panic", fmt.Sprint(r)),
				zap.Stack("stack"),
			)
		}
	}()
	task()
}

// Submit queues task on the worker owning key. It blocks while that worker's
// queue is full, and gives up with ErrPoolStopped once Stop begins. A nil
// task is ignored.
func (p *Pool) Submit(key string, task func()) error {
	if task == nil {
		return nil
	}

	p.mu.RLock()
	if p.stopped {
		p.mu.RUnlock()
		return ErrPoolStopped
	}
	p.sending.Add(1)
	p.mu.RUnlock()
	defer p.sending.Done()

	select {
	case p.taskQueues[p.WorkerFor(key)] <- task:
		return nil
	case <-p.done:
		return ErrPoolStopped
	}
}

// Stop rejects new tasks, runs everything already queued and waits for the
// workers to exit. Tasks may still call Submit while Stop runs. It is safe
// to call more than once.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.done)
	p.sending.Wait()
	for _, q := range p.taskQueues {
		close(q)
	}

	p.wg.Wait()
}
