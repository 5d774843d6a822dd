package eventbus

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/liftcord/liftcord/wp"
)

var _ Bus = (*InMem)(nil)

// InMem fans messages out to in-process subscribers. Deliveries run on a
// keyed worker pool, so messages with the same key reach each receiver in
// order while different keys are handled concurrently.
type InMem struct {
	pool      *wp.Pool
	ownsPool  bool
	mu        sync.RWMutex
	receivers map[string][]MessageReceiver
	closed    bool
}

type InMemOption func(*InMem)

// WithPool delivers on an existing pool. The bus does not stop it on Close.
func WithPool(p *wp.Pool) InMemOption {
	return func(b *InMem) {
		if p != nil {
			b.pool = p
			b.ownsPool = false
		}
	}
}

func NewInMemBus(opts ...InMemOption) *InMem {
	b := &InMem{
		receivers: make(map[string][]MessageReceiver),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.pool == nil {
		b.pool = wp.NewPool(4, 100)
		b.ownsPool = true
	}
	return b
}

func (b *InMem) Publish(topic string, msg Message) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	receivers := b.receivers[topic]
	b.mu.RUnlock()

	// Submit may block on a full queue, so it runs without the lock held.
	for _, r := range receivers {
		err := b.pool.Submit(msg.Key(), func() {
			r.Receive(context.Background(), msg)
		})
		if errors.Is(err, wp.ErrPoolStopped) {
			return ErrBusClosed
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *InMem) Subscribe(topic string, handler MessageReceiver) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}

	// copy so Publish can range over a snapshot without the lock
	b.receivers[topic] = append(slices.Clone(b.receivers[topic]), handler)
	return nil
}

// Close stops accepting messages. Deliveries already queued still run
// before Close returns when the bus owns its pool.
func (b *InMem) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if b.ownsPool {
		b.pool.Stop()
	}
	return nil
}
