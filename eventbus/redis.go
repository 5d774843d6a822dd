package eventbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisBus carries messages over Redis pub/sub channels. The client is owned
// by the caller and left open by Close.
type RedisBus[T Message] struct {
	client *redis.Client
	logger *zap.Logger

	mu     sync.Mutex
	subs   []*redis.PubSub
	closed bool
	wg     sync.WaitGroup
}

var _ Bus = (*RedisBus[Message])(nil)

func NewRedisBus[T Message](client *redis.Client, logger *zap.Logger) *RedisBus[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBus[T]{client: client, logger: logger}
}

func (eb *RedisBus[T]) Publish(topic string, msg Message) error {
	eb.mu.Lock()
	closed := eb.closed
	eb.mu.Unlock()
	if closed {
		return ErrBusClosed
	}

	data, err := msg.Serialize()
	if err != nil {
		return fmt.Errorf("eventbus: serialize %s message: %w", topic, err)
	}
	if err := eb.client.Publish(context.Background(), topic, data).Err(); err != nil {
		return fmt.Errorf("eventbus: publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe returns once Redis has confirmed the subscription.
func (eb *RedisBus[T]) Subscribe(topic string, handler MessageReceiver) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return ErrBusClosed
	}

	ctx := context.Background()
	ps := eb.client.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("eventbus: subscribe %s: %w", topic, err)
	}
	eb.subs = append(eb.subs, ps)

	ch := ps.Channel()
	eb.wg.Add(1)
	go func() {
		defer eb.wg.Done()
		for m := range ch {
			msg, err := deserialize[T]([]byte(m.Payload))
			if err != nil {
				eb.logger.Warn("dropping undecodable message",
					zap.String("topic", topic),
					zap.Error(err),
				)
				continue
			}
			handler.Receive(ctx, msg)
		}
	}()

	return nil
}

// Close unsubscribes and waits for in-flight deliveries.
func (eb *RedisBus[T]) Close() error {
	eb.mu.Lock()
	if eb.closed {
		eb.mu.Unlock()
		return nil
	}
	eb.closed = true
	subs := eb.subs
	eb.subs = nil
	eb.mu.Unlock()

	var firstErr error
	for _, ps := range subs {
		if err := ps.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	eb.wg.Wait()
	return firstErr
}
