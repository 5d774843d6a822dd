package eventbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NatsBus publishes serialized messages to NATS subjects. Received payloads
// are decoded into T before being handed to receivers.
type NatsBus[T Message] struct {
	nc     *nats.Conn
	logger *zap.Logger

	mu     sync.Mutex
	subs   []*nats.Subscription
	closed bool
}

var _ Bus = (*NatsBus[Message])(nil)

func NewNatsBus[T Message](url string, logger *zap.Logger, opts ...nats.Option) (*NatsBus[T], error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("eventbus: connect to %s: %w", url, err)
	}
	return NewNatsBusFromConn[T](nc, logger), nil
}

// NewNatsBusFromConn wraps an existing connection. Close drains it.
func NewNatsBusFromConn[T Message](nc *nats.Conn, logger *zap.Logger) *NatsBus[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NatsBus[T]{nc: nc, logger: logger}
}

func (eb *NatsBus[T]) Publish(topic string, msg Message) error {
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
	if err := eb.nc.Publish(topic, data); err != nil {
		return fmt.Errorf("eventbus: publish %s: %w", topic, err)
	}
	return nil
}

func (eb *NatsBus[T]) Subscribe(topic string, handler MessageReceiver) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return ErrBusClosed
	}

	sub, err := eb.nc.Subscribe(topic, eb.consumedMessages(context.Background(), topic, handler.Receive))
	if err != nil {
		return fmt.Errorf("eventbus: subscribe %s: %w", topic, err)
	}
	eb.subs = append(eb.subs, sub)
	return nil
}

func (eb *NatsBus[T]) Close() error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return nil
	}
	eb.closed = true
	eb.subs = nil
	return eb.nc.Drain()
}

func (eb *NatsBus[T]) consumedMessages(ctx context.Context, topic string, receiver func(ctx context.Context, msg Message)) nats.MsgHandler {
	return func(m *nats.Msg) {
		msg, err := deserialize[T](m.Data)
		if err != nil {
			eb.logger.Warn("dropping undecodable message",
				zap.String("topic", topic),
				zap.Error(err),
			)
			return
		}
		receiver(ctx, msg)
	}
}

func deserialize[T any](data []byte) (T, error) {
	var msg T
	err := json.Unmarshal(data, &msg)
	return msg, err
}
