// Package eventbus delivers messages published on named topics to the
// receivers subscribed to them.
package eventbus

import (
	"context"
	"errors"
)

// ErrBusClosed is returned by Publish and Subscribe after Close.
var ErrBusClosed = errors.New("eventbus: bus closed")

type Bus interface {
	Publish(topic string, msg Message) error
	Subscribe(topic string, handler MessageReceiver) error
	Close() error
}

// Message is anything that can travel on a bus. Messages sharing a Key are
// delivered in publish order.
type Message interface {
	Key() string
	Serialize() ([]byte, error)
}

type MessageReceiver interface {
	Receive(ctx context.Context, msg Message)
}

// ReceiverFunc adapts a function to MessageReceiver.
type ReceiverFunc func(ctx context.Context, msg Message)

func (f ReceiverFunc) Receive(ctx context.Context, msg Message) { f(ctx, msg) }
