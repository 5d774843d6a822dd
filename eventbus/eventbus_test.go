package eventbus_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/liftcord/liftcord/eventbus"
	"github.com/liftcord/liftcord/wp"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type note struct {
	Shard string `json:"shard"`
	Seq   int    `json:"seq"`
}

func (n note) Key() string                { return n.Shard }
func (n note) Serialize() ([]byte, error) { return json.Marshal(n) }

type collector struct {
	mu   sync.Mutex
	msgs []eventbus.Message
}

func (c *collector) Receive(_ context.Context, msg eventbus.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *collector) snapshot() []eventbus.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]eventbus.Message(nil), c.msgs...)
}

func TestInMem_DeliversToTopicSubscribers(t *testing.T) {
	bus := eventbus.NewInMemBus()

	var a, b, other collector
	require.NoError(t, bus.Subscribe("reconnect", &a))
	require.NoError(t, bus.Subscribe("reconnect", &b))
	require.NoError(t, bus.Subscribe("other", &other))

	require.NoError(t, bus.Publish("reconnect", note{Shard: "shard-0", Seq: 1}))
	require.NoError(t, bus.Close())

	assert.Equal(t, []eventbus.Message{note{Shard: "shard-0", Seq: 1}}, a.snapshot())
	assert.Equal(t, []eventbus.Message{note{Shard: "shard-0", Seq: 1}}, b.snapshot())
	assert.Empty(t, other.snapshot())
}

func TestInMem_PreservesOrderPerKey(t *testing.T) {
	bus := eventbus.NewInMemBus()

	var c collector
	require.NoError(t, bus.Subscribe("reconnect", &c))

	for i := 0; i < 100; i++ {
		require.NoError(t, bus.Publish("reconnect", note{Shard: "shard-1", Seq: i}))
	}
	require.NoError(t, bus.Close())

	got := c.snapshot()
	require.Len(t, got, 100)
	for i, m := range got {
		assert.Equal(t, i, m.(note).Seq)
	}
}

func TestInMem_ReceiverFunc(t *testing.T) {
	bus := eventbus.NewInMemBus()
	defer bus.Close()

	received := make(chan eventbus.Message, 1)
	require.NoError(t, bus.Subscribe("t", eventbus.ReceiverFunc(func(_ context.Context, msg eventbus.Message) {
		received <- msg
	})))
	require.NoError(t, bus.Publish("t", note{Shard: "s"}))

	select {
	case msg := <-received:
		assert.Equal(t, "s", msg.Key())
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestInMem_Closed(t *testing.T) {
	bus := eventbus.NewInMemBus()
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish("t", note{}), eventbus.ErrBusClosed)
	assert.ErrorIs(t, bus.Subscribe("t", &collector{}), eventbus.ErrBusClosed)
}

func TestInMem_SharedPoolIsNotStopped(t *testing.T) {
	pool := wp.NewPool(2, 4)
	defer pool.Stop()

	bus := eventbus.NewInMemBus(eventbus.WithPool(pool))
	require.NoError(t, bus.Close())

	assert.NoError(t, pool.Submit("k", func() {}))
}

func TestNewNatsBus_ConnectFailure(t *testing.T) {
	_, err := eventbus.NewNatsBus[note]("nats://127.0.0.1:1", nil, nats.Timeout(100*time.Millisecond))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "eventbus: connect to nats://127.0.0.1:1")
}

func TestInMem_ReceiverPublishesDuringClose(t *testing.T) {
	pool := wp.NewPool(1, 1)
	bus := eventbus.NewInMemBus(eventbus.WithPool(pool))

	release := make(chan struct{})
	running := make(chan struct{})
	republished := make(chan error, 1)

	var once sync.Once
	require.NoError(t, bus.Subscribe("t", eventbus.ReceiverFunc(func(_ context.Context, msg eventbus.Message) {
		if msg.(note).Seq != 0 {
			return
		}
		once.Do(func() { close(running) })
		<-release
		republished <- bus.Publish("t", note{Shard: "s", Seq: 99})
	})))

	require.NoError(t, bus.Publish("t", note{Shard: "s", Seq: 0}))
	<-running
	require.NoError(t, bus.Publish("t", note{Shard: "s", Seq: 1}))

	blocked := make(chan error, 1)
	go func() { blocked <- bus.Publish("t", note{Shard: "s", Seq: 2}) }()

	closed := make(chan struct{})
	go func() {
		_ = bus.Close()
		pool.Stop()
		close(closed)
	}()

	time.Sleep(20 * time.Millisecond)
	close(release)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("bus and pool did not shut down while a receiver was publishing")
	}

	assert.ErrorIs(t, <-republished, eventbus.ErrBusClosed)
	if err := <-blocked; err != nil {
		assert.ErrorIs(t, err, eventbus.ErrBusClosed)
	}
}
