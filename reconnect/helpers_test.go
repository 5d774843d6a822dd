package reconnect_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/liftcord/liftcord/backoff"
	"github.com/liftcord/liftcord/reconnect"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// sleeper advances the fake clock instead of waiting and remembers every delay.
type sleeper struct {
	clock *fakeClock

	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	s.clock.Advance(d)
	return nil
}

func (s *sleeper) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

type fakeConn struct {
	serve  func(ctx context.Context) error
	closed atomic.Bool
}

func (c *fakeConn) Serve(ctx context.Context) error {
	if c.serve == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return c.serve(ctx)
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

// script answers dial N with steps[N-1]; the last step repeats.
type script struct {
	mu    sync.Mutex
	calls int
	steps []func(ctx context.Context) (reconnect.Conn, error)
}

func (s *script) Dial(ctx context.Context) (reconnect.Conn, error) {
	s.mu.Lock()
	i := min(s.calls, len(s.steps)-1)
	s.calls++
	s.mu.Unlock()
	return s.steps[i](ctx)
}

func (s *script) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func fail(err error) func(context.Context) (reconnect.Conn, error) {
	return func(context.Context) (reconnect.Conn, error) { return nil, err }
}

func connect(conn *fakeConn) func(context.Context) (reconnect.Conn, error) {
	return func(context.Context) (reconnect.Conn, error) { return conn, nil }
}

func testConfig(clock *fakeClock, sl *sleeper) reconnect.Config {
	return reconnect.Config{
		Key:            "shard-0",
		BackoffOptions: []backoff.Option{backoff.WithClock(clock)},
		Sleep:          sl.Sleep,
	}
}
