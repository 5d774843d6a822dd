package main

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/liftcord/liftcord/reconnect"
)

var errDemoRefused = errors.New("demo gateway refused the connection")

// demoDialer stands in for a real gateway. Each dial fails with probability
// failRate; successful connections stay up for up to lifetime and then drop.
type demoDialer struct {
	failRate float64
	lifetime time.Duration
	rng      *rand.Rand
}

func (d *demoDialer) Dial(ctx context.Context) (reconnect.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.rng.Float64() < d.failRate {
		return nil, errDemoRefused
	}

	var lifetime time.Duration
	if d.lifetime > 0 {
		lifetime = time.Duration(d.rng.Int64N(int64(d.lifetime))) + 1
	}
	return &demoConn{lifetime: lifetime}, nil
}

type demoConn struct {
	lifetime time.Duration
}

func (c *demoConn) Serve(ctx context.Context) error {
	t := time.NewTimer(c.lifetime)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return errors.New("demo gateway closed the connection")
	}
}

func (c *demoConn) Close() error { return nil }
