// Package reconnect supervises long-lived connections. A Session dials,
// serves the connection until it drops, and waits a jittered exponential
// backoff delay before dialing again.
package reconnect

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/liftcord/liftcord/backoff"
	"github.com/liftcord/liftcord/eventbus"
	"github.com/liftcord/liftcord/idgen"
	"github.com/liftcord/liftcord/observability"
	"github.com/liftcord/liftcord/policy"
)

// Conn is an established connection.
type Conn interface {
	// Serve blocks until the connection drops or ctx is done.
	Serve(ctx context.Context) error
	Close() error
}

// DialFunc opens a new connection.
type DialFunc func(ctx context.Context) (Conn, error)

// Config configures a Session. The zero value is usable.
type Config struct {
	// Key names the connection, e.g. "shard-0". It labels logs, metrics and
	// events and is the policy target for every dial.
	Key string

	// Base is the backoff seed delay in seconds. Default: 1
	Base float64

	// Integral selects whole-second delays.
	Integral bool

	// BackoffOptions are applied after Base and Integral.
	BackoffOptions []backoff.Option

	// Policies wrap every dial attempt, outermost first.
	Policies []policy.Policy

	// Bus receives session events on Topic. Optional.
	Bus   eventbus.Bus
	Topic string

	Metrics *observability.MetricsCollector
	Logger  *zap.Logger

	// Sleep waits between attempts. Default: backoff.SleepContext
	Sleep func(ctx context.Context, d time.Duration) error
}

// State is a point-in-time view of a session.
type State struct {
	Attempts  int
	Failures  int
	Connected bool
	Exponent  int
	LastDelay time.Duration
	LastError string
}

// Session keeps one connection alive. Its backoff is only touched by the
// goroutine executing Run.
type Session struct {
	id      string
	key     string
	cfg     Config
	dial    DialFunc
	backoff *backoff.Exponential
	logger  *zap.Logger
	running atomic.Bool

	mu    sync.Mutex
	state State
}

// NewSession builds a disconnected session for cfg.Key. It fails when dial is
// nil or the backoff settings are invalid.
func NewSession(cfg Config, dial DialFunc) (*Session, error) {
	if dial == nil {
		return nil, ErrNoDialer
	}

	opts := []backoff.Option{backoff.WithIntegral(cfg.Integral)}
	if cfg.Base != 0 {
		opts = append(opts, backoff.WithBase(cfg.Base))
	}
	opts = append(opts, cfg.BackoffOptions...)

	b, err := backoff.NewExponential(opts...)
	if err != nil {
		return nil, fmt.Errorf("reconnect: session %q: %w", cfg.Key, err)
	}

	if cfg.Key == "" {
		cfg.Key = observability.DefaultTarget
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = backoff.SleepContext
	}

	s := &Session{
		id:      idgen.NewULID(),
		key:     cfg.Key,
		cfg:     cfg,
		dial:    dial,
		backoff: b,
	}
	s.logger = cfg.Logger.With(zap.String("session_id", s.id), zap.String("key", s.key))

	return s, nil
}

// ID is the ULID assigned when the session was built.
func (s *Session) ID() string { return s.id }

// Key is the configured key, or the default target when none was set.
func (s *Session) Key() string { return s.key }

// State returns a snapshot that is safe to read while Run is active.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run dials and re-dials until ctx is done or an attempt fails with an
// error marked policy.Permanent. Every failed dial and every dropped
// connection consumes one backoff delay. It returns an error wrapping
// ErrStopped and the context error on cancellation, or the permanent error.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	ctx = policy.WithTarget(ctx, s.key)

	var conn Conn
	dial := policy.Chain(s.cfg.Policies, func(ctx context.Context) error {
		c, err := s.dial(ctx)
		if err != nil {
			return err
		}
		if c == nil {
			return ErrNilConn
		}
		conn = c
		return nil
	})

	for {
		if err := ctx.Err(); err != nil {
			return s.stop(0, err)
		}

		attempt := s.beginAttempt()
		s.publish(Event{Kind: KindDialing, Attempt: attempt})

		conn = nil
		err := dial(ctx)
		if err == nil {
			err = s.serve(ctx, attempt, conn)
		} else {
			s.recordFailure(err)
			s.recordAttempt("failed")
			s.logger.Warn("connection attempt failed",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return s.stop(attempt, ctxErr)
		}
		if policy.IsPermanent(err) {
			s.publish(Event{Kind: KindStopped, Attempt: attempt, Error: err.Error()})
			s.logger.Error("session stopped on permanent error", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}

		delay, exponent := s.nextDelay()
		s.publish(Event{Kind: KindBackoff, Attempt: attempt, Exponent: exponent, Delay: delay})
		s.logger.Info("reconnecting after backoff",
			zap.Int("attempt", attempt),
			zap.Int("exponent", exponent),
			zap.Duration("delay", delay),
		)

		if err := s.cfg.Sleep(ctx, delay); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			return s.stop(attempt, err)
		}
	}
}

func (s *Session) serve(ctx context.Context, attempt int, conn Conn) error {
	s.setConnected(true)
	s.recordAttempt("connected")
	s.publish(Event{Kind: KindConnected, Attempt: attempt})
	s.logger.Info("session connected", zap.Int("attempt", attempt))

	err := conn.Serve(ctx)
	if closeErr := conn.Close(); closeErr != nil {
		s.logger.Debug("closing connection", zap.Error(closeErr))
	}

	s.setConnected(false)
	s.recordAttempt("dropped")

	ev := Event{Kind: KindDisconnected, Attempt: attempt}
	if err != nil {
		ev.Error = err.Error()
		s.recordFailure(err)
	}
	s.publish(ev)
	s.logger.Warn("session disconnected", zap.Int("attempt", attempt), zap.Error(err))

	return err
}

// nextDelay consults the backoff once. An exponent that drops back to 1
// means the idle threshold elapsed and the backoff started over.
func (s *Session) nextDelay() (time.Duration, int) {
	prev := s.backoff.Exponent()
	delay := s.backoff.Next()
	exponent := s.backoff.Exponent()

	if prev >= 1 && exponent == 1 {
		s.logger.Debug("backoff reset after idle period", zap.Int("previous_exponent", prev))
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.IncrementBackoffResets(s.key)
		}
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ObserveBackoff(s.key, delay, exponent)
	}

	s.mu.Lock()
	s.state.Exponent = exponent
	s.state.LastDelay = delay
	s.mu.Unlock()

	return delay, exponent
}

func (s *Session) stop(attempt int, cause error) error {
	if cause == nil {
		cause = context.Canceled
	}
	s.publish(Event{Kind: KindStopped, Attempt: attempt, Error: cause.Error()})
	s.logger.Info("session stopped", zap.Int("attempt", attempt), zap.Error(cause))
	return fmt.Errorf("%w: %w", ErrStopped, cause)
}

func (s *Session) beginAttempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Attempts++
	return s.state.Attempts
}

func (s *Session) setConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Connected = connected
}

func (s *Session) recordFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Failures++
	s.state.LastError = err.Error()
}

func (s *Session) recordAttempt(outcome string) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.IncrementReconnectAttempts(s.key, outcome)
	}
}

func (s *Session) publish(ev Event) {
	if s.cfg.Bus == nil {
		return
	}

	ev.ID = idgen.NewUUID()
	ev.SessionID = s.id
	ev.SessionKey = s.key
	ev.Time = time.Now()

	if err := s.cfg.Bus.Publish(s.cfg.Topic, ev); err != nil && !errors.Is(err, eventbus.ErrBusClosed) {
		s.logger.Warn("publishing session event", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}
