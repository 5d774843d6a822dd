package reconnect

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// Manager runs many sessions concurrently, one goroutine per session.
type Manager struct {
	template Config
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*running
	closed   bool
	wg       sync.WaitGroup
}

type running struct {
	session *Session
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewManager creates a manager whose sessions inherit template. Sessions
// stop when ctx is done or Close is called.
func NewManager(ctx context.Context, template Config) *Manager {
	if template.Logger == nil {
		template.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(ctx)
	return &Manager{
		template: template,
		logger:   template.Logger,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*running),
	}
}

// Start creates a session for key and runs it in the background.
func (m *Manager) Start(key string, dial DialFunc) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrStopped
	}
	if _, ok := m.sessions[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, key)
	}

	cfg := m.template
	cfg.Key = key
	s, err := NewSession(cfg, dial)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(m.ctx)
	r := &running{session: s, cancel: cancel, done: make(chan struct{})}
	m.sessions[key] = r

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(r.done)
		defer cancel()

		err := s.Run(ctx)
		switch {
		case errors.Is(err, ErrStopped):
			m.logger.Debug("session exited", zap.String("key", key))
		default:
			m.logger.Error("session exited", zap.String("key", key), zap.Error(err))
		}

		m.mu.Lock()
		if m.sessions[key] == r {
			delete(m.sessions, key)
		}
		m.mu.Unlock()
	}()

	return s, nil
}

// Stop cancels the session for key and waits for it to exit.
func (m *Manager) Stop(key string) error {
	m.mu.Lock()
	r, ok := m.sessions[key]
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, key)
	}

	r.cancel()
	<-r.done
	return nil
}

// Session returns the running session for key.
func (m *Manager) Session(key string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.sessions[key]
	if !ok {
		return nil, false
	}
	return r.session, true
}

// Keys lists the running sessions in sorted order.
func (m *Manager) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.sessions))
	for k := range m.sessions {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Check reports ErrStopped once the manager is closed.
func (m *Manager) Check() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStopped
	}
	return nil
}

// Close stops every session and waits for them to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}
