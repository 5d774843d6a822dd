package reconnect

import "errors"

var (
	// ErrStopped is returned when a session or manager ends because its
	// context was cancelled or it was closed.
	ErrStopped = errors.New("reconnect: stopped")

	ErrAlreadyRunning = errors.New("reconnect: session already running")
	ErrDuplicateKey   = errors.New("reconnect: session key already in use")
	ErrUnknownSession = errors.New("reconnect: unknown session")
	ErrNoDialer       = errors.New("reconnect: dialer is required")
	ErrNilConn        = errors.New("reconnect: dialer returned a nil connection")
)
