package wp

import "errors"

// ErrPoolStopped is returned by Submit once Stop has been called.
var ErrPoolStopped = errors.New("wp: pool stopped")
