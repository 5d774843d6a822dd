// Package idgen generates identifiers for sessions and events.
package idgen

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// entropy is shared by every caller, so monotonic ordering holds across
// sessions created within the same millisecond.
var entropy = &ulid.LockedMonotonicReader{
	MonotonicReader: ulid.Monotonic(rand.Reader, 0),
}

var _ulidGenerator = func() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewULID returns a lexicographically sortable identifier.
func NewULID() string {
	return _ulidGenerator()
}

// UseULID replaces the generator. Passing nil restores the default.
func UseULID(fn func() string) {
	if fn == nil {
		fn = func() string {
			return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
		}
	}
	_ulidGenerator = fn
}
