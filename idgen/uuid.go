package idgen

import "github.com/google/uuid"

var _uuidGenerator = func() string {
	return uuid.New().String()
}

// NewUUID returns a random (version 4) UUID.
func NewUUID() string {
	return _uuidGenerator()
}

// UseUUID replaces the generator. Passing nil restores the default.
func UseUUID(fn func() string) {
	if fn == nil {
		fn = func() string { return uuid.New().String() }
	}
	_uuidGenerator = fn
}
