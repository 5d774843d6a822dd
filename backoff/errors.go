package backoff

import "errors"

// ErrInvalidArgument is returned when a strategy is constructed with
// parameters that would produce an empty or negative delay range.
var ErrInvalidArgument = errors.New("backoff: invalid argument")
