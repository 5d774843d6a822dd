package backoff

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

const (
	// DefaultBase is the seed delay in seconds used when WithBase is not given.
	DefaultBase = 1.0

	// MaxExponent caps the exponent: the delay bound never exceeds base*2^10.
	MaxExponent = 10

	// resetExponent sizes the idle period after which accumulated backoff is
	// discarded: base*2^11 seconds.
	resetExponent = MaxExponent + 1

	// maxIntegralBound keeps integral bounds exactly representable as float64.
	maxIntegralBound = 1 << 53
)

// Exponential implements exponential backoff with full jitter.
//
// Every call to Delay (or Next) increments the exponent, capped at
// MaxExponent, and returns a uniformly random value in [0, base*2^exponent).
// If more than base*2^11 seconds passed since the previous call, the exponent
// is first reset to zero, so the first delay after a long quiet period is
// again drawn from [0, 2*base).
//
// An Exponential is not safe for concurrent use. It is meant to be owned by
// one retry loop; callers that share an instance must serialize access.
type Exponential struct {
	base     float64
	integral bool
	clock    Clock
	rng      *rand.Rand
	source   rand.Source

	exp   int
	reset float64 // seconds
	last  time.Time
}

// Option configures an Exponential.
type Option func(*Exponential)

// WithBase sets the seed delay in seconds. It must be positive and finite.
func WithBase(seconds float64) Option {
	return func(e *Exponential) {
		e.base = seconds
	}
}

// WithIntegral selects whole-number delays. In integral mode the base must be
// a whole number as well.
func WithIntegral(integral bool) Option {
	return func(e *Exponential) {
		e.integral = integral
	}
}

// WithClock overrides the time source. A nil clock keeps the system clock.
func WithClock(c Clock) Option {
	return func(e *Exponential) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithRandSource overrides the random source. Sources must not be shared
// between instances; a nil source keeps the entropy-seeded default.
func WithRandSource(src rand.Source) Option {
	return func(e *Exponential) {
		e.source = src
	}
}

// NewExponential creates an exponential backoff. Defaults: base 1 second,
// real-valued delays, system monotonic clock, entropy-seeded PCG source.
func NewExponential(opts ...Option) (*Exponential, error) {
	e := &Exponential{
		base:  DefaultBase,
		clock: SystemClock(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if math.IsNaN(e.base) || math.IsInf(e.base, 0) || e.base <= 0 {
		return nil, fmt.Errorf("%w: base must be a positive finite number of seconds, got %v", ErrInvalidArgument, e.base)
	}

	if e.integral {
		if e.base != math.Trunc(e.base) {
			return nil, fmt.Errorf("%w: integral mode requires a whole base, got %v", ErrInvalidArgument, e.base)
		}
		if e.base*math.Exp2(MaxExponent) > maxIntegralBound {
			return nil, fmt.Errorf("%w: base %v is too large for integral delays", ErrInvalidArgument, e.base)
		}
	}

	if e.source == nil {
		e.source = newSource()
	}
	e.rng = rand.New(e.source)

	e.reset = e.base * math.Exp2(resetExponent)
	e.last = e.clock.Now()

	return e, nil
}

// Delay computes the next delay in seconds.
//
// The returned value d satisfies 0 <= d < Base()*2^Exponent(), where
// Exponent is read after the call. In integral mode d is a whole number.
func (e *Exponential) Delay() float64 {
	now := e.clock.Now()
	elapsed := now.Sub(e.last)
	e.last = now

	if elapsed.Seconds() > e.reset {
		e.exp = 0
	}

	e.exp = min(e.exp+1, MaxExponent)

	upper := e.Bound()
	if e.integral {
		return float64(e.rng.Int64N(int64(upper)))
	}

	d := e.rng.Float64() * upper
	if d >= upper {
		// Float64 is < 1 but the product can round up for non-dyadic bases.
		d = math.Nextafter(upper, 0)
	}
	return d
}

// Next implements Backoff. It calls Delay and converts the result to a
// Duration, truncating to whole nanoseconds.
func (e *Exponential) Next() time.Duration {
	return secondsToDuration(e.Delay())
}

// Reset implements Backoff by returning to the fresh regime immediately
// instead of waiting for the idle threshold to elapse.
func (e *Exponential) Reset() {
	e.exp = 0
	e.last = e.clock.Now()
}

// Exponent reports the exponent used by the most recent delay computation.
// It is 0 before the first call and after Reset.
func (e *Exponential) Exponent() int { return e.exp }

// Bound returns the exclusive upper bound, in seconds, of the most recent
// delay: base*2^Exponent().
func (e *Exponential) Bound() float64 {
	return e.base * math.Exp2(float64(e.exp))
}

// Base returns the seed delay in seconds.
func (e *Exponential) Base() float64 { return e.base }

// Integral reports whether delays are whole numbers.
func (e *Exponential) Integral() bool { return e.integral }

// ResetThreshold returns the idle period after which the exponent restarts.
func (e *Exponential) ResetThreshold() time.Duration {
	return secondsToDuration(e.reset)
}

var _ Backoff = (*Exponential)(nil)

// Default returns an Exponential with DefaultBase and real-valued delays.
func Default() *Exponential {
	e, err := NewExponential()
	if err != nil {
		panic(err) // unreachable: the defaults are valid
	}
	return e
}
