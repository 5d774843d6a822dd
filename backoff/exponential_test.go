package backoff_test

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/liftcord/liftcord/backoff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// maxSource always yields the largest possible value, pushing Float64 and
// Int64N to the top of their ranges.
type maxSource struct{}

func (maxSource) Uint64() uint64 { return math.MaxUint64 }

func newExponential(t *testing.T, opts ...backoff.Option) *backoff.Exponential {
	t.Helper()

	e, err := backoff.NewExponential(opts...)
	require.NoError(t, err)

	return e
}

func TestNewExponential_Defaults(t *testing.T) {
	e := newExponential(t)

	assert.Equal(t, 1.0, e.Base())
	assert.False(t, e.Integral())
	assert.Equal(t, 0, e.Exponent())
	assert.Equal(t, 2048*time.Second, e.ResetThreshold())
}

func TestNewExponential_InvalidArguments(t *testing.T) {
	tests := []struct {
		name string
		opts []backoff.Option
	}{
		{"zero base", []backoff.Option{backoff.WithBase(0)}},
		{"negative base", []backoff.Option{backoff.WithBase(-1)}},
		{"NaN base", []backoff.Option{backoff.WithBase(math.NaN())}},
		{"positive infinity", []backoff.Option{backoff.WithBase(math.Inf(1))}},
		{"negative infinity", []backoff.Option{backoff.WithBase(math.Inf(-1))}},
		{"fractional base in integral mode", []backoff.Option{backoff.WithBase(1.5), backoff.WithIntegral(true)}},
		{"integral bound overflows", []backoff.Option{backoff.WithBase(1 << 50), backoff.WithIntegral(true)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := backoff.NewExponential(tt.opts...)

			require.Error(t, err)
			assert.ErrorIs(t, err, backoff.ErrInvalidArgument)
			assert.Nil(t, e)
		})
	}
}

func TestNewExponential_FractionalBaseAllowedInRealMode(t *testing.T) {
	e := newExponential(t, backoff.WithBase(0.25))

	assert.Equal(t, 0.25, e.Base())
	assert.Equal(t, 512*time.Second, e.ResetThreshold())
}

func TestExponential_ExponentClimbsAndSaturates(t *testing.T) {
	e := newExponential(t, backoff.WithClock(newFakeClock()))

	for n := 1; n <= 15; n++ {
		d := e.Delay()

		want := min(n, backoff.MaxExponent)
		require.Equal(t, want, e.Exponent(), "call %d", n)

		bound := math.Exp2(float64(want))
		assert.Equal(t, bound, e.Bound())
		assert.GreaterOrEqual(t, d, 0.0)
		assert.Less(t, d, bound, "call %d", n)
	}
}

func TestExponential_BoundsForUnitBase(t *testing.T) {
	e := newExponential(t, backoff.WithClock(newFakeClock()))

	want := []float64{2, 4, 8, 16, 32, 64, 128, 256, 512, 1024, 1024}
	for i, bound := range want {
		d := e.Delay()

		assert.Equal(t, bound, e.Bound(), "call %d", i+1)
		assert.Less(t, d, bound)
	}
}

func TestExponential_IntegralDelays(t *testing.T) {
	for i := 0; i < 200; i++ {
		e := newExponential(t, backoff.WithBase(2), backoff.WithIntegral(true), backoff.WithClock(newFakeClock()))

		d := e.Delay()

		assert.Equal(t, 1, e.Exponent())
		assert.Contains(t, []float64{0, 1, 2, 3}, d)
	}
}

func TestExponential_IntegralDelaysStayWhole(t *testing.T) {
	e := newExponential(t, backoff.WithBase(3), backoff.WithIntegral(true), backoff.WithClock(newFakeClock()))

	for i := 0; i < 50; i++ {
		d := e.Delay()

		assert.Equal(t, math.Trunc(d), d)
		assert.Less(t, d, e.Bound())
	}
}

func TestExponential_RealDelaysCanBeFractional(t *testing.T) {
	e := newExponential(t, backoff.WithClock(newFakeClock()))

	fractional := false
	for i := 0; i < 100; i++ {
		if d := e.Delay(); d != math.Trunc(d) {
			fractional = true
		}
	}

	assert.True(t, fractional, "expected at least one fractional delay in 100 draws")
}

func TestExponential_ResetsAfterIdleGap(t *testing.T) {
	clock := newFakeClock()
	e := newExponential(t, backoff.WithClock(clock))

	e.Delay()
	require.Equal(t, 1, e.Exponent())

	clock.Advance(2049 * time.Second)
	d := e.Delay()

	assert.Equal(t, 1, e.Exponent(), "idle gap beyond base*2^11 must reset the exponent")
	assert.Equal(t, 2.0, e.Bound())
	assert.Less(t, d, 2.0)
}

func TestExponential_ResetsFromSaturation(t *testing.T) {
	clock := newFakeClock()
	e := newExponential(t, backoff.WithClock(clock))

	for i := 0; i < 12; i++ {
		e.Delay()
	}
	require.Equal(t, backoff.MaxExponent, e.Exponent())

	clock.Advance(2048*time.Second + time.Millisecond)
	e.Delay()

	assert.Equal(t, 1, e.Exponent())
}

func TestExponential_GapAtThresholdDoesNotReset(t *testing.T) {
	clock := newFakeClock()
	e := newExponential(t, backoff.WithClock(clock))

	e.Delay()
	clock.Advance(2048 * time.Second)
	e.Delay()

	assert.Equal(t, 2, e.Exponent())
}

func TestExponential_ResetThresholdScalesWithBase(t *testing.T) {
	clock := newFakeClock()
	e := newExponential(t, backoff.WithBase(0.5), backoff.WithClock(clock))

	e.Delay()
	e.Delay()
	require.Equal(t, 2, e.Exponent())

	clock.Advance(1025 * time.Second)
	e.Delay()

	assert.Equal(t, 1, e.Exponent())
	assert.Equal(t, 1.0, e.Bound())
}

func TestExponential_GapMeasuredFromLastCall(t *testing.T) {
	clock := newFakeClock()
	e := newExponential(t, backoff.WithClock(clock))

	// Many short gaps add up to more than the threshold without resetting.
	for i := 0; i < 5; i++ {
		clock.Advance(1000 * time.Second)
		e.Delay()
	}

	assert.Equal(t, 5, e.Exponent())
}

func TestExponential_FirstCallAfterLongConstructionGap(t *testing.T) {
	clock := newFakeClock()
	e := newExponential(t, backoff.WithClock(clock))

	clock.Advance(time.Hour)
	e.Delay()

	assert.Equal(t, 1, e.Exponent())
}

func TestExponential_Reset(t *testing.T) {
	e := newExponential(t, backoff.WithClock(newFakeClock()))

	for i := 0; i < 4; i++ {
		e.Delay()
	}
	require.Equal(t, 4, e.Exponent())

	e.Reset()
	assert.Equal(t, 0, e.Exponent())

	e.Delay()
	assert.Equal(t, 1, e.Exponent())
}

func TestExponential_NextMatchesBound(t *testing.T) {
	e := newExponential(t, backoff.WithBase(0.1), backoff.WithClock(newFakeClock()))

	for i := 0; i < 12; i++ {
		d := e.Next()
		bound := time.Duration(e.Bound() * float64(time.Second))

		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, bound+1)
	}
}

func TestExponential_UpperBoundIsExclusive(t *testing.T) {
	for _, base := range []float64{1, 3, 0.7, 1e-3} {
		e := newExponential(t, backoff.WithBase(base), backoff.WithRandSource(maxSource{}), backoff.WithClock(newFakeClock()))

		for i := 0; i < 11; i++ {
			d := e.Delay()
			assert.Less(t, d, e.Bound(), "base %v call %d", base, i+1)
		}
	}

	e := newExponential(t, backoff.WithBase(2), backoff.WithIntegral(true), backoff.WithRandSource(maxSource{}), backoff.WithClock(newFakeClock()))
	assert.Equal(t, 3.0, e.Delay())
}

func TestExponential_SeededSourcesAreReproducible(t *testing.T) {
	a := newExponential(t, backoff.WithRandSource(rand.NewPCG(7, 11)), backoff.WithClock(newFakeClock()))
	b := newExponential(t, backoff.WithRandSource(rand.NewPCG(7, 11)), backoff.WithClock(newFakeClock()))

	for i := 0; i < 20; i++ {
		assert.Equal(t, a.Delay(), b.Delay())
	}
}

func TestExponential_IndependentSources(t *testing.T) {
	a := newExponential(t, backoff.WithClock(newFakeClock()))
	b := newExponential(t, backoff.WithClock(newFakeClock()))

	var seqA, seqB []float64
	for i := 0; i < 20; i++ {
		seqA = append(seqA, a.Delay())
		seqB = append(seqB, b.Delay())
	}

	assert.NotEqual(t, seqA, seqB)
}

func TestExponential_SystemClock(t *testing.T) {
	e := newExponential(t, backoff.WithBase(0.01))

	for i := 0; i < 3; i++ {
		d := e.Delay()
		assert.Less(t, d, e.Bound())
	}
	assert.Equal(t, 3, e.Exponent())
}
