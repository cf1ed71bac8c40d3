package realtime

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffDelayFormula(t *testing.T) {
	t.Parallel()

	p := DefaultBackoff()
	for n := 0; n <= 20; n++ {
		wantMs := math.Min(30000, 500*math.Pow(1.8, float64(n)))
		got := p.Delay(n)
		require.InDelta(t, wantMs, float64(got)/float64(time.Millisecond), 0.001, "n=%d", n)
	}
}

func TestBackoffKnownValues(t *testing.T) {
	t.Parallel()

	p := DefaultBackoff()
	require.Equal(t, 500*time.Millisecond, p.Delay(0))
	require.Equal(t, 900*time.Millisecond, p.Delay(1))
	require.Equal(t, 1620*time.Millisecond, p.Delay(2))
	require.Equal(t, 30*time.Second, p.Delay(12))
	require.Equal(t, 30*time.Second, p.Delay(10_000))
}

func TestBackoffWithDefaults(t *testing.T) {
	t.Parallel()

	require.Equal(t, DefaultBackoff(), BackoffPolicy{}.withDefaults())

	p := BackoffPolicy{Floor: time.Minute}.withDefaults()
	require.Equal(t, time.Minute, p.Floor)
	require.Equal(t, time.Minute, p.Ceiling)
	require.Equal(t, DefaultBackoffFactor, p.Factor)
}
