package realtime

import (
	"math"
	"time"
)

const (
	// DefaultBackoffFloor is the first reconnect delay and the reset value.
	DefaultBackoffFloor = 500 * time.Millisecond
	// DefaultBackoffFactor multiplies the delay after each failure.
	DefaultBackoffFactor = 1.8
	// DefaultBackoffCeiling caps the reconnect delay.
	DefaultBackoffCeiling = 30 * time.Second
	// DefaultCredentialPoll is how often a missing credential is re-checked.
	DefaultCredentialPoll = 500 * time.Millisecond
)

// BackoffPolicy computes reconnect delays.
type BackoffPolicy struct {
	Floor   time.Duration
	Factor  float64
	Ceiling time.Duration
}

// DefaultBackoff returns the 500ms × 1.8 capped at 30s policy.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{
		Floor:   DefaultBackoffFloor,
		Factor:  DefaultBackoffFactor,
		Ceiling: DefaultBackoffCeiling,
	}
}

// withDefaults fills zero fields from DefaultBackoff.
func (p BackoffPolicy) withDefaults() BackoffPolicy {
	d := DefaultBackoff()
	if p.Floor <= 0 {
		p.Floor = d.Floor
	}
	if p.Factor < 1 {
		p.Factor = d.Factor
	}
	if p.Ceiling < p.Floor {
		p.Ceiling = max(d.Ceiling, p.Floor)
	}
	return p
}

// Delay returns the wait after the n-th consecutive failure:
// min(Ceiling, Floor × Factor^n). Delay(0) is the floor.
func (p BackoffPolicy) Delay(failures int) time.Duration {
	if failures <= 0 {
		return p.Floor
	}
	d := float64(p.Floor) * math.Pow(p.Factor, float64(failures))
	if math.IsInf(d, 0) || math.IsNaN(d) || d >= float64(p.Ceiling) {
		return p.Ceiling
	}
	return time.Duration(math.Round(d))
}
