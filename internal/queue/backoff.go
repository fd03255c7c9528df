package queue

import (
	"math"
	"time"
)

// Backoff computes retry delays: Base * Multiplier^(n-1), capped at Max.
type Backoff struct {
	Base       time.Duration
	Multiplier float64
	Max        time.Duration
}

// DefaultBackoff returns 1s, 2s, 4s, ... capped at 30s.
func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Multiplier: 2, Max: 30 * time.Second}
}

// Delay returns the wait before retry number n (1-based).
func (b Backoff) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(b.Base) * math.Pow(mult, float64(n-1))
	if b.Max > 0 && d > float64(b.Max) {
		return b.Max
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}
