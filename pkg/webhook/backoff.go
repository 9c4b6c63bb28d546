package webhook

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes the delay before retry attempt n (n >= 1).
type Backoff interface {
	Delay(attempt int) time.Duration
}

// ExponentialBackoff doubles the delay per attempt up to Max, with optional jitter.
type ExponentialBackoff struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  float64 // fraction of the delay, 0.1 = ±10%
}

func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	initial := b.Initial
	if initial <= 0 {
		initial = time.Second
	}
	limit := b.Max
	if limit <= 0 {
		limit = 30 * time.Second
	}

	d := float64(initial) * math.Pow(2, float64(attempt-1))
	if b.Jitter > 0 {
		d *= 1 + (rand.Float64()*2-1)*b.Jitter
	}
	return min(time.Duration(d), limit)
}

// FixedBackoff waits the same interval before every retry.
type FixedBackoff time.Duration

func (b FixedBackoff) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return time.Duration(b)
}
