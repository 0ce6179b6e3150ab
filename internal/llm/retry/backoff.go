package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// backoffCalculator produces exponentially growing delays with optional full
// jitter, capped at max. A provider Retry-After hint overrides the computed
// value when it is longer, but is still subject to the cap.
type backoffCalculator struct {
	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     bool
}

// next returns the delay before the attempt following the given one.
// attempt is 1-based: next(1, …) is the delay between attempts 1 and 2.
func (b backoffCalculator) next(attempt int, hint time.Duration) time.Duration {
	d := time.Duration(float64(b.initial) * math.Pow(b.multiplier, float64(attempt-1)))
	if d > b.max || d <= 0 {
		d = b.max
	}
	if b.jitter {
		// Full jitter: uniform over (0, d]. Keeps concurrent workers from
		// synchronizing their retries against a rate-limited provider.
		d = time.Duration(rand.Int64N(int64(d))) + 1
	}
	if hint > d {
		d = hint
	}
	if d > b.max {
		d = b.max
	}
	return d
}
