package integration

import "time"

// DefaultLowWaterMark is the remaining-quota threshold at which calls wait for the window reset
const DefaultLowWaterMark = 5

// RateLimitWindow is the provider-reported quota for one key.
// It is rebuilt from the most recent response and never persisted.
type RateLimitWindow struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
	// Known is false until a response carried quota headers
	Known bool
}

// WaitFor returns how long a caller must block before sending so that the
// remaining quota is not driven into a 429. Zero means send now.
func (w RateLimitWindow) WaitFor(lowWater int, now time.Time) time.Duration {
	if !w.Known || w.Remaining > lowWater {
		return 0
	}
	if !w.ResetAt.After(now) {
		return 0
	}
	return w.ResetAt.Sub(now)
}

// Consume records one sent request against the window
func (w *RateLimitWindow) Consume() {
	if w.Known && w.Remaining > 0 {
		w.Remaining--
	}
}
