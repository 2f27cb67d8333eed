package push

import (
	"math"
	"math/rand/v2"
	"time"
)

// stableAfter is how long a connection must stay up before the backoff
// starts over from the base delay.
const stableAfter = 60 * time.Second

type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	attempt     int
	connectedAt time.Time
	now         func() time.Time
}

func newReconnector(base, max time.Duration) *reconnector {
	return &reconnector{baseDelay: base, maxDelay: max, now: time.Now}
}

func (r *reconnector) markConnected() {
	r.connectedAt = r.now()
}

// nextDelay returns base*2^attempt plus up to 50% jitter, capped at max.
func (r *reconnector) nextDelay() time.Duration {
	if !r.connectedAt.IsZero() && r.now().Sub(r.connectedAt) > stableAfter {
		r.attempt = 0
	}
	r.connectedAt = time.Time{}
	jitter := rand.Float64() * float64(r.baseDelay) * 0.5
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+jitter,
		float64(r.maxDelay),
	))
	r.attempt++
	return delay
}
