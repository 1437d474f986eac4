package judge

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces judge calls process-wide: consecutive call starts are spaced
// by at least the configured minimum interval. All workers share one Limiter
// and block until their turn rather than racing.
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter creates a pacer with the given minimum inter-call interval.
// A non-positive interval disables pacing.
func NewLimiter(minInterval time.Duration) *Limiter {
	if minInterval <= 0 {
		return &Limiter{}
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Every(minInterval), 1)}
}

// Wait blocks until the caller may issue the next call.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.limiter == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}
