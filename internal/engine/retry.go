package engine

import (
	"math/rand"
	"time"
)

// RetryPolicy controls the exponential backoff applied to a failing
// application/ai_agent/robot strategy call before the token is failed or
// compensated (§4.7 "Retry").
type RetryPolicy struct {
	BaseDelay   time.Duration
	Factor      float64
	Jitter      float64 // fraction of the computed delay, e.g. 0.2 for ±20%
	MaxAttempts int
}

// DefaultRetryPolicy matches spec.md §4.7's stated defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{BaseDelay: 100 * time.Millisecond, Factor: 2, Jitter: 0.2, MaxAttempts: 3}
}

// backoffDelay computes the delay before the given attempt (1-indexed:
// attempt 1 is the first retry, following an initial dispatch).
func backoffDelay(p RetryPolicy, attempt int) time.Duration {
	delay := float64(p.BaseDelay) * pow(p.Factor, attempt-1)
	if p.Jitter > 0 {
		spread := delay * p.Jitter
		delay += (rand.Float64()*2 - 1) * spread
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
