package ai

import (
	"math"
	"time"
)

// RetryPolicy controls how many times a transient provider failure is retried
// and how long to back off between attempts.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryPolicy matches the provider rate limits seen in practice: five
// attempts with an exponential backoff starting at one second.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:  5,
	InitialDelay: time.Second,
	MaxDelay:     60 * time.Second,
	Multiplier:   2,
}

// Normalized returns a copy of the policy with unset fields filled from
// DefaultRetryPolicy.
func (p RetryPolicy) Normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultRetryPolicy.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultRetryPolicy.MaxDelay
	}
	if p.Multiplier <= 0 {
		p.Multiplier = DefaultRetryPolicy.Multiplier
	}
	return p
}

// Delay returns how long to wait before retrying after the given failed
// attempt, starting from attempt 1. The delay grows by Multiplier per attempt
// and is capped at MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}
