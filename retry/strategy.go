// Package retry provides the backoff strategy used between handler attempts.
// The default is a fixed delay with a small attempt budget; an exponential
// schedule is available by raising ExponentialBase above 1.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Strategy defines how often a failing message is retried and how long the
// dispatcher waits between attempts.
//
// MaxAttempts counts every handler invocation, including the first one.
// The delay after the n-th failure is:
//
//	delay = min(BaseDelay * ExponentialBase^(n-1), MaxDelay)
//
// With ExponentialBase <= 1 the delay is BaseDelay every time (fixed backoff).
//
// Example with defaults (3 attempts, 1s fixed):
//
//	Attempt 1: immediately
//	Attempt 2: after 1s
//	Attempt 3: after 1s (→ dead letter on failure)
type Strategy struct {
	MaxAttempts     int           // Total handler invocations before dead-lettering
	BaseDelay       time.Duration // Delay after the first failure
	MaxDelay        time.Duration // Cap for exponential growth, 0 means uncapped
	ExponentialBase float64       // Backoff multiplier, <= 1 means fixed delay
}

// DefaultStrategy returns three attempts with a fixed one second backoff.
func DefaultStrategy() Strategy {
	return FixedStrategy(3, time.Second)
}

// FixedStrategy returns a strategy that waits the same delay between attempts.
func FixedStrategy(maxAttempts int, delay time.Duration) Strategy {
	return Strategy{
		MaxAttempts:     maxAttempts,
		BaseDelay:       delay,
		MaxDelay:        delay,
		ExponentialBase: 1,
	}
}

// ExponentialStrategy returns a doubling strategy capped at maxDelay.
func ExponentialStrategy(maxAttempts int, baseDelay, maxDelay time.Duration) Strategy {
	return Strategy{
		MaxAttempts:     maxAttempts,
		BaseDelay:       baseDelay,
		MaxDelay:        maxDelay,
		ExponentialBase: 2.0,
	}
}

// Validate reports configuration that would make the dispatcher misbehave.
func (s Strategy) Validate() error {
	if s.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be >= 1, got %d", s.MaxAttempts)
	}
	if s.BaseDelay < 0 {
		return fmt.Errorf("base delay must not be negative, got %v", s.BaseDelay)
	}
	if s.MaxDelay < 0 {
		return fmt.Errorf("max delay must not be negative, got %v", s.MaxDelay)
	}
	if s.ExponentialBase < 0 || math.IsNaN(s.ExponentialBase) || math.IsInf(s.ExponentialBase, 0) {
		return fmt.Errorf("exponential base must be a finite non-negative number, got %v", s.ExponentialBase)
	}
	return nil
}

// IsFixed reports whether every retry waits BaseDelay.
func (s Strategy) IsFixed() bool {
	return s.ExponentialBase <= 1
}

// CalculateRetryDelay returns how long to wait after failedAttempts failures
// before the next attempt.
func (s Strategy) CalculateRetryDelay(failedAttempts int) time.Duration {
	if failedAttempts <= 1 || s.IsFixed() {
		return s.BaseDelay
	}

	delay := float64(s.BaseDelay) * math.Pow(s.ExponentialBase, float64(failedAttempts-1))

	if s.MaxDelay > 0 && delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}
	if delay > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}

	return time.Duration(delay)
}

// IsRetryable reports whether another attempt is allowed after attemptCount attempts.
func (s Strategy) IsRetryable(attemptCount int) bool {
	return attemptCount < s.MaxAttempts
}

// ShouldDeadLetter reports whether the retry budget is exhausted.
func (s Strategy) ShouldDeadLetter(attemptCount int) bool {
	return attemptCount >= s.MaxAttempts
}

// GetRetrySchedule returns a human-readable description of the schedule.
//
// Example output:
//
//	Retry Schedule:
//	  Attempt 1: immediately
//	  Attempt 2: after 1s
//	  Attempt 3: after 1s
//	  → Dead letter
func (s Strategy) GetRetrySchedule() string {
	schedule := "Retry Schedule:\n"
	for i := 1; i <= s.MaxAttempts; i++ {
		if i == 1 {
			schedule += "  Attempt 1: immediately\n"
			continue
		}
		schedule += fmt.Sprintf("  Attempt %d: after %v\n", i, s.CalculateRetryDelay(i-1))
	}
	schedule += "  → Dead letter\n"
	return schedule
}

// Wait blocks for d or until ctx is done, whichever comes first.
// It returns ctx.Err() when the wait was cut short.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
