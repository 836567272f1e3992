package resilience

import (
	"context"
	"math/rand"
	"time"

	"github.com/halcyonlabs/patternflow/core"
)

// RetryConfig configures the transient-failure retry policy.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig returns the runtime policy defaults: 3 attempts,
// exponential backoff with full jitter, base 250ms, cap 5s.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// Retry executes fn up to MaxAttempts times. Only errors the classifier
// accepts as transient retry; permanent errors return immediately. The next
// backoff is skipped when the remaining context budget cannot cover it, so a
// request never burns its deadline sleeping.
//
// Returns the number of attempts made alongside the final error.
func Retry(ctx context.Context, config *RetryConfig, classify func(error) bool, fn func() error) (int, error) {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if classify == nil {
		classify = core.IsTransient
	}

	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return attempts, lastErr
			}
			return attempts, ctx.Err()
		default:
		}

		attempts = attempt
		err := fn()
		if err == nil {
			return attempts, nil
		}
		lastErr = err

		if !classify(err) || attempt == config.MaxAttempts {
			return attempts, lastErr
		}

		delay := backoffDelay(config, attempt)
		if deadline, ok := ctx.Deadline(); ok {
			if time.Until(deadline) < delay {
				// Remaining budget cannot cover the backoff.
				return attempts, lastErr
			}
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempts, lastErr
		case <-timer.C:
		}
	}

	return attempts, lastErr
}

// backoffDelay implements full jitter: uniform in [0, min(cap, base*2^(n-1))].
func backoffDelay(config *RetryConfig, attempt int) time.Duration {
	shift := attempt - 1
	if shift > 30 {
		shift = 30
	}
	ceiling := config.BaseDelay * time.Duration(1<<uint(shift))
	if ceiling > config.MaxDelay || ceiling <= 0 {
		ceiling = config.MaxDelay
	}
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(ceiling) + 1))
}
