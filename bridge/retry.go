package bridge

import (
	"context"
	"time"
)

// RetryPolicy configures executeWithRetry, adapted from the teacher's
// Builder retry knobs into a standalone policy value (spec §7 recovery
// semantics for RateLimit/Timeout kinds).
type RetryPolicy struct {
	MaxRetries     int
	RetryDelay     time.Duration
	UseExpBackoff  bool
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	if p.UseExpBackoff {
		return p.RetryDelay * time.Duration(uint(1)<<uint(attempt))
	}
	return p.RetryDelay
}

// isRetryable retries RateLimit and Timeout kinds only; every other kind
// (Auth, Validation, Provider-non-server, Tool, ...) is treated as
// terminal for this attempt.
func isRetryable(err error) bool {
	return IsRateLimitErrorKind(err) || IsTimeoutErrorKind(err)
}

// executeWithRetry runs operation under policy, retrying retryable
// failures with the configured delay strategy. Ported from the teacher's
// Builder.executeWithRetry to a free function over a policy value
// instead of builder state.
func executeWithRetry(ctx context.Context, policy RetryPolicy, logger Logger, operation func(context.Context) error) error {
	if logger == nil {
		logger = NoopLogger{}
	}

	if policy.MaxRetries == 0 {
		return operation(ctx)
	}

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		err := operation(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info(ctx, "retry succeeded", F("attempt", attempt+1))
			}
			return nil
		}
		lastErr = err

		if ctx.Err() == context.DeadlineExceeded {
			return NewTimeoutError("operation timed out during retry", err)
		}
		if !isRetryable(err) {
			return err
		}
		if attempt == policy.MaxRetries {
			logger.Warn(ctx, "max retries reached", F("attempts", attempt+1), F("error", err.Error()))
			break
		}

		delay := policy.delay(attempt)
		logger.Debug(ctx, "waiting before retry", F("attempt", attempt+1), F("delay_ms", delay.Milliseconds()))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return NewTimeoutError("context cancelled during retry wait", ctx.Err())
		}
	}
	return NewProviderError("max retries exceeded", lastErr)
}
