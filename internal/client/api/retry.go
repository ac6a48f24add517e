package api

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy controls the generic retry loop of the request verbs.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	// Retryable overrides IsRetryable when set.
	Retryable func(*Error) bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: time.Second}
}

// Delay before retry number attempt+1: BaseDelay * 2^attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	return p.BaseDelay << uint(attempt)
}

func (p RetryPolicy) shouldRetry(e *Error) bool {
	if p.Retryable != nil {
		return p.Retryable(e)
	}
	return IsRetryable(e)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// withRetry runs fn until it succeeds, fails with a non-retryable error, or
// the policy is exhausted.
func (c *Client) withRetry(ctx context.Context, req *Request, fn func() (*Response, error)) (*Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		apiErr, ok := AsError(err)
		if !ok || attempt >= c.retry.MaxRetries || !c.retry.shouldRetry(apiErr) {
			return nil, err
		}

		delay := c.retry.Delay(attempt)
		c.logger.Debug("retrying request",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		if err := c.sleep(ctx, delay); err != nil {
			return nil, requestError(err)
		}
	}
}
