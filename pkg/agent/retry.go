package agent

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

const defaultRetryBase = 500 * time.Millisecond

// withRetry calls fn until it succeeds, returns a permanent error, or the
// retry budget is spent.
func withRetry(ctx context.Context, retries int, base time.Duration, fn func(context.Context) error) error {
	if retries <= 0 {
		return fn(ctx)
	}
	if base <= 0 {
		base = defaultRetryBase
	}
	backoff := retry.WithMaxRetries(uint64(retries), retry.NewExponential(base))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && isTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// isTransient reports whether a model error is worth retrying: network
// failures, rate limiting and server side errors.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"429", "rate limit", "500", "502", "503", "504",
		"timeout", "connection reset", "temporarily unavailable", "overloaded",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
