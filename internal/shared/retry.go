package shared

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds repeated attempts of an outbound call.
//
// Delays grow as BaseDelay × 2^attempt. Retriable decides which failures are worth another attempt and defaults to [IsRetriable].
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	Retriable func(error) bool
}

// DefaultRetryPolicy makes three attempts starting at a one second delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: time.Second}
}

// Retry runs fn until it succeeds, returns a non-retriable error, the attempts are spent or ctx is done.
// The last error from fn is returned unwrapped.
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	base := policy.BaseDelay
	if base <= 0 {
		base = time.Millisecond
	}
	retriable := policy.Retriable
	if retriable == nil {
		retriable = IsRetriable
	}

	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(base))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && retriable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// IsRetriable reports whether err is transient: timeouts, throttling (429) or gateway/server failures (5xx).
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var coded StatusCoder
	if errors.As(err, &coded) {
		code := coded.StatusCode()
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}
	return false
}
