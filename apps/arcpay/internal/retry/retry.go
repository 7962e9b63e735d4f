package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"arcpay/apps/arcpay/internal/clock"
)

// ErrExhausted is matched by the error Poll returns when every attempt was used up
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy configures Poll
type Policy[T any] struct {
	// Interval is the wait between two attempts
	Interval time.Duration

	// MaxAttempts bounds the number of calls. Values below 1 mean a single attempt.
	MaxAttempts int

	// Done decides whether a successful result ends polling. Nil accepts every result.
	Done func(T) bool

	// Retryable decides whether an error is worth another attempt. Nil retries every error.
	Retryable func(error) bool
}

// ExhaustedError reports the attempt count and the last failure seen
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
	}
	return fmt.Sprintf("gave up after %d attempts", e.Attempts)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

// Poll calls fn until the policy's Done predicate accepts a result, fn fails with a
// non-retryable error, ctx ends, or MaxAttempts calls have been made. The wait between
// attempts goes through clk. Attempts are numbered from 1.
func Poll[T any](ctx context.Context, clk clock.Clock, policy Policy[T], fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T

	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx, attempt)
		switch {
		case err == nil && (policy.Done == nil || policy.Done(result)):
			return result, nil
		case err != nil && policy.Retryable != nil && !policy.Retryable(err):
			return zero, err
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		if err := clk.Sleep(ctx, policy.Interval); err != nil {
			return zero, err
		}
	}

	return zero, &ExhaustedError{Attempts: maxAttempts, Last: lastErr}
}
