// Package retry wraps calls to the remote network with a bounded number of attempts and a fixed delay between
// them.
//
// Three classes of failure are distinguished:
//
//   - rate limited: logged as such, then retried after the delay
//   - malformed request or response: returned on the first attempt, never retried
//   - anything else (network errors, 5xx): logged with the attempt number, then retried after the delay
//
// Once the attempts are used up the caller gets an [*ExhaustedError]. That means "no data available right now",
// not that the crawl should stop.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

const (
	DefaultMaxAttempts = 3
	DefaultDelay       = 2 * time.Second
)

type Executor struct {
	MaxAttempts int
	// fixed, not exponential
	Delay  time.Duration
	Logger *slog.Logger
}

func NewExecutor(maxAttempts int, delay time.Duration, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		MaxAttempts: maxAttempts,
		Delay:       delay,
		Logger:      logger,
	}
}

func (ex *Executor) attempts() int {
	if ex == nil || ex.MaxAttempts < 1 {
		return 1
	}
	return ex.MaxAttempts
}

func (ex *Executor) logger() *slog.Logger {
	if ex == nil || ex.Logger == nil {
		return slog.Default()
	}
	return ex.Logger
}

// Returned once every attempt has failed with a retryable error.
type ExhaustedError struct {
	Op       string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: giving up after %d attempts: %s", e.Op, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Do runs fn until it succeeds, fails with a non-retryable error, or runs out of attempts. op names the call in
// logs and metrics.
func Do[T any](ctx context.Context, ex *Executor, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	logger := ex.logger().With("op", op)
	maxAttempts := ex.attempts()

	policy := retrypolicy.NewBuilder[T]().
		HandleIf(func(_ T, err error) bool {
			return err != nil && ctx.Err() == nil && !IsMalformed(err)
		}).
		WithMaxAttempts(maxAttempts).
		WithDelay(ex.Delay).
		ReturnLastFailure().
		Build()

	attempt := 0
	var zero T
	res, err := failsafe.With[T](policy).WithContext(ctx).Get(func() (T, error) {
		attempt++
		res, err := fn(ctx)
		if err == nil {
			remoteCalls.WithLabelValues(op, "ok").Inc()
			return res, nil
		}
		switch {
		case IsMalformed(err):
			remoteCalls.WithLabelValues(op, "malformed").Inc()
			logger.Warn("remote call rejected, not retrying", "attempt", attempt, "err", err)
		case IsRateLimited(err):
			remoteCalls.WithLabelValues(op, "ratelimited").Inc()
			if attempt < maxAttempts {
				logger.Warn("rate limited, backing off", "attempt", attempt, "max_attempts", maxAttempts, "delay", ex.Delay)
			} else {
				logger.Warn("rate limited", "attempt", attempt, "max_attempts", maxAttempts)
			}
		default:
			remoteCalls.WithLabelValues(op, "error").Inc()
			logger.Warn("remote call failed", "attempt", attempt, "max_attempts", maxAttempts, "err", err)
		}
		return zero, err
	})
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return zero, ctx.Err()
	}
	if IsMalformed(err) {
		return zero, err
	}
	return zero, &ExhaustedError{Op: op, Attempts: attempt, Last: err}
}

// Wraps an error so that it is never retried.
func Malformed(err error) error {
	if err == nil {
		return nil
	}
	return &malformedError{err: err}
}

type malformedError struct {
	err error
}

func (e *malformedError) Error() string { return e.err.Error() }
func (e *malformedError) Unwrap() error { return e.err }
func (e *malformedError) IsBadRequest() bool {
	return true
}

type badRequester interface {
	IsBadRequest() bool
}

type throttler interface {
	IsThrottled() bool
}

// True for errors that indicate the request (or the response shape) was wrong, rather than the service being
// unavailable. These fail fast.
func IsMalformed(err error) bool {
	if err == nil {
		return false
	}
	var br badRequester
	if errors.As(err, &br) && br.IsBadRequest() {
		return true
	}
	var de interface{ DecodeFailure() bool }
	return errors.As(err, &de) && de.DecodeFailure()
}

func IsRateLimited(err error) bool {
	var t throttler
	return errors.As(err, &t) && t.IsThrottled()
}
