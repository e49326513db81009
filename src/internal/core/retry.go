package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/howmanysmall/wirefile/src/internal/config"
	"github.com/sirupsen/logrus"
)

// RetryManager repeats short operations, such as dialing a server, with
// backoff between attempts.
type RetryManager struct {
	config *config.RetryConfig
	log    *logrus.Entry
}

// RetryableError attaches a retry verdict to an error.
type RetryableError struct {
	Err       error
	Retryable bool
	Fatal     bool
}

func (re *RetryableError) Error() string {
	return re.Err.Error()
}

func (re *RetryableError) Unwrap() error {
	return re.Err
}

// NewRetryManager returns a manager for cfg. A nil cfg allows three attempts
// with exponential backoff from 100ms.
func NewRetryManager(cfg *config.RetryConfig) *RetryManager {
	if cfg == nil {
		cfg = &config.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
			Backoff:      string(config.BackoffExponential),
		}
	}

	return &RetryManager{
		config: cfg,
		log:    logrus.WithField("component", "retry"),
	}
}

// Do calls op with attempt numbers starting at 1 until it succeeds, fails
// with an error that is not worth retrying, or the attempts run out.
func (rm *RetryManager) Do(ctx context.Context, op func(attempt int) error) error {
	attempts := max(rm.config.MaxAttempts, 1)

	for attempt := 1; ; attempt++ {
		err := op(attempt)
		if err == nil {
			return nil
		}

		verdict := &RetryableError{}
		if !errors.As(err, &verdict) {
			verdict = ClassifyError(err)
		}

		switch {
		case verdict.Fatal:
			return fmt.Errorf("attempt %d failed fatally: %w", attempt, err)
		case !verdict.Retryable:
			return fmt.Errorf("attempt %d failed permanently: %w", attempt, err)
		case attempt >= attempts:
			return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		}

		wait := rm.Backoff(attempt)

		rm.log.WithFields(logrus.Fields{
			"function": "Do",
			"attempt":  attempt,
			"wait":     wait,
			"error":    err,
		}).Debug("Attempt failed, retrying")

		if err := sleepContext(ctx, wait); err != nil {
			return fmt.Errorf("retry cancelled after %d attempts: %w", attempt, err)
		}
	}
}

// Backoff returns the wait after the given failed attempt, capped at MaxDelay.
func (rm *RetryManager) Backoff(attempt int) time.Duration {
	base := rm.config.InitialDelay

	var wait time.Duration

	switch config.BackoffStrategy(rm.config.Backoff) {
	case config.BackoffFixed:
		wait = base
	case config.BackoffLinear:
		wait = base * time.Duration(attempt)
	default:
		wait = time.Duration(float64(base) * math.Pow(rm.config.Multiplier, float64(attempt-1)))
	}

	if rm.config.MaxDelay > 0 && wait > rm.config.MaxDelay {
		wait = rm.config.MaxDelay
	}

	return wait
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NewRetryableError wraps an error indicating whether it's retryable.
func NewRetryableError(err error, retryable bool) *RetryableError {
	return &RetryableError{
		Err:       err,
		Retryable: retryable,
		Fatal:     false,
	}
}

// NewFatalError wraps an error as fatal (non-retryable) and stops further retries.
func NewFatalError(err error) *RetryableError {
	return &RetryableError{
		Err:       err,
		Retryable: false,
		Fatal:     true,
	}
}

// ClassifyError analyzes an error and returns a RetryableError with appropriate classification.
func ClassifyError(err error) *RetryableError {
	if err == nil {
		return nil
	}

	switch {
	case isContextError(err):
		return NewFatalError(err)
	case isNetworkError(err):
		return NewRetryableError(err, true)
	case errors.Is(err, os.ErrPermission), errors.Is(err, os.ErrNotExist):
		return NewRetryableError(err, false)
	case errors.Is(err, syscall.ENOSPC):
		return NewRetryableError(err, false)
	default:
		// A file that fails mid-transfer is sent again from the start.
		return NewRetryableError(err, true)
	}
}

func isNetworkError(err error) bool {
	for _, errno := range []syscall.Errno{
		syscall.ECONNREFUSED,
		syscall.ECONNRESET,
		syscall.ECONNABORTED,
		syscall.EPIPE,
		syscall.ENETUNREACH,
		syscall.EHOSTUNREACH,
		syscall.ETIMEDOUT,
	} {
		if errors.Is(err, errno) {
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError

	return errors.As(err, &opErr)
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
