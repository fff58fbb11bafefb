package replicate

import (
	"context"
	"errors"
	"time"
)

// retryable marks an error worth retrying (transient 5xx/429 from the API).
type retryable struct {
	err error
}

func (r *retryable) Error() string { return r.err.Error() }
func (r *retryable) Unwrap() error { return r.err }

// withBackoff runs fn up to attempts times, doubling the delay between
// tries. Only errors wrapped as retryable are retried; anything else stops
// the loop immediately.
func withBackoff(ctx context.Context, attempts int, initial time.Duration, fn func() error) error {
	delay := initial
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		var r *retryable
		if !errors.As(err, &r) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
