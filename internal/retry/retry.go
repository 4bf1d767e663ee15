// Package retry runs an operation under a bounded backoff policy with an
// explicit terminal failure.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

// ErrExhausted is wrapped by the error returned once a policy gives up.
var ErrExhausted = errors.New("retry budget exhausted")

// Policy bounds a retry loop. Zero MaxAttempts or MaxElapsed means no bound
// on that axis; at least one should be set for anything but polling.
type Policy struct {
	MaxAttempts     uint          `yaml:"max_attempts" json:"max_attempts"`
	MaxElapsed      time.Duration `yaml:"max_elapsed" json:"max_elapsed"`
	InitialInterval time.Duration `yaml:"initial_interval" json:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval" json:"max_interval"`
	Multiplier      float64       `yaml:"multiplier" json:"multiplier"`
	Constant        bool          `yaml:"constant" json:"constant"`
}

// Validate rejects policies that would spin or never start.
func (p Policy) Validate() error {
	if p.InitialInterval < 0 || p.MaxInterval < 0 || p.MaxElapsed < 0 {
		return fmt.Errorf("retry intervals must not be negative")
	}
	if !p.Constant && p.Multiplier != 0 && p.Multiplier < 1 {
		return fmt.Errorf("retry multiplier %.2f must be at least 1", p.Multiplier)
	}
	if p.MaxInterval > 0 && p.InitialInterval > p.MaxInterval {
		return fmt.Errorf("initial interval %s exceeds max interval %s", p.InitialInterval, p.MaxInterval)
	}
	return nil
}

func (p Policy) backOff() backoff.BackOff {
	if p.Constant {
		return backoff.NewConstantBackOff(p.InitialInterval)
	}
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	return b
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// After asks for the next attempt to happen after d instead of the policy
// interval, typically from a Retry-After header.
func After(d time.Duration, err error) error {
	return &waitError{wait: d, err: err}
}

type waitError struct {
	wait time.Duration
	err  error
}

func (e *waitError) Error() string {
	return fmt.Sprintf("%v (retry after %s)", e.err, e.wait)
}

func (e *waitError) Unwrap() error {
	return e.err
}

// hinted prefers a server-provided wait over the policy interval.
type hinted struct {
	base backoff.BackOff
	next time.Duration
}

func (h *hinted) NextBackOff() time.Duration {
	if h.next > 0 {
		d := h.next
		h.next = 0
		return d
	}
	return h.base.NextBackOff()
}

func (h *hinted) Reset() {
	h.next = 0
	h.base.Reset()
}

// Option customises a single Do call.
type Option func(*options)

type options struct {
	onRetry func(attempt int, err error, next time.Duration)
}

// OnRetry registers a callback run before each wait.
func OnRetry(fn func(attempt int, err error, next time.Duration)) Option {
	return func(o *options) { o.onRetry = fn }
}

// Do runs op until it succeeds, returns a Permanent error, the context ends
// or the policy is spent. In the last case the error wraps both ErrExhausted
// and op's final error.
func Do[T any](ctx context.Context, p Policy, name string, op func(ctx context.Context, attempt int) (T, error), opts ...Option) (T, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	b := &hinted{base: p.backOff()}
	attempt := 0
	permanent := false

	operation := func() (T, error) {
		attempt++
		res, err := op(ctx, attempt)
		if err == nil {
			return res, nil
		}
		var wait *waitError
		if errors.As(err, &wait) {
			b.next = wait.wait
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			permanent = true
		}
		return res, err
	}

	notify := func(err error, next time.Duration) {
		log.Debug().
			Err(err).
			Str("op", name).
			Int("attempt", attempt).
			Dur("next", next).
			Msg("Retrying")
		if o.onRetry != nil {
			o.onRetry(attempt, err, next)
		}
	}

	retryOpts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithNotify(notify),
		backoff.WithMaxElapsedTime(p.MaxElapsed),
	}
	if p.MaxAttempts > 0 {
		retryOpts = append(retryOpts, backoff.WithMaxTries(p.MaxAttempts))
	}

	res, err := backoff.Retry(ctx, operation, retryOpts...)
	switch {
	case err == nil:
		return res, nil
	case permanent:
		return res, err
	case ctx.Err() != nil:
		return res, fmt.Errorf("%s: %w", name, ctx.Err())
	default:
		return res, fmt.Errorf("%s: %w after %d attempts: %w", name, ErrExhausted, attempt, err)
	}
}
