package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Backoff returns the wait before the next attempt. failures is the number of
// failed attempts so far and starts at 1.
type Backoff func(failures int) time.Duration

// Fixed waits d between every attempt.
func Fixed(d time.Duration) Backoff {
	return func(int) time.Duration { return d }
}

// Exponential waits base, 2*base, 4*base, ... capped at limit.
func Exponential(base, limit time.Duration) Backoff {
	return func(failures int) time.Duration {
		d := base
		for i := 1; i < failures; i++ {
			d *= 2
			if d >= limit || d <= 0 {
				return limit
			}
		}
		return min(d, limit)
	}
}

// Policy describes how an operation is retried.
type Policy struct {
	// Name labels log lines and wrapped errors.
	Name string

	// MaxAttempts bounds the total number of calls. Zero or less retries
	// until the operation succeeds or the context ends.
	MaxAttempts int

	// Backoff computes the wait between attempts. Nil retries immediately.
	Backoff Backoff

	// Retryable reports whether a failure is transient. Nil treats every
	// failure as transient.
	Retryable func(error) bool

	// Logger receives one debug line per retry. Nil uses slog.Default().
	Logger *slog.Logger

	// Sleep waits for d or until ctx ends. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// HostConflict is the bounded policy for operations a host rejects while it
// is busy: up to attempts calls, wait apart, retrying only failures accepted
// by transient.
func HostConflict(attempts int, wait time.Duration, transient func(error) bool) Policy {
	return Policy{
		Name:        "host conflict",
		MaxAttempts: attempts,
		Backoff:     Fixed(wait),
		Retryable:   transient,
	}
}

// PersistentWrite is the unbounded policy for persistence writes: every
// failure is retried with waits of base, 2*base, ... capped at limit.
func PersistentWrite(base, limit time.Duration) Policy {
	return Policy{
		Name:    "persistent write",
		Backoff: Exponential(base, limit),
	}
}

// Do calls op until it succeeds, fails with a non-retryable error, runs out
// of attempts, or ctx ends.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Value(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	name := p.Name
	if name == "" {
		name = "retry"
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("%s: %w", name, err)
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return zero, err
		}
		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return zero, fmt.Errorf("%s after %d attempts: %w", name, attempt, err)
		}

		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		logger.Debug("retrying",
			"policy", name,
			"attempt", attempt,
			"wait_ms", wait.Milliseconds(),
			"error", err,
		)
		if serr := sleep(ctx, wait); serr != nil {
			return zero, fmt.Errorf("%s: %w (last error: %v)", name, serr, err)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
