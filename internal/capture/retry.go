package capture

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrRetriesExhausted is returned when every reconnect attempt failed.
var ErrRetriesExhausted = errors.New("reconnect attempts exhausted")

// RetryPolicy bounds how a dropped stream is reopened. The zero value never
// retries: the first read failure ends the run.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration // wait before the first attempt, doubled on each failure
	MaxDelay    time.Duration
}

// Enabled reports whether any reconnect attempt is allowed.
func (p RetryPolicy) Enabled() bool { return p.MaxAttempts > 0 }

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Delay
	if eb.InitialInterval <= 0 {
		eb.InitialInterval = time.Second
	}
	eb.MaxInterval = p.MaxDelay
	if eb.MaxInterval < eb.InitialInterval {
		eb.MaxInterval = eb.InitialInterval
	}
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0 // bounded by attempts, not wall time
	eb.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.MaxAttempts-1)), ctx)
}

// Reconnect calls src.Reconnect until it succeeds, the attempts run out or
// ctx is cancelled. It returns how many attempts were made.
func (p RetryPolicy) Reconnect(ctx context.Context, src FrameSource) (int, error) {
	if !p.Enabled() {
		return 0, ErrRetriesExhausted
	}

	// Give the stream a moment before hammering it
	select {
	case <-time.After(p.Delay):
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	attempts := 0
	op := func() error {
		attempts++
		err := src.Reconnect(ctx)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	notify := func(err error, delay time.Duration) {
		slog.Warn("capture: reconnect failed",
			"attempt", attempts,
			"max_attempts", p.MaxAttempts,
			"delay", delay,
			"error", err,
		)
	}

	if err := backoff.RetryNotify(op, p.backOff(ctx), notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempts, ctxErr
		}
		return attempts, errors.Join(ErrRetriesExhausted, err)
	}
	slog.Info("capture: stream reconnected", "attempts", attempts)
	return attempts, nil
}
