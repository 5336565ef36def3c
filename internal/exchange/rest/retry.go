package rest

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"github.com/chia4/cex-api/internal/logging"
)

// DefaultRetryInterval is the fixed pause between attempts of a resilient read.
const DefaultRetryInterval = time.Second

// Policy bounds a retry loop. MaxAttempts zero means retry until the context ends.
type Policy struct {
	Interval    time.Duration
	MaxAttempts uint
}

func (p Policy) interval() time.Duration {
	if p.Interval <= 0 {
		return DefaultRetryInterval
	}
	return p.Interval
}

// Retry runs op until it succeeds, the policy runs out of attempts, or ctx is done.
// Each failed attempt is logged as event=<name>_failed. op must be idempotent.
func Retry[T any](ctx context.Context, p Policy, log *logrus.Entry, name string, op func(context.Context) (T, error)) (T, error) {
	if log == nil {
		log = logging.Component(nil, "retry")
	}
	log = log.WithField("op", name)
	attempt := 0
	opts := []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewConstantBackOff(p.interval())),
		backoff.WithMaxElapsedTime(0),
	}
	if p.MaxAttempts > 0 {
		opts = append(opts, backoff.WithMaxTries(p.MaxAttempts))
	}
	value, err := backoff.Retry(ctx, func() (T, error) {
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, backoff.Permanent(err)
		}
		attempt++
		v, err := op(ctx)
		if err != nil {
			log.WithFields(logrus.Fields{
				"event":   name + "_failed",
				"attempt": attempt,
			}).WithError(err).Warn(name)
			return zero, err
		}
		return v, nil
	}, opts...)
	if err != nil {
		return value, fmt.Errorf("%s: %w", name, err)
	}
	return value, nil
}
