package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/config"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/metrics"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/stageerr"
)

type stepFunc func(ctx context.Context) (int, error)

// retry runs fn until it succeeds, fails with a non-retryable kind, or has
// used policy.Retries extra attempts. Each attempt gets policy.Timeout.
func (d *Driver) retry(ctx context.Context, runID, step string, policy config.RetryPolicy, fn stepFunc) (int, error) {
	attempt := 0
	rows, err := backoff.Retry(ctx, func() (int, error) {
		attempt++
		log := d.log.With("step", step, "run_id", runID, "attempt", attempt)
		if attempt > 1 {
			log.Warn("retrying step", "max_attempts", policy.Retries+1)
		}

		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if policy.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, policy.Timeout)
		}
		defer cancel()

		start := time.Now()
		n, err := fn(attemptCtx)
		metrics.StepDuration.WithLabelValues(step).Observe(time.Since(start).Seconds())

		if err == nil {
			metrics.StepAttempts.WithLabelValues(step, "success").Inc()
			metrics.StepRows.WithLabelValues(step).Set(float64(n))
			log.Info("step succeeded", "rows", n)
			return n, nil
		}

		if !stageerr.Retryable(err) {
			metrics.StepAttempts.WithLabelValues(step, "fatal").Inc()
			log.Error("step failed", "kind", stageerr.KindOf(err).String(), "error", err)
			return 0, backoff.Permanent(err)
		}
		metrics.StepAttempts.WithLabelValues(step, "retryable").Inc()
		log.Error("step failed", "kind", stageerr.KindOf(err).String(), "retryable", true, "error", err)
		return 0, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(policy.Delay)),
		backoff.WithMaxTries(uint(policy.Retries+1)),
		backoff.WithMaxElapsedTime(0),
	)

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	return rows, err
}
