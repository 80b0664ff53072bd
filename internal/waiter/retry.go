package waiter

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"k8s.io/utils/clock"

	"redshift-orders/internal/domain"
)

// AwaitRetrying wraps Await with a retry layer for transport failures.
//
// Describe is read-only, so a poll that failed on throttling or a dropped
// connection can be resumed safely. Each retry starts a fresh Await with the
// full attempt budget. Statement failures, poll timeouts and cancellation are
// never retried.
func (w *Waiter) AwaitRetrying(ctx context.Context, id string, retries int) (*domain.Statement, error) {
	if retries <= 0 {
		return w.Await(ctx, id)
	}

	var stmt *domain.Statement
	op := func() error {
		s, err := w.Await(ctx, id)
		stmt = s
		if err != nil && !domain.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		w.logger.Warn("retrying statement poll after transport error",
			"statement_id", id, "error", err, "delay", next)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(w.newBackOff(), uint64(retries)), ctx)
	err := backoff.RetryNotifyWithTimer(op, b, notify, &clockTimer{clock: w.clock})
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		var ce *domain.CancelledError
		if !errors.As(err, &ce) {
			err = &domain.CancelledError{ID: id, Err: err}
		}
	}
	return stmt, err
}

// clockTimer adapts a clock.Clock to backoff.Timer so retry delays run on the
// same clock as poll delays.
type clockTimer struct {
	clock clock.Clock
	timer clock.Timer
}

func (t *clockTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = t.clock.NewTimer(d)
		return
	}
	t.timer.Stop()
	t.timer.Reset(d)
}

func (t *clockTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.timer.C()
}
