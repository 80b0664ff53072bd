// Package waiter drives a submitted statement to a terminal status by polling
// the engine's describe call with a timed delay between polls.
package waiter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"k8s.io/utils/clock"

	"redshift-orders/internal/domain"
)

// Poll defaults.
const (
	DefaultMaxAttempts = 20
	DefaultInterval    = 1 * time.Second
	DefaultMaxInterval = 5 * time.Second
)

// Policy bounds the poll loop.
type Policy struct {
	// MaxAttempts is the number of non-terminal describe results tolerated
	// before giving up with a PollTimeoutError.
	MaxAttempts int
	// Interval is the first delay between polls.
	Interval time.Duration
	// MaxInterval caps the delay. A value above Interval enables exponential
	// backoff; otherwise the delay is constant.
	MaxInterval time.Duration
	// MaxWait is an optional wall-clock budget for one Await. Zero disables it.
	MaxWait time.Duration
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Interval:    DefaultInterval,
		MaxInterval: DefaultMaxInterval,
	}
}

// Validate checks that the policy can make progress.
func (p Policy) Validate() error {
	if p.MaxAttempts <= 0 {
		return domain.ErrConfiguration("poll_max_attempts", "must be positive, got %d", p.MaxAttempts)
	}
	if p.Interval <= 0 {
		return domain.ErrConfiguration("poll_interval", "must be positive, got %s", p.Interval)
	}
	if p.MaxWait < 0 {
		return domain.ErrConfiguration("poll_max_wait", "must not be negative, got %s", p.MaxWait)
	}
	return nil
}

// Option customises a Waiter.
type Option func(*Waiter)

// WithClock sets the clock used for delays. Tests pass a fake clock.
func WithClock(c clock.Clock) Option {
	return func(w *Waiter) { w.clock = c }
}

// WithBackOff overrides the delay schedule derived from the policy.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(w *Waiter) { w.newBackOff = newBackOff }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(w *Waiter) { w.logger = l }
}

// Waiter polls one client. It holds no per-statement state and may be reused
// for every statement of an invocation.
type Waiter struct {
	client     domain.StatementClient
	policy     Policy
	clock      clock.Clock
	newBackOff func() backoff.BackOff
	logger     *slog.Logger
}

// New creates a Waiter for client.
func New(client domain.StatementClient, policy Policy, opts ...Option) (*Waiter, error) {
	if client == nil {
		return nil, domain.ErrConfiguration("client", "is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	w := &Waiter{
		client: client,
		policy: policy,
		clock:  clock.RealClock{},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.newBackOff == nil {
		w.newBackOff = w.policyBackOff
	}
	return w, nil
}

// Policy returns the poll policy.
func (w *Waiter) Policy() Policy { return w.policy }

func (w *Waiter) policyBackOff() backoff.BackOff {
	if w.policy.MaxInterval <= w.policy.Interval {
		return backoff.NewConstantBackOff(w.policy.Interval)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.policy.Interval
	b.MaxInterval = w.policy.MaxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0
	b.Clock = w.clock
	b.Reset()
	return b
}

// Await polls statement id until it is FINISHED, FAILED or ABORTED.
//
// On FINISHED with a result set the rows are fetched once and attached. A
// failed statement returns *domain.StatementFailedError, an exhausted budget
// *domain.PollTimeoutError and a done context *domain.CancelledError; remote
// call failures are *domain.TransportError. The returned Statement holds the
// last observed snapshot in every case.
func (w *Waiter) Await(ctx context.Context, id string) (*domain.Statement, error) {
	logger := w.logger.With("statement_id", id)
	stmt := &domain.Statement{ID: id, Status: domain.StatusSubmitted}
	delays := w.newBackOff()
	start := w.clock.Now()
	pending := 0

	for {
		if err := ctx.Err(); err != nil {
			return stmt, &domain.CancelledError{ID: id, Err: err}
		}

		desc, err := w.client.Describe(ctx, id)
		stmt.Attempts++
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stmt, &domain.CancelledError{ID: id, Err: ctxErr}
			}
			return stmt, fmt.Errorf("describe statement %s: %w", id, asTransport("DescribeStatement", err))
		}
		w.observe(logger, stmt, desc)

		switch desc.Status {
		case domain.StatusFailed, domain.StatusAborted:
			logger.Error("statement failed", "status", desc.Status, "error", desc.Error)
			return stmt, &domain.StatementFailedError{ID: id, Status: desc.Status, Message: desc.Error}
		case domain.StatusFinished:
			logger.Info("statement finished", "has_result_set", desc.HasResultSet, "attempt", stmt.Attempts)
			if !desc.HasResultSet {
				return stmt, nil
			}
			rs, err := w.client.FetchResult(ctx, id)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return stmt, &domain.CancelledError{ID: id, Err: ctxErr}
				}
				return stmt, fmt.Errorf("fetch result of statement %s: %w", id, asTransport("GetStatementResult", err))
			}
			stmt.Result = rs
			logger.Debug("statement result fetched", "rows", rs.Len())
			return stmt, nil
		}

		pending++
		if pending >= w.policy.MaxAttempts {
			logger.Warn("statement poll budget exhausted", "status", stmt.Status, "attempts", stmt.Attempts)
			return stmt, &domain.PollTimeoutError{ID: id, Attempts: stmt.Attempts, LastStatus: stmt.Status}
		}

		delay := delays.NextBackOff()
		if delay == backoff.Stop {
			return stmt, &domain.PollTimeoutError{ID: id, Attempts: stmt.Attempts, LastStatus: stmt.Status}
		}
		if w.policy.MaxWait > 0 && w.clock.Since(start)+delay > w.policy.MaxWait {
			logger.Warn("statement poll deadline reached", "status", stmt.Status, "elapsed", w.clock.Since(start))
			return stmt, &domain.PollTimeoutError{ID: id, Attempts: stmt.Attempts, LastStatus: stmt.Status}
		}

		logger.Debug("statement still running", "status", stmt.Status, "attempt", stmt.Attempts, "delay", delay)
		if err := w.sleep(ctx, delay); err != nil {
			return stmt, &domain.CancelledError{ID: id, Err: err}
		}
	}
}

// observe copies a describe snapshot onto stmt. Status is never inferred
// locally; a move backwards along the lifecycle is logged as a protocol
// violation but still recorded.
func (w *Waiter) observe(logger *slog.Logger, stmt *domain.Statement, desc *domain.StatementDescription) {
	switch desc.Status {
	case domain.StatusSubmitted, domain.StatusPicked, domain.StatusStarted, domain.StatusRunning,
		domain.StatusFailed, domain.StatusFinished, domain.StatusAborted:
	default:
		logger.Warn("unknown statement status", "status", desc.Status)
	}
	if stmt.Attempts > 1 && desc.Status.Rank() < stmt.Status.Rank() {
		logger.Warn("statement status regressed", "from", stmt.Status, "to", desc.Status)
	}
	stmt.Status = desc.Status
	stmt.HasResultSet = desc.HasResultSet
	stmt.Error = desc.Error
}

func (w *Waiter) sleep(ctx context.Context, d time.Duration) error {
	t := w.clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C():
		return nil
	}
}

func asTransport(op string, err error) error {
	var te *domain.TransportError
	if errors.As(err, &te) {
		return err
	}
	return &domain.TransportError{Op: op, Err: err}
}
