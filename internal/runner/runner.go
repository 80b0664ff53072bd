// Package runner sequences statement lifecycles: each step is submitted only
// after the previous one finished, and the first failure ends the run.
package runner

import (
	"context"
	"fmt"
	"log/slog"

	"redshift-orders/internal/domain"
	"redshift-orders/internal/waiter"
)

// Step is one SQL statement of a run.
type Step struct {
	Name   string
	SQL    string
	Params []domain.Param
	// FetchRows makes the step's result set the run's result.
	FetchRows bool
}

// Runner executes steps against one client.
type Runner struct {
	client  domain.StatementClient
	waiter  *waiter.Waiter
	retries int
	logger  *slog.Logger
}

// New creates a Runner. transportRetries bounds how often a poll interrupted
// by a retryable transport error is resumed; zero disables the retry layer.
func New(client domain.StatementClient, w *waiter.Waiter, transportRetries int, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{client: client, waiter: w, retries: transportRetries, logger: logger}
}

// Run executes steps in order. It returns a *domain.StepError naming the
// first step that failed; later steps are never submitted. Submit itself is
// never retried, since most statements are not idempotent.
func (r *Runner) Run(ctx context.Context, steps ...Step) (*domain.QueryOutcome, error) {
	outcome := &domain.QueryOutcome{Kind: domain.OutcomeEmpty}

	for i, step := range steps {
		logger := r.logger.With("step", step.Name)
		if err := ctx.Err(); err != nil {
			return outcome, &domain.StepError{Index: i, Name: step.Name, Err: &domain.CancelledError{Err: err}}
		}

		id, err := r.client.Submit(ctx, step.SQL, step.Params...)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = &domain.CancelledError{Err: ctxErr}
			}
			logger.Error("submit failed", "error", err)
			return outcome, &domain.StepError{Index: i, Name: step.Name, Err: fmt.Errorf("submit: %w", err)}
		}
		logger.Info("statement submitted", "statement_id", id)

		stmt, err := r.waiter.AwaitRetrying(ctx, id, r.retries)
		if stmt != nil {
			outcome.Steps = append(outcome.Steps, domain.StepResult{
				Name:        step.Name,
				StatementID: id,
				Status:      stmt.Status,
				Attempts:    stmt.Attempts,
				Rows:        stmt.Result.Len(),
			})
		}
		if err != nil {
			logger.Error("step failed", "statement_id", id, "error", err)
			return outcome, &domain.StepError{Index: i, Name: step.Name, StatementID: id, Err: err}
		}

		if step.FetchRows && stmt.Result != nil {
			outcome.Result = stmt.Result
		}
	}

	if outcome.Result.Len() > 0 {
		outcome.Kind = domain.OutcomeRows
	}
	return outcome, nil
}
