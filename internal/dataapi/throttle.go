package dataapi

import (
	"context"

	"golang.org/x/time/rate"

	"redshift-orders/internal/domain"
)

// ThrottledClient waits on a token bucket before every remote call so one
// invocation stays under the Data API's per-account request quotas.
type ThrottledClient struct {
	next    domain.StatementClient
	limiter *rate.Limiter
}

// Throttled wraps next with a limiter allowing rps calls per second with the
// given burst. A non-positive rps returns next unchanged.
func Throttled(next domain.StatementClient, rps float64, burst int) domain.StatementClient {
	if rps <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &ThrottledClient{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (t *ThrottledClient) wait(ctx context.Context, op string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// The limiter refuses waits that would overrun the context deadline.
		return &domain.TransportError{Op: op, Err: err, Throttled: true}
	}
	return nil
}

// Submit implements domain.StatementClient.
func (t *ThrottledClient) Submit(ctx context.Context, sql string, params ...domain.Param) (string, error) {
	if err := t.wait(ctx, "ExecuteStatement"); err != nil {
		return "", err
	}
	return t.next.Submit(ctx, sql, params...)
}

// Describe implements domain.StatementClient.
func (t *ThrottledClient) Describe(ctx context.Context, id string) (*domain.StatementDescription, error) {
	if err := t.wait(ctx, "DescribeStatement"); err != nil {
		return nil, err
	}
	return t.next.Describe(ctx, id)
}

// FetchResult implements domain.StatementClient.
func (t *ThrottledClient) FetchResult(ctx context.Context, id string) (*domain.ResultSet, error) {
	if err := t.wait(ctx, "GetStatementResult"); err != nil {
		return nil, err
	}
	return t.next.FetchResult(ctx, id)
}

// ListTables implements domain.StatementClient.
func (t *ThrottledClient) ListTables(ctx context.Context, pattern string, maxResults int32) ([]domain.TableDescriptor, error) {
	if err := t.wait(ctx, "ListTables"); err != nil {
		return nil, err
	}
	return t.next.ListTables(ctx, pattern, maxResults)
}

// Close implements domain.StatementClient.
func (t *ThrottledClient) Close() error { return t.next.Close() }
