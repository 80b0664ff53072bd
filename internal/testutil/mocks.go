// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase. This follows the Go convention of a
// shared test utility package (like net/http/httptest).
package testutil

import (
	"context"
	"fmt"
	"sync"

	"redshift-orders/internal/domain"
)

// === Statement Client Mock ===

// MockStatementClient implements domain.StatementClient for testing. Each
// method delegates to its Fn field when set; call counts and submitted SQL are
// recorded for assertions. It is safe for use from multiple goroutines.
type MockStatementClient struct {
	SubmitFn     func(ctx context.Context, sql string, params ...domain.Param) (string, error)
	DescribeFn   func(ctx context.Context, id string) (*domain.StatementDescription, error)
	FetchFn      func(ctx context.Context, id string) (*domain.ResultSet, error)
	ListTablesFn func(ctx context.Context, pattern string, maxResults int32) ([]domain.TableDescriptor, error)

	mu        sync.Mutex
	submitted []string
	params    [][]domain.Param
	describes map[string]int
	fetches   map[string]int
	listCalls int
	closed    bool
}

// Submit implements the interface method for testing.
func (m *MockStatementClient) Submit(ctx context.Context, sql string, params ...domain.Param) (string, error) {
	m.mu.Lock()
	m.submitted = append(m.submitted, sql)
	m.params = append(m.params, params)
	n := len(m.submitted)
	m.mu.Unlock()
	if m.SubmitFn != nil {
		return m.SubmitFn(ctx, sql, params...)
	}
	return fmt.Sprintf("stmt-%d", n), nil
}

// Describe implements the interface method for testing.
func (m *MockStatementClient) Describe(ctx context.Context, id string) (*domain.StatementDescription, error) {
	m.mu.Lock()
	if m.describes == nil {
		m.describes = make(map[string]int)
	}
	m.describes[id]++
	m.mu.Unlock()
	if m.DescribeFn != nil {
		return m.DescribeFn(ctx, id)
	}
	return &domain.StatementDescription{Status: domain.StatusFinished}, nil
}

// FetchResult implements the interface method for testing.
func (m *MockStatementClient) FetchResult(ctx context.Context, id string) (*domain.ResultSet, error) {
	m.mu.Lock()
	if m.fetches == nil {
		m.fetches = make(map[string]int)
	}
	m.fetches[id]++
	m.mu.Unlock()
	if m.FetchFn != nil {
		return m.FetchFn(ctx, id)
	}
	panic("unexpected call to MockStatementClient.FetchResult")
}

// ListTables implements the interface method for testing.
func (m *MockStatementClient) ListTables(ctx context.Context, pattern string, maxResults int32) ([]domain.TableDescriptor, error) {
	m.mu.Lock()
	m.listCalls++
	m.mu.Unlock()
	if m.ListTablesFn != nil {
		return m.ListTablesFn(ctx, pattern, maxResults)
	}
	return nil, nil
}

// Close implements the interface method for testing.
func (m *MockStatementClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Submitted returns the SQL texts submitted so far, in order.
func (m *MockStatementClient) Submitted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.submitted...)
}

// SubmittedParams returns the parameters passed with the i-th submit.
func (m *MockStatementClient) SubmittedParams(i int) []domain.Param {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.params[i]
}

// DescribeCalls returns how many times id was described.
func (m *MockStatementClient) DescribeCalls(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.describes[id]
}

// FetchCalls returns how many times the result of id was fetched.
func (m *MockStatementClient) FetchCalls(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches[id]
}

// ListTablesCalls returns how many times ListTables was called.
func (m *MockStatementClient) ListTablesCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

// Closed reports whether Close was called.
func (m *MockStatementClient) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// === Describe scripts ===

// Script returns a DescribeFn that replays the given snapshots for every
// statement id, repeating the last one once the script is exhausted.
func Script(snapshots ...domain.StatementDescription) func(context.Context, string) (*domain.StatementDescription, error) {
	var mu sync.Mutex
	pos := make(map[string]int)
	return func(_ context.Context, id string) (*domain.StatementDescription, error) {
		mu.Lock()
		defer mu.Unlock()
		i := pos[id]
		if i >= len(snapshots) {
			i = len(snapshots) - 1
		}
		pos[id]++
		s := snapshots[i]
		return &s, nil
	}
}

// Running is a non-terminal snapshot.
func Running() domain.StatementDescription {
	return domain.StatementDescription{Status: domain.StatusRunning}
}

// Finished is a terminal success snapshot.
func Finished(hasResultSet bool) domain.StatementDescription {
	return domain.StatementDescription{Status: domain.StatusFinished, HasResultSet: hasResultSet}
}

// Failed is a terminal failure snapshot carrying msg.
func Failed(msg string) domain.StatementDescription {
	return domain.StatementDescription{Status: domain.StatusFailed, Error: msg}
}

// Rows builds a single-column result set with n rows.
func Rows(n int) *domain.ResultSet {
	rs := &domain.ResultSet{Columns: []domain.Column{{Name: "name", TypeName: "varchar"}}}
	for i := 0; i < n; i++ {
		rs.Rows = append(rs.Rows, domain.Row{fmt.Sprintf("order_%d", i+1)})
	}
	return rs
}
