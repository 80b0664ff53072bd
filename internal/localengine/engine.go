// Package localengine emulates the asynchronous statement API on SQLite so the
// handlers can run without AWS. Statements execute at submit time; describe
// then reports a configurable number of non-terminal snapshots before the
// terminal one.
package localengine

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"redshift-orders/internal/domain"
)

// Compile-time check: Client implements domain.StatementClient.
var _ domain.StatementClient = (*Client)(nil)

// SQLite has no roles or grants; these statements finish without effect.
var noopRe = regexp.MustCompile(`(?i)^\s*(CREATE\s+ROLE|DROP\s+ROLE|GRANT|REVOKE)\b`)

// maxRetained bounds statements submitted but never consumed.
const maxRetained = 1024

// Redshift's sysdate has no SQLite spelling.
var sysdateRe = regexp.MustCompile(`(?i)\bsysdate\b`)

// Options configure the emulator.
type Options struct {
	// Path is the SQLite database file; empty or ":memory:" keeps everything
	// in memory.
	Path string
	// PendingPolls is how many describe calls report STARTED before the
	// terminal status.
	PendingPolls int
}

type statement struct {
	sql    string
	polls  int
	status domain.StatementStatus
	err    string
	result *domain.ResultSet
	took   time.Duration
}

// Client is a single-connection SQLite session.
type Client struct {
	db      *sql.DB
	pending int

	mu         sync.Mutex
	statements map[string]*statement
	order      []string // submit order, for evicting unconsumed statements
}

// Open creates the session and attaches a "public" schema so statements
// written for the warehouse resolve their schema-qualified names.
func Open(ctx context.Context, opts Options) (*Client, error) {
	mainPath, publicPath := ":memory:", ":memory:"
	if opts.Path != "" && opts.Path != ":memory:" {
		mainPath = opts.Path
		publicPath = opts.Path + ".public"
	}

	db, err := sql.Open("sqlite3", mainPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// ATTACH and in-memory databases are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "ATTACH DATABASE ? AS public", publicPath); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("attach public schema: %w", err)
	}
	return &Client{db: db, pending: opts.PendingPolls, statements: make(map[string]*statement)}, nil
}

// Submit executes sql immediately and records the outcome under a new id.
func (c *Client) Submit(ctx context.Context, sqlText string, params ...domain.Param) (string, error) {
	if strings.TrimSpace(sqlText) == "" {
		return "", domain.ErrValidation("sql is required")
	}

	st := &statement{sql: sqlText, status: domain.StatusFinished}
	start := time.Now()
	if !noopRe.MatchString(sqlText) {
		rs, err := c.execute(ctx, sysdateRe.ReplaceAllString(sqlText, "CURRENT_TIMESTAMP"), params)
		if err != nil {
			if ctx.Err() != nil {
				return "", &domain.TransportError{Op: "ExecuteStatement", Err: ctx.Err()}
			}
			st.status = domain.StatusFailed
			st.err = err.Error()
		}
		st.result = rs
	}
	st.took = time.Since(start)

	id := uuid.NewString()
	c.mu.Lock()
	c.retain(id, st)
	c.mu.Unlock()
	return id, nil
}

// retain records st and evicts the oldest entries past maxRetained.
// Callers hold c.mu.
func (c *Client) retain(id string, st *statement) {
	c.statements[id] = st
	c.order = append(c.order, id)
	for len(c.statements) > maxRetained && len(c.order) > 0 {
		delete(c.statements, c.order[0])
		c.order = c.order[1:]
	}
	if len(c.order) > 2*maxRetained {
		live := make([]string, 0, len(c.statements))
		for _, k := range c.order {
			if _, ok := c.statements[k]; ok {
				live = append(live, k)
			}
		}
		c.order = live
	}
}

func (c *Client) execute(ctx context.Context, sqlText string, params []domain.Param) (*domain.ResultSet, error) {
	args := make([]any, 0, len(params))
	for _, p := range params {
		args = append(args, sql.Named(p.Name, p.Value))
	}

	rows, err := c.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	// Reading drives execution; statements without columns have no result set.
	var rs *domain.ResultSet
	if len(types) > 0 {
		rs = &domain.ResultSet{Columns: make([]domain.Column, len(types))}
		for i, t := range types {
			rs.Columns[i] = domain.Column{Name: t.Name(), TypeName: strings.ToLower(t.DatabaseTypeName())}
		}
	}

	vals := make([]any, len(types))
	ptrs := make([]any, len(types))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if rs == nil {
			continue
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(domain.Row, len(vals))
		for i, v := range vals {
			row[i] = normalize(v, rs.Columns[i].TypeName)
		}
		rs.Rows = append(rs.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rs, nil
}

func normalize(v any, typeName string) any {
	switch x := v.(type) {
	case []byte:
		if typeName == "blob" {
			return x
		}
		return string(x)
	case time.Time:
		return x.UTC().Format("2006-01-02 15:04:05")
	default:
		return x
	}
}

// Describe reports STARTED for the first PendingPolls calls, then the
// recorded terminal status. A terminal statement without a result set is
// forgotten once described; one with rows is forgotten once fetched.
func (c *Client) Describe(_ context.Context, id string) (*domain.StatementDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.statements[id]
	if !ok {
		return nil, notFound("DescribeStatement", id)
	}
	st.polls++
	if st.polls <= c.pending {
		return &domain.StatementDescription{Status: domain.StatusStarted}, nil
	}
	desc := &domain.StatementDescription{
		Status:       st.status,
		HasResultSet: st.result != nil,
		Error:        st.err,
		ResultRows:   -1,
		Duration:     st.took,
	}
	if st.result != nil {
		desc.ResultRows = int64(len(st.result.Rows))
	} else {
		delete(c.statements, id)
	}
	return desc, nil
}

// FetchResult returns the rows of a finished statement.
func (c *Client) FetchResult(_ context.Context, id string) (*domain.ResultSet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.statements[id]
	if !ok || st.result == nil || st.polls <= c.pending {
		return nil, notFound("GetStatementResult", id)
	}
	rs := &domain.ResultSet{
		Columns: append([]domain.Column(nil), st.result.Columns...),
		Rows:    append([]domain.Row(nil), st.result.Rows...),
	}
	delete(c.statements, id)
	return rs, nil
}

// ListTables lists tables and views in the main and public schemas whose name
// matches pattern.
func (c *Client) ListTables(ctx context.Context, pattern string, maxResults int32) ([]domain.TableDescriptor, error) {
	if pattern == "" {
		pattern = "%"
	}
	if maxResults <= 0 {
		maxResults = 100
	}

	const q = `
		SELECT 'public', name, upper(type) FROM public.sqlite_master
		 WHERE type IN ('table', 'view') AND name LIKE :pattern
		UNION ALL
		SELECT 'main', name, upper(type) FROM main.sqlite_master
		 WHERE type IN ('table', 'view') AND name LIKE :pattern
		ORDER BY 1, 2
		LIMIT :limit`
	rows, err := c.db.QueryContext(ctx, q, sql.Named("pattern", pattern), sql.Named("limit", maxResults))
	if err != nil {
		return nil, &domain.TransportError{Op: "ListTables", Err: err}
	}
	defer rows.Close() //nolint:errcheck

	var tables []domain.TableDescriptor
	for rows.Next() {
		var t domain.TableDescriptor
		if err := rows.Scan(&t.Schema, &t.Name, &t.Type); err != nil {
			return nil, &domain.TransportError{Op: "ListTables", Err: err}
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.TransportError{Op: "ListTables", Err: err}
	}
	return tables, nil
}

// Close closes the SQLite session.
func (c *Client) Close() error { return c.db.Close() }

func notFound(op, id string) error {
	return &domain.TransportError{Op: op, Err: fmt.Errorf("statement %q not found", id)}
}
