package domain

import (
	"strconv"
	"time"
)

// StatementStatus mirrors the status reported by the engine's describe call.
type StatementStatus string

// Statement lifecycle statuses.
const (
	StatusSubmitted StatementStatus = "SUBMITTED"
	StatusPicked    StatementStatus = "PICKED"
	StatusStarted   StatementStatus = "STARTED"
	StatusRunning   StatementStatus = "RUNNING"
	StatusFailed    StatementStatus = "FAILED"
	StatusFinished  StatementStatus = "FINISHED"
	StatusAborted   StatementStatus = "ABORTED"
)

// IsTerminal reports whether no further transitions are expected.
func (s StatementStatus) IsTerminal() bool {
	return s == StatusFailed || s == StatusFinished || s == StatusAborted
}

// Rank orders statuses along the lifecycle. Unknown statuses rank as
// submitted so they never look like progress.
func (s StatementStatus) Rank() int {
	switch s {
	case StatusPicked:
		return 1
	case StatusStarted, StatusRunning:
		return 2
	case StatusFailed, StatusFinished, StatusAborted:
		return 3
	default:
		return 0
	}
}

// StatementDescription is one describe snapshot.
type StatementDescription struct {
	Status       StatementStatus
	HasResultSet bool
	Error        string
	ResultRows   int64
	Duration     time.Duration
}

// Statement tracks one submitted unit of SQL through its lifecycle.
type Statement struct {
	ID           string
	SQL          string
	Status       StatementStatus
	HasResultSet bool
	Error        string
	Result       *ResultSet
	Attempts     int
}

// Column describes one result column.
type Column struct {
	Name     string `json:"name"`
	TypeName string `json:"type,omitempty"`
}

// Row holds column values in column order. Values are string, int64, float64,
// bool, []byte or nil.
type Row []any

// ResultSet is an ordered sequence of rows returned by a finished statement.
type ResultSet struct {
	Columns []Column
	Rows    []Row
}

// Len returns the number of rows, treating a nil set as empty.
func (r *ResultSet) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// ObjectKeys returns one unique key per column for rendering rows as
// objects. A repeated name gets a _2, _3, ... suffix in column order.
func ObjectKeys(cols []Column) []string {
	keys := make([]string, len(cols))
	seen := make(map[string]bool, len(cols))
	for i, c := range cols {
		key := c.Name
		for n := 2; seen[key]; n++ {
			key = c.Name + "_" + strconv.Itoa(n)
		}
		seen[key] = true
		keys[i] = key
	}
	return keys
}

// RowObjects keys every row value by ObjectKeys(cols).
func RowObjects(cols []Column, rows []Row) []map[string]any {
	keys := ObjectKeys(cols)
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		obj := make(map[string]any, len(keys))
		for i, k := range keys {
			if i < len(row) {
				obj[k] = row[i]
			}
		}
		out = append(out, obj)
	}
	return out
}

// TableDescriptor is one entry returned by table introspection.
type TableDescriptor struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
	Type   string `json:"type,omitempty"`
}

// Param is a named SQL parameter, referenced as :name in statement text.
type Param struct {
	Name  string
	Value string
}

// OutcomeKind distinguishes the two successful outcomes of a run.
type OutcomeKind string

// Outcome kinds.
const (
	OutcomeRows  OutcomeKind = "ROWS"
	OutcomeEmpty OutcomeKind = "EMPTY"
)

// StepResult records how one step of a run finished.
type StepResult struct {
	Name        string          `json:"name"`
	StatementID string          `json:"statement_id"`
	Status      StatementStatus `json:"status"`
	Attempts    int             `json:"attempts"`
	Rows        int             `json:"rows"`
}

// QueryOutcome is the successful product of a run. Failures are returned as
// errors instead.
type QueryOutcome struct {
	Kind   OutcomeKind
	Result *ResultSet
	Steps  []StepResult
}
