// Package orders implements the two order operations: reading the order table
// and provisioning it (table, sample row, read-only role).
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"redshift-orders/internal/domain"
	"redshift-orders/internal/runner"
)

// Defaults for Settings and requests.
const (
	DefaultTable        = "public.kj_order"
	DefaultRole         = "role1"
	DefaultTablePattern = "kj%"
	DefaultOrderName    = "order_1"

	MaxLimit         = 10000
	MaxOrderNameLen  = 25
	listTablesMaxHit = 100
)

// Step names reported in outcomes and errors.
const (
	StepSelect      = "select_orders"
	StepCreateTable = "create_table"
	StepListTables  = "list_tables"
	StepInsertOrder = "insert_order"
	StepCreateRole  = "create_role"
	StepGrantSelect = "grant_select"
)

var (
	tableRe   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,126}(\.[A-Za-z_][A-Za-z0-9_]{0,126})?$`)
	roleRe    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,126}$`)
	patternRe = regexp.MustCompile(`^[A-Za-z0-9_%]{1,127}$`)
)

// Settings are the identifiers the operations interpolate into SQL. They come
// from configuration, never from requests.
type Settings struct {
	Table        string
	Role         string
	TablePattern string
}

// DefaultSettings returns the identifiers used by the original deployment.
func DefaultSettings() Settings {
	return Settings{Table: DefaultTable, Role: DefaultRole, TablePattern: DefaultTablePattern}
}

// Validate checks every identifier before it reaches a statement.
func (s Settings) Validate() error {
	if !tableRe.MatchString(s.Table) {
		return domain.ErrConfiguration("table", "invalid table name %q", s.Table)
	}
	if !roleRe.MatchString(s.Role) {
		return domain.ErrConfiguration("role", "invalid role name %q", s.Role)
	}
	if !patternRe.MatchString(s.TablePattern) {
		return domain.ErrConfiguration("table_pattern", "invalid pattern %q", s.TablePattern)
	}
	return nil
}

// Executor runs SQL steps in order. *runner.Runner implements it.
type Executor interface {
	Run(ctx context.Context, steps ...runner.Step) (*domain.QueryOutcome, error)
}

// Catalog lists tables. domain.StatementClient implements it.
type Catalog interface {
	ListTables(ctx context.Context, pattern string, maxResults int32) ([]domain.TableDescriptor, error)
}

// ReadRequest selects orders. A zero Limit returns every row.
type ReadRequest struct {
	Limit int
}

// ReadResult holds the selected rows. Rows is empty, not an error, when the
// table has no orders.
type ReadResult struct {
	Columns []domain.Column
	Rows    []domain.Row
	Steps   []domain.StepResult
}

// ProvisionRequest names the order row inserted during provisioning.
type ProvisionRequest struct {
	OrderName string
}

// ProvisionResult reports the tables seen after creating the order table and
// the statements that ran.
type ProvisionResult struct {
	Tables []domain.TableDescriptor
	Steps  []domain.StepResult
}

// Service builds and runs the order statements.
type Service struct {
	settings Settings
	logger   *slog.Logger
}

// New validates settings and returns a Service.
func New(settings Settings, logger *slog.Logger) (*Service, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{settings: settings, logger: logger}, nil
}

// Settings returns the validated identifiers.
func (s *Service) Settings() Settings { return s.settings }

// Read selects all orders, optionally limited.
func (s *Service) Read(ctx context.Context, exec Executor, req ReadRequest) (*ReadResult, error) {
	if req.Limit < 0 || req.Limit > MaxLimit {
		return nil, domain.ErrValidation("limit must be between 0 (all rows) and %d", MaxLimit)
	}

	query := "SELECT * FROM " + s.settings.Table
	if req.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", req.Limit)
	}

	outcome, err := exec.Run(ctx, runner.Step{Name: StepSelect, SQL: query, FetchRows: true})
	if err != nil {
		return nil, err
	}

	res := &ReadResult{Rows: []domain.Row{}, Steps: outcome.Steps}
	if outcome.Result != nil {
		res.Columns = outcome.Result.Columns
		if outcome.Kind == domain.OutcomeRows {
			res.Rows = outcome.Result.Rows
		}
	}
	s.logger.Debug("orders read", "rows", len(res.Rows))
	return res, nil
}

// Provision creates the order table, lists matching tables, inserts one order
// and grants a role read access, in that order. The statements are not
// transactional: a failure leaves earlier steps applied.
func (s *Service) Provision(ctx context.Context, exec Executor, cat Catalog, req ProvisionRequest) (*ProvisionResult, error) {
	name := strings.TrimSpace(req.OrderName)
	if name == "" {
		name = DefaultOrderName
	}
	if len(name) > MaxOrderNameLen {
		return nil, domain.ErrValidation("order name must be at most %d bytes", MaxOrderNameLen)
	}

	table, role := s.settings.Table, s.settings.Role
	res := &ProvisionResult{Tables: []domain.TableDescriptor{}}

	outcome, err := exec.Run(ctx, runner.Step{
		Name: StepCreateTable,
		SQL:  "CREATE TABLE IF NOT EXISTS " + table + " ( name VARCHAR(25) NOT NULL, created_at DATETIME DEFAULT sysdate )",
	})
	if err != nil {
		return nil, err
	}
	res.Steps = append(res.Steps, outcome.Steps...)

	tables, err := cat.ListTables(ctx, s.settings.TablePattern, listTablesMaxHit)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = &domain.CancelledError{Err: ctxErr}
		}
		return nil, &domain.StepError{Index: 1, Name: StepListTables, Err: err}
	}
	if tables != nil {
		res.Tables = tables
	}
	res.Steps = append(res.Steps, domain.StepResult{
		Name:   StepListTables,
		Status: domain.StatusFinished,
		Rows:   len(tables),
	})
	s.logger.Info("tables listed", "pattern", s.settings.TablePattern, "count", len(tables))

	outcome, err = exec.Run(ctx,
		runner.Step{
			Name:   StepInsertOrder,
			SQL:    "INSERT INTO " + table + "( name ) VALUES (:name)",
			Params: []domain.Param{{Name: "name", Value: name}},
		},
		runner.Step{Name: StepCreateRole, SQL: "CREATE ROLE " + role + ";"},
		runner.Step{Name: StepGrantSelect, SQL: "GRANT SELECT on TABLE " + table + " to ROLE " + role + ";"},
	)
	if err != nil {
		return nil, offsetStep(err, 2)
	}
	res.Steps = append(res.Steps, outcome.Steps...)
	return res, nil
}

// offsetStep renumbers a StepError from a later run so indexes count from the
// first statement of the operation.
func offsetStep(err error, offset int) error {
	var se *domain.StepError
	if errors.As(err, &se) {
		shifted := *se
		shifted.Index += offset
		return &shifted
	}
	return err
}
