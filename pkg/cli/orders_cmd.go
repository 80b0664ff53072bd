package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"redshift-orders/internal/domain"
	"redshift-orders/internal/orders"
	"redshift-orders/internal/runner"
)

// rowsOutput is the JSON shape of any command that returns rows.
type rowsOutput struct {
	Columns []domain.Column     `json:"columns"`
	Rows    []map[string]any    `json:"rows"`
	Steps   []domain.StepResult `json:"steps,omitempty"`
}

func newReadCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Select the orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck

			res, err := s.orders.Read(cmd.Context(), s.runner, orders.ReadRequest{Limit: limit})
			if err != nil {
				return err
			}
			return printRows(cmd, opts, res.Columns, res.Rows, res.Steps)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of orders to return (0 returns all)")
	return cmd
}

func newProvisionCmd(opts *rootOptions) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create the order table, insert an order and grant the read role",
		Long: "Runs CREATE TABLE IF NOT EXISTS, lists matching tables, inserts one order,\n" +
			"creates the role and grants it SELECT. The steps are not transactional:\n" +
			"a failure leaves earlier steps applied.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck

			res, err := s.orders.Provision(cmd.Context(), s.runner, s.client, orders.ProvisionRequest{OrderName: name})
			if err != nil {
				return err
			}
			if opts.output == outputJSON {
				return PrintJSON(cmd.OutOrStdout(), map[string]any{"tables": res.Tables, "steps": res.Steps})
			}
			printTables(cmd, res.Tables)
			_, _ = fmt.Fprintln(cmd.OutOrStdout())
			printSteps(cmd, res.Steps)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", orders.DefaultOrderName, "Name of the order to insert")
	return cmd
}

func newExecCmd(opts *rootOptions) *cobra.Command {
	var params []string

	cmd := &cobra.Command{
		Use:   "exec <sql>",
		Short: "Run one SQL statement and print its result",
		Example: `  orders exec "SELECT count(*) FROM public.kj_order"
  orders exec "INSERT INTO public.kj_order(name) VALUES (:name)" --param name=order_2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sqlParams, err := parseParams(params)
			if err != nil {
				return err
			}
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck

			outcome, err := s.runner.Run(cmd.Context(), runner.Step{
				Name:      "exec",
				SQL:       args[0],
				Params:    sqlParams,
				FetchRows: true,
			})
			if err != nil {
				return err
			}
			var (
				cols []domain.Column
				rows []domain.Row
			)
			if outcome.Result != nil {
				cols, rows = outcome.Result.Columns, outcome.Result.Rows
			}
			if len(cols) == 0 && opts.output == outputTable {
				st := outcome.Steps[0]
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Statement %s %s after %d polls (no result set)\n",
					st.StatementID, strings.ToLower(string(st.Status)), st.Attempts)
				return nil
			}
			return printRows(cmd, opts, cols, rows, outcome.Steps)
		},
	}
	cmd.Flags().StringArrayVar(&params, "param", nil, "Named parameter as name=value (repeatable)")
	return cmd
}

func newTablesCmd(opts *rootOptions) *cobra.Command {
	var (
		pattern    string
		maxResults int32
	)

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List tables matching a LIKE pattern",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck

			if !cmd.Flags().Changed("pattern") {
				pattern = s.cfg.TablePattern
			}
			tables, err := s.client.ListTables(cmd.Context(), pattern, maxResults)
			if err != nil {
				return err
			}
			if tables == nil {
				tables = []domain.TableDescriptor{}
			}
			if opts.output == outputJSON {
				return PrintJSON(cmd.OutOrStdout(), tables)
			}
			printTables(cmd, tables)
			return nil
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", "", "LIKE pattern (defaults to TABLE_PATTERN)")
	cmd.Flags().Int32Var(&maxResults, "max", 100, "Maximum number of tables")
	return cmd
}

func parseParams(raw []string) ([]domain.Param, error) {
	out := make([]domain.Param, 0, len(raw))
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, domain.ErrValidation("parameter %q must be name=value", kv)
		}
		out = append(out, domain.Param{Name: strings.TrimSpace(name), Value: value})
	}
	return out, nil
}

func printRows(cmd *cobra.Command, opts *rootOptions, cols []domain.Column, rows []domain.Row, steps []domain.StepResult) error {
	if opts.output == outputJSON {
		return PrintJSON(cmd.OutOrStdout(), rowsOutput{Columns: cols, Rows: domain.RowObjects(cols, rows), Steps: steps})
	}

	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.Name
	}
	data := make([][]string, 0, len(rows))
	for _, row := range rows {
		line := make([]string, len(row))
		for i, v := range row {
			line[i] = formatValue(v)
		}
		data = append(data, line)
	}
	PrintTable(cmd.OutOrStdout(), header, data)
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "(%d rows)\n", len(rows))
	return nil
}

func printTables(cmd *cobra.Command, tables []domain.TableDescriptor) {
	data := make([][]string, 0, len(tables))
	for _, t := range tables {
		data = append(data, []string{t.Schema, t.Name, t.Type})
	}
	PrintTable(cmd.OutOrStdout(), []string{"SCHEMA", "NAME", "TYPE"}, data)
}

func printSteps(cmd *cobra.Command, steps []domain.StepResult) {
	data := make([][]string, 0, len(steps))
	for _, s := range steps {
		data = append(data, []string{s.Name, s.StatementID, string(s.Status), strconv.Itoa(s.Attempts)})
	}
	PrintTable(cmd.OutOrStdout(), []string{"STEP", "STATEMENT", "STATUS", "POLLS"}, data)
}
