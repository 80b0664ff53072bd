package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"redshift-orders/internal/handler"
)

var (
	version = "dev"
	commit  = "none"
)

// rootOptions holds the persistent flags after precedence is applied.
type rootOptions struct {
	database  string
	workgroup string
	secretARN string
	region    string
	endpoint  string
	local     string
	output    string
	profile   string
	verbose   bool

	// resolved by PersistentPreRunE
	active Profile
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts := &rootOptions{}
	rootCmd := newRootCmd(opts)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if opts.output == outputJSON {
			_ = PrintJSON(stdout, handler.Classify(err))
		} else {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "orders",
		Short:         "Order table operations on Redshift Serverless",
		Long:          "Command-line interface for reading and provisioning the order table through the Redshift Data API.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadUserConfig()
			if err != nil {
				// Config file is optional
				cfg = &UserConfig{CurrentProfile: "default", Profiles: map[string]Profile{}}
			}
			p, err := cfg.ActiveProfile(opts.profile)
			if err != nil {
				return err
			}
			opts.active = p

			// Apply precedence: flag > env > profile > default
			resolve(cmd, "output", &opts.output, "ORDERS_OUTPUT", p.Output)
			if opts.output == "" {
				opts.output = defaultOutput(cmd.OutOrStdout())
			}
			return validateOutputFormat(opts.output)
		},
	}

	f := rootCmd.PersistentFlags()
	f.StringVar(&opts.database, "database", "", "Database name (env REDSHIFT_DATABASE)")
	f.StringVar(&opts.workgroup, "workgroup", "", "Serverless workgroup (env REDSHIFT_WORKGROUP)")
	f.StringVar(&opts.secretARN, "secret-arn", "", "Secrets Manager ARN for database credentials (env REDSHIFT_SECRET_ARN)")
	f.StringVar(&opts.region, "region", "", "AWS region (env AWS_REGION)")
	f.StringVar(&opts.endpoint, "endpoint", "", "Data API endpoint override (env DATA_API_ENDPOINT)")
	f.StringVar(&opts.local, "local", "", "Run against a local SQLite file instead of the Data API (env LOCAL_DB_PATH)")
	f.StringVarP(&opts.output, "output", "o", "", "Output format (table, json); defaults to table on a terminal")
	f.StringVarP(&opts.profile, "profile", "p", "", "Config profile to use")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Log statement progress to stderr")

	rootCmd.AddCommand(newReadCmd(opts))
	rootCmd.AddCommand(newProvisionCmd(opts))
	rootCmd.AddCommand(newExecCmd(opts))
	rootCmd.AddCommand(newTablesCmd(opts))
	rootCmd.AddCommand(newVersionCmd(opts))
	rootCmd.AddCommand(newConfigCmd(opts))
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

// resolve fills *dst from env and then the profile unless the flag was set.
func resolve(cmd *cobra.Command, flag string, dst *string, env, profileVal string) {
	if cmd.Flags().Changed(flag) {
		return
	}
	if v := os.Getenv(env); v != "" {
		*dst = v
	} else if profileVal != "" {
		*dst = profileVal
	}
}

func (o *rootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "completion [bash|zsh|fish|powershell]",
		Short:     "Generate shell completion scripts",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
}
