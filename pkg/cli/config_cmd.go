package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration profiles",
	}

	cmd.AddCommand(newConfigShowCmd(opts))
	cmd.AddCommand(newConfigSetProfileCmd(opts))
	cmd.AddCommand(newConfigUseProfileCmd(opts))

	return cmd
}

func newConfigShowCmd(opts *rootOptions) *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadUserConfig()
			if err != nil {
				return fmt.Errorf("no configuration found at %s: %w", ConfigPath(), err)
			}
			if !reveal {
				cfg = maskConfig(cfg)
			}
			if opts.output == outputJSON {
				return PrintJSON(cmd.OutOrStdout(), cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			_, _ = fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "Show sensitive values unmasked")

	return cmd
}

// maskConfig returns a copy of the config with secret keys masked.
func maskConfig(cfg *UserConfig) *UserConfig {
	masked := &UserConfig{
		CurrentProfile: cfg.CurrentProfile,
		Profiles:       make(map[string]Profile, len(cfg.Profiles)),
	}
	for name, p := range cfg.Profiles {
		p.SecretAccessKey = maskSecret(p.SecretAccessKey)
		masked.Profiles[name] = p
	}
	return masked
}

// maskSecret masks a sensitive string, showing first 4 and last 4 chars.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 10 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

func newConfigSetProfileCmd(opts *rootOptions) *cobra.Command {
	var (
		name   string
		values Profile // flag targets; only changed flags are applied
	)

	cmd := &cobra.Command{
		Use:   "set-profile",
		Short: "Create or update a configuration profile",
		Example: `  orders config set-profile --name prod --database dev --workgroup orders-wg --region eu-west-1
  orders config set-profile --name local --local ./orders.db --default-output table`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			if cmd.Flags().Changed("default-output") {
				if err := validateOutputFormat(values.Output); err != nil {
					return err
				}
			}

			cfg, err := LoadUserConfig()
			if err != nil {
				cfg = &UserConfig{
					CurrentProfile: "default",
					Profiles:       map[string]Profile{},
				}
			}

			p := cfg.Profiles[name]
			fields := map[string]*string{
				"database":          &p.Database,
				"workgroup":         &p.Workgroup,
				"secret-arn":        &p.SecretARN,
				"region":            &p.Region,
				"endpoint":          &p.Endpoint,
				"access-key-id":     &p.AccessKeyID,
				"secret-access-key": &p.SecretAccessKey,
				"local":             &p.Local,
				"default-output":    &p.Output,
			}
			// Only flags given on the command line overwrite stored values.
			cmd.Flags().Visit(func(f *pflag.Flag) {
				if dst, ok := fields[f.Name]; ok {
					*dst = f.Value.String()
				}
			})
			cfg.Profiles[name] = p

			if err := SaveUserConfig(cfg); err != nil {
				return err
			}
			if opts.output == outputJSON {
				return PrintJSON(cmd.OutOrStdout(), map[string]string{
					"status":  "ok",
					"profile": name,
					"path":    ConfigPath(),
				})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Profile %q saved to %s\n", name, ConfigPath())
			return nil
		},
	}

	// Local flags shadow the persistent connection flags of the same name.
	f := cmd.Flags()
	f.StringVar(&name, "name", "", "Profile name (required)")
	f.StringVar(&values.Database, "database", "", "Database name")
	f.StringVar(&values.Workgroup, "workgroup", "", "Serverless workgroup")
	f.StringVar(&values.SecretARN, "secret-arn", "", "Secrets Manager ARN for database credentials")
	f.StringVar(&values.Region, "region", "", "AWS region")
	f.StringVar(&values.Endpoint, "endpoint", "", "Data API endpoint override")
	f.StringVar(&values.AccessKeyID, "access-key-id", "", "Static AWS access key id")
	f.StringVar(&values.SecretAccessKey, "secret-access-key", "", "Static AWS secret access key")
	f.StringVar(&values.Local, "local", "", "Local SQLite file")
	f.StringVar(&values.Output, "default-output", "", "Default output format (table, json)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newConfigUseProfileCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "use-profile <name>",
		Short: "Set the active configuration profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadUserConfig()
			if err != nil {
				return fmt.Errorf("no config found: %w", err)
			}
			name := args[0]
			if _, ok := cfg.Profiles[name]; !ok {
				return fmt.Errorf("profile %q not found", name)
			}
			cfg.CurrentProfile = name
			if err := SaveUserConfig(cfg); err != nil {
				return err
			}
			if opts.output == outputJSON {
				return PrintJSON(cmd.OutOrStdout(), map[string]string{
					"status":         "ok",
					"active_profile": name,
				})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Active profile set to %q\n", name)
			return nil
		},
	}
}
