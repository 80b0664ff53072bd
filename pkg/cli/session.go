package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"redshift-orders/internal/config"
	"redshift-orders/internal/dataapi"
	"redshift-orders/internal/domain"
	"redshift-orders/internal/localengine"
	"redshift-orders/internal/orders"
	"redshift-orders/internal/runner"
	"redshift-orders/internal/waiter"
)

// session is one command's connection to the warehouse.
type session struct {
	cfg    *config.Config
	client domain.StatementClient
	runner *runner.Runner
	orders *orders.Service
	logger *slog.Logger
}

func (s *session) Close() error { return s.client.Close() }

// resolveConfig layers flags and the active profile over the environment.
func resolveConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	cfg, err := config.LoadFromEnvUnvalidated()
	if err != nil {
		return nil, err
	}
	p := opts.active

	overlay(cmd, "database", opts.database, &cfg.Target.Database, p.Database)
	overlay(cmd, "workgroup", opts.workgroup, &cfg.Target.Workgroup, p.Workgroup)
	overlay(cmd, "secret-arn", opts.secretARN, &cfg.Target.SecretARN, p.SecretARN)
	overlay(cmd, "region", opts.region, &cfg.Region, p.Region)
	overlay(cmd, "endpoint", opts.endpoint, &cfg.Endpoint, p.Endpoint)
	overlay(cmd, "local", opts.local, &cfg.LocalDBPath, p.Local)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overlay applies flag > env (already in *dst) > profile.
func overlay(cmd *cobra.Command, flag, flagVal string, dst *string, profileVal string) {
	switch {
	case cmd.Flags().Changed(flag):
		*dst = flagVal
	case *dst == "" && profileVal != "":
		*dst = profileVal
	}
}

// openSession resolves configuration and connects. Callers must Close it.
func openSession(cmd *cobra.Command, opts *rootOptions) (*session, error) {
	cfg, err := resolveConfig(cmd, opts)
	if err != nil {
		return nil, err
	}
	logger := opts.logger(cmd.ErrOrStderr())
	for _, w := range cfg.Warnings {
		logger.Debug("config", "warning", w)
	}

	client, err := openClient(cmd.Context(), cfg, opts.active)
	if err != nil {
		return nil, err
	}

	svc, err := orders.New(cfg.Orders(), logger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	w, err := waiter.New(client, cfg.Poll.Policy(), waiter.WithLogger(logger))
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return &session{
		cfg:    cfg,
		client: client,
		runner: runner.New(client, w, cfg.Poll.TransportRetries, logger),
		orders: svc,
		logger: logger,
	}, nil
}

func openClient(ctx context.Context, cfg *config.Config, p Profile) (domain.StatementClient, error) {
	var client domain.StatementClient
	if cfg.IsLocal() {
		c, err := localengine.Open(ctx, localengine.Options{Path: cfg.LocalDBPath})
		if err != nil {
			return nil, fmt.Errorf("open local engine: %w", err)
		}
		client = c
	} else {
		c, err := dataapi.NewFromConfig(ctx, cfg.Target, dataapi.Options{
			Region:        cfg.Region,
			KeyID:         p.AccessKeyID,
			Secret:        p.SecretAccessKey,
			EndpointURL:   cfg.Endpoint,
			StatementName: "orders-cli",
		})
		if err != nil {
			return nil, err
		}
		client = c
	}
	return dataapi.Throttled(client, cfg.RateLimitRPS, cfg.RateLimitBurst), nil
}
