package handler

import (
	"context"
	"log/slog"

	"redshift-orders/internal/config"
	"redshift-orders/internal/dataapi"
	"redshift-orders/internal/domain"
	"redshift-orders/internal/localengine"
	"redshift-orders/internal/orders"
)

// Sessions builds the SessionFactory for cfg. In local mode one SQLite engine
// is shared by every invocation so data survives between them; release closes
// it. Against the Data API each invocation gets its own client.
func Sessions(ctx context.Context, cfg *config.Config) (open SessionFactory, release func() error, err error) {
	if cfg.IsLocal() {
		engine, err := localengine.Open(ctx, localengine.Options{Path: cfg.LocalDBPath, PendingPolls: 1})
		if err != nil {
			return nil, nil, err
		}
		open = func(context.Context) (domain.StatementClient, error) {
			return throttled(cfg, sharedClient{engine}), nil
		}
		return open, engine.Close, nil
	}

	open = func(ctx context.Context) (domain.StatementClient, error) {
		client, err := dataapi.NewFromConfig(ctx, cfg.Target, dataapi.Options{
			Region:        cfg.Region,
			EndpointURL:   cfg.Endpoint,
			StatementName: "redshift-orders",
		})
		if err != nil {
			return nil, err
		}
		return throttled(cfg, client), nil
	}
	return open, func() error { return nil }, nil
}

func throttled(cfg *config.Config, c domain.StatementClient) domain.StatementClient {
	return dataapi.Throttled(c, cfg.RateLimitRPS, cfg.RateLimitBurst)
}

// sharedClient leaves the shared engine open when an invocation ends.
type sharedClient struct {
	*localengine.Client
}

func (sharedClient) Close() error { return nil }

// NewFromConfig wires the order service, sessions and poll policy from cfg.
// The returned release func must be called on shutdown.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Handler, func() error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	svc, err := orders.New(cfg.Orders(), logger)
	if err != nil {
		return nil, nil, err
	}
	open, release, err := Sessions(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	h, err := New(svc, open, Options{
		Policy:           cfg.Poll.Policy(),
		TransportRetries: cfg.Poll.TransportRetries,
		Logger:           logger,
	})
	if err != nil {
		_ = release()
		return nil, nil, err
	}
	return h, release, nil
}
