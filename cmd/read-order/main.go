// Package main is the Lambda that selects the orders and returns them under selectResult.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"redshift-orders/internal/config"
	"redshift-orders/internal/handler"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		// Serve the error so every request reports CONFIGURATION_ERROR.
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("invalid configuration", "error", err)
		lambda.Start(handler.FailedLambda(err))
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	for _, w := range cfg.Warnings {
		logger.Warn("config", "warning", w)
	}

	h, release, err := handler.NewFromConfig(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("handler setup failed", "error", err)
		lambda.Start(handler.FailedLambda(err))
		return
	}
	defer release() //nolint:errcheck

	lambda.Start(h.ReadLambda)
}
