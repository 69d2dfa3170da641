package main

import (
	"context"
	"os"

	"findtrades/shared/handler"
	"findtrades/shared/handler/platforms"
	"findtrades/workers/listings/internal/worker"

	"github.com/spf13/cobra"
)

var lambdaCmd = &cobra.Command{
	Use:   "lambda",
	Short: "Serve listing queries as an AWS Lambda function",
	Long:  "Handles API Gateway proxy events and SQS batches carrying listing queries.",
	Args:  cobra.NoArgs,
	RunE:  runLambda,
}

func runLambda(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfiguration()
	if err != nil {
		return err
	}

	// the runtime freezes the process between invocations, so the sweeper
	// lives as long as the sandbox
	ctx := context.Background()
	app, err := newApplication(ctx, cfg, os.Stdout)
	if err != nil {
		return err
	}
	app.cache.Start(ctx)

	h := handler.NewFactory(worker.NewListingsWorker(app.engine, app.db, app.obs), app.obs).
		WithHandlerConfig(cfg.Handler).
		WithRetryConfig(cfg.Retry).
		CreateLambda()

	lambdaCfg := platforms.DefaultLambdaConfig()
	if cfg.Lambda.Timeout > 0 {
		lambdaCfg.ProcessingTimeout = cfg.Lambda.Timeout
	}
	platforms.NewLambdaAdapter(h, lambdaCfg).Start()
	return nil
}
