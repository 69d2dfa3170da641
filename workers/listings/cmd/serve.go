package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"findtrades/shared/handler"
	"findtrades/shared/handler/platforms"
	"findtrades/shared/observability"
	"findtrades/workers/listings/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve listing queries over HTTP",
	Long: "Serves POST /listings, the health endpoints and Prometheus /metrics. " +
		"When RABBITMQ_URL is set, cache invalidation messages are consumed as well.",
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfiguration()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, os.Stdout)
	if err != nil {
		return err
	}
	app.cache.Start(ctx)

	listings := handler.NewFactory(worker.NewListingsWorker(app.engine, app.db, app.obs), app.obs).
		WithHandlerConfig(cfg.Handler).
		WithRetryConfig(cfg.Retry).
		CreateHTTP()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", platforms.NewHTTPAdapter(listings))

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	closers := []io.Closer{}
	consumerDone := make(chan struct{})
	if cfg.RabbitMQ.Enabled() {
		invalidation := handler.NewFactory(worker.NewInvalidationWorker(app.cache, app.obs), app.obs).
			WithHandlerConfig(cfg.Handler).
			CreateRabbitMQ()
		consumer := platforms.NewRabbitMQAdapter(invalidation, &cfg.RabbitMQ, app.obs)
		closers = append(closers, consumer)

		go func() {
			defer close(consumerDone)
			if err := consumer.Start(ctx); err != nil {
				app.logger.Warn(ctx, "Cache invalidation consumer stopped", observability.Fields{
					"error": err.Error(),
				})
			}
		}()
	} else {
		close(consumerDone)
	}

	serverErr := make(chan error, 1)
	go func() {
		app.logger.Info(ctx, "HTTP server listening", observability.Fields{"addr": cfg.HTTP.Addr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err = <-serverErr:
		if err != nil {
			app.logger.Error(ctx, "HTTP server failed", err, nil)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		app.logger.Error(shutdownCtx, "HTTP server shutdown failed", shutdownErr, nil)
	}
	stop()
	<-consumerDone

	handler.GracefulShutdown(shutdownCtx, app.logger, app.metrics, app.startTime, append(closers, app)...)
	return err
}
