package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	urfave "github.com/urfave/cli/v2"

	"github.com/odyssey-erp/odyssey-import/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-import/internal/app"
	"github.com/odyssey-erp/odyssey-import/internal/platform/db"
	"github.com/odyssey-erp/odyssey-import/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := &urfave.App{
		Name:  "odyssey",
		Usage: "Import shipment reconciliation service",
		Commands: []*urfave.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API (default)",
				Action: func(c *urfave.Context) error { return serve(c.Context, stop) },
			},
			{
				Name:   "migrate",
				Usage:  "Apply the database schema",
				Action: func(c *urfave.Context) error { return migrate(c.Context) },
			},
			cli.JobsCommand(nil),
		},
		Action: func(c *urfave.Context) error { return serve(c.Context, stop) },
	}
	if err := root.RunContext(ctx, os.Args); err != nil {
		slog.Default().Error("odyssey", slog.Any("error", err))
		os.Exit(1)
	}
}

func migrate(ctx context.Context) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 1})
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		return err
	}
	logger.Info("schema applied")
	return nil
}

func serve(ctx context.Context, stop context.CancelFunc) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer container.Close()

	inspector := asynq.NewInspector(jobs.RedisOpt(cfg.RedisAddr))
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           app.RouterFromContainer(container, inspector),
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: cfg.AppReadTimeout,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	return nil
}
