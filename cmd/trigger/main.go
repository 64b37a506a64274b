// Package main is the entrypoint for the HTTP trigger.
//
// It serves POST /run for external schedulers (cron, Cloud Scheduler, a
// webhook) and GET /healthz for probes. Shutdown on SIGINT or SIGTERM waits
// for an in-flight run up to the request timeout.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"greetbot/internal/app"
	"greetbot/internal/config"
	"greetbot/internal/core"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.ResolveSecrets(config.NewSSMProvider(os.Getenv("AWS_REGION"))); err != nil {
		return fmt.Errorf("resolving secrets: %w", err)
	}
	cfg, err := config.LoadConfig(nil)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := app.NewLogger(cfg.LogLevel, nil)
	logger.Info("greetbot trigger starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		return fmt.Errorf("building pipeline: %w", err)
	}
	defer a.Close()

	srv, err := core.NewServer(a, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Token = cfg.Server.TriggerToken
	srv.RequestTimeout = cfg.Server.RequestTimeout
	srv.HealthProbes = a.Probes
	srv.MountRoutes()

	if cfg.Server.TriggerToken == "" {
		logger.Warn("TRIGGER_TOKEN is not set; POST /run is unauthenticated")
	}

	return srv.ListenAndServe(ctx, ":"+cfg.Server.Port, cfg.Server.RequestTimeout)
}
