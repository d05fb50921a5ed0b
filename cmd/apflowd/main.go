// Command apflowd runs the invoice workflow daemon: the worker pool, the
// stale-claim reaper, and the HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"apflow/internal/api"
	"apflow/internal/coding"
	"apflow/internal/config"
	"apflow/internal/daemon"
	"apflow/internal/explain"
	"apflow/internal/logging"
	"apflow/internal/pomatch"
	"apflow/internal/risk"
	"apflow/internal/services/llm"
	"apflow/internal/store"
	"apflow/internal/validation"
	"apflow/internal/workflow"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "apflowd:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "configuration file path")
	flag.Parse()

	cfg, resolvedPath, found, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, closeLogs, err := logging.New(logging.Options{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		FilePath: cfg.LogFilePath(),
	})
	if err != nil {
		return err
	}
	defer func() { _ = closeLogs() }()

	if found {
		logger.Info("configuration loaded", logging.String("path", resolvedPath))
	} else {
		logger.Warn("configuration file not found, using defaults",
			logging.String("path", resolvedPath))
	}

	st, err := store.Open(cfg)
	if err != nil {
		return err
	}

	var explainer workflow.Explainer
	if cfg.Explain.Enabled {
		client := llm.NewClient(llm.Config{
			APIKey:         cfg.LLM.APIKey,
			BaseURL:        cfg.LLM.BaseURL,
			Model:          cfg.LLM.Model,
			TimeoutSeconds: cfg.LLM.TimeoutSeconds,
		})
		explainer = explain.New(client, explain.NewMemoryRetriever(), cfg, logger)
	}

	escalator := workflow.NewEscalator(st, explainer, logger)
	driver := workflow.NewDriver(st, escalator, logger,
		validation.New(st, cfg),
		pomatch.New(st, cfg),
		coding.New(st, cfg),
		risk.New(st, cfg),
	)
	manager := workflow.NewManager(cfg, st, driver, logger)
	service := api.NewService(st, logger)

	d, err := daemon.New(cfg, st, logger, manager, service)
	if err != nil {
		_ = st.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.Start(ctx); err != nil {
		_ = d.Close()
		return err
	}

	<-ctx.Done()
	logger.Info("shutdown requested",
		logging.Duration("grace", time.Duration(cfg.Workflow.ShutdownGraceSeconds)*time.Second))
	return d.Close()
}
