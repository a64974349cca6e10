package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/formats"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/scenario"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	only := flag.String("scenario", "", "run a single scenario: "+strings.Join(scenario.Names(), ", "))
	flag.Parse()

	os.Exit(run(*configPath, *only))
}

func run(configPath, only string) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	logger.Setup(cfg.Logging)

	var m *metrics.Metrics
	checker := health.NewChecker()
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
		shutdown := m.StartServer(cfg.Metrics.Port, checker)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				slog.Error("metrics server shutdown failed", "error", err)
			}
		}()
	}

	format, err := formats.New(cfg.Format)
	if err != nil {
		slog.Error("failed to create postings format", "error", err)
		return 1
	}

	runner, err := scenario.NewRunner(cfg.Harness, format, m)
	if err != nil {
		slog.Error("failed to create scenario runner", "error", err)
		return 1
	}
	runner.RegisterHealth(checker)
	defer func() {
		if err := runner.Close(); err != nil {
			slog.Error("failed to clean up", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting conformance run",
		"format", format.Name(),
		"seed", runner.Seed(),
		"multiplier", cfg.Harness.Multiplier,
		"nightly", cfg.Harness.Nightly,
	)

	if only != "" {
		err = runner.Run(ctx, only)
	} else {
		err = runner.RunAll(ctx)
	}
	if err != nil {
		slog.Error("conformance run failed", "seed", runner.Seed(), "error", err)
		return 1
	}
	slog.Info("conformance run passed", "format", format.Name())
	return 0
}
