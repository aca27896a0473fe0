// Command ppgd runs a PPG measurement session from a YAML configuration,
// serving health endpoints and live samples while it runs.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/e7canasta/orion-ppg/internal/config"
	"github.com/e7canasta/orion-ppg/internal/health"
	"github.com/e7canasta/orion-ppg/internal/session"
)

const defaultConfigPath = "config/ppgd.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting ppgd",
		"config", *configPath,
		"debug", *debug,
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess, err := session.New(cfg, logger)
	if err != nil {
		slog.Error("failed to create session", "error", err)
		os.Exit(1)
	}

	var srv *health.Server
	if cfg.Health.Addr != "" {
		srv = health.New(health.Config{Addr: cfg.Health.Addr, Logger: logger}, sess, sess.Bus())
		if err := srv.Start(); err != nil {
			slog.Error("failed to start health server", "error", err)
			os.Exit(1)
		}
	}

	report, runErr := sess.Run(ctx)
	if report.Cancelled {
		slog.Info("received shutdown signal, measurement cancelled")
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("health server shutdown failed", "error", err)
		}
	}

	slog.Info("measurement summary",
		"session_id", report.SessionID,
		"samples", report.Samples,
		"frames", report.FramesCaptured,
		"quality_warnings", report.QualityWarnings,
		"failed", report.Failed,
		"discarded", report.Discarded,
		"sampling_rate_hz", report.Cadence.RateMean,
		"jitter_mean", report.Cadence.JitterMean,
		"duration", report.Duration,
	)

	if runErr != nil {
		slog.Error("session failed", "error", runErr)
		os.Exit(1)
	}
	slog.Info("ppgd stopped successfully")
}
