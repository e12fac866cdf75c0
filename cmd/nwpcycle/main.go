/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/cw3e/nwpcycle/internal/config"
	"github.com/cw3e/nwpcycle/internal/db"
	"github.com/cw3e/nwpcycle/internal/ledger"
	"github.com/cw3e/nwpcycle/internal/logging"
	"github.com/cw3e/nwpcycle/internal/telemetry"
	"github.com/cw3e/nwpcycle/internal/version"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

// Global flags
var (
	envName     string
	jobPath     string
	logFile     string
	metricsBind string
)

var rootCmd = &cobra.Command{
	Use:   "nwpcycle",
	Short: "Forecast cycle downloads and workflow driving for regional NWP experiments",
	Long: `nwpcycle enumerates forecast cycles and drives the retrieval of GEFS, ERA5 and
TIGGE input data, the Rocoto workflow manager, and the verification and spin-up
diagnostics produced by the ensemble runs.

Credentials and paths come from NWPCYCLE_* environment variables or a .env file;
per-run windows come from flags or a YAML job file (--job).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envName, "env", "", "Environment name, development enables debug logs (overrides NWPCYCLE_ENV)")
	rootCmd.PersistentFlags().StringVar(&jobPath, "job", "", "YAML job file with the cycle window and per-source settings")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this file")
	rootCmd.PersistentFlags().StringVar(&metricsBind, "metrics-bind", "", "Serve /metrics on this address while the command runs (overrides NWPCYCLE_METRICS_BIND)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if envName != "" {
		cfg.Environment = envName
	}

	var extra io.Writer
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		extra = f
	}
	logger, err = logging.WithLevel(logging.SetupWithWriter(cfg.Environment, extra), cfg.LogLevel)
	if err != nil {
		return err
	}

	for _, w := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(w)
	}
	if metricsBind != "" {
		cfg.MetricsBind = metricsBind
	}
	return nil
}

// startRuntime loads configuration and brings up tracing and the metrics
// listener. The returned context is cancelled on SIGINT or SIGTERM; stop
// releases everything.
func startRuntime() (ctx context.Context, stop func(), err error) {
	if err := loadConfig(); err != nil {
		return nil, nil, err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	tracerProvider, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName:    "nwpcycle",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("initialize tracer: %w", err)
	}

	var metrics *telemetry.MetricsServer
	if cfg.MetricsBind != "" {
		metrics = telemetry.StartMetricsServer(cfg.MetricsBind, logger)
	}

	stop = func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if metrics != nil {
			if err := metrics.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("metrics server shutdown failed")
			}
		}
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
		cancel()
	}
	return ctx, stop, nil
}

// loadJob reads --job, or returns the defaults when it is unset.
func loadJob() (*config.Job, error) {
	if jobPath == "" {
		job := config.DefaultJob()
		return &job, nil
	}
	return config.LoadJob(jobPath)
}

// openLedger connects to and migrates the download ledger database.
func openLedger() (*gorm.DB, *ledger.Store, error) {
	database, err := db.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect ledger: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		_ = db.Close(database)
		return nil, nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return database, ledger.New(database, logger), nil
}
