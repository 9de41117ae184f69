// Package main is the entry point for poolwatch.
//
// Wiring: tail.Reader -> monitor.Engine -> notify.Dispatcher. The
// reader drives a single goroutine through the engine so records are
// processed strictly in arrival order; only delivery is asynchronous.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/backendim/poolwatch/internal/config"
	"github.com/backendim/poolwatch/internal/history"
	"github.com/backendim/poolwatch/internal/logging"
	"github.com/backendim/poolwatch/internal/metrics"
	"github.com/backendim/poolwatch/internal/monitor"
	"github.com/backendim/poolwatch/internal/notify"
	"github.com/backendim/poolwatch/internal/tail"
)

// loadEnvFiles loads .env from standard locations
func loadEnvFiles() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		_ = godotenv.Load()
		return
	}

	// Try loading from ~/.config/poolwatch/.env first
	configEnv := filepath.Join(homeDir, ".config", "poolwatch", ".env")
	if _, err := os.Stat(configEnv); err == nil {
		_ = godotenv.Load(configEnv)
	}

	// Also load local .env (can override)
	_ = godotenv.Load()
}

func main() {
	configPath := flag.String("config", "", "path to YAML config (optional; env-only without it)")
	flag.Parse()

	loadEnvFiles()

	cfg, err := buildConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "poolwatch: %v\n", err)
		os.Exit(1)
	}

	logging.Global(logging.Config{
		Level:  cfg.Monitoring.LogLevel,
		Format: cfg.Monitoring.LogFormat,
		Output: cfg.Monitoring.LogOutput,
	})

	if err := run(cfg); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("poolwatch_failed")
	}
}

// buildConfig loads the YAML config when a path is given, otherwise
// builds configuration from the environment alone.
func buildConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.FromEnv()
}

func run(cfg *config.Config) error {
	log.Info().
		Str("log_path", cfg.Watcher.Path).
		Str("primary_pool", cfg.Alerting.PrimaryPool).
		Float64("error_threshold", cfg.Alerting.ErrorThreshold).
		Int("window_size", cfg.Alerting.WindowSize).
		Dur("cooldown", cfg.Alerting.Cooldown).
		Bool("maintenance_mode", cfg.Alerting.MaintenanceMode).
		Bool("read_existing", cfg.Watcher.ReadExisting).
		Msg("poolwatch_starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsSrv *http.Server
	if cfg.Monitoring.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		if err := metrics.Register(reg); err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		metricsSrv = metrics.Serve(cfg.Monitoring.MetricsAddr, reg)
	}

	var journal *history.Store
	if cfg.History.Enabled {
		var err error
		journal, err = history.Open(cfg.History.DBPath)
		if err != nil {
			return err
		}
		defer journal.Close()
		log.Info().Str("db_path", cfg.History.DBPath).Msg("history_enabled")
	}

	dispatcher := notify.NewDispatcher(cfg.Notify, func(res notify.Result) {
		if journal == nil {
			return
		}
		jctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		entry := history.Entry{Alert: res.Alert, Delivered: res.Delivered, Attempts: res.Attempts}
		if err := journal.Record(jctx, entry); err != nil {
			log.Error().Err(err).Str("id", res.Alert.ID).Msg("history_write_failed")
		}
	})
	dispatcher.Start()

	engine := monitor.NewEngine(cfg.Alerting)
	reader := tail.New(cfg.Watcher)

	err := reader.Run(ctx, func(rec monitor.OutcomeRecord) {
		for _, alert := range engine.Observe(rec) {
			metrics.ObserveAlert(string(alert.Kind))
			dispatcher.Enqueue(alert)
		}
		metrics.ObserveRecord(engine.Rate())
	})

	// Shutdown order: the reader has already stopped feeding records;
	// drain queued alerts, then close the metrics listener.
	dispatcher.Stop()
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	stats := reader.Stats()
	log.Info().
		Int64("records", engine.Records()).
		Int64("lines_skipped", stats.Skipped).
		Int64("reopens", stats.Reopens).
		Int64("alerts_delivered", dispatcher.Delivered()).
		Int64("alerts_failed", dispatcher.Failed()).
		Msg("poolwatch_stopped")

	return err
}
