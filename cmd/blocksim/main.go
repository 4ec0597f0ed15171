package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/eigerco/blocksim/internal/anomaly"
	"github.com/eigerco/blocksim/internal/config"
	"github.com/eigerco/blocksim/internal/metrics"
	"github.com/eigerco/blocksim/internal/pipeline"
	"github.com/eigerco/blocksim/internal/server"
	"github.com/eigerco/blocksim/internal/store"
	"github.com/eigerco/blocksim/internal/validation"
	"github.com/eigerco/blocksim/pkg/db/pebble"
	"github.com/eigerco/blocksim/pkg/log"
)

// main starts the validation service and its HTTP adapter.
// go run ./cmd/blocksim -config blocksim.yaml
func main() {
	configPath := flag.String("config", "", "Path to an optional YAML configuration file")
	logLevel := flag.String("log-level", "", "Log level, overrides the configuration")
	logJSON := flag.Bool("log-json", false, "Log as JSON instead of console output")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *logLevel, *logJSON); err != nil {
		fmt.Fprintf(os.Stderr, "blocksim: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, logLevel string, logJSON bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logJSON {
		cfg.Log.JSON = true
	}

	level, err := log.ParseLogLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	logType := log.ConsoleLogger
	if cfg.Log.JSON {
		logType = log.JSONLogger
	}
	log.Init(log.Options{LogLevel: level, Type: logType})

	kv, err := pebble.NewKVStore()
	if err != nil {
		return fmt.Errorf("open block store: %w", err)
	}
	chain := store.NewChain(kv)
	defer func() {
		if err := chain.Close(); err != nil {
			log.Root.Error().Err(err).Msg("failed to close block store")
		}
	}()

	svc := validation.NewService(chain,
		validation.WithLimits(cfg.Limits()),
		validation.WithScorer(anomaly.NewHeuristic(cfg.Validation.MagnitudeThreshold)),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := metrics.NewRecorder(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	submitter := pipeline.NewSubmitter(svc, cfg.Submission(), recorder)
	deployer := pipeline.NewDeployer(svc, cfg.Deployer.Key, recorder)

	srv := server.New(server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
	}, svc, submitter, deployer, reg)

	log.Root.Info().
		Float64("reward", cfg.Economics.RewardAmount).
		Float64("slash_percentage", cfg.Economics.SlashPercentage).
		Float64("flag_threshold", cfg.Economics.FlagThreshold).
		Int("max_devices_per_wallet", cfg.Validation.MaxDevicesPerWallet).
		Dur("staleness_bound", cfg.Validation.StalenessBound).
		Msg("blocksim starting")
	return srv.Start(ctx)
}
