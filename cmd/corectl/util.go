package main

import (
	"context"

	"github.com/rotorcore/corert/internal/config"
	"github.com/rotorcore/corert/internal/ioengine"
	"github.com/rotorcore/corert/internal/logging"
	"github.com/rotorcore/corert/internal/memory"
	"github.com/rotorcore/corert/internal/metrics"
	"github.com/rotorcore/corert/internal/task"
	"github.com/rotorcore/corert/internal/telemetry"
)

func loadConfig() (*config.Config, error) {
	if configFile == "" {
		return config.DefaultConfig(), nil
	}
	return config.LoadFile(configFile)
}

// bootstrap wires logging, metrics, and tracing from cfg.Observability and
// returns a shutdown func the caller should defer.
func bootstrap(cfg *config.Config) func() {
	logging.SetLevelFromString(cfg.Observability.Logging.Level)
	logging.SetJSON(cfg.Observability.Logging.Format == "json")

	if cfg.Observability.Metrics.Enabled {
		metrics.Init(cfg.Observability.Metrics.Namespace)
	}

	if err := telemetry.Init(context.Background(), telemetry.Config{
		Enabled:     cfg.Observability.Tracing.Enabled,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		ServiceName: cfg.Observability.Tracing.ServiceName,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
	}); err != nil {
		logging.Op().Warn("telemetry init failed", "error", err)
	}

	return func() {
		_ = telemetry.Shutdown(context.Background())
	}
}

// buildRuntime assembles a memory pool, task scheduler, and I/O thread pool
// from cfg, wired the way corectl's subcommands need them.
func buildRuntime(cfg *config.Config) (*memory.Pool, *task.Scheduler, *ioengine.ThreadPool, error) {
	memPool := memory.NewPool(cfg.Memory.Capacity, cfg.Memory.MinAllocSize, cfg.Memory.MinCommitIncrease, "corectl")

	io := ioengine.NewThreadPool(cfg.IO.Workers)
	if cfg.IO.SectorSizeBytes > 0 {
		io.SetDefaultSectorSize(cfg.IO.SectorSizeBytes)
	}

	schedCfg, err := cfg.BuildSchedulerConfig(io)
	if err != nil {
		return nil, nil, nil, err
	}
	sched, err := task.NewScheduler(schedCfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return memPool, sched, io, nil
}
