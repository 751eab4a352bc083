// Package config assembles corert's root configuration: the memory
// substrate's pool shape, the task scheduler's pool-type descriptors, the
// I/O engine's worker and request-pool sizing, and observability settings.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/rotorcore/corert/internal/ioengine"
	"github.com/rotorcore/corert/internal/task"
)

// MemoryConfig sizes the host memory pool.
type MemoryConfig struct {
	Capacity          int `yaml:"capacity"`
	MinAllocSize      int `yaml:"min_alloc_size"`
	MinCommitIncrease int `yaml:"min_commit_increase"`
}

// TaskPoolTypeConfig is one pool-type descriptor for the scheduler.
type TaskPoolTypeConfig struct {
	Count          int    `yaml:"count"`
	Capacity       int    `yaml:"capacity"`
	LocalArenaSize int    `yaml:"local_arena_size"`
	Usage          string `yaml:"usage"` // comma-separated: define,execute,publish,worker
}

// SchedulerConfig sizes the task scheduler's pool fleet.
type SchedulerConfig struct {
	PoolTypes       []TaskPoolTypeConfig `yaml:"pool_types"`
	GlobalArenaSize int                  `yaml:"global_arena_size"`
}

// IOConfig sizes the asynchronous I/O engine.
type IOConfig struct {
	Workers         int `yaml:"workers"`
	RequestPoolSize int `yaml:"request_pool_size"`
	SectorSizeBytes int `yaml:"sector_size_bytes"`
}

// TracingConfig controls OpenTelemetry span emission.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// MetricsConfig controls Prometheus metric emission.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Addr      string `yaml:"addr"`
}

// LoggingConfig controls the operational logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text, json
}

// ObservabilityConfig groups the three observability surfaces: tracing,
// metrics, and logging.
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// Config is the root configuration for a corert process.
type Config struct {
	InstanceID    string              `yaml:"instance_id"`
	Memory        MemoryConfig        `yaml:"memory"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	IO            IOConfig            `yaml:"io"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// DefaultConfig returns a Config sized for a single-machine benchmark run.
func DefaultConfig() *Config {
	return &Config{
		InstanceID: uuid.NewString(),
		Memory: MemoryConfig{
			Capacity:          64,
			MinAllocSize:      64 * 1024,
			MinCommitIncrease: 64 * 1024,
		},
		Scheduler: SchedulerConfig{
			PoolTypes: []TaskPoolTypeConfig{
				{Count: 8, Capacity: 4096, LocalArenaSize: 1 << 20, Usage: "worker"},
				{Count: 1, Capacity: 1024, LocalArenaSize: 1 << 16, Usage: "define,execute"},
			},
			GlobalArenaSize: 16 << 20,
		},
		IO: IOConfig{
			Workers:         4,
			RequestPoolSize: 256,
			SectorSizeBytes: 4096,
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:     false,
				Endpoint:    "localhost:4318",
				ServiceName: "corert",
				SampleRate:  1.0,
			},
			Metrics: MetricsConfig{
				Enabled:   true,
				Namespace: "corert",
				Addr:      ":9464",
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "text",
			},
		},
	}
}

// ParseUsage translates a comma-separated usage string (e.g.
// "define,execute") into task.UsageFlags bits.
func ParseUsage(s string) (task.UsageFlags, error) {
	var flags task.UsageFlags
	for _, tok := range strings.Split(s, ",") {
		switch strings.TrimSpace(tok) {
		case "define":
			flags |= task.UsageDefine
		case "execute":
			flags |= task.UsageExecute
		case "publish":
			flags |= task.UsagePublish
		case "worker":
			flags |= task.UsageWorker
		case "":
			// tolerate a trailing comma or empty field
		default:
			return 0, fmt.Errorf("config: unknown task pool usage %q", tok)
		}
	}
	return flags, nil
}

// BuildSchedulerConfig translates the YAML scheduler section into the
// task.SchedulerConfig the scheduler constructor expects, binding the
// supplied I/O thread pool for tasks that need to submit requests.
func (c *Config) BuildSchedulerConfig(io *ioengine.ThreadPool) (task.SchedulerConfig, error) {
	poolTypes := make([]task.PoolTypeConfig, 0, len(c.Scheduler.PoolTypes))
	for i, pt := range c.Scheduler.PoolTypes {
		flags, err := ParseUsage(pt.Usage)
		if err != nil {
			return task.SchedulerConfig{}, fmt.Errorf("pool type %d: %w", i, err)
		}
		poolTypes = append(poolTypes, task.PoolTypeConfig{
			PoolConfig: task.PoolConfig{
				Capacity:       pt.Capacity,
				LocalArenaSize: pt.LocalArenaSize,
				Usage:          flags,
			},
			Count: pt.Count,
		})
	}
	return task.SchedulerConfig{
		PoolTypes:       poolTypes,
		GlobalArenaSize: c.Scheduler.GlobalArenaSize,
		IO:              io,
	}, nil
}

// LoadFile reads a YAML config file over the defaults, so unset fields keep
// their default values.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	return cfg, nil
}
