package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rotorcore/corert/internal/task"
)

func TestDefaultConfigBuildsSchedulerConfig(t *testing.T) {
	cfg := DefaultConfig()
	sc, err := cfg.BuildSchedulerConfig(nil)
	if err != nil {
		t.Fatalf("build scheduler config: %v", err)
	}
	if len(sc.PoolTypes) != len(cfg.Scheduler.PoolTypes) {
		t.Fatalf("pool types = %d, want %d", len(sc.PoolTypes), len(cfg.Scheduler.PoolTypes))
	}

	var workerTypes int
	for _, pt := range sc.PoolTypes {
		if pt.Usage&task.UsageWorker != 0 {
			workerTypes++
		}
	}
	if workerTypes != 1 {
		t.Fatalf("worker pool types = %d, want exactly 1", workerTypes)
	}
}

func TestParseUsageRejectsUnknownToken(t *testing.T) {
	if _, err := ParseUsage("define,bogus"); err == nil {
		t.Fatal("expected an error for an unknown usage token")
	}
}

func TestParseUsageCombinesFlags(t *testing.T) {
	flags, err := ParseUsage("define,execute")
	if err != nil {
		t.Fatalf("parse usage: %v", err)
	}
	if flags&task.UsageDefine == 0 || flags&task.UsageExecute == 0 {
		t.Fatalf("flags = %v, want define|execute", flags)
	}
	if flags&task.UsageWorker != 0 {
		t.Fatal("flags should not carry worker")
	}
}

func TestLoadFileOverridesOnlySetFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corert.yaml")
	body := "io:\n  workers: 16\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if cfg.IO.Workers != 16 {
		t.Fatalf("io.workers = %d, want 16", cfg.IO.Workers)
	}
	if cfg.Memory.Capacity != DefaultConfig().Memory.Capacity {
		t.Fatalf("memory.capacity = %d, want untouched default", cfg.Memory.Capacity)
	}
	if cfg.InstanceID == "" {
		t.Fatal("instance id should be generated when absent from the file")
	}
}
