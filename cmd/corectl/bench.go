package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rotorcore/corert/internal/memory"
	"github.com/rotorcore/corert/internal/task"
)

func benchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark a corert subsystem",
	}
	cmd.AddCommand(benchMemoryCmd(), benchSchedulerCmd(), benchIOCmd())
	return cmd
}

func benchMemoryCmd() *cobra.Command {
	var iterations int
	var allocSize int

	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Benchmark buddy-allocator allocate/free throughput",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			shutdown := bootstrap(cfg)
			defer shutdown()

			const arenaSize = 64 << 20
			buddy, err := memory.NewBuddy(4096, arenaSize, 0)
			if err != nil {
				return err
			}

			start := time.Now()
			ranges := make([]memory.Range, 0, 1024)
			for i := 0; i < iterations; i++ {
				r, err := buddy.Allocate(allocSize, 0)
				if err != nil {
					return err
				}
				if r.Size == 0 {
					for _, old := range ranges {
						buddy.Free(old)
					}
					ranges = ranges[:0]
					continue
				}
				ranges = append(ranges, r)
			}
			for _, r := range ranges {
				buddy.Free(r)
			}
			elapsed := time.Since(start)

			fmt.Printf("buddy allocate/free: %d iterations in %s (%.0f ops/sec)\n",
				iterations, elapsed, float64(iterations)/elapsed.Seconds())
			return nil
		},
	}
	cmd.Flags().IntVar(&iterations, "iterations", 100000, "Number of allocate attempts")
	cmd.Flags().IntVar(&allocSize, "size", 256, "Bytes per allocation")
	return cmd
}

func benchSchedulerCmd() *cobra.Command {
	var taskCount int

	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Benchmark leaf-task throughput across the worker pool fleet",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			shutdown := bootstrap(cfg)
			defer shutdown()

			_, sched, io, err := buildRuntime(cfg)
			if err != nil {
				return err
			}
			defer sched.Shutdown()
			defer io.Shutdown()

			pool, err := sched.AllocateTaskPool(len(cfg.Scheduler.PoolTypes)-1, 1)
			if err != nil {
				return err
			}
			defer sched.ReturnTaskPool(pool)

			noop := func(env *task.Env, args []byte) {}

			start := time.Now()
			var last task.ID
			for i := 0; i < taskCount; i++ {
				id, err := sched.SpawnTask(pool, 1, nil, noop, nil)
				if err != nil {
					return err
				}
				last = id
			}
			sched.WaitForTask(pool, last)
			elapsed := time.Since(start)

			fmt.Printf("scheduler leaf tasks: %d tasks in %s (%.0f tasks/sec)\n",
				taskCount, elapsed, float64(taskCount)/elapsed.Seconds())
			return nil
		},
	}
	cmd.Flags().IntVar(&taskCount, "tasks", 100000, "Number of leaf tasks to spawn")
	return cmd
}

func benchIOCmd() *cobra.Command {
	var requestCount int

	cmd := &cobra.Command{
		Use:   "io",
		Short: "Benchmark the async I/O engine's NOOP request throughput",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			shutdown := bootstrap(cfg)
			defer shutdown()

			_, _, io, err := buildRuntime(cfg)
			if err != nil {
				return err
			}
			defer io.Shutdown()

			return runIOBenchmark(io, cfg.IO.RequestPoolSize, requestCount)
		},
	}
	cmd.Flags().IntVar(&requestCount, "requests", 50000, "Number of NOOP requests to submit")
	return cmd
}
