package main

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/rotorcore/corert/internal/task"
)

func runScenarioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run-scenario <name>",
		Short: "Replay a canonical task-graph scenario (diamond, external, chain)",
		Args:  cobra.ExactArgs(1),
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

			poolTypeID := len(cfg.Scheduler.PoolTypes) - 1
			pool, err := sched.AllocateTaskPool(poolTypeID, 1)
			if err != nil {
				return err
			}
			defer sched.ReturnTaskPool(pool)

			switch args[0] {
			case "diamond":
				return runDiamondScenario(sched, pool)
			case "external":
				return runExternalScenario(sched, pool)
			case "chain":
				return runChainScenario(sched, pool)
			default:
				return fmt.Errorf("unknown scenario %q (want diamond, external, or chain)", args[0])
			}
		},
	}
	return cmd
}

// runDiamondScenario spawns A, then B and C depending on A, then D
// depending on both, arms a fence against D, runs the graph on the calling
// goroutine with WaitForTask, and then checks that the fence signaled. The
// calling goroutine runs the tasks itself because a pool with execute usage
// does not publish its ready tasks to the workers.
func runDiamondScenario(sched *task.Scheduler, pool *task.Pool) error {
	var order atomic.Int32
	mark := func(label string) task.Func {
		return func(env *task.Env, args []byte) {
			order.Add(1)
			fmt.Printf("  %s ran (step %d)\n", label, order.Load())
		}
	}

	a, err := sched.SpawnTask(pool, 1, nil, mark("A"), nil)
	if err != nil {
		return err
	}
	b, err := sched.SpawnTask(pool, 1, []task.ID{a}, mark("B"), nil)
	if err != nil {
		return err
	}
	c, err := sched.SpawnTask(pool, 1, []task.ID{a}, mark("C"), nil)
	if err != nil {
		return err
	}
	d, err := sched.SpawnTask(pool, 1, []task.ID{b, c}, mark("D"), nil)
	if err != nil {
		return err
	}

	fence := task.NewFence(sched, pool)
	if err := fence.Arm([]task.ID{d}); err != nil {
		return err
	}
	sched.WaitForTask(pool, d)
	if !fence.Wait(5 * time.Second) {
		return fmt.Errorf("diamond scenario: fence did not signal within 5s")
	}
	fmt.Println("diamond scenario complete")
	return nil
}

// runExternalScenario creates an external task that a dependent waits on,
// then completes it explicitly from the driving goroutine.
func runExternalScenario(sched *task.Scheduler, pool *task.Pool) error {
	ran := make(chan struct{}, 1)
	x, err := sched.CreateExternalTask(pool, 1, nil, nil, nil)
	if err != nil {
		return err
	}
	y, err := sched.SpawnTask(pool, 1, []task.ID{x}, func(env *task.Env, args []byte) {
		ran <- struct{}{}
	}, nil)
	if err != nil {
		return err
	}

	select {
	case <-ran:
		return fmt.Errorf("external scenario: dependent ran before the external task was completed")
	case <-time.After(50 * time.Millisecond):
	}

	sched.CompleteTask(x)
	sched.WaitForTask(pool, y)

	select {
	case <-ran:
		fmt.Println("external scenario complete")
		return nil
	default:
		return fmt.Errorf("external scenario: dependent never ran")
	}
}

// runChainScenario spawns n tasks, each depending on the previous, and
// waits on the last.
func runChainScenario(sched *task.Scheduler, pool *task.Pool) error {
	const n = 100
	var prev task.ID
	for i := 0; i < n; i++ {
		var deps []task.ID
		if prev.Valid() {
			deps = []task.ID{prev}
		}
		id, err := sched.SpawnTask(pool, 1, deps, func(env *task.Env, args []byte) {}, nil)
		if err != nil {
			return err
		}
		prev = id
	}
	sched.WaitForTask(pool, prev)
	fmt.Printf("chain scenario complete: %d tasks\n", n)
	return nil
}
