package task

import (
	"sync/atomic"
	"testing"
	"time"
)

func newTestScheduler(t *testing.T, poolCount, capacity int) *Scheduler {
	t.Helper()
	sched, err := NewScheduler(SchedulerConfig{
		PoolTypes: []PoolTypeConfig{
			{PoolConfig: PoolConfig{Capacity: capacity, LocalArenaSize: 4096, Usage: UsageWorker}, Count: poolCount},
		},
		GlobalArenaSize: 4096,
	})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	t.Cleanup(sched.Shutdown)
	return sched
}

// Diamond: A -> {B, C} -> D, then a fence on D. Expect counter == 4 and the
// fence signaled well within a second.
func TestSchedulerDiamond(t *testing.T) {
	sched := newTestScheduler(t, 2, 16)
	pool := sched.allPools[0]
	tid := pool.OwnerThreadID()

	counter := new(int32)
	inc := func(env *Env, args []byte) {
		atomic.AddInt32(counter, 1)
	}

	a, err := sched.SpawnTask(pool, tid, nil, inc, nil)
	if err != nil {
		t.Fatalf("spawn A: %v", err)
	}
	b, err := sched.SpawnTask(pool, tid, []ID{a}, inc, nil)
	if err != nil {
		t.Fatalf("spawn B: %v", err)
	}
	c, err := sched.SpawnTask(pool, tid, []ID{a}, inc, nil)
	if err != nil {
		t.Fatalf("spawn C: %v", err)
	}
	d, err := sched.SpawnTask(pool, tid, []ID{b, c}, inc, nil)
	if err != nil {
		t.Fatalf("spawn D: %v", err)
	}

	f := NewFence(sched, pool)
	if err := f.Arm([]ID{d}); err != nil {
		t.Fatalf("arm fence: %v", err)
	}
	if !f.Wait(1 * time.Second) {
		t.Fatal("fence did not signal within 1 second")
	}
	if got := atomic.LoadInt32(counter); got != 4 {
		t.Fatalf("counter = %d, want 4", got)
	}
}

// External task: X is created externally, Y depends on X, and only an
// explicit CompleteTask(X) call (standing in for an I/O NOOP callback)
// unblocks Y. Y must run exactly once, after that call.
func TestSchedulerExternalTaskBridge(t *testing.T) {
	sched := newTestScheduler(t, 1, 8)
	pool := sched.allPools[0]
	tid := pool.OwnerThreadID()

	ran := new(int32)
	y := func(env *Env, args []byte) {
		atomic.AddInt32(ran, 1)
	}

	x, err := sched.CreateExternalTask(pool, tid, nil, nil, nil)
	if err != nil {
		t.Fatalf("create external task: %v", err)
	}
	yID, err := sched.SpawnTask(pool, tid, []ID{x}, y, nil)
	if err != nil {
		t.Fatalf("spawn Y: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt32(ran) != 0 {
		t.Fatal("Y ran before X completed")
	}

	sched.CompleteTask(x)

	sched.WaitForTask(pool, yID)
	if got := atomic.LoadInt32(ran); got != 1 {
		t.Fatalf("Y ran %d times, want exactly 1", got)
	}
}

// Pool shutdown drain: spawn a large batch of tasks and confirm every one
// ran exactly once before Shutdown returns.
func TestSchedulerShutdownDrainsAllTasks(t *testing.T) {
	const n = 10000
	sched, err := NewScheduler(SchedulerConfig{
		PoolTypes: []PoolTypeConfig{
			// Capacity must comfortably exceed n: every spawned task holds
			// its slot until it completes, and this test spawns all of
			// them before waiting on any, so the pool must have room for
			// every one to be simultaneously live.
			{PoolConfig: PoolConfig{Capacity: 16384, LocalArenaSize: 256, Usage: UsageWorker}, Count: 4},
		},
		GlobalArenaSize: 4096,
	})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	ran := new(int32)
	body := func(env *Env, args []byte) {
		atomic.AddInt32(ran, 1)
	}

	pool := sched.allPools[0]
	tid := pool.OwnerThreadID()
	var last ID
	for i := 0; i < n; i++ {
		id, err := sched.SpawnTask(pool, tid, nil, body, nil)
		if err != nil {
			t.Fatalf("spawn %d: %v", i, err)
		}
		last = id
	}
	sched.WaitForTask(pool, last)

	deadline := time.After(5 * time.Second)
	for atomic.LoadInt32(ran) != n {
		select {
		case <-deadline:
			t.Fatalf("ran %d of %d tasks before timing out", atomic.LoadInt32(ran), n)
		default:
			time.Sleep(time.Millisecond)
		}
	}

	sched.Shutdown()
	if got := atomic.LoadInt32(ran); got != n {
		t.Fatalf("ran = %d, want %d", got, n)
	}
}
