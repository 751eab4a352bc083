package task

import (
	"testing"
	"time"
)

func TestFenceWaitReturnsFalseOnTimeout(t *testing.T) {
	sched := newTestScheduler(t, 1, 8)
	pool := sched.allPools[0]
	tid := pool.OwnerThreadID()

	// never-completing external dependency
	x, err := sched.CreateExternalTask(pool, tid, nil, nil, nil)
	if err != nil {
		t.Fatalf("create external task: %v", err)
	}

	f := NewFence(sched, pool)
	if err := f.Arm([]ID{x}); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if f.Wait(30 * time.Millisecond) {
		t.Fatal("fence should not have signaled: dependency never completed")
	}
	if f.Signaled() {
		t.Fatal("fence should remain non-signaled after a timed-out wait")
	}
}

func TestFenceResetAllowsReuseWithFreshDeps(t *testing.T) {
	sched := newTestScheduler(t, 1, 8)
	pool := sched.allPools[0]
	tid := pool.OwnerThreadID()

	f := NewFence(sched, pool)

	x1, _ := sched.CreateExternalTask(pool, tid, nil, nil, nil)
	if err := f.Arm([]ID{x1}); err != nil {
		t.Fatalf("arm 1: %v", err)
	}
	sched.CompleteTask(x1)
	if !f.Wait(1 * time.Second) {
		t.Fatal("fence did not signal for first arming")
	}

	x2, _ := sched.CreateExternalTask(pool, tid, nil, nil, nil)
	if err := f.Arm([]ID{x2}); err != nil {
		t.Fatalf("arm 2: %v", err)
	}
	if f.Signaled() {
		t.Fatal("re-armed fence must start non-signaled")
	}
	sched.CompleteTask(x2)
	if !f.Wait(1 * time.Second) {
		t.Fatal("fence did not signal for second arming")
	}
}
