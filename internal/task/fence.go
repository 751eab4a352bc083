package task

import (
	"sync"
	"time"
)

// WaitForever disables the timeout in Fence.Wait.
const WaitForever time.Duration = -1

// Fence lets an OS thread block on task-graph progress without spinning.
// It wraps a manual-reset event signaled by an external task's entry point.
type Fence struct {
	mu     sync.Mutex
	sched  *Scheduler
	pool   *Pool
	ready  chan struct{}
	taskID ID
}

// NewFence creates an unarmed fence bound to pool. Call Arm to attach it to
// a set of dependencies.
func NewFence(sched *Scheduler, pool *Pool) *Fence {
	return &Fence{sched: sched, pool: pool, ready: make(chan struct{})}
}

// Arm creates an external task depending on deps whose entry signals the
// fence and immediately completes itself. Arming an already-armed fence
// resets it first, so a Fence may be reused across waits with fresh
// dependencies each time.
func (f *Fence) Arm(deps []ID) error {
	f.mu.Lock()
	f.ready = make(chan struct{})
	f.mu.Unlock()
	// A guard dependency holds the signal entry back until taskID is
	// recorded; mu is not held meanwhile because the entry locks it.
	tid := f.pool.OwnerThreadID()
	guard, err := f.sched.CreateExternalTask(f.pool, tid, nil, nil, nil)
	if err != nil {
		return err
	}
	id, err := f.sched.CreateExternalTask(f.pool, tid, append(deps[:len(deps):len(deps)], guard), f.signal, nil)
	if err != nil {
		f.sched.CompleteTask(guard)
		return err
	}
	f.mu.Lock()
	f.taskID = id
	f.mu.Unlock()
	f.sched.CompleteTask(guard)
	return nil
}

func (f *Fence) signal(env *Env, _ []byte) {
	f.mu.Lock()
	ch := f.ready
	f.mu.Unlock()
	close(ch)
	env.Scheduler.CompleteTask(f.taskID)
}

// Wait blocks until the fence is signaled or timeout elapses (WaitForever
// to disable the deadline). It reports whether the fence was signaled.
func (f *Fence) Wait(timeout time.Duration) bool {
	f.mu.Lock()
	ch := f.ready
	f.mu.Unlock()

	if timeout == WaitForever {
		<-ch
		return true
	}
	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Signaled reports whether the fence has fired, without blocking.
func (f *Fence) Signaled() bool {
	f.mu.Lock()
	ch := f.ready
	f.mu.Unlock()
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
