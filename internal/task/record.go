package task

import "sync/atomic"

// MaxArgBytes is the size of a task's inline argument payload.
const MaxArgBytes = 48

// MaxPermits is the hard limit on how many tasks may be waiting on a
// single task's completion. It reflects cache-line alignment of the task
// record; exceeding it is a programmer error (PERMIT_LIMIT), not a
// transient runtime condition.
const MaxPermits = 14

// Func is a task body. It receives the executing thread's environment and
// a view of the task's inline argument bytes.
type Func func(env *Env, args []byte)

// Record is a single slot's task state. wait_count starts at -|deps| and
// becomes ready-to-run when it transitions from -1 to 0. work_count starts
// at 2 (definition-in-progress, plus the task body) and the task completes
// when it reaches 0.
type Record struct {
	waitCount   atomic.Int32
	workCount   atomic.Int32
	permitCount atomic.Int32

	parentID ID
	main     Func
	argLen   uint8
	args     [MaxArgBytes]byte
	permits  [MaxPermits]ID
}

func (r *Record) reset(parent ID, main Func, args []byte, depCount int) {
	r.parentID = parent
	r.main = main
	r.argLen = uint8(len(args))
	copy(r.args[:], args)
	r.permits = [MaxPermits]ID{}
	r.workCount.Store(2)
	r.permitCount.Store(0)
	r.waitCount.Store(int32(-depCount))
}

// Args returns the task's inline argument bytes.
func (r *Record) Args() []byte { return r.args[:r.argLen] }

// ParentID returns the task's parent, or Invalid if it has none.
func (r *Record) ParentID() ID { return r.parentID }

// appendPermit CAS-appends id to r's permit list. It returns ok=true if the
// append succeeded, or sealed=true if r had already completed (permits
// exchanged to -1), in which case the caller must increment id's
// wait_count directly instead.
func (r *Record) appendPermit(id ID) (ok, sealed bool) {
	for {
		cur := r.permitCount.Load()
		if cur == -1 {
			return false, true
		}
		if int(cur) >= MaxPermits {
			return false, false
		}
		r.permits[cur] = id
		if r.permitCount.CompareAndSwap(cur, cur+1) {
			return true, false
		}
	}
}

// sealPermits exchanges permit_count for -1, returning the permits queued
// up to that point. Safe to call exactly once per task completion.
func (r *Record) sealPermits() []ID {
	n := r.permitCount.Swap(-1)
	if n <= 0 {
		return nil
	}
	return r.permits[:n]
}
