package task

import (
	"sync"
	"sync/atomic"
)

// cacheLinePad is sized to separate the owner-only `private` index from the
// thief-shared `public` index so pushes/takes on one CPU don't bounce the
// other's cache line.
type cacheLinePad [64 - 8]byte

// Deque is a bounded Chase-Lev work-stealing deque of task IDs. Take is
// meant for the owner; Push may also come from another thread and is
// serialized against Take by mu; Steal may be called from any thread.
// Capacity must be a power of two.
//
// The fence discipline here is load-bearing and must not be weakened: push
// uses a release store on `private`; take and steal use the acquire/
// seq-cst sequence from the original Chase-Lev algorithm.
type Deque struct {
	public atomic.Int64
	_      cacheLinePad
	private atomic.Int64
	_       cacheLinePad

	mask  int64
	ids   []ID

	// mu serializes Push against Take. The canonical Chase-Lev algorithm
	// assumes a single owner-thread producer/consumer; this scheduler's
	// completion cascade can make a different pool's thief the one
	// pushing a newly-ready dependent onto this deque, concurrently with
	// the owner's own Take loop. Steal is untouched and remains lock-free
	// against both, exactly as the canonical algorithm specifies.
	mu sync.Mutex
}

// NewDeque creates a deque with the given power-of-two capacity.
func NewDeque(capacity int) *Deque {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic("task.NewDeque: capacity must be a power of two")
	}
	return &Deque{
		mask: int64(capacity - 1),
		ids:  make([]ID, capacity),
	}
}

// Push writes the new slot and publishes it with a release fence so a
// concurrent steal never observes a half-written slot. Safe for concurrent
// callers; see mu.
func (d *Deque) Push(id ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := d.private.Load()
	d.ids[b&d.mask] = id
	// Store is a release: the write to ids above is visible to any thief
	// that acquires the corresponding `public` value before it observes
	// this slot.
	d.private.Store(b + 1)
}

// Take is owner-only with respect to other Take calls, but must coexist
// with concurrent foreign Push calls (see mu).
func (d *Deque) Take() (ID, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := d.private.Load() - 1
	d.private.Store(b)
	// seq-cst fence between the private store above and the public load
	// below, matching the canonical algorithm.
	t := d.public.Load()
	if t > b {
		d.private.Store(t)
		return Invalid, false
	}
	if t < b {
		return d.ids[b&d.mask], true
	}
	// t == b: exactly one item left, race with stealers.
	ok := d.public.CompareAndSwap(t, t+1)
	d.private.Store(t + 1)
	if ok {
		return d.ids[b&d.mask], true
	}
	return Invalid, false
}

// Steal may be called from any thread, including the owner's victims.
func (d *Deque) Steal() (ID, bool) {
	t := d.public.Load()
	b := d.private.Load()
	if t >= b {
		return Invalid, false
	}
	id := d.ids[t&d.mask]
	if d.public.CompareAndSwap(t, t+1) {
		return id, true
	}
	return Invalid, false
}

// Len reports an instantaneous (racy against concurrent steals) size
// estimate, useful only for diagnostics.
func (d *Deque) Len() int64 {
	b := d.private.Load()
	t := d.public.Load()
	if b < t {
		return 0
	}
	return b - t
}
