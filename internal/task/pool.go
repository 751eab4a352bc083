package task

import (
	"sync/atomic"

	"github.com/rotorcore/corert/internal/corerr"
	"github.com/rotorcore/corert/internal/memory"
)

// UsageFlags describes what a task pool may be used for.
type UsageFlags uint8

const (
	UsageDefine UsageFlags = 1 << iota
	UsageExecute
	UsagePublish
	UsageWorker
)

func (f UsageFlags) has(flag UsageFlags) bool { return f&flag != 0 }

const (
	slotFree uint32 = iota
	slotUsed
)

// Pool is a fixed-capacity slab of task records owned by exactly one
// thread. Per-slot atomic status bytes ensure only the owner transitions a
// slot FREE->USED; whichever thread completes a task last transitions it
// back to FREE with a release store.
type Pool struct {
	index     int
	typeID    int
	ownerTID  int64
	usage     UsageFlags
	capacity  int
	mask      int

	status  []atomic.Uint32
	records []Record

	nextIndex   int // rotating slot-allocation hint; owner-thread only
	nextWorker  atomic.Int32

	localArena *memory.Arena
	queue      *Deque

	lastError atomic.Int32 // corerr.Kind of the most recent definition failure
	scheduler *Scheduler
}

// PoolConfig configures a single task pool at scheduler construction time.
type PoolConfig struct {
	Capacity       int // must be a power of two
	LocalArenaSize int
	Usage          UsageFlags
}

func newPool(index, typeID int, cfg PoolConfig, sched *Scheduler) *Pool {
	if cfg.Capacity <= 0 || cfg.Capacity&(cfg.Capacity-1) != 0 {
		panic("task.newPool: capacity must be a power of two")
	}
	p := &Pool{
		index:      index,
		typeID:     typeID,
		capacity:   cfg.Capacity,
		mask:       cfg.Capacity - 1,
		usage:      cfg.Usage,
		status:     make([]atomic.Uint32, cfg.Capacity),
		records:    make([]Record, cfg.Capacity),
		localArena: memory.NewArena(make([]byte, maxInt(cfg.LocalArenaSize, 1))),
		queue:      NewDeque(nextPow2(cfg.Capacity)),
		scheduler:  sched,
	}
	return p
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// BindOwner records the calling goroutine's logical thread identity. In the
// absence of OS thread IDs, callers supply a stable integer (e.g. a worker
// index) identifying "the thread that owns this pool".
func (p *Pool) BindOwner(threadID int64) {
	p.ownerTID = threadID
}

// OwnerThreadID returns the thread ID bound via BindOwner.
func (p *Pool) OwnerThreadID() int64 { return p.ownerTID }

// Index returns this pool's index within the scheduler.
func (p *Pool) Index() int { return p.index }

// LastError returns the corerr.Kind of the most recent definition failure.
// It is not reset on every successful path, and its zero value coincides
// with a real Kind, so callers must not treat any particular value as
// proof of "no recent failure".
func (p *Pool) LastError() corerr.Kind {
	return corerr.Kind(p.lastError.Load())
}

func (p *Pool) setLastError(k corerr.Kind) {
	p.lastError.Store(int32(k))
}

// allocSlot performs a linear scan from nextIndex, modulo capacity, for the
// first FREE slot. It is the pool owner's responsibility to call this.
func (p *Pool) allocSlot() (int, bool) {
	for i := 0; i < p.capacity; i++ {
		idx := (p.nextIndex + i) % p.capacity
		if p.status[idx].CompareAndSwap(slotFree, slotUsed) {
			p.nextIndex = (idx + 1) % p.capacity
			return idx, true
		}
	}
	return 0, false
}

func (p *Pool) releaseSlot(idx int) {
	p.status[idx].Store(slotFree)
}

func (p *Pool) record(idx int) *Record { return &p.records[idx] }

// LocalArena returns the pool's thread-local arena, reset before each task
// the pool's worker executes.
func (p *Pool) LocalArena() *memory.Arena { return p.localArena }

// Queue returns the pool's Chase-Lev work queue.
func (p *Pool) Queue() *Deque { return p.queue }
