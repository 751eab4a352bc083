// Package memory implements the host memory substrate: a pool of
// page-granular address-space reservations, a bump-pointer arena
// sub-allocator, and a power-of-two buddy sub-allocator. All three are
// usable to back the task scheduler and I/O engine without dynamic
// allocation on their hot paths.
//
// # Concurrency model
//
// The pool's free list is not thread-safe by design; callers are expected
// to own a pool. Arenas
// and buddy allocators are likewise non-thread-safe: each task pool resets
// its own local arena before running a task, and the scheduler's global
// arena is written once at startup and read lock-free thereafter.
package memory

import (
	"fmt"

	"github.com/rotorcore/corert/internal/corerr"
	"github.com/rotorcore/corert/internal/metrics"
	"golang.org/x/sys/unix"
)

// AccessFlags describes the protection requested for a reservation.
type AccessFlags struct {
	Read      bool
	Write     bool
	Execute   bool
	GuardPage bool // append a trailing guarded page past the reserved size
}

func (f AccessFlags) prot() int {
	prot := unix.PROT_NONE
	if f.Read {
		prot |= unix.PROT_READ
	}
	if f.Write {
		prot |= unix.PROT_WRITE
	}
	if f.Execute {
		prot |= unix.PROT_EXEC
	}
	return prot
}

// Reservation is a contiguous range of reserved process address space with
// a committed prefix.
//
// Invariants: BytesCommitted <= BytesReserved; the base address is
// page-aligned; if Flags.GuardPage was requested, the page immediately
// past BytesReserved is committed with no-access protection.
type Reservation struct {
	mem             []byte // mmap'd region, len == reserved size (+1 guard page if requested)
	BytesReserved   int
	BytesCommitted  int
	Flags           AccessFlags
	pool            *Pool // back-pointer, used to detect double/foreign release
	slot            int32
	hasGuard        bool
	committedBuffer int // bytes currently mprotect'd for access, excluding the guard page
}

// Base returns the committed prefix of the reservation as a byte slice.
// It is valid only while the reservation is held by the caller.
func (r *Reservation) Base() []byte {
	if r == nil {
		return nil
	}
	return r.mem[:r.BytesCommitted]
}

// Pool is a fixed array of reservation records with a singly-linked free
// list. Every record is either on the free list or owned by exactly one
// caller.
type Pool struct {
	name              string
	pageSize          int
	allocGranularity  int
	minAllocSize      int
	minCommitIncrease int
	capacity          int

	slots    []Reservation
	freeHead int32 // index into slots, -1 when empty
	nextFree []int32
}

const noFreeSlot = -1

// NewPool creates a host memory pool with a fixed capacity of reservation
// slots. The page size always comes from the OS; minAllocSize and
// minCommitIncrease default to one page when <= 0.
func NewPool(capacity, minAllocSize, minCommitIncrease int, name string) *Pool {
	pageSize := unix.Getpagesize()
	if minAllocSize <= 0 {
		minAllocSize = pageSize
	}
	if minCommitIncrease <= 0 {
		minCommitIncrease = pageSize
	}

	p := &Pool{
		name:              name,
		pageSize:          pageSize,
		allocGranularity:  pageSize,
		minAllocSize:      roundUp(minAllocSize, pageSize),
		minCommitIncrease: roundUp(minCommitIncrease, pageSize),
		capacity:          capacity,
		slots:             make([]Reservation, capacity),
		nextFree:          make([]int32, capacity),
	}
	p.Reset()
	return p
}

// Reset releases no live reservations (callers must have released them
// already) and rebuilds the free list covering the whole capacity.
func (p *Pool) Reset() {
	for i := 0; i < p.capacity; i++ {
		if i == p.capacity-1 {
			p.nextFree[i] = noFreeSlot
		} else {
			p.nextFree[i] = int32(i + 1)
		}
	}
	if p.capacity == 0 {
		p.freeHead = noFreeSlot
	} else {
		p.freeHead = 0
	}
}

// PageSize returns the OS page size this pool rounds requests to.
func (p *Pool) PageSize() int { return p.pageSize }

// Name returns the pool's diagnostic name.
func (p *Pool) Name() string { return p.name }

func roundUp(n, multiple int) int {
	if multiple <= 0 {
		return n
	}
	rem := n % multiple
	if rem == 0 {
		return n
	}
	return n + (multiple - rem)
}

// Acquire reserves `reserve` bytes of address space (rounded up to a page
// multiple), optionally appends a guarded trailing page, and commits
// exactly `commit` bytes (rounded up to a page multiple). Execute requests
// force full commit, since partially-committing executable code ranges is
// not a supported configuration.
func (p *Pool) Acquire(reserve, commit int, flags AccessFlags) (*Reservation, error) {
	const op = "memory.Pool.Acquire"

	if p.freeHead == noFreeSlot {
		metrics.Active().RecordPoolExhausted("memory")
		return nil, corerr.New(corerr.PoolExhausted, op, fmt.Sprintf("pool %q has no free reservation slots", p.name))
	}

	reserve = roundUp(max(reserve, p.minAllocSize), p.pageSize)
	if flags.Execute {
		commit = reserve
	}
	commit = roundUp(commit, p.pageSize)
	if commit > reserve {
		commit = reserve
	}

	mapLen := reserve
	if flags.GuardPage {
		mapLen += p.pageSize
	}

	mem, err := unix.Mmap(-1, 0, mapLen, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		metrics.Active().RecordAllocationFailed("mmap")
		return nil, corerr.Wrap(corerr.AllocationFailed, op, fmt.Sprintf("mmap %d bytes", mapLen), err)
	}

	if commit > 0 {
		if err := unix.Mprotect(mem[:commit], flags.prot()); err != nil {
			_ = unix.Munmap(mem)
			return nil, corerr.Wrap(corerr.AllocationFailed, op, fmt.Sprintf("mprotect commit %d bytes", commit), err)
		}
	}
	if flags.GuardPage {
		// The guard page is committed with PROT_NONE so any access past the
		// reservation faults immediately instead of touching unmapped memory
		// that the allocator might reuse for something else.
		if err := unix.Mprotect(mem[reserve:mapLen], unix.PROT_NONE); err != nil {
			_ = unix.Munmap(mem)
			return nil, corerr.Wrap(corerr.AllocationFailed, op, "mprotect guard page", err)
		}
	}

	slot := p.freeHead
	p.freeHead = p.nextFree[slot]

	r := &p.slots[slot]
	*r = Reservation{
		mem:             mem,
		BytesReserved:   reserve,
		BytesCommitted:  commit,
		Flags:           flags,
		pool:            p,
		slot:            slot,
		hasGuard:        flags.GuardPage,
		committedBuffer: commit,
	}
	return r, nil
}

// Release returns a reservation's slot to the pool and unmaps its address
// space. Releasing a reservation against a pool it did not come from, or
// releasing it twice, is a fatal contract violation.
func (p *Pool) Release(r *Reservation) error {
	const op = "memory.Pool.Release"
	if r.pool != p {
		panic(fmt.Sprintf("%s: reservation does not belong to pool %q", op, p.name))
	}
	if r.mem == nil {
		panic(fmt.Sprintf("%s: double release of reservation in pool %q", op, p.name))
	}

	mapLen := r.BytesReserved
	if r.hasGuard {
		mapLen += p.pageSize
	}
	if err := unix.Munmap(r.mem[:mapLen]); err != nil {
		return corerr.Wrap(corerr.AllocationFailed, op, "munmap", err)
	}

	r.mem = nil
	p.nextFree[r.slot] = p.freeHead
	p.freeHead = r.slot
	return nil
}

// IncreaseCommit raises commit by at least minCommitIncrease, clamped to
// the reservation's reserved size. It never shrinks commit.
func (p *Pool) IncreaseCommit(r *Reservation, newCommit int) error {
	const op = "memory.Pool.IncreaseCommit"
	if r.BytesCommitted >= r.BytesReserved {
		return corerr.New(corerr.OutOfReservation, op, "reservation already fully committed")
	}

	target := roundUp(newCommit, p.pageSize)
	minTarget := r.BytesCommitted + p.minCommitIncrease
	if target < minTarget {
		target = minTarget
	}
	if target > r.BytesReserved {
		target = r.BytesReserved
	}
	if target <= r.BytesCommitted {
		return nil
	}

	if err := unix.Mprotect(r.mem[r.BytesCommitted:target], r.Flags.prot()); err != nil {
		return corerr.Wrap(corerr.AllocationFailed, op, fmt.Sprintf("mprotect extend to %d bytes", target), err)
	}
	r.BytesCommitted = target
	r.committedBuffer = target
	return nil
}

// FlushInstructionCache ensures code written into an executable reservation
// is visible to the instruction fetch path. On amd64 and arm64 under Linux
// the data and instruction caches are coherent for user-mode writes inside
// the same address space, so this is a documented no-op; it exists so
// callers that write self-modifying/just-in-time code have one place to
// call regardless of target architecture.
func (p *Pool) FlushInstructionCache(r *Reservation) error {
	if r.pool != p {
		return corerr.New(corerr.InvalidThread, "memory.Pool.FlushInstructionCache", "reservation does not belong to this pool")
	}
	return nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
