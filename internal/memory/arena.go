package memory

import (
	"github.com/rotorcore/corert/internal/corerr"
	"github.com/rotorcore/corert/internal/metrics"
)

// Range is a uniform descriptor for a sub-range handed out by an arena or
// buddy allocator: an offset and size relative to the allocator's backing
// range. Arena.Allocate returns the matching byte slice separately.
type Range struct {
	Offset int
	Size   int
}

// Arena is a bump-pointer sub-allocator over a contiguous byte range. It
// carries no per-allocation metadata; freeing an individual allocation is
// not supported; the whole arena is reset as a unit.
type Arena struct {
	buf        []byte
	nextOffset int
}

// NewArena creates an arena over buf. The arena does not take ownership of
// buf's backing array beyond bounds-checking offsets into it.
func NewArena(buf []byte) *Arena {
	return &Arena{buf: buf}
}

// Size returns the arena's total capacity in bytes.
func (a *Arena) Size() int { return len(a.buf) }

// Allocate rounds the current offset up to alignment and carves out size
// bytes, returning a Range describing the slice. Fails with ArenaExhausted
// if the aligned request would exceed the arena's size.
func (a *Arena) Allocate(size, alignment int) (Range, []byte, error) {
	const op = "memory.Arena.Allocate"
	if alignment <= 0 {
		alignment = 1
	}
	aligned := roundUp(a.nextOffset, alignment)
	newOffset := aligned + size
	if newOffset > len(a.buf) || newOffset < aligned {
		return Range{}, nil, corerr.New(corerr.ArenaExhausted, op, "arena cannot satisfy aligned request")
	}
	a.nextOffset = newOffset
	return Range{Offset: aligned, Size: size}, a.buf[aligned:newOffset], nil
}

// Marker is a snapshot of an arena's bump pointer, suitable for ResetTo.
type Marker int

// Mark returns the arena's current offset.
func (a *Arena) Mark() Marker { return Marker(a.nextOffset) }

// ResetTo rewinds the arena to a previously captured marker. The marker
// must be <= the current offset; rewinding forward is a programmer error.
func (a *Arena) ResetTo(m Marker) {
	if int(m) > a.nextOffset {
		panic("memory.Arena.ResetTo: marker is ahead of current offset")
	}
	a.nextOffset = int(m)
}

// Reset rewinds the arena to empty.
func (a *Arena) Reset() {
	a.nextOffset = 0
	metrics.Active().RecordArenaReset("local")
}

// NextOffset exposes the current bump pointer, mainly for invariant checks
// in tests.
func (a *Arena) NextOffset() int { return a.nextOffset }
