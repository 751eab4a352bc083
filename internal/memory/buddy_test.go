package memory

import "testing"

func TestBuddyAllocateFreeRoundTrip(t *testing.T) {
	b, err := NewBuddy(64, 65536, 0)
	if err != nil {
		t.Fatalf("new buddy: %v", err)
	}

	before := snapshotBuddy(b)

	r, err := b.Allocate(128, 1)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	b.Free(r)

	after := snapshotBuddy(b)
	if before != after {
		t.Fatalf("allocate+free left allocator in a different state:\nbefore=%s\nafter=%s", before, after)
	}
}

func TestBuddyAllocateAlignedToBlockSize(t *testing.T) {
	b, err := NewBuddy(64, 65536, 0)
	if err != nil {
		t.Fatalf("new buddy: %v", err)
	}
	for _, n := range []int{1, 64, 100, 513, 4096} {
		r, err := b.Allocate(n, 1)
		if err != nil {
			t.Fatalf("allocate(%d): %v", n, err)
		}
		if r.Offset%r.Size != 0 {
			t.Fatalf("allocate(%d): offset %d not aligned to block size %d", n, r.Offset, r.Size)
		}
		if b.BlockSize(r.Offset) < n {
			t.Fatalf("allocate(%d): BlockSize(%d)=%d < requested", n, r.Offset, b.BlockSize(r.Offset))
		}
	}
}

func TestBuddyTooLarge(t *testing.T) {
	b, err := NewBuddy(64, 1024, 0)
	if err != nil {
		t.Fatalf("new buddy: %v", err)
	}
	if _, err := b.Allocate(2048, 1); err == nil {
		t.Fatal("expected BUDDY_TOO_LARGE error")
	}
}

func TestBuddyExhaustion(t *testing.T) {
	b, err := NewBuddy(64, 256, 0)
	if err != nil {
		t.Fatalf("new buddy: %v", err)
	}
	// Exactly 4 minimum-size blocks fit in 256 bytes.
	for i := 0; i < 4; i++ {
		if _, err := b.Allocate(64, 1); err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
	}
	r, err := b.Allocate(64, 1)
	if err != nil {
		t.Fatalf("exhaustion should not be an error: %v", err)
	}
	if r.Size != 0 {
		t.Fatalf("expected zero-sized range on exhaustion, got %+v", r)
	}
}

// TestBuddyChainedReallocation allocates, frees, and reallocates across
// several buddy levels to check splits and merges stay consistent.
func TestBuddyChainedReallocation(t *testing.T) {
	b, err := NewBuddy(64, 65536, 0)
	if err != nil {
		t.Fatalf("new buddy: %v", err)
	}

	a64, err := b.Allocate(64, 1)
	if err != nil {
		t.Fatalf("alloc 64: %v", err)
	}
	if _, err := b.Allocate(128, 1); err != nil {
		t.Fatalf("alloc 128: %v", err)
	}
	a256, err := b.Allocate(256, 1)
	if err != nil {
		t.Fatalf("alloc 256: %v", err)
	}
	if _, err := b.Allocate(512, 1); err != nil {
		t.Fatalf("alloc 512: %v", err)
	}

	grown, inPlace, err := b.Reallocate(a64, 128, 1)
	if err != nil {
		t.Fatalf("realloc 64->128: %v", err)
	}
	if !inPlace {
		t.Fatal("expected in-place merge growing 64 -> 128")
	}
	if grown.Offset != a64.Offset {
		t.Fatalf("expected in-place growth to keep offset %d, got %d", a64.Offset, grown.Offset)
	}

	moved, inPlace, err := b.Reallocate(a256, 2048, 1)
	if err != nil {
		t.Fatalf("realloc 256->2048: %v", err)
	}
	if inPlace {
		t.Fatal("expected 256 -> 2048 to require a fresh allocation")
	}
	if moved.Offset == a256.Offset {
		t.Fatal("expected a new offset distinct from the freed original")
	}
	if moved.Size != 2048 {
		t.Fatalf("expected grown size 2048, got %d", moved.Size)
	}
}

func TestBuddyShrinkInPlace(t *testing.T) {
	b, err := NewBuddy(64, 1024, 0)
	if err != nil {
		t.Fatalf("new buddy: %v", err)
	}
	r, err := b.Allocate(1024, 1)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	shrunk, inPlace, err := b.Reallocate(r, 256, 1)
	if err != nil {
		t.Fatalf("reallocate: %v", err)
	}
	if !inPlace {
		t.Fatal("expected shrink to happen in place")
	}
	if shrunk.Offset != r.Offset {
		t.Fatalf("expected shrink to keep the lower offset, got %d", shrunk.Offset)
	}
	if shrunk.Size != 256 {
		t.Fatalf("expected shrunk size 256, got %d", shrunk.Size)
	}
}

func TestBuddyReservedPrefix(t *testing.T) {
	b, err := NewBuddy(64, 65536, 200)
	if err != nil {
		t.Fatalf("new buddy: %v", err)
	}
	// 200 bytes rounds up to 4 minimum-size (64-byte) blocks, i.e. 256
	// bytes pre-allocated starting at offset 0.
	r, err := b.Allocate(64, 1)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if r.Offset < 256 {
		t.Fatalf("expected first free allocation past the reserved prefix, got offset %d", r.Offset)
	}
}

// snapshotBuddy captures enough of the allocator's internal state to detect
// whether allocate+free round-trips are bit-identical.
func snapshotBuddy(b *Buddy) string {
	s := ""
	for lvl := 0; lvl <= b.levels; lvl++ {
		s += "L"
		for _, v := range b.freeOffsets[lvl] {
			s += "," + itoa(v)
		}
		s += "|S"
		for _, v := range b.split[lvl] {
			if v {
				s += "1"
			} else {
				s += "0"
			}
		}
		s += "|M"
		for _, v := range b.merge[lvl] {
			if v {
				s += "1"
			} else {
				s += "0"
			}
		}
		s += ";"
	}
	return s
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
