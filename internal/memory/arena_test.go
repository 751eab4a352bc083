package memory

import "testing"

func TestArenaAllocateAlignment(t *testing.T) {
	a := NewArena(make([]byte, 4096))

	r1, buf1, err := a.Allocate(10, 8)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if r1.Offset != 0 || len(buf1) != 10 {
		t.Fatalf("unexpected range %+v", r1)
	}

	r2, _, err := a.Allocate(3, 8)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if r2.Offset != 16 {
		t.Fatalf("expected offset 16 (10 rounded up to 8-byte alignment), got %d", r2.Offset)
	}
	if a.NextOffset() < 0 || a.NextOffset() > a.Size() {
		t.Fatalf("invariant violated: next offset %d out of [0,%d]", a.NextOffset(), a.Size())
	}
}

func TestArenaExhausted(t *testing.T) {
	a := NewArena(make([]byte, 16))
	if _, _, err := a.Allocate(17, 1); err == nil {
		t.Fatal("expected ARENA_EXHAUSTED error")
	}
}

func TestArenaMarkerReset(t *testing.T) {
	a := NewArena(make([]byte, 64*1024))

	m := a.Mark()
	first, _, err := a.Allocate(1024, 1)
	if err != nil {
		t.Fatalf("allocate 1KiB: %v", err)
	}
	if _, _, err := a.Allocate(2048, 1); err != nil {
		t.Fatalf("allocate 2KiB: %v", err)
	}
	if _, _, err := a.Allocate(4096, 1); err != nil {
		t.Fatalf("allocate 4KiB: %v", err)
	}

	a.ResetTo(m)
	again, _, err := a.Allocate(4096, 1)
	if err != nil {
		t.Fatalf("allocate 4KiB after reset: %v", err)
	}
	if again.Offset != first.Offset {
		t.Fatalf("expected reset allocation to reuse offset %d, got %d", first.Offset, again.Offset)
	}
}

func TestArenaResetToAheadPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when resetting to a marker ahead of the current offset")
		}
	}()
	a := NewArena(make([]byte, 16))
	a.ResetTo(Marker(8))
}
