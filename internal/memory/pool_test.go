package memory

import "testing"

func TestPoolAcquireReleaseRoundTrip(t *testing.T) {
	p := NewPool(4, 0, 0, "test-pool")

	r, err := p.Acquire(64*1024, 4096, AccessFlags{Read: true, Write: true})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if r.BytesReserved%p.PageSize() != 0 {
		t.Fatalf("reserved size %d not page-aligned", r.BytesReserved)
	}
	if r.BytesCommitted > r.BytesReserved {
		t.Fatalf("invariant violated: committed %d > reserved %d", r.BytesCommitted, r.BytesReserved)
	}
	if r.BytesCommitted%p.PageSize() != 0 {
		t.Fatalf("committed size %d not page-aligned", r.BytesCommitted)
	}

	if err := p.Release(r); err != nil {
		t.Fatalf("release: %v", err)
	}
}

func TestPoolExhaustion(t *testing.T) {
	p := NewPool(1, 0, 0, "tiny-pool")
	if _, err := p.Acquire(4096, 4096, AccessFlags{Read: true}); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if _, err := p.Acquire(4096, 4096, AccessFlags{Read: true}); err == nil {
		t.Fatal("expected POOL_EXHAUSTED on the second acquire")
	}
}

func TestPoolIncreaseCommitNeverShrinksAndClamps(t *testing.T) {
	p := NewPool(2, 0, p4kRound(), "pool")
	r, err := p.Acquire(64*1024, 4096, AccessFlags{Read: true, Write: true})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	before := r.BytesCommitted
	if err := p.IncreaseCommit(r, before+1); err != nil {
		t.Fatalf("increase commit: %v", err)
	}
	if r.BytesCommitted <= before {
		t.Fatalf("expected commit to grow past %d, got %d", before, r.BytesCommitted)
	}
	if err := p.IncreaseCommit(r, r.BytesReserved*2); err != nil {
		t.Fatalf("increase commit clamp: %v", err)
	}
	if r.BytesCommitted != r.BytesReserved {
		t.Fatalf("expected commit clamped to reserved size %d, got %d", r.BytesReserved, r.BytesCommitted)
	}
	if err := p.IncreaseCommit(r, r.BytesReserved+1); err == nil {
		t.Fatal("expected OUT_OF_RESERVATION once fully committed")
	}
}

func TestPoolDoubleReleasePanics(t *testing.T) {
	p := NewPool(1, 0, 0, "pool")
	r, err := p.Acquire(4096, 4096, AccessFlags{Read: true})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := p.Release(r); err != nil {
		t.Fatalf("release: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double release")
		}
	}()
	_ = p.Release(r)
}

func TestPoolGuardPage(t *testing.T) {
	p := NewPool(1, 0, 0, "pool")
	r, err := p.Acquire(4096, 4096, AccessFlags{Read: true, Write: true, GuardPage: true})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !r.hasGuard {
		t.Fatal("expected guard page to be recorded")
	}
	if err := p.Release(r); err != nil {
		t.Fatalf("release: %v", err)
	}
}

func p4kRound() int { return 4096 }
