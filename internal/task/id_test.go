package task

import "testing"

func TestIDRoundTrip(t *testing.T) {
	id := newID(true, 17, 4321)
	if !id.Valid() {
		t.Fatal("expected valid id")
	}
	if !id.Internal() {
		t.Fatal("expected internal id")
	}
	if id.PoolIndex() != 17 {
		t.Fatalf("pool index = %d, want 17", id.PoolIndex())
	}
	if id.TaskIndex() != 4321 {
		t.Fatalf("task index = %d, want 4321", id.TaskIndex())
	}
}

func TestIDExternalBit(t *testing.T) {
	id := newID(false, 1, 1)
	if id.Internal() {
		t.Fatal("expected external id")
	}
}

func TestInvalidIsNotValid(t *testing.T) {
	if Invalid.Valid() {
		t.Fatal("Invalid must report Valid() == false")
	}
}

func TestIDAddressingLimits(t *testing.T) {
	id := newID(true, MaxPools-1, MaxTasksPerPool-1)
	if id.PoolIndex() != MaxPools-1 || id.TaskIndex() != MaxTasksPerPool-1 {
		t.Fatalf("addressing limit round-trip failed: pool=%d task=%d", id.PoolIndex(), id.TaskIndex())
	}
}
