package task

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestDequePushTakeLIFO(t *testing.T) {
	d := NewDeque(8)
	a, b, c := newID(true, 0, 1), newID(true, 0, 2), newID(true, 0, 3)
	d.Push(a)
	d.Push(b)
	d.Push(c)

	for _, want := range []ID{c, b, a} {
		got, ok := d.Take()
		if !ok || got != want {
			t.Fatalf("take = (%v,%v), want (%v,true)", got, ok, want)
		}
	}
	if _, ok := d.Take(); ok {
		t.Fatal("take on empty deque should fail")
	}
}

func TestDequeStealFIFO(t *testing.T) {
	d := NewDeque(8)
	a, b := newID(true, 0, 1), newID(true, 0, 2)
	d.Push(a)
	d.Push(b)

	got, ok := d.Steal()
	if !ok || got != a {
		t.Fatalf("steal = (%v,%v), want (%v,true)", got, ok, a)
	}
	got, ok = d.Take()
	if !ok || got != b {
		t.Fatalf("take = (%v,%v), want (%v,true)", got, ok, b)
	}
}

func TestDequeConcurrentStealNeverDuplicatesOrLoses(t *testing.T) {
	const n = 20000
	d := NewDeque(1 << 16)
	for i := 0; i < n; i++ {
		d.Push(newID(true, 0, i+1))
	}

	var stolen, taken int64
	var wg sync.WaitGroup
	thieves := 4
	wg.Add(thieves)
	for i := 0; i < thieves; i++ {
		go func() {
			defer wg.Done()
			for {
				if _, ok := d.Steal(); ok {
					atomic.AddInt64(&stolen, 1)
				} else if d.Len() <= 0 {
					return
				}
			}
		}()
	}

	local := int64(0)
	for {
		if _, ok := d.Take(); ok {
			local++
		} else {
			break
		}
	}
	wg.Wait()
	taken = local

	if taken+atomic.LoadInt64(&stolen) != n {
		t.Fatalf("taken(%d)+stolen(%d) = %d, want %d", taken, stolen, taken+stolen, n)
	}
}
