package pool

import "testing"

func TestAcquireEmptyPool(t *testing.T) {
	p := New(4, nil)
	p.NoteSize(64)
	if _, ok := p.Acquire(); ok {
		t.Fatalf("expected empty pool to report no buffer")
	}
}

func TestRecycleThenAcquire(t *testing.T) {
	var freed [][]byte
	p := New(2, func(buf []byte) { freed = append(freed, buf) })
	p.NoteSize(32)

	buf := make([]byte, 32)
	if err := p.Recycle(buf, 32); err != nil {
		t.Fatalf("recycle: %v", err)
	}

	got, ok := p.Acquire()
	if !ok {
		t.Fatalf("expected buffer to be reusable")
	}
	if cap(got) != 32 {
		t.Fatalf("expected capacity 32, got %d", cap(got))
	}
	if len(freed) != 0 {
		t.Fatalf("did not expect free callback invocation")
	}
}

func TestRecycleOverflowFreesBuffer(t *testing.T) {
	var freed int
	p := New(1, func([]byte) { freed++ })
	p.NoteSize(16)

	if err := p.Recycle(make([]byte, 16), 16); err != nil {
		t.Fatalf("recycle 1: %v", err)
	}
	if err := p.Recycle(make([]byte, 16), 16); err != nil {
		t.Fatalf("recycle 2: %v", err)
	}
	if freed != 1 {
		t.Fatalf("expected exactly one free callback for overflow, got %d", freed)
	}
}

func TestRecycleZeroCapacityAlwaysFrees(t *testing.T) {
	var freed int
	p := New(4, func([]byte) { freed++ })
	if err := p.Recycle(make([]byte, 4), 0); err != nil {
		t.Fatalf("recycle: %v", err)
	}
	if freed != 1 {
		t.Fatalf("expected free callback for non-positive capacity")
	}
}

func TestClearReleasesEverythingAndResetsHint(t *testing.T) {
	var freed int
	p := New(4, func([]byte) { freed++ })
	p.NoteSize(8)
	p.Recycle(make([]byte, 8), 8)
	p.Recycle(make([]byte, 8), 8)

	p.Clear()
	if freed != 2 {
		t.Fatalf("expected 2 buffers freed, got %d", freed)
	}
	if p.Hint() != 0 {
		t.Fatalf("expected hint reset to 0, got %d", p.Hint())
	}
}

func TestCanaryDetectsOverflow(t *testing.T) {
	p := New(4, nil, WithCanary())
	buf := p.AllocateFor(16)
	full := buf[:cap(buf)]
	full[16] ^= 0xFF // corrupt the guard region

	if err := p.Recycle(buf, 16); err == nil {
		t.Fatalf("expected canary corruption to be detected")
	}
}
