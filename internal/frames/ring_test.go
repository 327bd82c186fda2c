package frames

import (
	"bytes"
	"errors"
	"testing"

	"rollback/internal/scratch"
)

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// buildChain writes a keyframe at frame 0 and delta-linked frames 1..n
// into the ring, where raws[i] is the full snapshot for frame i.
func buildChain(t *testing.T, r *Ring, raws [][]byte) {
	t.Helper()
	for f, raw := range raws {
		idx := r.Head()
		s := r.At(idx)
		s.Frame = f
		s.UncompressedSize = len(raw)
		if f == 0 {
			s.Encoding = Raw
			s.Buf = append([]byte(nil), raw...)
			s.CBuf = len(raw)
		} else {
			s.Encoding = Delta
			s.Buf = xorBytes(raw, raws[f-1])
			s.CBuf = len(raw)
		}
		r.Advance()
	}
}

func TestFindMissingReturnsNegativeOne(t *testing.T) {
	r := New(4)
	if idx := r.Find(3); idx != -1 {
		t.Fatalf("expected -1 for empty ring, got %d", idx)
	}
}

func TestReconstructRawFrame(t *testing.T) {
	r := New(4)
	raw := []byte("hello world!!!!!")
	s := r.At(r.Head())
	s.Frame = 0
	s.Encoding = Raw
	s.Buf = raw
	s.CBuf = len(raw)
	s.UncompressedSize = len(raw)
	r.Advance()

	out := make([]byte, len(raw))
	var buf scratch.Buffer
	if err := Reconstruct(r, 0, out, &buf); err != nil {
		t.Fatalf("reconstruct: %v", err)
	}
	if !bytes.Equal(out, raw) {
		t.Fatalf("expected round-trip, got %v want %v", out, raw)
	}
}

func TestReconstructDeltaChain(t *testing.T) {
	raws := [][]byte{
		{1, 2, 3, 4},
		{1, 2, 3, 5},
		{9, 2, 3, 5},
		{9, 2, 8, 5},
	}
	r := New(6)
	buildChain(t, r, raws)

	var buf scratch.Buffer
	for f, want := range raws {
		out := make([]byte, len(want))
		if err := Reconstruct(r, f, out, &buf); err != nil {
			t.Fatalf("reconstruct(%d): %v", f, err)
		}
		if !bytes.Equal(out, want) {
			t.Fatalf("frame %d: got %v want %v", f, out, want)
		}
	}
}

func TestReconstructMissingBaseFails(t *testing.T) {
	r := New(2) // capacity too small to retain the keyframe once frame 2 is written
	raws := [][]byte{
		{1, 1},
		{2, 2},
		{3, 3},
	}
	buildChain(t, r, raws)

	out := make([]byte, 2)
	var buf scratch.Buffer
	err := Reconstruct(r, 2, out, &buf)
	if err == nil {
		t.Fatalf("expected reconstruction failure once the keyframe was evicted")
	}
	if !errors.Is(err, ErrReconstructionFailed) && !errors.Is(err, ErrFrameNotFound) {
		t.Fatalf("expected a reconstruction or not-found error, got %v", err)
	}
}

func TestReconstructUnknownFrame(t *testing.T) {
	r := New(4)
	var buf scratch.Buffer
	err := Reconstruct(r, 42, make([]byte, 4), &buf)
	if !errors.Is(err, ErrFrameNotFound) {
		t.Fatalf("expected ErrFrameNotFound, got %v", err)
	}
}

func TestDecodeRawRejectsUndersizedOutput(t *testing.T) {
	s := &SavedFrame{Frame: 0, Encoding: Raw, Buf: []byte{1, 2, 3, 4}, CBuf: 4, UncompressedSize: 4}
	err := DecodeRaw(s, make([]byte, 2))
	if !errors.Is(err, ErrDecodeCapacity) {
		t.Fatalf("expected ErrDecodeCapacity, got %v", err)
	}
}

func TestRingAdvanceWrapsAndEvicts(t *testing.T) {
	r := New(3)
	for f := 0; f < 5; f++ {
		idx := r.Head()
		s := r.At(idx)
		s.Frame = f
		s.Encoding = Raw
		s.Buf = []byte{byte(f)}
		s.CBuf, s.UncompressedSize = 1, 1
		r.Advance()
	}
	// Capacity 3, wrote frames 0..4: only 2, 3, 4 should remain.
	for _, f := range []int{0, 1} {
		if idx := r.Find(f); idx != -1 {
			t.Fatalf("expected frame %d evicted, found at %d", f, idx)
		}
	}
	for _, f := range []int{2, 3, 4} {
		if idx := r.Find(f); idx == -1 {
			t.Fatalf("expected frame %d retained", f)
		}
	}
}

func TestIsKeyframe(t *testing.T) {
	cases := map[int]bool{0: true, 1: false, 4: true, 5: false, 8: true}
	for frame, want := range cases {
		if got := IsKeyframe(frame, 4); got != want {
			t.Fatalf("IsKeyframe(%d, 4) = %v, want %v", frame, got, want)
		}
	}
}
