// Package frames implements the saved-frame ring (component C5): a
// fixed-capacity ring of snapshots, each stored raw, LZ4-compressed,
// XOR-delta, or delta-then-LZ4, plus the find/decode/reconstruct
// operations the sync engine drives during save and rollback.
//
// The tagged Encoding type collapses the source's two independent
// booleans (compressed, delta) into the single four-way variant
// SPEC_FULL.md's design notes call for, since (true, true) and the other
// three combinations are mutually exclusive in practice.
package frames

import (
	"errors"
	"fmt"

	"rollback/internal/codec"
	"rollback/internal/scratch"
	"rollback/internal/simd"
)

// Encoding tags how SavedFrame.Buf decodes into the raw snapshot bytes.
type Encoding int

const (
	Raw Encoding = iota
	Compressed
	Delta
	DeltaCompressed
)

func (e Encoding) IsCompressed() bool {
	return e == Compressed || e == DeltaCompressed
}

func (e Encoding) IsDelta() bool {
	return e == Delta || e == DeltaCompressed
}

func (e Encoding) String() string {
	switch e {
	case Raw:
		return "raw"
	case Compressed:
		return "compressed"
	case Delta:
		return "delta"
	case DeltaCompressed:
		return "delta-compressed"
	default:
		return "unknown"
	}
}

// NullFrame is the sentinel meaning "no frame".
const NullFrame = -1

// SavedFrame is one ring slot.
type SavedFrame struct {
	Frame            int
	Buf              []byte
	CBuf             int
	UncompressedSize int
	BufCapacity      int
	Checksum         uint32
	Encoding         Encoding
	CompressPending  bool
}

// Empty reports whether the slot holds no snapshot.
func (s *SavedFrame) Empty() bool {
	return s.Frame == NullFrame
}

var (
	// ErrFrameNotFound is returned by Find/Reconstruct when the ring holds
	// no entry for the requested frame.
	ErrFrameNotFound = errors.New("frames: frame not found in ring")
	// ErrReconstructionFailed is returned when a delta chain is broken:
	// the base keyframe fell off the ring, or an intermediate link is
	// missing.
	ErrReconstructionFailed = errors.New("frames: delta chain reconstruction failed")
	// ErrDecodeCapacity is returned by DecodeRaw when the output buffer is
	// smaller than the snapshot it must hold.
	ErrDecodeCapacity = errors.New("frames: output capacity too small")
)

// Ring is the fixed-capacity saved-frame ring.
type Ring struct {
	slots []SavedFrame
	head  int
}

// New builds a ring with the given capacity (spec: MAX_PREDICTION_FRAMES+2).
func New(capacity int) *Ring {
	r := &Ring{slots: make([]SavedFrame, capacity)}
	for i := range r.slots {
		r.slots[i].Frame = NullFrame
	}
	return r
}

// Capacity reports the ring's fixed slot count.
func (r *Ring) Capacity() int {
	return len(r.slots)
}

// Head returns the write cursor: the slot the next SaveCurrentFrame call
// will occupy.
func (r *Ring) Head() int {
	return r.head
}

// At returns a pointer to the slot at idx for in-place mutation.
func (r *Ring) At(idx int) *SavedFrame {
	return &r.slots[idx]
}

// Advance moves the write cursor forward one slot, wrapping at capacity.
func (r *Ring) Advance() {
	r.head = (r.head + 1) % len(r.slots)
}

// SetHeadAfter repositions the write cursor to just past idx. LoadFrame
// calls this after a rollback so the next SaveCurrentFrame overwrites the
// slot immediately following the frame just loaded, evicting whatever
// (now-invalid) predicted frames occupied it.
func (r *Ring) SetHeadAfter(idx int) {
	r.head = (idx + 1) % len(r.slots)
}

// Find locates frame in the ring by linear scan, returning its slot index
// or -1. A miss is logged by the caller, not here; this never panics.
func (r *Ring) Find(frame int) int {
	for i := range r.slots {
		if r.slots[i].Frame == frame {
			return i
		}
	}
	return -1
}

// DecodeRaw decodes a slot's payload into out[0:state.UncompressedSize].
// It refuses if out is too small or the slot has no buffer.
func DecodeRaw(state *SavedFrame, out []byte) error {
	if len(out) < state.UncompressedSize {
		return ErrDecodeCapacity
	}
	if state.Buf == nil {
		return fmt.Errorf("frames: decode_raw: %w", ErrFrameNotFound)
	}
	if state.Encoding.IsCompressed() {
		return codec.DecompressSafe(out[:state.UncompressedSize], state.Buf[:state.CBuf], state.UncompressedSize)
	}
	copy(out[:state.UncompressedSize], state.Buf[:state.UncompressedSize])
	return nil
}

// Reconstruct rebuilds the full raw snapshot for frame into out, which
// must have length >= the frame's uncompressed size. It walks backwards
// through the ring to find a non-delta base, then XORs forward, exactly
// as spec section 4.C5 describes. scratch is reused across the
// intermediate decode steps to avoid per-frame allocation.
func Reconstruct(r *Ring, frame int, out []byte, buf *scratch.Buffer) error {
	idx := r.Find(frame)
	if idx < 0 {
		return fmt.Errorf("frames: reconstruct(%d): %w", frame, ErrFrameNotFound)
	}
	target := &r.slots[idx]
	if !target.Encoding.IsDelta() {
		return DecodeRaw(target, out)
	}

	base := frame - 1
	for {
		if base < 0 {
			return fmt.Errorf("frames: reconstruct(%d): base fell off ring: %w", frame, ErrReconstructionFailed)
		}
		baseIdx := r.Find(base)
		if baseIdx < 0 {
			return fmt.Errorf("frames: reconstruct(%d): missing link at frame %d: %w", frame, base, ErrReconstructionFailed)
		}
		if !r.slots[baseIdx].Encoding.IsDelta() {
			break
		}
		base--
	}

	baseIdx := r.Find(base)
	baseFrame := &r.slots[baseIdx]
	if err := DecodeRaw(baseFrame, out); err != nil {
		return fmt.Errorf("frames: reconstruct(%d): decoding base %d: %w", frame, base, err)
	}

	for f := base + 1; f <= frame; f++ {
		idx := r.Find(f)
		if idx < 0 {
			return fmt.Errorf("frames: reconstruct(%d): missing link at frame %d: %w", frame, f, ErrReconstructionFailed)
		}
		link := &r.slots[idx]
		if !link.Encoding.IsDelta() {
			// Resynchronize: a non-delta link in the middle of the chain
			// overwrites the accumulator outright.
			if err := DecodeRaw(link, out); err != nil {
				return fmt.Errorf("frames: reconstruct(%d): resync at %d: %w", frame, f, err)
			}
			continue
		}
		buf.Ensure(link.UncompressedSize)
		if err := DecodeRaw(link, buf.Bytes()); err != nil {
			return fmt.Errorf("frames: reconstruct(%d): decoding delta at %d: %w", frame, f, err)
		}
		simd.XorInPlace(out[:link.UncompressedSize], buf.Bytes())
	}
	return nil
}

// IsKeyframe reports whether frame must be stored non-delta, bounding
// reconstruction chains to fewer than interval links.
func IsKeyframe(frame, interval int) bool {
	return frame%interval == 0
}
