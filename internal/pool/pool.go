// Package pool implements the bounded state-buffer pool (component C4):
// a small set of reusable byte buffers handed to and from the
// simulation's save callback so the sync engine doesn't churn the
// allocator once steady state is reached.
package pool

import "errors"

// FreeFunc releases a buffer the pool can no longer hold, mirroring the
// simulation-supplied free callback from the source (GGPOSessionCallbacks
// .free_buffer). A nil FreeFunc means buffers are simply dropped for the
// garbage collector to reclaim.
type FreeFunc func(buf []byte)

// ErrCanaryCorrupted is returned by Recycle when canary mode (see
// WithCanary) detects a write past the capacity the caller was handed,
// the Go analogue of the source's STRICT_BUF_SIZE Valgrind guard in
// state_manager_raw_alloc.
var ErrCanaryCorrupted = errors.New("pool: buffer overflow detected by canary")

const canarySize = 16

var canaryPattern = [canarySize]byte{
	0xDE, 0xAD, 0xBE, 0xEF, 0xDE, 0xAD, 0xBE, 0xEF,
	0xDE, 0xAD, 0xBE, 0xEF, 0xDE, 0xAD, 0xBE, 0xEF,
}

type entry struct {
	buf []byte // usable region only; canary bytes (if any) trail it
}

// Pool is a bounded vector of pooled buffers sized to at most the ring
// depth, plus a monotonically growing "hint" tracking the largest
// uncompressed snapshot size observed so far.
type Pool struct {
	entries    []entry
	maxEntries int
	hint       int
	free       FreeFunc
	canary     bool
}

// Option configures a Pool at construction.
type Option func(*Pool)

// WithCanary enables the canary-guard mode described in SPEC_FULL.md:
// every acquired buffer carries trailing guard bytes that Recycle
// verifies were not overwritten. Off by default; intended for chasing
// save-callback overflows during development, not production use.
func WithCanary() Option {
	return func(p *Pool) { p.canary = true }
}

// New creates a pool bounded to maxEntries buffers, releasing anything it
// can't hold through free.
func New(maxEntries int, free FreeFunc, opts ...Option) *Pool {
	p := &Pool{maxEntries: maxEntries, free: free}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Hint reports the largest uncompressed_size observed so far.
func (p *Pool) Hint() int {
	return p.hint
}

// NoteSize grows the hint if n exceeds it; the hint never shrinks within a
// session.
func (p *Pool) NoteSize(n int) {
	if n > p.hint {
		p.hint = n
	}
}

// Acquire returns the smallest pooled buffer with capacity >= the current
// hint, removing it from the pool. Returns ok=false when the pool is
// empty or the hint is unset (0).
func (p *Pool) Acquire() (buf []byte, ok bool) {
	if p.hint <= 0 || len(p.entries) == 0 {
		return nil, false
	}
	bestIdx := -1
	bestCap := 0
	for i, e := range p.entries {
		usable := cap(e.buf)
		if p.canary {
			usable -= canarySize
		}
		if usable >= p.hint && (bestIdx < 0 || usable < bestCap) {
			bestIdx, bestCap = i, usable
		}
	}
	if bestIdx < 0 {
		return nil, false
	}
	chosen := p.entries[bestIdx]
	p.entries = append(p.entries[:bestIdx], p.entries[bestIdx+1:]...)

	usableLen := cap(chosen.buf)
	if p.canary {
		usableLen -= canarySize
	}
	return chosen.buf[:usableLen], true
}

// Recycle returns buf (of the given full allocation capacity) to the
// pool, or releases it via the free callback if the pool is full, the
// capacity is non-positive, or no free callback is configured. This
// matches RecycleStateBuffer's fallthrough in the source verbatim.
func (p *Pool) Recycle(buf []byte, capacity int) error {
	if buf == nil {
		return nil
	}
	if p.canary {
		if err := checkCanary(buf, capacity); err != nil {
			return err
		}
	}
	if capacity <= 0 || p.free == nil {
		if p.free != nil {
			p.free(buf)
		}
		return nil
	}
	if len(p.entries) >= p.maxEntries {
		p.free(buf)
		return nil
	}
	full := buf[:cap(buf)]
	p.entries = append(p.entries, entry{buf: full})
	return nil
}

// Clear releases every pooled buffer via the free callback and resets the
// hint to zero.
func (p *Pool) Clear() {
	if p.free != nil {
		for _, e := range p.entries {
			p.free(e.buf)
		}
	}
	p.entries = nil
	p.hint = 0
}

// allocateWithCanary is used by callers that construct buffers destined
// for this pool when canary mode is active; it appends guard bytes and
// returns the usable prefix.
func allocateWithCanary(size int) []byte {
	full := make([]byte, size+canarySize)
	copy(full[size:], canaryPattern[:])
	return full[:size]
}

// AllocateFor returns a fresh buffer sized for at least n bytes, honoring
// canary mode if enabled on this pool.
func (p *Pool) AllocateFor(n int) []byte {
	if p.canary {
		return allocateWithCanary(n)
	}
	return make([]byte, n)
}

func checkCanary(buf []byte, capacity int) error {
	full := buf[:cap(buf)]
	if len(full) < capacity+canarySize {
		return nil
	}
	guard := full[capacity : capacity+canarySize]
	for i, b := range guard {
		if b != canaryPattern[i] {
			return ErrCanaryCorrupted
		}
	}
	return nil
}
