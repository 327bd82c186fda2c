// Package scratch implements the growable byte region (component C3) that
// the sync engine and rewind arena reuse across decode/reconstruct calls
// instead of allocating fresh buffers every frame.
package scratch

// Buffer is a growable byte region with amortized growth, modeled on the
// source's ScratchBuffer: capacity only ever increases, and Reset never
// releases it.
type Buffer struct {
	data []byte
	size int
}

// Ensure grows the buffer so that Bytes() returns a slice of length n,
// amortizing growth the way append does. n <= 0 truncates to empty without
// releasing the backing array. Contents of [0, size) are unspecified after
// growth; callers always overwrite before reading.
func (b *Buffer) Ensure(n int) {
	if n <= 0 {
		b.size = 0
		return
	}
	if cap(b.data) < n {
		grown := make([]byte, n, max(n, 2*cap(b.data)))
		copy(grown, b.data[:b.size])
		b.data = grown
	} else {
		b.data = b.data[:n]
	}
	b.size = n
}

// Bytes returns the buffer's current valid region.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.size]
}

// Len reports the current logical size.
func (b *Buffer) Len() int {
	return b.size
}

// Reset clears the logical size but keeps the backing array.
func (b *Buffer) Reset() {
	b.size = 0
}

// Free releases the backing array entirely.
func (b *Buffer) Free() {
	b.data = nil
	b.size = 0
}
