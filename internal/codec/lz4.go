// Package codec is the LZ4 façade (component C2). It wraps
// github.com/pierrec/lz4/v4's block API behind the two calls the rest of
// the engine actually needs, compress_fast and decompress_safe, and
// treats the library itself as opaque, exactly as spec section 4.C2
// specifies.
package codec

import (
	"errors"

	"github.com/pierrec/lz4/v4"
)

// ErrDecompress is returned when a decompressed payload doesn't match the
// caller-supplied expected length, or the underlying codec rejects the
// input outright.
var ErrDecompress = errors.New("codec: lz4 decompression failed")

// CompressBound returns the worst-case size of compressing n bytes, the
// buffer size callers must allocate before calling CompressFast.
func CompressBound(n int) int {
	if n <= 0 {
		return 0
	}
	return lz4.CompressBlockBound(n)
}

// CompressFast compresses src into dst, returning the number of bytes
// written. accel is accepted for interface parity with the original
// LZ4_compress_fast acceleration knob; pierrec's block compressor does not
// expose a matching parameter, so callers should treat higher accel purely
// as a hint that a coarser search (already pierrec's default for the plain
// block compressor) is acceptable. Returns ok=false when LZ4 could not
// compress the input into dst's capacity; callers never treat that as
// fatal, they fall back to storing raw.
func CompressFast(dst, src []byte, accel int) (size int, ok bool) {
	if len(src) == 0 {
		return 0, false
	}
	n, err := lz4.CompressBlock(src, dst, nil)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// DecompressSafe decodes src into dst and requires the decoded length to
// equal expected exactly, matching LZ4_decompress_safe's caller contract
// in the source (spec section 4.C5, decode_raw).
func DecompressSafe(dst, src []byte, expected int) error {
	if expected < 0 || len(dst) < expected {
		return ErrDecompress
	}
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return errors.Join(ErrDecompress, err)
	}
	if n != expected {
		return ErrDecompress
	}
	return nil
}
