package codec

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	src := bytes.Repeat([]byte("abcabcabcabc"), 64)
	dst := make([]byte, CompressBound(len(src)))

	n, ok := CompressFast(dst, src, 4)
	if !ok {
		t.Fatalf("expected compression to succeed on repetitive input")
	}
	if n >= len(src) {
		t.Fatalf("expected compressed size %d to beat raw size %d", n, len(src))
	}

	out := make([]byte, len(src))
	if err := DecompressSafe(out, dst[:n], len(src)); err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(out, src) {
		t.Fatalf("round trip mismatch")
	}
}

func TestCompressRandomBytesNoWin(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	src := make([]byte, 64)
	r.Read(src)
	dst := make([]byte, CompressBound(len(src)))

	n, ok := CompressFast(dst, src, 2)
	if ok && n < len(src) {
		t.Fatalf("random bytes unexpectedly compressed to %d < %d", n, len(src))
	}
}

func TestDecompressSafeRejectsLengthMismatch(t *testing.T) {
	src := bytes.Repeat([]byte{0xAB}, 128)
	dst := make([]byte, CompressBound(len(src)))
	n, ok := CompressFast(dst, src, 1)
	if !ok {
		t.Fatalf("expected compression to succeed")
	}
	out := make([]byte, len(src)-1)
	if err := DecompressSafe(out, dst[:n], len(src)); err == nil {
		t.Fatalf("expected error decoding into undersized buffer")
	}
}
