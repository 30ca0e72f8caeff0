package lznt1

import (
	"bytes"
	"testing"

	"github.com/go-ntfs/ntfsfs/internal/ntfserr"
)

func TestRoundTripLiteral(t *testing.T) {
	data := bytes.Repeat([]byte{0x01, 0x02, 0x03, 0xFF, 0xAA}, 1000)[:4096]
	compressed, err := CompressUnit(data, len(data))
	if err != nil {
		t.Fatalf("CompressUnit: %v", err)
	}
	got, err := DecompressUnit(compressed, len(data))
	if err != nil {
		t.Fatalf("DecompressUnit: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch")
	}
}

func TestRoundTripHighlyRepetitive(t *testing.T) {
	data := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog"), 1000)
	if len(data) > 65536 {
		data = data[:65536]
	}
	compressed, err := CompressUnit(data, len(data))
	if err != nil {
		t.Fatalf("CompressUnit: %v", err)
	}
	if len(compressed) >= len(data) {
		t.Fatalf("expected compression to shrink highly repetitive input, got %d >= %d", len(compressed), len(data))
	}
	got, err := DecompressUnit(compressed, len(data))
	if err != nil {
		t.Fatalf("DecompressUnit: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch")
	}
}

func TestRoundTripShorterThanUnit(t *testing.T) {
	const unitSize = 65536
	data := []byte("a short fragment that doesn't fill a whole compression unit")
	compressed, err := CompressUnit(data, unitSize)
	if err != nil {
		t.Fatalf("CompressUnit: %v", err)
	}
	got, err := DecompressUnit(compressed, unitSize)
	if err != nil {
		t.Fatalf("DecompressUnit: %v", err)
	}
	if !bytes.Equal(got[:len(data)], data) {
		t.Fatalf("prefix mismatch")
	}
	for i := len(data); i < unitSize; i++ {
		if got[i] != 0 {
			t.Fatalf("expected zero padding at offset %d, got %#x", i, got[i])
		}
	}
}

func TestRoundTripIncompressibleChunk(t *testing.T) {
	// A pseudo-random, non-repeating 4096-byte chunk: forces the stored
	// (uncompressed) chunk signature since tag overhead can't beat it.
	data := make([]byte, 4096)
	x := uint32(0x2545F491)
	for i := range data {
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		data[i] = byte(x)
	}
	compressed, err := CompressUnit(data, len(data))
	if err != nil {
		t.Fatalf("CompressUnit: %v", err)
	}
	got, err := DecompressUnit(compressed, len(data))
	if err != nil {
		t.Fatalf("DecompressUnit: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch for incompressible chunk")
	}
}

func TestDecompressUnitRejectsBadSignature(t *testing.T) {
	bad := []byte{0x00, 0x50, 0xAA} // header nibble 0x5 is neither 0xB nor 0x3
	_, err := DecompressUnit(bad, 16)
	if !isKind(err, ntfserr.CompressionCorrupted) {
		t.Fatalf("expected CompressionCorrupted, got %v", err)
	}
}

func isKind(err error, kind ntfserr.Kind) bool {
	e, ok := err.(*ntfserr.Error)
	return ok && e.Kind == kind
}

func FuzzDecompressUnit(f *testing.F) {
	f.Add([]byte{0x00, 0x00})
	f.Add([]byte{0x0B, 0xB0, 0x00, 'h', 'i'})
	f.Add([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	f.Fuzz(func(t *testing.T, data []byte) {
		// DecompressUnit must never panic, regardless of how malformed
		// the input is; an error return is the correct outcome for junk.
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("panic on input %x: %v", data, r)
			}
		}()
		_, _ = DecompressUnit(data, 4096)
	})
}

func FuzzCompressDecompressRoundTrip(f *testing.F) {
	f.Add([]byte("hello world"))
	f.Add(bytes.Repeat([]byte{0x00}, 100))
	f.Fuzz(func(t *testing.T, data []byte) {
		if len(data) > 65536 {
			data = data[:65536]
		}
		compressed, err := CompressUnit(data, len(data))
		if err != nil {
			return
		}
		got, err := DecompressUnit(compressed, len(data))
		if err != nil {
			t.Fatalf("DecompressUnit after CompressUnit failed: %v", err)
		}
		if !bytes.Equal(got, data) {
			t.Fatalf("round trip mismatch: in=%x out=%x", data, got)
		}
	})
}
