// Package lznt1 implements NTFS's native compression scheme: each
// compression unit is split into 4096-byte chunks, each chunk either a
// sequence of 2-byte chunk headers wrapping tag-coded literal/phrase
// sequences, or (signalled by a zero header) a terminator.
//
// This is a from-scratch implementation against public LZNT1/NTFS
// compression documentation; no file under _examples/ touches LZNT1 or
// compressed attributes, and no off-the-shelf Go package implements it
// either — klauspost/compress and the rest of the pack's compression
// dependencies cover gzip/zstd/flate/xz, none of which is this format (see
// DESIGN.md).
package lznt1

import (
	"encoding/binary"
	"fmt"

	"github.com/go-ntfs/ntfsfs/internal/ntfserr"
)

// ChunkSize is the fixed logical size (bytes) of one LZNT1 chunk: the unit
// over which the offset/length bit-split (§4.6) cycles.
const ChunkSize = 4096

const op = "lznt1"

// chunkHeaderTerminator is a zero chunk header: no more chunks follow.
const chunkHeaderTerminator = 0

// The high 4 bits of a chunk header distinguish a compressed chunk (0xB,
// spec §4.6's "signature 0xB": tag-coded literal/phrase body) from an
// uncompressed one (0x3: the body is target bytes stored verbatim). The
// latter exists because the tag-coded encoding of 4096 bytes of literals
// needs 4096+512 body bytes, which doesn't fit the 12-bit chunk-length
// field — an incompressible chunk has nowhere to go but stored raw.
const (
	compressedSignature   = 0xB
	uncompressedSignature = 0x3
)

// DecompressUnit decodes one compression unit. data holds the physically
// stored bytes for the unit's present clusters (the caller has already
// excluded the unit's trailing sparse run, if any); unitSize is the
// decompressed target length the caller expects (compression_unit_size, or
// less for a truncated final unit). It always returns exactly unitSize
// bytes on success.
func DecompressUnit(data []byte, unitSize int) ([]byte, error) {
	out := make([]byte, 0, unitSize)
	pos := 0

	for len(out) < unitSize {
		if pos >= len(data) {
			// Clean end of the stored stream (e.g. CompressUnit encoded
			// fewer bytes than a full unit): pad the rest with zeros
			// rather than treat it as corruption.
			break
		}

		remaining := unitSize - len(out)
		target := ChunkSize
		if target > remaining {
			target = remaining
		}

		if pos+2 > len(data) {
			return nil, ntfserr.Errorf(ntfserr.CompressionCorrupted, op, "truncated chunk header at unit offset %d", len(out))
		}
		header := binary.LittleEndian.Uint16(data[pos:])
		pos += 2
		if header == chunkHeaderTerminator {
			break
		}

		signature := byte(header >> 12)
		chunkLen := int(header&0x0FFF) + 1
		if pos+chunkLen > len(data) {
			return nil, ntfserr.Errorf(ntfserr.CompressionCorrupted, op, "chunk of %d bytes exceeds available input", chunkLen)
		}

		switch signature {
		case compressedSignature:
			decoded, err := decodeChunk(data[pos:pos+chunkLen], target)
			if err != nil {
				return nil, err
			}
			out = append(out, decoded...)
		case uncompressedSignature:
			if chunkLen > target {
				return nil, ntfserr.Errorf(ntfserr.CompressionCorrupted, op, "stored chunk of %d bytes exceeds remaining unit space %d", chunkLen, target)
			}
			out = append(out, data[pos:pos+chunkLen]...)
		default:
			return nil, ntfserr.Errorf(ntfserr.CompressionCorrupted, op, "unrecognised chunk signature %#x", signature)
		}
		pos += chunkLen
	}

	if len(out) < unitSize {
		// Terminator hit early; the remainder of the unit reads as zero
		// (a short final stored chunk, not an error — NTFS pads chunks
		// that happen to compress to nothing).
		out = append(out, make([]byte, unitSize-len(out))...)
	}
	return out[:unitSize], nil
}

// decodeChunk expands one chunk's tag/literal/phrase stream into exactly
// target bytes; input that ends before target bytes are produced fails
// with CompressionCorrupted.
func decodeChunk(input []byte, target int) ([]byte, error) {
	out := make([]byte, 0, target)
	pos := 0

	for len(out) < target {
		if pos >= len(input) {
			return nil, ntfserr.Errorf(ntfserr.CompressionCorrupted, op, "chunk input exhausted with %d/%d bytes produced", len(out), target)
		}
		tag := input[pos]
		pos++

		for bit := 0; bit < 8 && len(out) < target; bit++ {
			if tag&(1<<uint(bit)) == 0 {
				if pos >= len(input) {
					return nil, ntfserr.Errorf(ntfserr.CompressionCorrupted, op, "literal byte missing at chunk position %d", len(out))
				}
				out = append(out, input[pos])
				pos++
				continue
			}

			if pos+2 > len(input) {
				return nil, ntfserr.Errorf(ntfserr.CompressionCorrupted, op, "phrase token truncated at chunk position %d", len(out))
			}
			token := binary.LittleEndian.Uint16(input[pos:])
			pos += 2

			offsetBits := offsetBitsForPosition(len(out))
			lengthBits := 16 - offsetBits
			lengthMask := uint16(1)<<uint(lengthBits) - 1
			matchLen := int(token&lengthMask) + 3
			displacement := int(token>>uint(lengthBits)) + 1

			if displacement > len(out) {
				return nil, ntfserr.Errorf(ntfserr.CompressionCorrupted, op, "phrase displacement %d exceeds decoded length %d", displacement, len(out))
			}
			srcStart := len(out) - displacement
			for i := 0; i < matchLen && len(out) < target; i++ {
				out = append(out, out[srcStart+i])
			}
		}
	}
	return out, nil
}

// offsetBitsForPosition returns the number of high bits of a 16-bit phrase
// token spent on the displacement field, as a function of how many bytes
// have already been decoded in the current chunk. The split grows as the
// chunk fills (§4.6): 4 bits for the first 16 bytes, 5 for the next 16,
// doubling the window every power of two up to 12 bits at 2048+.
func offsetBitsForPosition(pos int) int {
	bits := 4
	for (1 << uint(bits)) <= pos {
		bits++
	}
	return bits
}

// CompressUnit produces a valid LZNT1 encoding of data (len(data) <=
// unitSize) such that DecompressUnit(CompressUnit(data, unitSize), unitSize)
// reproduces data followed by zero padding to unitSize. It is a greedy
// single-pass matcher; NTFS itself permits any encoder that a compliant
// decoder round-trips, including all-literal chunks, so this need not be
// optimal.
func CompressUnit(data []byte, unitSize int) ([]byte, error) {
	if len(data) > unitSize {
		return nil, fmt.Errorf("%s: input %d bytes exceeds unit size %d", op, len(data), unitSize)
	}
	var out []byte
	for off := 0; off < len(data); off += ChunkSize {
		end := off + ChunkSize
		if end > len(data) {
			end = len(data)
		}
		if end-off < ChunkSize && len(data) < unitSize {
			// DecompressUnit decodes this short final chunk against a
			// full-chunk target, so it is stored raw; the rest of the unit
			// then reads as zero padding.
			out = append(out, wrapChunkHeader(uncompressedSignature, data[off:end])...)
			continue
		}
		out = append(out, compressChunk(data[off:end])...)
	}
	return out, nil
}

// compressChunk greedily matches against the already-emitted portion of the
// chunk and writes tag bytes inline with the up-to-8 literal-or-token items
// they describe, the same layout decodeChunk reads back. If the resulting
// body wouldn't actually shrink the chunk (true of incompressible input —
// tag-byte overhead alone can exceed 4096 bytes for an all-literal chunk,
// more than the 12-bit length field can even address), the chunk is stored
// raw instead.
func compressChunk(chunk []byte) []byte {
	var out []byte
	pos := 0
	for pos < len(chunk) {
		tagPos := len(out)
		out = append(out, 0)
		var tag byte
		for bit := 0; bit < 8 && pos < len(chunk); bit++ {
			offsetBits := offsetBitsForPosition(pos)
			lengthBits := 16 - offsetBits
			maxLen := (1 << uint(lengthBits)) - 1 + 3
			maxOff := 1 << uint(offsetBits)

			bestLen, bestOff := 0, 0
			searchStart := pos - maxOff
			if searchStart < 0 {
				searchStart = 0
			}
			for cand := searchStart; cand < pos; cand++ {
				l := 0
				for l < maxLen && pos+l < len(chunk) && chunk[cand+l] == chunk[pos+l] {
					l++
				}
				if l > bestLen {
					bestLen, bestOff = l, pos-cand
				}
			}

			if bestLen >= 3 {
				token := uint16(bestOff-1)<<uint(lengthBits) | uint16(bestLen-3)
				var b [2]byte
				binary.LittleEndian.PutUint16(b[:], token)
				out = append(out, b[:]...)
				tag |= 1 << uint(bit)
				pos += bestLen
			} else {
				out = append(out, chunk[pos])
				pos++
			}
		}
		out[tagPos] = tag
	}

	if len(out) >= len(chunk) || len(out) > 4096 {
		return wrapChunkHeader(uncompressedSignature, chunk)
	}
	return wrapChunkHeader(compressedSignature, out)
}

func wrapChunkHeader(signature byte, body []byte) []byte {
	header := uint16(signature)<<12 | uint16(len(body)-1)
	out := make([]byte, 2+len(body))
	binary.LittleEndian.PutUint16(out, header)
	copy(out[2:], body)
	return out
}
