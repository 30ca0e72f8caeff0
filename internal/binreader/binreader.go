// Package binreader provides a small little-endian struct reader over a
// byte slice, used throughout the NTFS on-disk format decoders. It keeps
// the position/remaining-bytes vocabulary of a stream-style bit reader
// (BytesLeft, Position, Len) but reads whole little-endian fields, which
// is what every NTFS structure (§6 of the format spec) needs instead of
// MSB-first bitstream codes.
package binreader

import (
	"encoding/binary"
	"unicode/utf16"
)

// Reader is a bounds-checked cursor over a byte slice. All Read* methods
// advance the cursor; the At* methods do not.
type Reader struct {
	data []byte
	pos  int
}

// New wraps b. The slice is not copied; callers that need an independent
// buffer should copy before constructing a Reader meant to outlive a mutable
// source (fix-up application mutates in place before a Reader is built).
func New(b []byte) *Reader {
	return &Reader{data: b}
}

// Bytes returns the full underlying slice.
func (r *Reader) Bytes() []byte { return r.data }

// Len returns the total buffer length.
func (r *Reader) Len() int { return len(r.data) }

// Position returns the current cursor offset.
func (r *Reader) Position() int { return r.pos }

// BytesLeft returns the number of unread bytes.
func (r *Reader) BytesLeft() int {
	if r.pos >= len(r.data) {
		return 0
	}
	return len(r.data) - r.pos
}

// Seek moves the cursor to an absolute offset. It does not bounds-check
// against len(data); a subsequent read will fail if the offset is invalid.
func (r *Reader) Seek(pos int) { r.pos = pos }

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int) { r.pos += n }

func (r *Reader) inBounds(off, n int) bool {
	return off >= 0 && n >= 0 && off+n >= off && off+n <= len(r.data)
}

// At returns n bytes at an absolute offset without moving the cursor, or
// nil and false if out of bounds.
func (r *Reader) At(off, n int) ([]byte, bool) {
	if !r.inBounds(off, n) {
		return nil, false
	}
	return r.data[off : off+n], true
}

// Read advances the cursor and returns n bytes, or nil and false if short.
func (r *Reader) Read(n int) ([]byte, bool) {
	b, ok := r.At(r.pos, n)
	if !ok {
		return nil, false
	}
	r.pos += n
	return b, true
}

// Uint8At reads a byte at an absolute offset.
func (r *Reader) Uint8At(off int) (uint8, bool) {
	b, ok := r.At(off, 1)
	if !ok {
		return 0, false
	}
	return b[0], true
}

// Uint16At reads a little-endian uint16 at an absolute offset.
func (r *Reader) Uint16At(off int) (uint16, bool) {
	b, ok := r.At(off, 2)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint16(b), true
}

// Uint32At reads a little-endian uint32 at an absolute offset.
func (r *Reader) Uint32At(off int) (uint32, bool) {
	b, ok := r.At(off, 4)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}

// Uint64At reads a little-endian uint64 at an absolute offset.
func (r *Reader) Uint64At(off int) (uint64, bool) {
	b, ok := r.At(off, 8)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint64(b), true
}

// Int8At reads a signed byte at an absolute offset.
func (r *Reader) Int8At(off int) (int8, bool) {
	b, ok := r.Uint8At(off)
	return int8(b), ok
}

// Uint8 reads a byte and advances the cursor.
func (r *Reader) Uint8() (uint8, bool) {
	v, ok := r.Uint8At(r.pos)
	if ok {
		r.pos++
	}
	return v, ok
}

// Uint16 reads a little-endian uint16 and advances the cursor.
func (r *Reader) Uint16() (uint16, bool) {
	v, ok := r.Uint16At(r.pos)
	if ok {
		r.pos += 2
	}
	return v, ok
}

// Uint32 reads a little-endian uint32 and advances the cursor.
func (r *Reader) Uint32() (uint32, bool) {
	v, ok := r.Uint32At(r.pos)
	if ok {
		r.pos += 4
	}
	return v, ok
}

// Uint64 reads a little-endian uint64 and advances the cursor.
func (r *Reader) Uint64() (uint64, bool) {
	v, ok := r.Uint64At(r.pos)
	if ok {
		r.pos += 8
	}
	return v, ok
}

// UintLE decodes an n-byte (0..8) little-endian unsigned integer from b,
// zero-padded. Used for data-run length/offset fields whose width varies
// per entry (§4.2).
func UintLE(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = (v << 8) | uint64(b[i])
	}
	return v
}

// IntLE decodes an n-byte (0..8) little-endian *signed* integer from b,
// sign-extending from the top bit of the last byte, matching the data-run
// LCN delta encoding (§4.2).
func IntLE(b []byte) int64 {
	if len(b) == 0 {
		return 0
	}
	v := UintLE(b)
	if b[len(b)-1]&0x80 != 0 && len(b) < 8 {
		v |= ^uint64(0) << (uint(len(b)) * 8)
	}
	return int64(v)
}

// DecodeUTF16LE decodes a UTF-16LE byte slice (even length) into a string.
func DecodeUTF16LE(b []byte) string {
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}
	u16 := make([]uint16, len(b)/2)
	for i := range u16 {
		u16[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return string(utf16.Decode(u16))
}
