package collation

import "encoding/binary"

// Type is the $INDEX_ROOT collation_type field (§4.7).
type Type uint32

const (
	Binary         Type = 0x00000000
	Filename       Type = 0x00000001
	UnicodeString  Type = 0x00000002
	ULong          Type = 0x00000010
	SID            Type = 0x00000011
	SecurityHash   Type = 0x00000012
	ULongs         Type = 0x00000013
)

func (t Type) String() string {
	switch t {
	case Binary:
		return "COLLATION_BINARY"
	case Filename:
		return "COLLATION_FILENAME"
	case UnicodeString:
		return "COLLATION_UNICODE_STRING"
	case ULong:
		return "COLLATION_NTFS_ULONG"
	case SID:
		return "COLLATION_NTFS_SID"
	case SecurityHash:
		return "COLLATION_NTFS_SECURITY_HASH"
	case ULongs:
		return "COLLATION_NTFS_ULONGS"
	default:
		return "COLLATION_UNKNOWN"
	}
}

// CompareKeys orders two raw index keys per the declared collation type.
// Filename/UnicodeString keys are compared as case-insensitive UTF-16LE
// names (the caller passes the raw $FILE_NAME-style key bytes for Filename;
// for UnicodeString it's a bare UTF-16LE string); everything else is a
// binary/integer comparison over fixed-width fields per the Windows
// collation rules cited in §4.7.
func CompareKeys(t *UpCaseTable, kind Type, a, b []byte) int {
	switch kind {
	case Filename:
		return Compare(t, decodeFileNameKeyName(a), decodeFileNameKeyName(b))
	case UnicodeString:
		return Compare(t, decodeKeyName(a), decodeKeyName(b))
	case ULong:
		return compareULong(a, b)
	case ULongs:
		return compareULongs(a, b)
	case SID:
		return compareSID(a, b)
	case SecurityHash:
		return compareSecurityHash(a, b)
	default:
		return compareBinary(a, b)
	}
}

func decodeKeyName(b []byte) string {
	n := len(b) / 2
	u16 := make([]uint16, n)
	for i := 0; i < n; i++ {
		u16[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	return DecodeUTF16Lenient(u16)
}

// fileNameKeyHeaderSize mirrors internal/ntfs's fileNameHeaderSize: a
// $FILE_NAME-shaped index key carries its name_length at byte 64 and its
// name starting at byte 66, behind parent reference/timestamps/sizes/flags.
const fileNameKeyHeaderSize = 66

// decodeFileNameKeyName extracts just the name portion of a $FILE_NAME-
// shaped index key (the whole attribute body, not a bare string) for
// COLLATION_FILENAME comparison.
func decodeFileNameKeyName(b []byte) string {
	if len(b) < fileNameKeyHeaderSize {
		return decodeKeyName(b)
	}
	nameLen := int(b[64])
	start := fileNameKeyHeaderSize
	end := start + nameLen*2
	if end > len(b) {
		end = len(b)
	}
	return decodeKeyName(b[start:end])
}

func compareBinary(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

func compareULong(a, b []byte) int {
	if len(a) < 4 || len(b) < 4 {
		return compareBinary(a, b)
	}
	va := binary.LittleEndian.Uint32(a)
	vb := binary.LittleEndian.Uint32(b)
	switch {
	case va < vb:
		return -1
	case va > vb:
		return 1
	default:
		return 0
	}
}

// compareULongs compares a sequence of little-endian uint32 values
// lexicographically (COLLATION_NTOFS_ULONGS), used by the $O (object ID)
// and $R (reparse point) indices.
func compareULongs(a, b []byte) int {
	n := len(a) / 4
	m := len(b) / 4
	min := n
	if m < min {
		min = m
	}
	for i := 0; i < min; i++ {
		va := binary.LittleEndian.Uint32(a[4*i:])
		vb := binary.LittleEndian.Uint32(b[4*i:])
		if va != vb {
			if va < vb {
				return -1
			}
			return 1
		}
	}
	switch {
	case n < m:
		return -1
	case n > m:
		return 1
	default:
		return 0
	}
}

// compareSID compares two binary Windows SIDs (used by the $SII/$SDH-style
// security indices keyed by SID) byte by byte via compareBinary, a shorter
// key that is a prefix of the other sorting first (COLLATION_NTOFS_SID).
func compareSID(a, b []byte) int {
	return compareBinary(a, b)
}

// compareSecurityHash compares $SDH index keys: a 4-byte hash followed by a
// 4-byte security ID, both little-endian uint32, hash first
// (COLLATION_NTOFS_SECURITY_HASH).
func compareSecurityHash(a, b []byte) int {
	if len(a) < 8 || len(b) < 8 {
		return compareBinary(a, b)
	}
	if c := compareULong(a[0:4], b[0:4]); c != 0 {
		return c
	}
	return compareULong(a[4:8], b[4:8])
}
