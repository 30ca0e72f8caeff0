package ntfs

import (
	"bytes"
	"testing"
)

func buildFixedUpRecord(sectorSize int, numSectors int, usn uint16) []byte {
	buf := make([]byte, sectorSize*numSectors)
	usaOffset := 42
	usaCount := numSectors + 1
	putU16(buf[usaOffset:], usn)
	for i := 0; i < numSectors; i++ {
		tail := (i+1)*sectorSize - 2
		real := []byte{byte(0x10 + i), byte(0x20 + i)}
		copy(buf[usaOffset+2+2*i:], real)
		copy(buf[tail:], []byte{byte(usn), byte(usn >> 8)})
	}
	return buf
}

func putU16(b []byte, v uint16) { b[0] = byte(v); b[1] = byte(v >> 8) }

func TestApplyFixup_RestoresSectorTails(t *testing.T) {
	const sectorSize = 512
	buf := buildFixedUpRecord(sectorSize, 2, 0xABCD)

	if err := applyFixup(buf, sectorSize, 42, 3); err != nil {
		t.Fatalf("applyFixup: %v", err)
	}

	want0 := []byte{0x10, 0x20}
	want1 := []byte{0x11, 0x21}
	if !bytes.Equal(buf[sectorSize-2:sectorSize], want0) {
		t.Errorf("sector 0 tail = %x, want %x", buf[sectorSize-2:sectorSize], want0)
	}
	if !bytes.Equal(buf[2*sectorSize-2:2*sectorSize], want1) {
		t.Errorf("sector 1 tail = %x, want %x", buf[2*sectorSize-2:2*sectorSize], want1)
	}
}

func TestApplyFixup_MismatchedUSNIsCorrupted(t *testing.T) {
	const sectorSize = 512
	buf := buildFixedUpRecord(sectorSize, 2, 0xABCD)
	// Corrupt the second sector's stored tail so it no longer matches the USN.
	buf[2*sectorSize-1] = 0xFF

	err := applyFixup(buf, sectorSize, 42, 3)
	if err == nil {
		t.Fatal("expected an error for a mismatched update sequence")
	}
}

func TestApplyFixup_RecordLengthNotMultipleOfSectorSize(t *testing.T) {
	buf := make([]byte, 513)
	if err := applyFixup(buf, 512, 42, 2); err == nil {
		t.Fatal("expected an error for a misaligned record length")
	}
}

func TestApplyFixup_USAOutOfFirstSector(t *testing.T) {
	buf := make([]byte, 1024)
	if err := applyFixup(buf, 512, 510, 3); err == nil {
		t.Fatal("expected an error when the USA doesn't fit in the first sector")
	}
}
