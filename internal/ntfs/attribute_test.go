package ntfs

import (
	"bytes"
	"testing"
)

// buildResidentAttribute returns one resident attribute record: header +
// inline payload, sized to a multiple of 8 bytes.
func buildResidentAttribute(typ AttributeType, name string, data []byte) []byte {
	nameBytes := utf16leBytes(name)
	const headerLen = 24 // common header plus data_size/data_offset
	dataOffset := align8(headerLen + len(nameBytes))
	size := align8(dataOffset + len(data))

	buf := make([]byte, size)
	putU32(buf[0:], uint32(typ))
	putU32(buf[4:], uint32(size))
	buf[9] = byte(len(nameBytes) / 2)
	putU16(buf[10:], uint16(headerLen))
	putU16(buf[14:], 1) // identifier
	copy(buf[headerLen:], nameBytes)
	putU32(buf[16:], uint32(len(data)))
	putU16(buf[20:], uint16(dataOffset))
	copy(buf[dataOffset:], data)
	return buf
}

func align8(n int) int { return (n + 7) &^ 7 }

func utf16leBytes(s string) []byte {
	out := make([]byte, 0, len(s)*2)
	for _, r := range s {
		out = append(out, byte(r), byte(r>>8))
	}
	return out
}

func putU32(b []byte, v uint32) {
	for i := 0; i < 4; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}

func TestParseAttribute_Resident(t *testing.T) {
	payload := []byte("hello world")
	raw := buildResidentAttribute(AttrData, "", payload)

	attr, consumed, end, err := parseAttribute(raw, len(raw))
	if err != nil {
		t.Fatalf("parseAttribute: %v", err)
	}
	if end {
		t.Fatal("unexpected end-of-list")
	}
	if consumed != len(raw) {
		t.Errorf("consumed = %d, want %d", consumed, len(raw))
	}
	if !attr.IsResident() {
		t.Error("expected a resident attribute")
	}
	if !bytes.Equal(attr.ResidentData(), payload) {
		t.Errorf("resident data = %q, want %q", attr.ResidentData(), payload)
	}
	if attr.DataSize() != uint64(len(payload)) {
		t.Errorf("DataSize() = %d, want %d", attr.DataSize(), len(payload))
	}
}

func TestParseAttribute_NonResidentWithName(t *testing.T) {
	runs := []Run{{FirstVCN: 0, Length: 4, LCN: 20}}
	nameBytes := utf16leBytes("Zone.Identifier")
	// The non-resident header occupies fixed offsets 16-63 regardless of
	// where the name lives, so the name must follow it, not the common
	// 16-byte header.
	const nonResHeaderEnd = 64
	nameOffset := nonResHeaderEnd
	runListOffset := align8(nameOffset + len(nameBytes))
	runList := encodeDataRuns(runs)
	size := align8(runListOffset + len(runList))
	raw := make([]byte, size)
	putU32(raw[0:], uint32(AttrData))
	putU32(raw[4:], uint32(size))
	raw[8] = 1
	raw[9] = byte(len(nameBytes) / 2)
	putU16(raw[10:], uint16(nameOffset))
	copy(raw[nameOffset:], nameBytes)
	putU64(raw[16:], 0)
	putU64(raw[24:], runs[0].LastVCN())
	putU16(raw[32:], uint16(runListOffset))
	putU64(raw[40:], 16384)
	putU64(raw[48:], 16384)
	copy(raw[runListOffset:], runList)

	attr, _, _, err := parseAttribute(raw, len(raw))
	if err != nil {
		t.Fatalf("parseAttribute: %v", err)
	}
	if attr.Name != "Zone.Identifier" {
		t.Errorf("Name = %q, want Zone.Identifier", attr.Name)
	}
	if attr.IsResident() {
		t.Error("expected a non-resident attribute")
	}
	if len(attr.Runs()) != 1 || attr.Runs()[0].LCN != 20 {
		t.Errorf("Runs() = %+v", attr.Runs())
	}
}

func TestParseAttribute_EndOfListSentinel(t *testing.T) {
	raw := make([]byte, 4)
	putU32(raw, 0xFFFFFFFF)
	_, consumed, end, err := parseAttribute(raw, len(raw))
	if err != nil {
		t.Fatalf("parseAttribute: %v", err)
	}
	if !end {
		t.Fatal("expected end-of-list")
	}
	if consumed != 4 {
		t.Errorf("consumed = %d, want 4", consumed)
	}
}

func TestParseAttribute_SizeExceedsRecordBoundsIsCorrupted(t *testing.T) {
	raw := buildResidentAttribute(AttrData, "", []byte("x"))
	putU32(raw[4:], uint32(len(raw)*2))
	if _, _, _, err := parseAttribute(raw, len(raw)); err == nil {
		t.Fatal("expected an error when declared size exceeds the record")
	}
}

func TestAttribute_CompressionUnitSize(t *testing.T) {
	a := &Attribute{DataFlags: FlagCompressed, compressionUnitShift: 4}
	if got := a.CompressionUnitSize(4096); got != 16*4096 {
		t.Errorf("CompressionUnitSize = %d, want %d", got, 16*4096)
	}

	// A stored shift of zero on a compressed attribute defaults to 16
	// clusters (§8 boundary case).
	a2 := &Attribute{DataFlags: FlagCompressed}
	if got := a2.CompressionUnitSize(4096); got != 16*4096 {
		t.Errorf("CompressionUnitSize (zero shift) = %d, want %d", got, 16*4096)
	}

	a3 := &Attribute{}
	if got := a3.CompressionUnitSize(4096); got != 0 {
		t.Errorf("CompressionUnitSize (uncompressed) = %d, want 0", got)
	}
}
