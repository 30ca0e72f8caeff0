package ntfs

import (
	"container/list"
	"testing"
)

func encodeBootSector(bytesPerSector int, sectorsPerCluster byte, mftLCN, mftMirrorLCN uint64, mftSizeByte, indexSizeByte byte, serial uint64) []byte {
	buf := make([]byte, 512)
	copy(buf[3:11], "NTFS    ")
	putU16(buf[11:], uint16(bytesPerSector))
	buf[13] = sectorsPerCluster
	putU64(buf[48:], mftLCN)
	putU64(buf[56:], mftMirrorLCN)
	buf[64] = mftSizeByte
	buf[68] = indexSizeByte
	putU64(buf[72:], serial)
	return buf
}

func TestParseBootSector_Valid(t *testing.T) {
	boot := encodeBootSector(512, 8, 4, 100000, byte(int8(-12)), byte(int8(-10)), 0x1122334455667788)
	geo, err := parseBootSector(boot)
	if err != nil {
		t.Fatalf("parseBootSector: %v", err)
	}
	if geo.bytesPerSector != 512 || geo.clusterSize != 4096 {
		t.Errorf("sector/cluster = %d/%d, want 512/4096", geo.bytesPerSector, geo.clusterSize)
	}
	if geo.mftLCN != 4 || geo.mftMirrorLCN != 100000 {
		t.Errorf("mftLCN/mftMirrorLCN = %d/%d", geo.mftLCN, geo.mftMirrorLCN)
	}
	if geo.mftEntrySize != 4096 || geo.indexEntrySize != 1024 {
		t.Errorf("entrySize/indexEntrySize = %d/%d, want 4096/1024", geo.mftEntrySize, geo.indexEntrySize)
	}
	if geo.serialNumber != 0x1122334455667788 {
		t.Errorf("serialNumber = %#x", geo.serialNumber)
	}
}

func TestParseBootSector_BadOEMID(t *testing.T) {
	boot := encodeBootSector(512, 8, 4, 100000, byte(int8(-12)), byte(int8(-10)), 0)
	copy(boot[3:11], "EXFAT   ")
	if _, err := parseBootSector(boot); err == nil {
		t.Fatal("expected an error for a non-NTFS OEM id")
	}
}

func TestParseBootSector_ShortBufferIsCorrupted(t *testing.T) {
	if _, err := parseBootSector(make([]byte, 511)); err == nil {
		t.Fatal("expected an error for a boot sector shorter than 512 bytes")
	}
}

func TestParseBootSector_ZeroGeometryIsInvalid(t *testing.T) {
	boot := encodeBootSector(0, 8, 4, 100000, byte(int8(-12)), byte(int8(-10)), 0)
	if _, err := parseBootSector(boot); err == nil {
		t.Fatal("expected an error for zero bytes-per-sector")
	}
}

func TestDecodeRecordSize_NegativeShiftIsPowerOfTwo(t *testing.T) {
	size, err := decodeRecordSize(byte(int8(-12)), 4096)
	if err != nil {
		t.Fatalf("decodeRecordSize: %v", err)
	}
	if size != 4096 {
		t.Errorf("size = %d, want 4096", size)
	}
}

func TestDecodeRecordSize_PositiveMultiplier(t *testing.T) {
	size, err := decodeRecordSize(2, 4096)
	if err != nil {
		t.Fatalf("decodeRecordSize: %v", err)
	}
	if size != 8192 {
		t.Errorf("size = %d, want 8192", size)
	}
}

func TestDecodeRecordSize_ZeroByteIsInvalid(t *testing.T) {
	if _, err := decodeRecordSize(0, 4096); err == nil {
		t.Fatal("expected an error for a zero record size byte")
	}
}

func TestDecodeRecordSize_ShiftTooLargeIsInvalid(t *testing.T) {
	if _, err := decodeRecordSize(byte(int8(-32)), 4096); err == nil {
		t.Fatal("expected an error for a shift exceeding 31 bits")
	}
}

func TestDecodeRecordSize_ImplausiblySizedIsInvalid(t *testing.T) {
	if _, err := decodeRecordSize(100, 65536); err == nil {
		t.Fatal("expected an error for a record size over 1 MiB")
	}
}

func newTestVolume(cacheCap int) *Volume {
	return &Volume{
		cacheCap:  cacheCap,
		cacheList: list.New(),
		cacheMap:  map[uint64]*list.Element{},
	}
}

func TestVolumeCache_EvictsLeastRecentlyUsed(t *testing.T) {
	v := newTestVolume(2)
	e1 := &Entry{Index: 1}
	e2 := &Entry{Index: 2}
	e3 := &Entry{Index: 3}

	v.cachePut(1, e1)
	v.cachePut(2, e2)
	if _, ok := v.cacheGet(1); !ok {
		t.Fatal("expected entry 1 to still be cached")
	}
	// Touching 1 makes 2 the least recently used; inserting 3 should evict 2.
	v.cachePut(3, e3)

	if _, ok := v.cacheGet(2); ok {
		t.Error("expected entry 2 to have been evicted")
	}
	if _, ok := v.cacheGet(1); !ok {
		t.Error("expected entry 1 to remain cached")
	}
	if _, ok := v.cacheGet(3); !ok {
		t.Error("expected entry 3 to be cached")
	}
}

func TestVolumeCache_PutOverwritesExisting(t *testing.T) {
	v := newTestVolume(2)
	e1 := &Entry{Index: 1, Sequence: 1}
	e1Updated := &Entry{Index: 1, Sequence: 2}
	v.cachePut(1, e1)
	v.cachePut(1, e1Updated)

	got, ok := v.cacheGet(1)
	if !ok {
		t.Fatal("expected entry 1 to be cached")
	}
	if got.Sequence != 2 {
		t.Errorf("cached entry Sequence = %d, want 2 (overwritten)", got.Sequence)
	}
}

func TestGetEntry_CacheHit(t *testing.T) {
	v := newTestVolume(4)
	record := buildEntryRecord(512, 1024, 3, 1, RecordInUse, 0, nil)
	e, err := parseEntry(record, 7, 512)
	if err != nil {
		t.Fatalf("parseEntry: %v", err)
	}
	v.cachePut(7, e)

	fe, err := v.GetEntry(NewFileReference(7, 3))
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if fe.Reference() != NewFileReference(7, 3) {
		t.Errorf("Reference() = %v, want (7,3)", fe.Reference())
	}
}

func TestGetEntry_StaleReference(t *testing.T) {
	v := newTestVolume(4)
	record := buildEntryRecord(512, 1024, 3, 1, RecordInUse, 0, nil)
	e, err := parseEntry(record, 7, 512)
	if err != nil {
		t.Fatalf("parseEntry: %v", err)
	}
	v.cachePut(7, e)

	if _, err := v.GetEntry(NewFileReference(7, 4)); err == nil {
		t.Fatal("expected a stale-reference error for a mismatched sequence number")
	}
}

func TestRoot_UsesRootIndex(t *testing.T) {
	v := newTestVolume(4)
	record := buildEntryRecord(512, 1024, 1, 1, RecordInUse|RecordHasIndex, 0, nil)
	e, err := parseEntry(record, RootIndex, 512)
	if err != nil {
		t.Fatalf("parseEntry: %v", err)
	}
	v.cachePut(RootIndex, e)

	fe, err := v.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	if !fe.IsDirectory() {
		t.Error("expected the root entry to report as a directory")
	}
}

func TestOpenStreamFor_ResidentDispatchesToResidentStream(t *testing.T) {
	v := &Volume{}
	raw := buildResidentAttribute(AttrData, "", []byte("hello"))
	attr, _, _, err := parseAttribute(raw, len(raw))
	if err != nil {
		t.Fatalf("parseAttribute: %v", err)
	}
	cs := v.openStreamFor(attr)
	if cs.Size() != 5 {
		t.Errorf("Size() = %d, want 5", cs.Size())
	}
}

func TestOpenStreamFor_NonResidentDispatchesToClusterStream(t *testing.T) {
	const clusterSize = 512
	v := &Volume{reader: &memReader{data: make([]byte, 8*clusterSize)}, clusterSize: clusterSize}
	attr := &Attribute{
		Type:     AttrData,
		firstVCN: 0,
		lastVCN:  0,
		dataSize: clusterSize,
		runs:     []Run{{FirstVCN: 0, Length: 1, LCN: 2}},
	}
	cs := v.openStreamFor(attr)
	if cs.Size() != clusterSize {
		t.Errorf("Size() = %d, want %d", cs.Size(), clusterSize)
	}
}

func TestIndexKey_FixedWidthHex(t *testing.T) {
	k := indexKey(0xABCD)
	if len(k) != 16 {
		t.Fatalf("len(indexKey) = %d, want 16", len(k))
	}
	if k != "000000000000abcd" {
		t.Errorf("indexKey(0xABCD) = %q, want 000000000000abcd", k)
	}
}
