package ntfs

import "testing"

func TestOpenMftMetadataFile_RequiresEntryAndSectorSize(t *testing.T) {
	reader := &memReader{data: make([]byte, 1024)}
	if _, err := OpenMftMetadataFile(reader, MftMetadataOptions{EntrySize: 0, SectorSize: 512}); err == nil {
		t.Fatal("expected an error for a zero entry size")
	}
	if _, err := OpenMftMetadataFile(reader, MftMetadataOptions{EntrySize: 1024, SectorSize: 0}); err == nil {
		t.Fatal("expected an error for a zero sector size")
	}
}

func TestOpenMftMetadataFile_DefaultsCacheSize(t *testing.T) {
	reader := &memReader{data: make([]byte, 1024)}
	m, err := OpenMftMetadataFile(reader, MftMetadataOptions{EntrySize: 1024, SectorSize: 512})
	if err != nil {
		t.Fatalf("OpenMftMetadataFile: %v", err)
	}
	if m.cacheCap != DefaultEntryCacheSize {
		t.Errorf("cacheCap = %d, want %d", m.cacheCap, DefaultEntryCacheSize)
	}
}

func TestMftMetadataFile_EntryCount(t *testing.T) {
	reader := &memReader{data: make([]byte, 1024*10)}
	m, err := OpenMftMetadataFile(reader, MftMetadataOptions{EntrySize: 1024, SectorSize: 512})
	if err != nil {
		t.Fatalf("OpenMftMetadataFile: %v", err)
	}
	if m.EntryCount() != 10 {
		t.Errorf("EntryCount() = %d, want 10", m.EntryCount())
	}
}

// buildMftMetadataImage concatenates fixed-size records into a flat buffer
// the way a carved/extracted $MFT file lays them out, one entrySize slot per
// index regardless of whether the record within it is populated.
func buildMftMetadataImage(entrySize int, records map[uint64][]byte) []byte {
	var maxIndex uint64
	for idx := range records {
		if idx > maxIndex {
			maxIndex = idx
		}
	}
	buf := make([]byte, entrySize*int(maxIndex+1))
	for idx, rec := range records {
		copy(buf[int(idx)*entrySize:], rec)
	}
	return buf
}

func TestMftMetadataFile_GetEntryByIndex(t *testing.T) {
	const entrySize = 1024
	record := buildEntryRecord(512, entrySize, 1, 1, RecordInUse, 0, nil)
	image := buildMftMetadataImage(entrySize, map[uint64][]byte{5: record})

	m, err := OpenMftMetadataFile(&memReader{data: image}, MftMetadataOptions{EntrySize: entrySize, SectorSize: 512})
	if err != nil {
		t.Fatalf("OpenMftMetadataFile: %v", err)
	}

	e, err := m.GetEntryByIndex(5)
	if err != nil {
		t.Fatalf("GetEntryByIndex: %v", err)
	}
	if e.Index != 5 || e.Sequence != 1 {
		t.Errorf("entry = %+v, want index 5 sequence 1", e)
	}
}

func TestMftMetadataFile_GetEntryByIndexCachesResult(t *testing.T) {
	const entrySize = 1024
	record := buildEntryRecord(512, entrySize, 1, 1, RecordInUse, 0, nil)
	image := buildMftMetadataImage(entrySize, map[uint64][]byte{0: record})

	m, err := OpenMftMetadataFile(&memReader{data: image}, MftMetadataOptions{EntrySize: entrySize, SectorSize: 512})
	if err != nil {
		t.Fatalf("OpenMftMetadataFile: %v", err)
	}

	first, err := m.GetEntryByIndex(0)
	if err != nil {
		t.Fatalf("GetEntryByIndex: %v", err)
	}
	second, err := m.GetEntryByIndex(0)
	if err != nil {
		t.Fatalf("GetEntryByIndex (cached): %v", err)
	}
	if first != second {
		t.Error("expected the second GetEntryByIndex to return the cached *Entry, not a fresh parse")
	}
}

func TestMftMetadataFile_GetEntryByIndexOutOfRangeFails(t *testing.T) {
	const entrySize = 1024
	image := buildMftMetadataImage(entrySize, map[uint64][]byte{0: buildEntryRecord(512, entrySize, 1, 1, RecordInUse, 0, nil)})

	m, err := OpenMftMetadataFile(&memReader{data: image}, MftMetadataOptions{EntrySize: entrySize, SectorSize: 512})
	if err != nil {
		t.Fatalf("OpenMftMetadataFile: %v", err)
	}

	if _, err := m.GetEntryByIndex(50); err == nil {
		t.Fatal("expected an error reading a record past the end of the image")
	}
}

func TestMftMetadataFile_Cache_EvictsLeastRecentlyUsed(t *testing.T) {
	const entrySize = 1024
	records := map[uint64][]byte{
		0: buildEntryRecord(512, entrySize, 1, 1, RecordInUse, 0, nil),
		1: buildEntryRecord(512, entrySize, 1, 1, RecordInUse, 0, nil),
		2: buildEntryRecord(512, entrySize, 1, 1, RecordInUse, 0, nil),
	}
	image := buildMftMetadataImage(entrySize, records)

	m, err := OpenMftMetadataFile(&memReader{data: image}, MftMetadataOptions{EntrySize: entrySize, SectorSize: 512, EntryCacheSize: 2})
	if err != nil {
		t.Fatalf("OpenMftMetadataFile: %v", err)
	}

	e0, err := m.GetEntryByIndex(0)
	if err != nil {
		t.Fatalf("GetEntryByIndex(0): %v", err)
	}
	if _, err := m.GetEntryByIndex(1); err != nil {
		t.Fatalf("GetEntryByIndex(1): %v", err)
	}
	// Touching 0 again makes 1 the least recently used.
	if _, err := m.GetEntryByIndex(0); err != nil {
		t.Fatalf("GetEntryByIndex(0) again: %v", err)
	}
	if _, err := m.GetEntryByIndex(2); err != nil {
		t.Fatalf("GetEntryByIndex(2): %v", err)
	}

	if _, ok := m.cacheGet(1); ok {
		t.Error("expected entry 1 to have been evicted")
	}
	if _, ok := m.cacheGet(0); !ok {
		t.Error("expected entry 0 to remain cached")
	}
	e0Again, _ := m.cacheGet(0)
	if e0Again != e0 {
		t.Error("cached entry 0 should be the same *Entry instance returned earlier")
	}
}
