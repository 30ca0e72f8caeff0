package ntfs

import "testing"

// encodeFileNameAttribute builds a full $FILE_NAME body (shares the same
// layout fileNameKeyFor produces for an $I30 index key, but with the full
// set of timestamps/sizes exercised here).
func encodeFileNameAttribute(parent FileReference, creation, modification, mftModification, access, allocatedSize, realSize uint64, flags uint32, name string, nameType NameType) []byte {
	nameBytes := utf16leBytes(name)
	buf := make([]byte, fileNameHeaderSize+len(nameBytes))
	putU64(buf[0:], uint64(parent))
	putU64(buf[8:], creation)
	putU64(buf[16:], modification)
	putU64(buf[24:], mftModification)
	putU64(buf[32:], access)
	putU64(buf[40:], allocatedSize)
	putU64(buf[48:], realSize)
	putU32(buf[56:], flags)
	buf[64] = byte(len(nameBytes) / 2)
	buf[65] = byte(nameType)
	copy(buf[66:], nameBytes)
	return buf
}

func TestParseFileNameAttribute_AllFields(t *testing.T) {
	parent := NewFileReference(5, 2)
	data := encodeFileNameAttribute(parent, 1, 2, 3, 4, 8192, 4096, fileAttrDirectory, "subdir", NameWin32)

	fn, err := parseFileNameAttribute(data)
	if err != nil {
		t.Fatalf("parseFileNameAttribute: %v", err)
	}
	if fn.ParentDirectory != parent {
		t.Errorf("ParentDirectory = %v, want %v", fn.ParentDirectory, parent)
	}
	if fn.CreationTime != 1 || fn.ModificationTime != 2 || fn.MftModificationTime != 3 || fn.AccessTime != 4 {
		t.Errorf("timestamps = %+v", fn)
	}
	if fn.AllocatedSize != 8192 || fn.RealSize != 4096 {
		t.Errorf("sizes = %d/%d, want 8192/4096", fn.AllocatedSize, fn.RealSize)
	}
	if fn.Name != "subdir" {
		t.Errorf("Name = %q, want subdir", fn.Name)
	}
	if fn.NameType != NameWin32 {
		t.Errorf("NameType = %v, want NameWin32", fn.NameType)
	}
	if !fn.IsDirectory() {
		t.Error("expected IsDirectory() true")
	}
}

func TestParseFileNameAttribute_NotDirectory(t *testing.T) {
	data := encodeFileNameAttribute(NewFileReference(5, 2), 0, 0, 0, 0, 0, 0, fileAttrArchive, "file.txt", NameWin32)
	fn, err := parseFileNameAttribute(data)
	if err != nil {
		t.Fatalf("parseFileNameAttribute: %v", err)
	}
	if fn.IsDirectory() {
		t.Error("expected IsDirectory() false")
	}
}

func TestParseFileNameAttribute_ShortHeaderIsCorrupted(t *testing.T) {
	data := make([]byte, fileNameHeaderSize-1)
	if _, err := parseFileNameAttribute(data); err == nil {
		t.Fatal("expected an error for a body shorter than the fixed header")
	}
}

func TestParseFileNameAttribute_NameOutOfBoundsIsCorrupted(t *testing.T) {
	data := make([]byte, fileNameHeaderSize)
	data[64] = 5 // claims a 5-UTF16-unit name, but no name bytes follow
	data[65] = byte(NameWin32)
	if _, err := parseFileNameAttribute(data); err == nil {
		t.Fatal("expected an error when the declared name length runs past the buffer")
	}
}

func TestParseFileNameAttribute_DosNameType(t *testing.T) {
	data := encodeFileNameAttribute(NewFileReference(1, 1), 0, 0, 0, 0, 0, 0, 0, "LONGFI~1.TXT", NameDos)
	fn, err := parseFileNameAttribute(data)
	if err != nil {
		t.Fatalf("parseFileNameAttribute: %v", err)
	}
	if fn.NameType != NameDos {
		t.Errorf("NameType = %v, want NameDos", fn.NameType)
	}
}
