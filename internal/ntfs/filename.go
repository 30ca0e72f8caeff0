package ntfs

import (
	"github.com/go-ntfs/ntfsfs/internal/binreader"
	"github.com/go-ntfs/ntfsfs/internal/ntfserr"
)

// fileNameHeaderSize is the fixed portion of a $FILE_NAME attribute (and,
// identically shaped, an $I30 index key) before its name bytes: parent
// reference(8) + 4 timestamps(32) + allocated_size(8) + real_size(8) +
// file_attribute_flags(4) + reparse/ea(4) + name_length(1) + name_type(1).
const fileNameHeaderSize = 66

// File attribute flags as stored in $FILE_NAME and $STANDARD_INFORMATION
// (§3). Only the bits this package inspects are named.
const (
	fileAttrReadOnly  uint32 = 0x00000001
	fileAttrHidden    uint32 = 0x00000002
	fileAttrSystem    uint32 = 0x00000004
	fileAttrDirectory uint32 = 0x10000000 // synthesized by NTFS, not stored on-disk for files
	fileAttrArchive   uint32 = 0x00000020
	fileAttrReparse   uint32 = 0x00000400
	fileAttrCompressed uint32 = 0x00000800
	fileAttrSparse    uint32 = 0x00000200
	fileAttrEncrypted uint32 = 0x00004000
)

// NameType is the $FILE_NAME name_type field: which namespace a name lives
// in (§3, §4.12).
type NameType uint8

const (
	NamePosix   NameType = 0
	NameWin32   NameType = 1
	NameDos     NameType = 2
	NameWin32Dos NameType = 3
)

// FileNameAttribute is one parsed $FILE_NAME attribute body (§4.10, §4.12).
type FileNameAttribute struct {
	ParentDirectory     FileReference
	CreationTime        uint64
	ModificationTime    uint64
	MftModificationTime uint64
	AccessTime          uint64
	AllocatedSize       uint64
	RealSize            uint64
	FileAttributeFlags  uint32
	Name                string
	NameType            NameType
}

// IsDirectory reports the synthesized directory bit in the flags this
// particular $FILE_NAME instance carries (set consistently by NTFS across
// every hard link's $FILE_NAME, unlike most other attribute-specific bits).
func (f FileNameAttribute) IsDirectory() bool { return f.FileAttributeFlags&fileAttrDirectory != 0 }

// parseFileNameAttribute decodes a $FILE_NAME body (or an $I30 index key,
// which shares the identical layout).
func parseFileNameAttribute(data []byte) (FileNameAttribute, error) {
	if len(data) < fileNameHeaderSize {
		return FileNameAttribute{}, ntfserr.Errorf(ntfserr.CorruptedAttribute, op, "$FILE_NAME shorter than header")
	}
	r := binreader.New(data)
	parentRef, ok1 := r.Uint64At(0)
	creation, ok2 := r.Uint64At(8)
	modification, ok3 := r.Uint64At(16)
	mftModification, ok4 := r.Uint64At(24)
	access, ok5 := r.Uint64At(32)
	allocatedSize, ok6 := r.Uint64At(40)
	realSize, ok7 := r.Uint64At(48)
	flags, ok8 := r.Uint32At(56)
	nameLen, ok9 := r.Uint8At(64)
	nameType, ok10 := r.Uint8At(65)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 || !ok7 || !ok8 || !ok9 || !ok10 {
		return FileNameAttribute{}, ntfserr.Errorf(ntfserr.CorruptedAttribute, op, "$FILE_NAME header truncated")
	}

	nameBytes, ok := r.At(fileNameHeaderSize, int(nameLen)*2)
	if !ok {
		return FileNameAttribute{}, ntfserr.Errorf(ntfserr.CorruptedAttribute, op, "$FILE_NAME name out of bounds")
	}

	return FileNameAttribute{
		ParentDirectory:     FileReference(parentRef),
		CreationTime:        creation,
		ModificationTime:    modification,
		MftModificationTime: mftModification,
		AccessTime:          access,
		AllocatedSize:       allocatedSize,
		RealSize:            realSize,
		FileAttributeFlags:  flags,
		Name:                binreader.DecodeUTF16LE(nameBytes),
		NameType:            NameType(nameType),
	}, nil
}
