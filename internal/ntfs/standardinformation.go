package ntfs

import (
	"github.com/go-ntfs/ntfsfs/internal/binreader"
	"github.com/go-ntfs/ntfsfs/internal/ntfserr"
)

// StandardInformation is the parsed $STANDARD_INFORMATION body (§4.10):
// the timestamps and flags every FileEntry reports, independent of which
// hard-link name was used to reach it.
type StandardInformation struct {
	CreationTime        uint64
	ModificationTime    uint64
	MftModificationTime uint64
	AccessTime          uint64
	FileAttributeFlags  uint32
}

// parseStandardInformation decodes the fixed v1.2 header fields; the
// optional NTFS 3.0+ tail (owner/security/quota/usn) isn't exposed.
func parseStandardInformation(data []byte) (StandardInformation, error) {
	if len(data) < 48 {
		return StandardInformation{}, ntfserr.Errorf(ntfserr.CorruptedAttribute, op, "$STANDARD_INFORMATION shorter than header")
	}
	r := binreader.New(data)
	creation, ok1 := r.Uint64At(0)
	modification, ok2 := r.Uint64At(8)
	mftModification, ok3 := r.Uint64At(16)
	access, ok4 := r.Uint64At(24)
	flags, ok5 := r.Uint32At(32)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return StandardInformation{}, ntfserr.Errorf(ntfserr.CorruptedAttribute, op, "$STANDARD_INFORMATION truncated")
	}
	return StandardInformation{
		CreationTime:        creation,
		ModificationTime:    modification,
		MftModificationTime: mftModification,
		AccessTime:          access,
		FileAttributeFlags:  flags,
	}, nil
}
