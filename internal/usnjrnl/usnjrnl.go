// Package usnjrnl parses the NTFS Update Sequence Number (change) journal,
// the append-only record stream stored at \$Extend\$UsnJrnl:$J (L12, §4.13).
package usnjrnl

import (
	"github.com/go-ntfs/ntfsfs/internal/binreader"
	"github.com/go-ntfs/ntfsfs/internal/ntfserr"
)

const op = "usnjrnl"

// pageSize is the block size $UsnJrnl:$J is zero-padded to between
// records; a record never straddles a page the journal driver hasn't
// written into, so a page whose first 4 bytes are zero is an unwritten
// hole, not a corrupt record.
const pageSize = 4096

// Reason flags (§3): what kind of change produced this record. Only a
// representative subset is named; unknown bits pass through in the raw
// Reason field untouched.
const (
	ReasonDataOverwrite      uint32 = 0x00000001
	ReasonDataExtend         uint32 = 0x00000002
	ReasonDataTruncation     uint32 = 0x00000004
	ReasonFileCreate         uint32 = 0x00000100
	ReasonFileDelete         uint32 = 0x00000200
	ReasonRename             uint32 = 0x00001000 | 0x00002000 // RenameOldName | RenameNewName
	ReasonSecurityChange     uint32 = 0x00000800
	ReasonHardLinkChange     uint32 = 0x00010000
	ReasonCompressionChange  uint32 = 0x00020000
	ReasonBasicInfoChange    uint32 = 0x00008000
	ReasonIndexableChange    uint32 = 0x00004000
	ReasonStreamChange       uint32 = 0x00200000
	ReasonClose              uint32 = 0x80000000
)

// Record is one parsed USN_RECORD_V2-shaped entry (§4.13, §6): a file's
// identity, its parent at the time of the change, the change itself, and
// the name it had at that moment.
type Record struct {
	RecordLength    uint32
	MajorVersion    uint16
	MinorVersion    uint16
	FileReference   uint64
	ParentReference uint64
	USN             uint64
	Timestamp       uint64
	Reason          uint32
	SourceInfo      uint32
	SecurityID      uint32
	FileAttributes  uint32
	Name            string
}

// Stream is the minimal positional-read surface Scan needs; a
// *ntfs.ClusterStream satisfies it without this package importing ntfs.
type Stream interface {
	Size() uint64
	ReadAt(buf []byte, offset uint64) (int, error)
}

// Scan walks every record in the journal stream, in USN (append) order,
// calling visit for each. It skips zero-filled holes — a page whose first
// 4 bytes are zero — by advancing to the next pageSize boundary, and stops
// cleanly at end of stream. visit returning a non-nil error stops the scan
// and that error is returned.
func Scan(s Stream, visit func(Record) error) error {
	size := s.Size()
	buf := make([]byte, pageSize)
	pos := uint64(0)

	for pos < size {
		n := pageSize
		if rem := size - pos; rem < pageSize {
			n = int(rem)
		}
		page := buf[:n]
		if _, err := s.ReadAt(page, pos); err != nil {
			return ntfserr.New(ntfserr.IO, op, err)
		}

		if n < 4 || (page[0] == 0 && page[1] == 0 && page[2] == 0 && page[3] == 0) {
			pos += pageSize - pos%pageSize
			continue
		}

		off := 0
		for off < n {
			rec, consumed, ok, err := parseRecord(page[off:])
			if err != nil {
				return err
			}
			if !ok {
				// Ran into the zero-filled tail of a partially-written page:
				// nothing more to read until the next page boundary.
				break
			}
			if err := visit(rec); err != nil {
				return err
			}
			off += consumed
		}
		pos += pageSize - pos%pageSize
	}
	return nil
}

// parseRecord decodes one record at the front of data. ok is false (with a
// nil error) when data starts with a zero record_length, meaning the rest
// of the page is unwritten padding rather than a truncated record.
func parseRecord(data []byte) (rec Record, consumed int, ok bool, err error) {
	if len(data) < 4 {
		return Record{}, 0, false, nil
	}
	r := binreader.New(data)
	recordLength, ok1 := r.Uint32At(0)
	if !ok1 {
		return Record{}, 0, false, nil
	}
	if recordLength == 0 {
		return Record{}, 0, false, nil
	}
	if int(recordLength) > len(data) {
		return Record{}, 0, false, ntfserr.Errorf(ntfserr.CorruptedRecord, op, "usn record length %d exceeds remaining %d bytes", recordLength, len(data))
	}

	majorVersion, ok2 := r.Uint16At(4)
	minorVersion, ok3 := r.Uint16At(6)
	fileRef, ok4 := r.Uint64At(8)
	parentRef, ok5 := r.Uint64At(16)
	usn, ok6 := r.Uint64At(24)
	timestamp, ok7 := r.Uint64At(32)
	reason, ok8 := r.Uint32At(40)
	sourceInfo, ok9 := r.Uint32At(44)
	securityID, ok10 := r.Uint32At(48)
	fileAttrs, ok11 := r.Uint32At(52)
	nameLen, ok12 := r.Uint16At(56)
	nameOffset, ok13 := r.Uint16At(58)
	if !ok2 || !ok3 || !ok4 || !ok5 || !ok6 || !ok7 || !ok8 || !ok9 || !ok10 || !ok11 || !ok12 || !ok13 {
		return Record{}, 0, false, ntfserr.Errorf(ntfserr.CorruptedRecord, op, "usn record header truncated")
	}

	var name string
	if nameLen > 0 {
		nameBytes, ok := r.At(int(nameOffset), int(nameLen))
		if !ok {
			return Record{}, 0, false, ntfserr.Errorf(ntfserr.CorruptedRecord, op, "usn record name out of bounds")
		}
		name = binreader.DecodeUTF16LE(nameBytes)
	}

	rec = Record{
		RecordLength:    recordLength,
		MajorVersion:    majorVersion,
		MinorVersion:    minorVersion,
		FileReference:   fileRef,
		ParentReference: parentRef,
		USN:             usn,
		Timestamp:       timestamp,
		Reason:          reason,
		SourceInfo:      sourceInfo,
		SecurityID:      securityID,
		FileAttributes:  fileAttrs,
		Name:            name,
	}
	return rec, int(recordLength), true, nil
}
