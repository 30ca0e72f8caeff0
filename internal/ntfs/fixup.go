package ntfs

import (
	"encoding/binary"

	"github.com/go-ntfs/ntfsfs/internal/ntfserr"
)

const op = "ntfs"

// applyFixup applies and verifies the Update Sequence Array in-place on a
// multi-sector record (§4.1). buf is the full record; sectorSize is the
// device sector size; usaOffset/usaCount come from the record header.
//
// On success every sector's trailing 2 bytes hold the real on-disk data
// that the USA protected (the record is restored to logical form). Fails
// with CorruptedRecord if the USA doesn't fit the first sector, the record
// length isn't a multiple of sectorSize, or any sector's stored tail
// doesn't match the declared USN.
func applyFixup(buf []byte, sectorSize int, usaOffset, usaCount uint16) error {
	if sectorSize <= 0 || len(buf)%sectorSize != 0 {
		return ntfserr.Errorf(ntfserr.CorruptedRecord, op, "record length %d not a multiple of sector size %d", len(buf), sectorSize)
	}
	usaEnd := int(usaOffset) + 2*int(usaCount)
	if usaCount == 0 || int(usaOffset)+2 > sectorSize || usaEnd > sectorSize {
		return ntfserr.Errorf(ntfserr.CorruptedRecord, op, "update sequence array [%d,%d) exceeds one sector", usaOffset, usaEnd)
	}
	if usaEnd > len(buf) {
		return ntfserr.Errorf(ntfserr.CorruptedRecord, op, "update sequence array extends past record")
	}

	numSectors := len(buf) / sectorSize
	if int(usaCount)-1 != numSectors {
		return ntfserr.Errorf(ntfserr.CorruptedRecord, op, "usa count %d does not match %d sectors", usaCount, numSectors)
	}

	usn := binary.LittleEndian.Uint16(buf[usaOffset:])
	for i := 0; i < numSectors; i++ {
		tailOff := (i+1)*sectorSize - 2
		if binary.LittleEndian.Uint16(buf[tailOff:]) != usn {
			return ntfserr.Errorf(ntfserr.CorruptedRecord, op, "sector %d update sequence mismatch", i)
		}
		replOff := int(usaOffset) + 2 + 2*i
		copy(buf[tailOff:tailOff+2], buf[replOff:replOff+2])
	}
	return nil
}
