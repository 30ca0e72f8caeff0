package ntfs

import (
	"github.com/go-ntfs/ntfsfs/internal/binreader"
	"github.com/go-ntfs/ntfsfs/internal/ntfserr"
)

// Attribute is one parsed MftAttribute (L2, §4.3): a header plus either a
// resident inline payload or a non-resident run list.
type Attribute struct {
	Type       AttributeType
	Name       string
	DataFlags  DataFlags
	Identifier uint16

	resident     bool
	residentData []byte

	firstVCN             uint64
	lastVCN              uint64
	allocatedSize        uint64
	dataSize             uint64
	validDataSize        uint64
	totalDataSize        uint64
	compressionUnitShift uint8
	runs                 []Run

	next *Attribute // link to the next attribute of the same (type,name) chain
}

// IsResident reports whether the attribute's data lives inline in the MFT
// record rather than out on clusters.
func (a *Attribute) IsResident() bool { return a.resident }

// ResidentData returns the inline bytes for a resident attribute, or nil
// for a non-resident one.
func (a *Attribute) ResidentData() []byte { return a.residentData }

// DataSize is the logical byte length of the attribute's stream.
func (a *Attribute) DataSize() uint64 {
	if a.resident {
		return uint64(len(a.residentData))
	}
	return a.dataSize
}

// AllocatedSize is the on-disk allocated byte length (non-resident only;
// zero for resident attributes, whose size is exactly DataSize).
func (a *Attribute) AllocatedSize() uint64 { return a.allocatedSize }

// ValidDataSize is the prefix of DataSize that holds meaningful bytes;
// bytes beyond it (but before DataSize) read as zero (§4.6, §8).
func (a *Attribute) ValidDataSize() uint64 {
	if a.resident {
		return a.DataSize()
	}
	return a.validDataSize
}

// VCNRange returns the inclusive [first, last] virtual cluster range this
// attribute's run list covers. Meaningless for resident attributes.
func (a *Attribute) VCNRange() (first, last uint64) { return a.firstVCN, a.lastVCN }

// Runs returns the decoded data runs in VCN order.
func (a *Attribute) Runs() []Run { return a.runs }

// CompressionUnitSize is the byte size of one LZNT1 compression unit, or 0
// if the attribute isn't compressed (§4.3, §4.6). A stored shift of zero on
// a compressed attribute is treated as 16 clusters (§8 boundary case).
func (a *Attribute) CompressionUnitSize(clusterSize uint64) uint64 {
	if !a.DataFlags.Compressed() {
		return 0
	}
	shift := a.compressionUnitShift
	if shift == 0 {
		shift = 4 // 1<<4 == 16 clusters
	}
	return (uint64(1) << shift) * clusterSize
}

// TotalDataSize is the post-compression (on-disk) size, populated only
// when the attribute declares a non-zero compression unit shift.
func (a *Attribute) TotalDataSize() uint64 { return a.totalDataSize }

// Next returns the next attribute in this (type,name) chain, or nil.
func (a *Attribute) Next() *Attribute { return a.next }

// parseAttribute parses one attribute starting at the front of data, which
// must be a slice into the (already fixed-up) owning MFT record bounded by
// usedSize. Returns (nil, 4, true, nil) when the sentinel end-of-list
// marker is seen.
func parseAttribute(data []byte, recordUsedSize int) (attr *Attribute, consumed int, end bool, err error) {
	r := binreader.New(data)
	typeRaw, ok := r.Uint32()
	if !ok {
		return nil, 0, false, ntfserr.Errorf(ntfserr.CorruptedAttribute, op, "attribute header truncated")
	}
	if AttributeType(typeRaw) == attrEndOfList {
		return nil, 4, true, nil
	}

	size, ok := r.Uint32()
	nonResidentFlag, ok2 := r.Uint8()
	nameLength, ok3 := r.Uint8()
	nameOffset, ok4 := r.Uint16At(10)
	dataFlags, ok5 := r.Uint16At(12)
	identifier, ok6 := r.Uint16At(14)
	if !ok || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 {
		return nil, 0, false, ntfserr.Errorf(ntfserr.CorruptedAttribute, op, "attribute header truncated")
	}
	if size%8 != 0 || size < 16 {
		return nil, 0, false, ntfserr.Errorf(ntfserr.CorruptedAttribute, op, "attribute size %d invalid", size)
	}
	if int(size) > recordUsedSize || int(size) > len(data) {
		return nil, 0, false, ntfserr.Errorf(ntfserr.CorruptedAttribute, op, "attribute size %d exceeds record bounds", size)
	}

	body := data[:size]
	var name string
	if nameLength > 0 {
		nameBytes, ok := r.At(int(nameOffset), int(nameLength)*2)
		if !ok {
			return nil, 0, false, ntfserr.Errorf(ntfserr.CorruptedAttribute, op, "attribute name out of bounds")
		}
		name = binreader.DecodeUTF16LE(nameBytes)
	}

	a := &Attribute{
		Type:       AttributeType(typeRaw),
		Name:       name,
		DataFlags:  DataFlags(dataFlags),
		Identifier: identifier,
	}

	if nonResidentFlag == 0 {
		dataSize, ok := r.Uint32At(16)
		dataOffset, ok2 := r.Uint16At(20)
		if !ok || !ok2 {
			return nil, 0, false, ntfserr.Errorf(ntfserr.CorruptedAttribute, op, "resident header truncated")
		}
		payload, ok := r.At(int(dataOffset), int(dataSize))
		if !ok {
			return nil, 0, false, ntfserr.Errorf(ntfserr.CorruptedAttribute, op, "resident payload out of bounds")
		}
		a.resident = true
		a.residentData = append([]byte(nil), payload...)
		return a, int(size), false, nil
	}

	firstVCN, ok := r.Uint64At(16)
	lastVCN, ok2 := r.Uint64At(24)
	runListOffset, ok3 := r.Uint16At(32)
	cuShift, ok4 := r.Uint8At(34)
	allocatedSize, ok5 := r.Uint64At(40)
	dataSize, ok6 := r.Uint64At(48)
	validDataSize, ok7 := r.Uint64At(56)
	if !ok || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 || !ok7 {
		return nil, 0, false, ntfserr.Errorf(ntfserr.CorruptedAttribute, op, "non-resident header truncated")
	}
	a.firstVCN = firstVCN
	a.lastVCN = lastVCN
	a.allocatedSize = allocatedSize
	a.dataSize = dataSize
	a.validDataSize = validDataSize
	a.compressionUnitShift = cuShift

	if cuShift != 0 {
		totalDataSize, ok := r.Uint64At(64)
		if !ok {
			return nil, 0, false, ntfserr.Errorf(ntfserr.CorruptedAttribute, op, "compressed attribute missing total_data_size")
		}
		a.totalDataSize = totalDataSize
	}

	runListBytes, ok := r.At(int(runListOffset), len(body)-int(runListOffset))
	if !ok {
		return nil, 0, false, ntfserr.Errorf(ntfserr.CorruptedAttribute, op, "run list offset out of bounds")
	}
	runs, err := decodeDataRuns(runListBytes, firstVCN, lastVCN, 0)
	if err != nil {
		return nil, 0, false, err
	}
	a.runs = runs
	return a, int(size), false, nil
}

// chainKey identifies attributes that belong to the same logical stream:
// same type and same (possibly empty) name.
type chainKey struct {
	typ  AttributeType
	name string
}
