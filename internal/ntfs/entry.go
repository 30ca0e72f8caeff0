package ntfs

import (
	"sort"

	"github.com/go-ntfs/ntfsfs/internal/binreader"
	"github.com/go-ntfs/ntfsfs/internal/ntfserr"
)

const (
	signatureFile = "FILE"
	signatureBaad = "BAAD"
)

// Entry is one parsed MFT record (L3, §4.4): header fields plus its
// attribute sequence, indexed by (type, name) for chain lookup.
type Entry struct {
	Index      uint64
	Sequence   uint16
	LinkCount  uint16
	Flags      uint16
	UsedSize   uint32
	Allocated  uint32
	BaseRecord FileReference

	IsEmpty   bool
	IsBaad    bool // signature was BAAD: header valid, attributes not parsed
	attrLists []*Attribute // $ATTRIBUTE_LIST attributes found on this entry

	chains   map[chainKey]*Attribute
	chainErr map[chainKey]error // chains that failed $ATTRIBUTE_LIST splicing; see resolveAttributeList
}

// FileReference returns this entry's own file reference (index + sequence).
func (e *Entry) FileReference() FileReference {
	return NewFileReference(e.Index, e.Sequence)
}

// IsAllocated reports the IN_USE flag.
func (e *Entry) IsAllocated() bool { return e.Flags&RecordInUse != 0 }

// IsDirectory reports the HAS_INDEX flag.
func (e *Entry) IsDirectory() bool { return e.Flags&RecordHasIndex != 0 }

// IsBaseRecord reports whether this entry is a base record (as opposed to
// an $ATTRIBUTE_LIST extension record).
func (e *Entry) IsBaseRecord() bool { return e.BaseRecord.IsZero() }

// AttributesByType returns the head of the chain for every (type, *) chain
// matching typ, across all names.
func (e *Entry) AttributesByType(typ AttributeType) []*Attribute {
	var out []*Attribute
	for k, a := range e.chains {
		if k.typ == typ {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AttributeChain returns the head of the chain for exactly (typ, name), or
// nil if absent.
func (e *Entry) AttributeChain(typ AttributeType, name string) *Attribute {
	return e.chains[chainKey{typ, name}]
}

// ChainError reports the splice failure recorded against (typ, name) by
// resolveAttributeList, if that chain required $ATTRIBUTE_LIST splicing and
// it failed. A nil result doesn't imply the chain exists — it only means
// splicing didn't fail; callers still need AttributeChain to check presence.
func (e *Entry) ChainError(typ AttributeType, name string) error {
	return e.chainErr[chainKey{typ, name}]
}

// AllAttributes returns every chain head on this entry (one per distinct
// (type, name) pair actually present in this record, before any
// $ATTRIBUTE_LIST splicing).
func (e *Entry) AllAttributes() []*Attribute {
	out := make([]*Attribute, 0, len(e.chains))
	for _, a := range e.chains {
		out = append(out, a)
	}
	return out
}

// parseEntry parses one MFT record (§4.4). record must already be a
// private copy sized exactly entrySize (fix-up mutates it in place).
func parseEntry(record []byte, index uint64, sectorSize int) (*Entry, error) {
	r := binreader.New(record)
	sig, ok := r.At(0, 4)
	if !ok {
		return nil, ntfserr.Errorf(ntfserr.CorruptedRecord, op, "record shorter than header")
	}

	e := &Entry{Index: index, chains: map[chainKey]*Attribute{}}

	switch string(sig) {
	case signatureFile:
	case signatureBaad:
		e.IsBaad = true
		return e, nil
	default:
		return nil, ntfserr.Errorf(ntfserr.CorruptedRecord, op, "bad record signature %q", sig)
	}

	usaOffset, ok1 := r.Uint16At(4)
	usaCount, ok2 := r.Uint16At(6)
	sequence, ok3 := r.Uint16At(16)
	linkCount, ok4 := r.Uint16At(18)
	firstAttrOffset, ok5 := r.Uint16At(20)
	flags, ok6 := r.Uint16At(22)
	usedSize, ok7 := r.Uint32At(24)
	allocatedSize, ok8 := r.Uint32At(28)
	baseRef, ok9 := r.Uint64At(32)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 || !ok7 || !ok8 || !ok9 {
		return nil, ntfserr.Errorf(ntfserr.CorruptedRecord, op, "record header truncated")
	}

	if err := applyFixup(record, sectorSize, usaOffset, usaCount); err != nil {
		return nil, err
	}

	if usedSize > allocatedSize || uint64(allocatedSize) > uint64(len(record)) {
		return nil, ntfserr.Errorf(ntfserr.CorruptedRecord, op, "used_size %d / allocated_size %d inconsistent with record size %d", usedSize, allocatedSize, len(record))
	}

	e.Sequence = sequence
	e.LinkCount = linkCount
	e.Flags = flags
	e.UsedSize = usedSize
	e.Allocated = allocatedSize
	e.BaseRecord = FileReference(baseRef)

	if int(usedSize) == int(firstAttrOffset) {
		e.IsEmpty = true
		return e, nil
	}

	type pending struct {
		key  chainKey
		attr *Attribute
	}
	var order []pending

	pos := int(firstAttrOffset)
	for pos < int(usedSize) {
		attr, consumed, end, err := parseAttribute(record[pos:], int(usedSize)-pos)
		if err != nil {
			return nil, err
		}
		if end {
			break
		}
		if attr.Type == AttrAttributeList {
			e.attrLists = append(e.attrLists, attr)
		}
		order = append(order, pending{chainKey{attr.Type, attr.Name}, attr})
		pos += consumed
	}

	byKey := map[chainKey][]*Attribute{}
	for _, p := range order {
		byKey[p.key] = append(byKey[p.key], p.attr)
	}
	for k, list := range byKey {
		sort.SliceStable(list, func(i, j int) bool { return list[i].firstVCN < list[j].firstVCN })
		for i := 0; i+1 < len(list); i++ {
			// Several $FILE_NAME attributes (one per hard link) share
			// first_vcn 0 legitimately and are chained in record order.
			if list[i].firstVCN == list[i+1].firstVCN && k.typ != AttrFileName {
				return nil, ntfserr.Errorf(ntfserr.CorruptedRecord, op, "duplicate first_vcn %d in (type %v, name %q) attribute chain", list[i].firstVCN, k.typ, k.name)
			}
			list[i].next = list[i+1]
		}
		e.chains[k] = list[0]
	}

	return e, nil
}

// attributeListAttributes returns the $ATTRIBUTE_LIST attributes found on
// this entry (there is normally at most one; resident or non-resident).
func (e *Entry) attributeListAttributes() []*Attribute { return e.attrLists }
