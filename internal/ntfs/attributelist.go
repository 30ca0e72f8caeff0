package ntfs

import (
	"sort"

	"github.com/go-ntfs/ntfsfs/internal/binreader"
	"github.com/go-ntfs/ntfsfs/internal/ntfserr"
)

// listEntry is one parsed record from an $ATTRIBUTE_LIST attribute (§4.5).
type listEntry struct {
	Type         AttributeType
	Name         string
	FirstVCN     uint64
	MftReference FileReference
	Identifier   uint16
}

// entryLoader is the subset of Volume the attribute-list resolver needs:
// fetching an MFT entry by index, independent of the cache/reference
// validation policy Volume wraps around it.
type entryLoader interface {
	loadEntryByIndex(index uint64) (*Entry, error)
}

// parseAttributeList decodes the $ATTRIBUTE_LIST body (resident or the
// materialized bytes of a non-resident one) into its records.
func parseAttributeList(data []byte) ([]listEntry, error) {
	var entries []listEntry
	pos := 0
	for pos < len(data) {
		r := binreader.New(data[pos:])
		typeRaw, ok1 := r.Uint32()
		entrySize, ok2 := r.Uint16()
		nameLen, ok3 := r.Uint8()
		nameOffset, ok4 := r.Uint8()
		firstVCN, ok5 := r.Uint64()
		mftRef, ok6 := r.Uint64()
		identifier, ok7 := r.Uint16()
		if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 || !ok7 {
			return nil, ntfserr.Errorf(ntfserr.CorruptedAttribute, op, "attribute list record truncated")
		}
		if entrySize == 0 || int(entrySize) > len(data)-pos {
			return nil, ntfserr.Errorf(ntfserr.CorruptedAttribute, op, "attribute list entry size %d invalid", entrySize)
		}

		var name string
		if nameLen > 0 {
			nameBytes, ok := r.At(int(nameOffset), int(nameLen)*2)
			if !ok {
				return nil, ntfserr.Errorf(ntfserr.CorruptedAttribute, op, "attribute list name out of bounds")
			}
			name = binreader.DecodeUTF16LE(nameBytes)
		}

		entries = append(entries, listEntry{
			Type:         AttributeType(typeRaw),
			Name:         name,
			FirstVCN:     firstVCN,
			MftReference: FileReference(mftRef),
			Identifier:   identifier,
		})
		pos += int(entrySize)
	}
	return entries, nil
}

// resolveAttributeList splices extension-record attributes into base's
// per-(type,name) chains, per the §4.5 algorithm. Individual chains that
// fail to resolve are marked corrupt (TruncatedAttributeChain surfaces only
// when that specific chain is later accessed); other chains remain usable.
func resolveAttributeList(base *Entry, loader entryLoader) map[chainKey]error {
	chainErrs := map[chainKey]error{}
	for _, listAttr := range base.attributeListAttributes() {
		raw := listAttr.residentData
		if raw == nil {
			// Non-resident $ATTRIBUTE_LIST: the caller (Volume) materializes
			// it before calling resolveAttributeList; absence here means it
			// couldn't be read, which the base entry already reflects via
			// its untouched chains.
			continue
		}
		entries, err := parseAttributeList(raw)
		if err != nil {
			continue
		}

		byKey := map[chainKey][]listEntry{}
		for _, e := range entries {
			byKey[chainKey{e.Type, e.Name}] = append(byKey[chainKey{e.Type, e.Name}], e)
		}

		for key, list := range byKey {
			sort.SliceStable(list, func(i, j int) bool { return list[i].FirstVCN < list[j].FirstVCN })
			spliced, err := spliceChain(base, key, list, loader)
			if err != nil {
				chainErrs[key] = err
				if base.chainErr == nil {
					base.chainErr = map[chainKey]error{}
				}
				base.chainErr[key] = err
				continue
			}
			if spliced != nil {
				base.chains[key] = spliced
			}
		}
	}
	return chainErrs
}

// spliceChain rebuilds the chain for one (type,name) key from its
// attribute-list entries, pulling extension records through loader and
// trusting the base entry's own copy when mftReference is the base itself.
func spliceChain(base *Entry, key chainKey, list []listEntry, loader entryLoader) (*Attribute, error) {
	baseRef := base.FileReference()
	var chain []*Attribute
	extCache := map[uint64]*Entry{}

	for i := 0; i+1 < len(list); i++ {
		if list[i].FirstVCN == list[i+1].FirstVCN {
			return nil, ntfserr.Errorf(ntfserr.CorruptedAttribute, op, "duplicate first_vcn %d in (type %v, name %q) attribute-list chain", list[i].FirstVCN, key.typ, key.name)
		}
	}

	for _, le := range list {
		if le.MftReference == baseRef {
			if a := findAttribute(base, key, le.Identifier, le.FirstVCN); a != nil {
				chain = append(chain, a)
			}
			continue
		}

		ext, ok := extCache[le.MftReference.Index()]
		if !ok {
			var err error
			ext, err = loader.loadEntryByIndex(le.MftReference.Index())
			if err != nil {
				return nil, ntfserr.Errorf(ntfserr.TruncatedAttributeChain, op, "loading extension entry %d: %v", le.MftReference.Index(), err)
			}
			if ext.BaseRecord != baseRef {
				return nil, ntfserr.Errorf(ntfserr.TruncatedAttributeChain, op, "extension entry %d base reference mismatch", le.MftReference.Index())
			}
			extCache[le.MftReference.Index()] = ext
		}

		a := findAttribute(ext, key, le.Identifier, le.FirstVCN)
		if a == nil {
			return nil, ntfserr.Errorf(ntfserr.TruncatedAttributeChain, op, "extension entry %d missing (type %v, id %d, vcn %d)", le.MftReference.Index(), key.typ, le.Identifier, le.FirstVCN)
		}
		chain = append(chain, a)
	}

	if len(chain) == 0 {
		return nil, nil
	}
	for i := 0; i+1 < len(chain); i++ {
		chain[i].next = chain[i+1]
	}
	return chain[0], nil
}

// findAttribute walks e's chain for key looking for the attribute whose
// identifier and first VCN match (an attribute-list entry names one
// specific instance, not just a type).
func findAttribute(e *Entry, key chainKey, identifier uint16, firstVCN uint64) *Attribute {
	for a := e.chains[key]; a != nil; a = a.next {
		if a.Identifier == identifier && a.firstVCN == firstVCN {
			return a
		}
	}
	// Resident attributes (first_vcn meaningless) and single-instance
	// chains: fall back to identifier-only match.
	for a := e.chains[key]; a != nil; a = a.next {
		if a.Identifier == identifier {
			return a
		}
	}
	return nil
}
