package ntfs

import (
	"github.com/go-ntfs/ntfsfs/internal/collation"
	"github.com/go-ntfs/ntfsfs/internal/ntfserr"
)

// Child is one entry yielded by Directory enumeration/lookup: a name plus
// the file reference it points to.
type Child struct {
	Name         string
	Reference    FileReference
	IsDirectory  bool
	FileNameAttr FileNameAttribute
}

// Directory is the $I30 (or other $FILE_NAME-keyed) index view over one
// FileEntry (L7, §4.8).
type Directory struct {
	vol       *Volume
	attrType  AttributeType
	collType  collation.Type
	entrySize uint32
	root      *indexNode
	alloc     *Attribute // $INDEX_ALLOCATION chain head, nil if root-only
	bitmap    *Attribute // $BITMAP chain head, nil if absent
}

// openDirectory builds a Directory view from one MFT entry's $INDEX_ROOT
// (and, if present, $INDEX_ALLOCATION/$BITMAP) attributes.
func openDirectory(vol *Volume, e *Entry) (*Directory, error) {
	rootAttr := e.AttributeChain(AttrIndexRoot, "$I30")
	if rootAttr == nil {
		return nil, nil
	}
	attrType, collType, entrySize, root, err := parseIndexRoot(rootAttr.ResidentData())
	if err != nil {
		return nil, err
	}
	return &Directory{
		vol:       vol,
		attrType:  attrType,
		collType:  collType,
		entrySize: entrySize,
		root:      root,
		alloc:     e.AttributeChain(AttrIndexAllocation, "$I30"),
		bitmap:    e.AttributeChain(AttrBitmap, "$I30"),
	}, nil
}

// readIndexBlock implements nodeReader: fetches the $INDEX_ALLOCATION
// child node at the given VCN.
func (d *Directory) readIndexBlock(vcn uint64) (*indexNode, error) {
	if d.alloc == nil {
		return nil, ntfserr.Errorf(ntfserr.IndexCorrupted, op, "index references a sub-node but has no $INDEX_ALLOCATION")
	}
	stream := newClusterStream(d.vol.reader, d.vol.offset, d.vol.clusterSize, d.alloc, d.vol.abort)
	blockSize := uint64(d.entrySize)
	blockOffset := vcn * d.vol.clusterSize
	buf := make([]byte, blockSize)
	if _, err := stream.ReadAt(buf, blockOffset); err != nil {
		return nil, err
	}
	_, node, err := parseIndexAllocationBlock(buf, d.vol.sectorSize)
	return node, err
}

// IterChildren enumerates every leaf entry in the index, left to right.
func (d *Directory) IterChildren() ([]Child, error) {
	var out []Child
	err := walkIndex(d.root, d, func(v IndexValue) error {
		if d.attrType != AttrFileName {
			return nil
		}
		fn, err := parseFileNameAttribute(v.Key)
		if err != nil {
			return nil // skip entries whose key doesn't decode as expected
		}
		out = append(out, Child{
			Name:         fn.Name,
			Reference:    v.FileReference,
			IsDirectory:  fn.FileAttributeFlags&fileAttrDirectory != 0,
			FileNameAttr: fn,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Lookup finds a child by exact NTFS case-insensitive name compare,
// falling back to short-name (8.3) equivalence if no exact match.
func (d *Directory) Lookup(name string) (*Child, error) {
	if d.root == nil {
		return nil, nil
	}
	key := encodeFileNameKey(name)
	v, err := lookupIndex(d.root, d, d.vol.upcase, d.collType, key)
	if err != nil {
		return nil, err
	}
	if v != nil {
		fn, err := parseFileNameAttribute(v.Key)
		if err == nil {
			return &Child{Name: fn.Name, Reference: v.FileReference, IsDirectory: fn.FileAttributeFlags&fileAttrDirectory != 0, FileNameAttr: fn}, nil
		}
	}

	children, err := d.IterChildren()
	if err != nil {
		return nil, err
	}
	for i := range children {
		if collation.Equal(d.vol.upcase, children[i].Name, name) {
			return &children[i], nil
		}
	}
	for i := range children {
		if collation.ShortNameMatches(d.vol.upcase, children[i].Name, name) {
			return &children[i], nil
		}
	}
	return nil, nil
}

// encodeFileNameKey builds a minimal $FILE_NAME-shaped key sufficient for
// collation.CompareKeys to extract and compare the name: parent reference
// (zeroed, irrelevant to COLLATION_FILENAME) followed by name length and
// UTF-16LE name, mirroring the on-disk $FILE_NAME layout used as an index
// key.
func encodeFileNameKey(name string) []byte {
	u16 := []uint16{}
	for _, r := range name {
		if r < 0x10000 {
			u16 = append(u16, uint16(r))
		}
	}
	out := make([]byte, fileNameHeaderSize+len(u16)*2)
	out[fileNameHeaderSize-2] = byte(len(u16))
	for i, c := range u16 {
		off := fileNameHeaderSize + i*2
		out[off] = byte(c)
		out[off+1] = byte(c >> 8)
	}
	return out
}
