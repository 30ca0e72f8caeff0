package ntfs

import (
	"errors"
	"testing"

	"github.com/go-ntfs/ntfsfs/internal/collation"
)

// indexValueSpec describes one IndexValue to encode for a test node.
type indexValueSpec struct {
	FileRef    FileReference
	Key        []byte
	Value      []byte
	HasSubNode bool
	SubVCN     uint64
	IsLast     bool
}

func encodeTestIndexValue(v indexValueSpec) []byte {
	trailer := 0
	if v.HasSubNode {
		trailer = 8
	}
	var body []byte
	if v.IsLast {
		body = make([]byte, indexValueHeaderSize+trailer)
	} else {
		body = make([]byte, indexValueHeaderSize+len(v.Key)+len(v.Value)+trailer)
		copy(body[indexValueHeaderSize:], v.Key)
		copy(body[indexValueHeaderSize+len(v.Key):], v.Value)
	}
	putU64(body[0:], uint64(v.FileRef))
	putU16(body[8:], uint16(len(body)))
	putU16(body[10:], uint16(len(v.Key)))
	flags := uint16(0)
	if v.HasSubNode {
		flags |= indexValueHasSubNode
	}
	if v.IsLast {
		flags |= indexValueIsLast
	}
	putU16(body[12:], flags)
	if v.HasSubNode {
		putU64(body[len(body)-8:], v.SubVCN)
	}
	return body
}

// encodeTestIndexNode builds a node header (values_offset, size,
// allocated_size, flags) plus its values, with values starting right after
// the 16-byte header — valid for an $INDEX_ROOT body, which carries no
// fixup array. $INDEX_ALLOCATION blocks need a bigger gap; see
// buildIndexAllocationBlock.
func encodeTestIndexNode(values []indexValueSpec) []byte {
	const headerLen = 16
	var body []byte
	for _, v := range values {
		body = append(body, encodeTestIndexValue(v)...)
	}
	out := make([]byte, headerLen+len(body))
	putU32(out[0:], headerLen)
	putU32(out[4:], uint32(headerLen+len(body)))
	copy(out[headerLen:], body)
	return out
}

func fileNameKeyFor(name string, parent FileReference) []byte {
	u16 := utf16leBytes(name)
	buf := make([]byte, 66+len(u16))
	putU64(buf[0:], uint64(parent))
	buf[64] = byte(len(u16) / 2)
	buf[65] = 1
	copy(buf[66:], u16)
	return buf
}

func TestParseIndexRoot_InlineValues(t *testing.T) {
	node := encodeTestIndexNode([]indexValueSpec{
		{FileRef: NewFileReference(10, 1), Key: fileNameKeyFor("alpha.txt", 5), Value: nil},
		{IsLast: true},
	})
	data := make([]byte, 16+len(node))
	putU32(data[0:], uint32(AttrFileName))
	putU32(data[4:], uint32(collation.Filename))
	putU32(data[8:], 4096)
	copy(data[16:], node)

	attrType, collType, entrySize, root, err := parseIndexRoot(data)
	if err != nil {
		t.Fatalf("parseIndexRoot: %v", err)
	}
	if attrType != AttrFileName {
		t.Errorf("attrType = %v, want AttrFileName", attrType)
	}
	if collType != collation.Filename {
		t.Errorf("collType = %v, want Filename", collType)
	}
	if entrySize != 4096 {
		t.Errorf("entrySize = %d, want 4096", entrySize)
	}
	if len(root.values) != 2 {
		t.Fatalf("got %d values, want 2", len(root.values))
	}
	if root.values[0].FileReference != NewFileReference(10, 1) {
		t.Errorf("FileReference = %v", root.values[0].FileReference)
	}
}

func TestParseIndexNodeHeader_NoValuesIsCorrupted(t *testing.T) {
	// values_offset equals size: the node claims zero entries, not even a
	// terminating sentinel.
	const headerLen = 16
	node := make([]byte, headerLen)
	putU32(node[0:], headerLen)
	putU32(node[4:], headerLen)
	if _, err := parseIndexNodeHeader(node); err == nil {
		t.Fatal("expected an error for a node with no values at all")
	}
}

func TestParseIndexNodeHeader_EntrySizeExceedsRemainingIsCorrupted(t *testing.T) {
	value := encodeTestIndexValue(indexValueSpec{FileRef: NewFileReference(1, 1), Key: fileNameKeyFor("x", 5)})
	const headerLen = 16
	node := make([]byte, headerLen+len(value))
	putU32(node[0:], headerLen)
	// size understates the real extent of the single value's entry_size,
	// so the bounds check on entrySize vs. size-pos must reject it.
	putU32(node[4:], uint32(headerLen+len(value)-1))
	copy(node[headerLen:], value)
	if _, err := parseIndexNodeHeader(node); err == nil {
		t.Fatal("expected an error when entry_size exceeds the remaining node size")
	}
}

// buildIndexAllocationBlock assembles one fixed-up $INDEX_ALLOCATION block:
// "INDX" signature, fixup array starting right after the 24-byte fixed
// header (at the conventional offset 40, §4.7 — libfsntfs's
// fsntfs_index_entry_header is exactly 24 bytes, and its node header
// follows immediately at that fixed offset, with the fixup array occupying
// the gap between the node header's own 16 bytes and wherever its
// values_offset field then points).
func buildIndexAllocationBlock(sectorSize int, vcn uint64, values []indexValueSpec) []byte {
	const usaOffset = 40
	const numSectors = 2
	const usaCount = numSectors + 1
	const nodeHeaderAbs = 24
	const nodeHeaderLen = 16

	valuesAbs := align8(usaOffset + 2*usaCount)
	valuesOffsetField := valuesAbs - nodeHeaderAbs

	var body []byte
	for _, v := range values {
		body = append(body, encodeTestIndexValue(v)...)
	}

	total := numSectors * sectorSize
	block := make([]byte, total)
	copy(block[0:], "INDX")
	putU16(block[4:], usaOffset)
	putU16(block[6:], usaCount)
	putU64(block[16:], vcn)

	putU32(block[nodeHeaderAbs:], uint32(valuesOffsetField))
	putU32(block[nodeHeaderAbs+4:], uint32(valuesOffsetField+len(body)))
	copy(block[valuesAbs:], body)

	applyFixupEncode(block, sectorSize, usaOffset, 1)
	return block
}

func TestParseIndexAllocationBlock_FixupAndNodeHeader(t *testing.T) {
	values := []indexValueSpec{
		{FileRef: NewFileReference(20, 2), Key: fileNameKeyFor("beta.txt", 5)},
		{IsLast: true},
	}
	block := buildIndexAllocationBlock(512, 7, values)

	vcn, node, err := parseIndexAllocationBlock(block, 512)
	if err != nil {
		t.Fatalf("parseIndexAllocationBlock: %v", err)
	}
	if vcn != 7 {
		t.Errorf("vcn = %d, want 7", vcn)
	}
	if len(node.values) != 2 {
		t.Fatalf("got %d values, want 2", len(node.values))
	}
	if node.values[0].FileReference != NewFileReference(20, 2) {
		t.Errorf("FileReference = %v", node.values[0].FileReference)
	}
}

func TestParseIndexAllocationBlock_BadSignatureIsCorrupted(t *testing.T) {
	block := make([]byte, 1024)
	copy(block[0:], "XXXX")
	if _, _, err := parseIndexAllocationBlock(block, 512); err == nil {
		t.Fatal("expected an error for a bad INDX signature")
	}
}

// fakeNodeReader implements nodeReader over a fixed map of VCN -> node, for
// walkIndex/lookupIndex tests that don't need a real $INDEX_ALLOCATION
// attribute.
type fakeNodeReader map[uint64]*indexNode

func (f fakeNodeReader) readIndexBlock(vcn uint64) (*indexNode, error) {
	n, ok := f[vcn]
	if !ok {
		return nil, errNodeNotFound
	}
	return n, nil
}

var errNodeNotFound = errors.New("index child vcn not found in fake node reader")

func TestWalkIndex_VisitsLeavesDepthFirst(t *testing.T) {
	child := &indexNode{values: []IndexValue{
		{Key: fileNameKeyFor("child-a", 5)},
		{IsLast: true},
	}}
	root := &indexNode{values: []IndexValue{
		{Key: fileNameKeyFor("root-a", 5), HasSubNode: true, SubNodeVCN: 1},
		{IsLast: true, HasSubNode: false},
	}}
	nodes := fakeNodeReader{1: child}

	var names []string
	err := walkIndex(root, nodes, func(v IndexValue) error {
		fn, err := parseFileNameAttribute(v.Key)
		if err != nil {
			return err
		}
		names = append(names, fn.Name)
		return nil
	})
	if err != nil {
		t.Fatalf("walkIndex: %v", err)
	}
	if len(names) != 2 || names[0] != "root-a" || names[1] != "child-a" {
		t.Errorf("visit order = %v, want [root-a child-a]", names)
	}
}

func TestWalkIndex_CycleDetection(t *testing.T) {
	a := &indexNode{values: []IndexValue{
		{IsLast: true, HasSubNode: true, SubNodeVCN: 2},
	}}
	b := &indexNode{values: []IndexValue{
		{IsLast: true, HasSubNode: true, SubNodeVCN: 1},
	}}
	nodes := fakeNodeReader{1: a, 2: b}

	err := walkIndex(a, nodes, func(v IndexValue) error { return nil })
	if err == nil {
		t.Fatal("expected a cycle error")
	}
}

func TestLookupIndex_FindsExactMatch(t *testing.T) {
	root := &indexNode{values: []IndexValue{
		{Key: fileNameKeyFor("alpha", 5), FileReference: NewFileReference(10, 1)},
		{Key: fileNameKeyFor("gamma", 5), FileReference: NewFileReference(11, 1)},
		{IsLast: true},
	}}
	target := fileNameKeyFor("gamma", 5)

	v, err := lookupIndex(root, fakeNodeReader{}, nil, collation.Filename, target)
	if err != nil {
		t.Fatalf("lookupIndex: %v", err)
	}
	if v == nil || v.FileReference != NewFileReference(11, 1) {
		t.Errorf("lookupIndex result = %v", v)
	}
}

func TestLookupIndex_MissReturnsNilWithoutError(t *testing.T) {
	root := &indexNode{values: []IndexValue{
		{Key: fileNameKeyFor("alpha", 5)},
		{IsLast: true},
	}}
	v, err := lookupIndex(root, fakeNodeReader{}, nil, collation.Filename, fileNameKeyFor("zzz", 5))
	if err != nil {
		t.Fatalf("lookupIndex: %v", err)
	}
	if v != nil {
		t.Errorf("expected a clean miss, got %v", v)
	}
}
