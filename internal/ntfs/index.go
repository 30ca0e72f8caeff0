package ntfs

import (
	"github.com/go-ntfs/ntfsfs/internal/binreader"
	"github.com/go-ntfs/ntfsfs/internal/collation"
	"github.com/go-ntfs/ntfsfs/internal/ntfserr"
)

const indexValueIsLast = 0x0002
const indexValueHasSubNode = 0x0001
const indexNodeHasBranch = 0x0001

// indexValueHeaderSize is the fixed portion of an IndexValue record before
// its key bytes: file_reference(8) + entry_size(2) + key_data_size(2) +
// flags(2) + reserved(2).
const indexValueHeaderSize = 16

// IndexValue is one parsed entry from a B+-tree node (§3, §4.7): a key plus
// (for leaves) a payload, or (for branches) a reference to a child node.
type IndexValue struct {
	FileReference FileReference
	Key           []byte
	Value         []byte
	HasSubNode    bool
	IsLast        bool
	SubNodeVCN    uint64
}

// indexNode is one parsed $INDEX_ROOT inline node or $INDEX_ALLOCATION
// block (§4.7).
type indexNode struct {
	values []IndexValue
}

// parseIndexRoot parses an $INDEX_ROOT resident body: a small header
// (attribute_type, collation_type, index_entry_size) followed by the
// index node header and inline values.
func parseIndexRoot(data []byte) (attrType AttributeType, collType collation.Type, entrySize uint32, node *indexNode, err error) {
	r := binreader.New(data)
	attrTypeRaw, ok1 := r.Uint32()
	collRaw, ok2 := r.Uint32()
	entrySizeRaw, ok3 := r.Uint32()
	_, ok4 := r.Uint32() // clusters_per_index_record, unused once entry_size is known
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return 0, 0, 0, nil, ntfserr.Errorf(ntfserr.IndexCorrupted, op, "index root header truncated")
	}
	node, err = parseIndexNodeHeader(data[16:])
	if err != nil {
		return 0, 0, 0, nil, err
	}
	return AttributeType(attrTypeRaw), collation.Type(collRaw), entrySizeRaw, node, nil
}

// parseIndexAllocationBlock parses one $INDEX_ALLOCATION block: "INDX" +
// USA + VCN + node header. The block is mutated in place by fix-up.
func parseIndexAllocationBlock(block []byte, sectorSize int) (vcn uint64, node *indexNode, err error) {
	r := binreader.New(block)
	sig, ok := r.At(0, 4)
	if !ok || string(sig) != "INDX" {
		return 0, nil, ntfserr.Errorf(ntfserr.IndexCorrupted, op, "bad index block signature")
	}
	usaOffset, ok1 := r.Uint16At(4)
	usaCount, ok2 := r.Uint16At(6)
	vcnVal, ok3 := r.Uint64At(16)
	if !ok1 || !ok2 || !ok3 {
		return 0, nil, ntfserr.Errorf(ntfserr.IndexCorrupted, op, "index block header truncated")
	}
	if err := applyFixup(block, sectorSize, usaOffset, usaCount); err != nil {
		return 0, nil, err
	}
	node, err = parseIndexNodeHeader(block[24:])
	if err != nil {
		return 0, nil, err
	}
	return vcnVal, node, nil
}

// parseIndexNodeHeader parses the node header {values_offset, size,
// allocated_size, flags} and its values, relative to headerBase (the node
// header's own starting offset within its containing buffer).
func parseIndexNodeHeader(headerBase []byte) (*indexNode, error) {
	r := binreader.New(headerBase)
	valuesOffset, ok1 := r.Uint32()
	size, ok2 := r.Uint32()
	_, ok3 := r.Uint32() // allocated_size
	_, ok4 := r.Uint32() // flags (has_branch is inferred per-value from has_sub_node)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, ntfserr.Errorf(ntfserr.IndexCorrupted, op, "index node header truncated")
	}
	if int(size) > len(headerBase) {
		return nil, ntfserr.Errorf(ntfserr.IndexCorrupted, op, "index node size %d exceeds buffer", size)
	}

	node := &indexNode{}
	pos := int(valuesOffset)
	for pos < int(size) {
		vr := binreader.New(headerBase[pos:])
		fileRef, ok1 := vr.Uint64At(0)
		entrySize, ok2 := vr.Uint16At(8)
		keyDataSize, ok3 := vr.Uint16At(10)
		flags, ok4 := vr.Uint16At(12)
		// bytes 14-15 are reserved/padding.
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return nil, ntfserr.Errorf(ntfserr.IndexCorrupted, op, "index value truncated")
		}
		if entrySize == 0 || int(entrySize) > int(size)-pos {
			return nil, ntfserr.Errorf(ntfserr.IndexCorrupted, op, "index value entry size %d invalid", entrySize)
		}

		v := IndexValue{
			FileReference: FileReference(fileRef),
			HasSubNode:    flags&indexValueHasSubNode != 0,
			IsLast:        flags&indexValueIsLast != 0,
		}
		if !v.IsLast {
			keyBytes, ok := vr.At(indexValueHeaderSize, int(keyDataSize))
			if !ok {
				return nil, ntfserr.Errorf(ntfserr.IndexCorrupted, op, "index value key out of bounds")
			}
			v.Key = append([]byte(nil), keyBytes...)
			valueLen := int(entrySize) - indexValueHeaderSize - int(keyDataSize) - subNodeTrailerLen(v.HasSubNode)
			if valueLen > 0 {
				valueBytes, ok := vr.At(indexValueHeaderSize+int(keyDataSize), valueLen)
				if ok {
					v.Value = append([]byte(nil), valueBytes...)
				}
			}
		}
		if v.HasSubNode {
			subVCN, ok := vr.Uint64At(int(entrySize) - 8)
			if !ok {
				return nil, ntfserr.Errorf(ntfserr.IndexCorrupted, op, "index value sub-node vcn truncated")
			}
			v.SubNodeVCN = subVCN
		}

		node.values = append(node.values, v)
		pos += int(entrySize)
		if v.IsLast {
			break
		}
	}
	if len(node.values) == 0 {
		return nil, ntfserr.Errorf(ntfserr.IndexCorrupted, op, "index node missing terminating sentinel value")
	}
	return node, nil
}

func subNodeTrailerLen(hasSubNode bool) int {
	if hasSubNode {
		return 8
	}
	return 0
}

// nodeReader abstracts reading an $INDEX_ALLOCATION child block by VCN, so
// the walker doesn't need to know about ClusterStream directly.
type nodeReader interface {
	readIndexBlock(vcn uint64) (*indexNode, error)
}

// walkIndex performs a depth-first, left-to-right traversal over a root
// node plus (lazily) its $INDEX_ALLOCATION children, calling visit for
// every non-sentinel value in collation order (§4.7). Cycle detection:
// a child VCN already on the current descent path fails with IndexCycle.
func walkIndex(root *indexNode, nodes nodeReader, visit func(IndexValue) error) error {
	return walkNode(root, nodes, map[uint64]bool{}, visit)
}

func walkNode(n *indexNode, nodes nodeReader, visited map[uint64]bool, visit func(IndexValue) error) error {
	for _, v := range n.values {
		if !v.IsLast {
			if err := visit(v); err != nil {
				return err
			}
		}
		if v.HasSubNode {
			if visited[v.SubNodeVCN] {
				return ntfserr.Errorf(ntfserr.IndexCycle, op, "index child vcn %d revisits an ancestor", v.SubNodeVCN)
			}
			child, err := nodes.readIndexBlock(v.SubNodeVCN)
			if err != nil {
				return err
			}
			visited[v.SubNodeVCN] = true
			if err := walkNode(child, nodes, visited, visit); err != nil {
				return err
			}
			delete(visited, v.SubNodeVCN)
		}
	}
	return nil
}

// lookupIndex performs a B+-tree descent for target under collation order
// collType, returning the matching value or (nil, nil) on a clean miss.
func lookupIndex(root *indexNode, nodes nodeReader, upcase *collation.UpCaseTable, collType collation.Type, target []byte) (*IndexValue, error) {
	return lookupNode(root, nodes, upcase, collType, target)
}

func lookupNode(n *indexNode, nodes nodeReader, upcase *collation.UpCaseTable, collType collation.Type, target []byte) (*IndexValue, error) {
	for _, v := range n.values {
		if v.IsLast {
			if v.HasSubNode {
				child, err := nodes.readIndexBlock(v.SubNodeVCN)
				if err != nil {
					return nil, err
				}
				return lookupNode(child, nodes, upcase, collType, target)
			}
			return nil, nil
		}

		c := collation.CompareKeys(upcase, collType, target, v.Key)
		switch {
		case c == 0:
			value := v
			return &value, nil
		case c < 0:
			if v.HasSubNode {
				child, err := nodes.readIndexBlock(v.SubNodeVCN)
				if err != nil {
					return nil, err
				}
				return lookupNode(child, nodes, upcase, collType, target)
			}
			return nil, nil
		}
		// c > 0: target sorts after this key, keep scanning this node.
	}
	return nil, nil
}
