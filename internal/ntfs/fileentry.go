package ntfs

import (
	"github.com/go-ntfs/ntfsfs/internal/ntfserr"
)

// maxPathHintDepth bounds the ancestor walk PathHint performs, so a
// corrupted or cyclic parent-reference chain can't hang a caller (§9).
const maxPathHintDepth = 256

// FileEntry is the public view over one MFT entry (L9, §4.10): size,
// attribute flags, timestamps, names, streams, and children.
type FileEntry struct {
	vol   *Volume
	entry *Entry
}

func newFileEntry(vol *Volume, e *Entry) *FileEntry {
	return &FileEntry{vol: vol, entry: e}
}

// Reference returns this entry's file reference.
func (fe *FileEntry) Reference() FileReference { return fe.entry.FileReference() }

// IsDirectory reports the record's HAS_INDEX flag.
func (fe *FileEntry) IsDirectory() bool { return fe.entry.IsDirectory() }

// standardInformation parses (uncached beyond the Entry itself) this
// entry's $STANDARD_INFORMATION, the authoritative source for timestamps
// and attribute flags regardless of which name was used to reach the file
// (§4.10: "timestamps always from $STANDARD_INFORMATION").
func (fe *FileEntry) standardInformation() (StandardInformation, error) {
	attr := fe.entry.AttributeChain(AttrStandardInformation, "")
	if attr == nil {
		if err := fe.entry.ChainError(AttrStandardInformation, ""); err != nil {
			return StandardInformation{}, ntfserr.Errorf(ntfserr.TruncatedAttributeChain, op, "entry %d $STANDARD_INFORMATION chain: %v", fe.entry.Index, err)
		}
		return StandardInformation{}, ntfserr.Errorf(ntfserr.CorruptedRecord, op, "entry %d has no $STANDARD_INFORMATION", fe.entry.Index)
	}
	return parseStandardInformation(attr.ResidentData())
}

// FileAttributeFlags returns the record's $STANDARD_INFORMATION flags
// (read-only, hidden, directory, compressed, ...).
func (fe *FileEntry) FileAttributeFlags() (uint32, error) {
	si, err := fe.standardInformation()
	if err != nil {
		return 0, err
	}
	return si.FileAttributeFlags, nil
}

// CreationTime, ModificationTime, MftModificationTime, and AccessTime
// return the corresponding $STANDARD_INFORMATION timestamp as a raw NTFS
// FILETIME (100ns intervals since 1601-01-01 UTC); converting to time.Time
// is left to the caller (§4.10 leaves epoch conversion out of scope for the
// core parser).
func (fe *FileEntry) CreationTime() (uint64, error) {
	si, err := fe.standardInformation()
	return si.CreationTime, err
}

func (fe *FileEntry) ModificationTime() (uint64, error) {
	si, err := fe.standardInformation()
	return si.ModificationTime, err
}

func (fe *FileEntry) MftModificationTime() (uint64, error) {
	si, err := fe.standardInformation()
	return si.MftModificationTime, err
}

func (fe *FileEntry) AccessTime() (uint64, error) {
	si, err := fe.standardInformation()
	return si.AccessTime, err
}

// Size returns the logical size of the entry's unnamed $DATA stream (0 for
// a directory, which carries no $DATA).
func (fe *FileEntry) Size() uint64 {
	attr := fe.entry.AttributeChain(AttrData, "")
	if attr == nil {
		return 0
	}
	return attr.DataSize()
}

// Names returns every $FILE_NAME attribute on this entry — one per hard
// link (and, commonly, one extra DOS 8.3 alias per link) (§4.10).
func (fe *FileEntry) Names() ([]FileNameAttribute, error) {
	var out []FileNameAttribute
	for _, attr := range fe.entry.AttributesByType(AttrFileName) {
		for a := attr; a != nil; a = a.Next() {
			fn, err := parseFileNameAttribute(a.ResidentData())
			if err != nil {
				continue
			}
			out = append(out, fn)
		}
	}
	if len(out) == 0 {
		return nil, ntfserr.Errorf(ntfserr.CorruptedRecord, op, "entry %d has no $FILE_NAME attribute", fe.entry.Index)
	}
	return out, nil
}

// PathHint reconstructs a best-effort full path for the name at nameIndex
// (as returned by Names) by walking parent references up to the volume
// root, preferring each ancestor's non-DOS name. It stops (returning
// whatever prefix was assembled) at the root, at a cycle, or after
// maxPathHintDepth ancestors — NTFS path reconstruction is inherently a
// hint, not a guaranteed unique path, since hard links mean no single
// canonical path exists (§4.10, §9).
func (fe *FileEntry) PathHint(nameIndex int) (string, error) {
	names, err := fe.Names()
	if err != nil {
		return "", err
	}
	if nameIndex < 0 || nameIndex >= len(names) {
		return "", ntfserr.Errorf(ntfserr.CorruptedRecord, op, "name index %d out of range (%d names)", nameIndex, len(names))
	}

	path := names[nameIndex].Name
	parent := names[nameIndex].ParentDirectory
	visited := map[uint64]bool{fe.entry.Index: true}

	for depth := 0; depth < maxPathHintDepth; depth++ {
		if parent.Index() == RootIndex || visited[parent.Index()] {
			return path, nil
		}
		visited[parent.Index()] = true

		ancestor, err := fe.vol.loadEntryByIndex(parent.Index())
		if err != nil {
			return path, nil
		}
		ancestorNames, err := newFileEntry(fe.vol, ancestor).Names()
		if err != nil || len(ancestorNames) == 0 {
			return path, nil
		}
		best := bestDisplayName(ancestorNames)
		path = best.Name + `\` + path
		parent = best.ParentDirectory
	}
	return path, nil
}

// bestDisplayName prefers a Win32 or POSIX namespace name over a bare DOS
// 8.3 alias, matching what a typical caller wants to see.
func bestDisplayName(names []FileNameAttribute) FileNameAttribute {
	for _, n := range names {
		if n.NameType != NameDos {
			return n
		}
	}
	return names[0]
}

// OpenStream opens the named data stream ("" for the unnamed primary
// stream, or an alternate data stream name) as a ClusterStream (§4.10).
func (fe *FileEntry) OpenStream(name string) (*ClusterStream, error) {
	attr := fe.entry.AttributeChain(AttrData, name)
	if attr == nil {
		if err := fe.entry.ChainError(AttrData, name); err != nil {
			return nil, ntfserr.Errorf(ntfserr.TruncatedAttributeChain, op, "entry %d %q data stream chain: %v", fe.entry.Index, name, err)
		}
		return nil, ntfserr.Errorf(ntfserr.CorruptedRecord, op, "entry %d has no %q data stream", fe.entry.Index, name)
	}
	return fe.vol.openStreamFor(attr), nil
}

// Streams lists every $DATA stream name on this entry ("" for the unnamed
// stream, if present).
func (fe *FileEntry) Streams() []string {
	var out []string
	for _, attr := range fe.entry.AttributesByType(AttrData) {
		out = append(out, attr.Name)
	}
	return out
}

// directory lazily opens this entry's $I30 index, or nil if it isn't a
// directory (or carries no $INDEX_ROOT, e.g. a deleted/empty directory
// record).
func (fe *FileEntry) directory() (*Directory, error) {
	return openDirectory(fe.vol, fe.entry)
}

// SubEntries returns the directory's immediate children as FileEntry
// values, resolving each child's file reference (§4.10).
func (fe *FileEntry) SubEntries() ([]*FileEntry, error) {
	dir, err := fe.directory()
	if err != nil {
		return nil, err
	}
	if dir == nil {
		return nil, nil
	}
	children, err := dir.IterChildren()
	if err != nil {
		return nil, err
	}
	out := make([]*FileEntry, 0, len(children))
	for _, c := range children {
		child, err := fe.vol.GetEntry(c.Reference)
		if err != nil {
			continue
		}
		out = append(out, child)
	}
	return out, nil
}

// Lookup resolves one child name via the directory index (§4.8), falling
// back to short-name equivalence, returning (nil, nil) on a clean miss.
func (fe *FileEntry) Lookup(name string) (*FileEntry, error) {
	dir, err := fe.directory()
	if err != nil {
		return nil, err
	}
	if dir == nil {
		return nil, nil
	}
	child, err := dir.Lookup(name)
	if err != nil {
		return nil, err
	}
	if child == nil {
		return nil, nil
	}
	return fe.vol.GetEntry(child.Reference)
}
