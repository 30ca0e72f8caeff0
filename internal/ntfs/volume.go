package ntfs

import (
	"container/list"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/go-ntfs/ntfsfs/internal/collation"
	"github.com/go-ntfs/ntfsfs/internal/diag"
	"github.com/go-ntfs/ntfsfs/internal/ntfserr"
	"github.com/go-ntfs/ntfsfs/internal/rangeio"
)

// DefaultEntryCacheSize is the default bound on Volume's parsed-entry cache
// (§4.9): enough to keep a typical directory walk's working set resident
// without unbounded growth on a large volume.
const DefaultEntryCacheSize = 1024

// Options configures Open (the ntfs.OpenOptions-equivalent ambient
// configuration layer, §4.9).
type Options struct {
	// EntryCacheSize bounds the number of parsed MFT entries kept resident.
	// Zero uses DefaultEntryCacheSize.
	EntryCacheSize int
	// VolumeOffset is the byte offset of this NTFS volume within reader
	// (nonzero when reader addresses a whole disk image rather than a bare
	// partition).
	VolumeOffset uint64
	// Abort, if set, is polled between unit/run reads so a long directory
	// walk or stream read can be cancelled from another goroutine (§5).
	Abort *atomic.Bool
	// Progress, if set, receives best-effort diagnostic notes; Open sends
	// one when the volume has been opened.
	Progress diag.Sink
}

// Volume is the open NTFS volume root (L8, §4.9): boot sector geometry plus
// the bootstrap $MFT stream and a bounded cache of parsed entries.
type Volume struct {
	reader      rangeio.Reader
	offset      uint64
	sectorSize  int
	clusterSize uint64

	mftLCN       uint64
	mftMirrorLCN uint64
	entrySize    uint32
	indexEntrySize uint32
	serialNumber uint64

	mft    *ClusterStream
	upcase *collation.UpCaseTable

	abort    *atomic.Bool
	progress diag.Sink

	mu        sync.Mutex
	cacheCap  int
	cacheList *list.List // of *cacheEntry, front = most recently used
	cacheMap  map[uint64]*list.Element
	loadGroup singleflight.Group
}

type cacheEntry struct {
	index uint64
	entry *Entry
}

// Open parses the boot sector at the start of reader and bootstraps the
// $MFT stream, ready to serve GetEntry lookups.
func Open(reader rangeio.Reader, opts Options) (*Volume, error) {
	boot := make([]byte, 512)
	if err := rangeio.ReadFull(reader, int64(opts.VolumeOffset), boot); err != nil {
		return nil, ntfserr.New(ntfserr.IO, op, err)
	}
	geo, err := parseBootSector(boot)
	if err != nil {
		return nil, err
	}

	cacheCap := opts.EntryCacheSize
	if cacheCap <= 0 {
		cacheCap = DefaultEntryCacheSize
	}

	v := &Volume{
		reader:         reader,
		offset:         opts.VolumeOffset,
		sectorSize:     geo.bytesPerSector,
		clusterSize:    geo.clusterSize,
		mftLCN:         geo.mftLCN,
		mftMirrorLCN:   geo.mftMirrorLCN,
		entrySize:      geo.mftEntrySize,
		indexEntrySize: geo.indexEntrySize,
		serialNumber:   geo.serialNumber,
		abort:          opts.Abort,
		progress:       diag.Or(opts.Progress),
		cacheCap:       cacheCap,
		cacheList:      list.New(),
		cacheMap:       map[uint64]*list.Element{},
	}

	if err := v.bootstrapMFT(); err != nil {
		return nil, err
	}

	upcaseEntry, err := v.loadEntryByIndex(UpCaseIndex)
	if err == nil {
		if data := v.AttributeChain(upcaseEntry, AttrData, ""); data != nil {
			stream := v.openStreamFor(data)
			buf := make([]byte, stream.Size())
			if _, err := stream.ReadAt(buf, 0); err == nil {
				v.upcase = collation.ParseUpCaseTable(buf)
			}
		}
	}
	// With no readable $UpCase, v.upcase stays nil and collation falls back
	// to x/text for every code point.

	v.report("opened volume, cluster size %d, mft at cluster %d", v.clusterSize, v.mftLCN)
	return v, nil
}

// AttributeChain is a small convenience forwarding to Entry.AttributeChain,
// kept here so call sites that only have a Volume-scoped helper name read
// naturally; it does not add behavior.
func (v *Volume) AttributeChain(e *Entry, typ AttributeType, name string) *Attribute {
	return e.AttributeChain(typ, name)
}

type bootGeometry struct {
	bytesPerSector int
	clusterSize    uint64
	mftLCN         uint64
	mftMirrorLCN   uint64
	mftEntrySize   uint32
	indexEntrySize uint32
	serialNumber   uint64
}

// parseBootSector validates and decodes the NTFS VBR (§6): OEM id, sector
// and cluster geometry, MFT location, and the signed-byte record-size
// encoding (a negative byte n means 2^|n| bytes; non-negative means
// n*cluster_size).
func parseBootSector(boot []byte) (bootGeometry, error) {
	if len(boot) < 512 {
		return bootGeometry{}, ntfserr.Errorf(ntfserr.InvalidBootSector, op, "boot sector shorter than 512 bytes")
	}
	if string(boot[3:11]) != "NTFS    " {
		return bootGeometry{}, ntfserr.Errorf(ntfserr.InvalidBootSector, op, "bad OEM id %q", boot[3:11])
	}

	bytesPerSector := int(boot[11]) | int(boot[12])<<8
	sectorsPerCluster := int(boot[13])
	if bytesPerSector <= 0 || sectorsPerCluster <= 0 {
		return bootGeometry{}, ntfserr.Errorf(ntfserr.InvalidBootSector, op, "invalid sector/cluster geometry")
	}
	clusterSize := uint64(bytesPerSector) * uint64(sectorsPerCluster)

	mftLCN := leUint64(boot[48:56])
	mftMirrorLCN := leUint64(boot[56:64])

	mftEntrySize, err := decodeRecordSize(boot[64], clusterSize)
	if err != nil {
		return bootGeometry{}, err
	}
	indexEntrySize, err := decodeRecordSize(boot[68], clusterSize)
	if err != nil {
		return bootGeometry{}, err
	}

	serial := leUint64(boot[72:80])

	return bootGeometry{
		bytesPerSector: bytesPerSector,
		clusterSize:    clusterSize,
		mftLCN:         mftLCN,
		mftMirrorLCN:   mftMirrorLCN,
		mftEntrySize:   mftEntrySize,
		indexEntrySize: indexEntrySize,
		serialNumber:   serial,
	}, nil
}

func decodeRecordSize(b byte, clusterSize uint64) (uint32, error) {
	signed := int8(b)
	if signed < 0 {
		shift := uint(-signed)
		if shift > 31 {
			return 0, ntfserr.Errorf(ntfserr.InvalidBootSector, op, "record size shift %d too large", shift)
		}
		return uint32(1) << shift, nil
	}
	if signed == 0 {
		return 0, ntfserr.Errorf(ntfserr.InvalidBootSector, op, "record size byte is zero")
	}
	size := uint64(signed) * clusterSize
	if size == 0 || size > 1<<20 {
		return 0, ntfserr.Errorf(ntfserr.InvalidBootSector, op, "record size %d implausible", size)
	}
	return uint32(size), nil
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = (v << 8) | uint64(b[i])
	}
	return v
}

// bootstrapMFT parses MFT entry 0, resolves its own $ATTRIBUTE_LIST (if
// any) using a temporary stream built from its unspliced $DATA runs, and
// installs the final spliced $DATA as v.mft.
func (v *Volume) bootstrapMFT() error {
	raw := make([]byte, v.entrySize)
	mftOffset := v.offset + v.mftLCN*v.clusterSize
	if err := rangeio.ReadFull(v.reader, int64(mftOffset), raw); err != nil {
		return ntfserr.New(ntfserr.IO, op, err)
	}
	entry0, err := parseEntry(raw, MftIndex, v.sectorSize)
	if err != nil {
		return err
	}
	dataAttr := entry0.AttributeChain(AttrData, "")
	if dataAttr == nil {
		return ntfserr.Errorf(ntfserr.CorruptedRecord, op, "$MFT entry has no $DATA attribute")
	}

	v.mft = newClusterStream(v.reader, v.offset, v.clusterSize, dataAttr, v.abort)

	if len(entry0.attributeListAttributes()) > 0 {
		bootLoader := bootstrapLoader{v: v}
		chainErrs := resolveAttributeList(entry0, bootLoader)
		if err := chainErrs[chainKey{AttrData, ""}]; err != nil {
			return err
		}
		if spliced := entry0.AttributeChain(AttrData, ""); spliced != nil {
			v.mft = newClusterStream(v.reader, v.offset, v.clusterSize, spliced, v.abort)
		}
	}

	v.cachePut(MftIndex, entry0)
	return nil
}

// bootstrapLoader reads MFT entries directly through the in-progress
// (pre-splice) v.mft stream, used only while resolving $MFT's own
// $ATTRIBUTE_LIST during Open.
type bootstrapLoader struct{ v *Volume }

func (b bootstrapLoader) loadEntryByIndex(index uint64) (*Entry, error) {
	raw := make([]byte, b.v.entrySize)
	if _, err := b.v.mft.ReadAt(raw, index*uint64(b.v.entrySize)); err != nil {
		return nil, err
	}
	return parseEntry(raw, index, b.v.sectorSize)
}

// loadEntryByIndex implements entryLoader: fetches (parsing and caching) the
// MFT entry at index, splicing any $ATTRIBUTE_LIST it carries.
func (v *Volume) loadEntryByIndex(index uint64) (*Entry, error) {
	if e, ok := v.cacheGet(index); ok {
		return e, nil
	}

	result, err, _ := v.loadGroup.Do(indexKey(index), func() (any, error) {
		if e, ok := v.cacheGet(index); ok {
			return e, nil
		}
		raw := make([]byte, v.entrySize)
		if _, err := v.mft.ReadAt(raw, index*uint64(v.entrySize)); err != nil {
			return nil, err
		}
		e, err := parseEntry(raw, index, v.sectorSize)
		if err != nil {
			return nil, err
		}
		if len(e.attributeListAttributes()) > 0 {
			// Per-chain splice failures are recorded on e.chainErr and
			// surfaced later by AttributeChain/OpenStream consumers; the
			// map returned here is redundant with that and unused.
			resolveAttributeList(e, v)
		}
		v.cachePut(index, e)
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Entry), nil
}

func indexKey(index uint64) string {
	// A fixed-width hexadecimal key avoids an import of strconv at call sites;
	// collisions are impossible since index is a 48-bit MFT entry number.
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		buf[i] = hexDigits[index&0xF]
		index >>= 4
	}
	return string(buf)
}

// GetEntry resolves a file reference to its FileEntry, verifying the
// sequence number matches (StaleReference otherwise, §4.9, §7).
func (v *Volume) GetEntry(ref FileReference) (*FileEntry, error) {
	e, err := v.loadEntryByIndex(ref.Index())
	if err != nil {
		return nil, err
	}
	if e.Sequence != ref.Sequence() {
		return nil, ntfserr.Errorf(ntfserr.StaleReference, op, "entry %d sequence %d does not match reference sequence %d", ref.Index(), e.Sequence, ref.Sequence())
	}
	return newFileEntry(v, e), nil
}

// EntryCount returns how many fixed-size records fit in $MFT — an upper
// bound on valid indices (some may be unused or carry the BAAD signature).
func (v *Volume) EntryCount() uint64 {
	return uint64(v.mft.Size()) / uint64(v.entrySize)
}

// GetEntryByIndex parses (or returns the cached parse of) the MFT record at
// index directly, bypassing the file-reference sequence-number check
// GetEntry performs. Used by callers walking every record in index order
// (a bulk scan) rather than resolving a specific reference.
func (v *Volume) GetEntryByIndex(index uint64) (*FileEntry, error) {
	e, err := v.loadEntryByIndex(index)
	if err != nil {
		return nil, err
	}
	return newFileEntry(v, e), nil
}

// Root returns the volume's root directory entry (MFT index 5).
func (v *Volume) Root() (*FileEntry, error) {
	e, err := v.loadEntryByIndex(RootIndex)
	if err != nil {
		return nil, err
	}
	return newFileEntry(v, e), nil
}

// openStreamFor builds a ClusterStream over one attribute chain head,
// dispatching to the resident/non-resident constructor as appropriate.
func (v *Volume) openStreamFor(attr *Attribute) *ClusterStream {
	if attr.IsResident() {
		return newResidentStream(attr.ResidentData())
	}
	return newClusterStream(v.reader, v.offset, v.clusterSize, attr, v.abort)
}

func (v *Volume) report(format string, args ...any) {
	if v.progress != nil {
		v.progress.Notef(format, args...)
	}
}

func (v *Volume) cacheGet(index uint64) (*Entry, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	el, ok := v.cacheMap[index]
	if !ok {
		return nil, false
	}
	v.cacheList.MoveToFront(el)
	return el.Value.(*cacheEntry).entry, true
}

func (v *Volume) cachePut(index uint64, e *Entry) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if el, ok := v.cacheMap[index]; ok {
		el.Value.(*cacheEntry).entry = e
		v.cacheList.MoveToFront(el)
		return
	}
	el := v.cacheList.PushFront(&cacheEntry{index: index, entry: e})
	v.cacheMap[index] = el
	for v.cacheList.Len() > v.cacheCap {
		oldest := v.cacheList.Back()
		if oldest == nil {
			break
		}
		v.cacheList.Remove(oldest)
		delete(v.cacheMap, oldest.Value.(*cacheEntry).index)
	}
}
