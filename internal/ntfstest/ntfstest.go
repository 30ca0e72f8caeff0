// Package ntfstest builds small, byte-exact synthetic NTFS volume images
// in memory, for tests that exercise the decoder end to end instead of
// through hand-crafted fragments of a single layer. It mirrors the
// on-disk layout internal/ntfs parses: a boot sector, an $MFT data
// region holding one record per configured entry, and a pool of
// additional clusters for non-resident attribute payloads.
package ntfstest

import (
	"io"
	"sort"

	"github.com/orcaman/writerseeker"

	"github.com/go-ntfs/ntfsfs/internal/ntfs"
)

// RunSpec describes one data run to embed in a non-resident attribute. A
// sparse run carries no Data; a present run's Data is copied into its
// auto-assigned clusters, zero-padded or truncated to exactly
// Length*ClusterSize bytes.
type RunSpec struct {
	Length uint64
	Sparse bool
	Data   []byte
}

// AttrSpec describes one attribute to embed in a synthetic MFT record.
type AttrSpec struct {
	Type       ntfs.AttributeType
	Name       string
	Identifier uint16
	DataFlags  uint16

	Resident     bool
	ResidentData []byte

	Runs                 []RunSpec
	DataSize             uint64
	ValidDataSize        uint64
	CompressionUnitShift uint8
}

// EntrySpec describes one synthetic MFT record.
type EntrySpec struct {
	Index    uint64
	Sequence uint16
	Flags    uint16
	Attrs    []AttrSpec
}

// Volume accumulates EntrySpecs and renders them into one flat NTFS image.
type Volume struct {
	SectorSize     int
	ClusterSize    uint64
	MftEntrySize   uint32
	IndexEntrySize uint32
	SerialNumber   uint64

	entries map[uint64]EntrySpec
}

// NewVolume returns a Volume with the geometry most seed scenarios use:
// 512-byte sectors, 4 KiB clusters, 1 KiB MFT records.
func NewVolume() *Volume {
	return &Volume{
		SectorSize:     512,
		ClusterSize:    4096,
		MftEntrySize:   1024,
		IndexEntrySize: 4096,
		SerialNumber:   0x1122334455667788,
		entries:        map[uint64]EntrySpec{},
	}
}

// AddEntry installs (or replaces) the record at spec.Index. Index 0 (the
// $MFT's own record) is synthesized automatically by Build if not added
// explicitly.
func (v *Volume) AddEntry(spec EntrySpec) { v.entries[spec.Index] = spec }

// Build renders the accumulated entries into a complete NTFS image: a boot
// sector, the $MFT data region, and one region per non-resident run.
func (v *Volume) Build() []byte {
	maxIndex := uint64(0)
	for idx := range v.entries {
		if idx > maxIndex {
			maxIndex = idx
		}
	}
	mftEntryCount := maxIndex + 1
	mftDataLen := mftEntryCount * uint64(v.MftEntrySize)
	mftClusters := ceilDiv(mftDataLen, v.ClusterSize)
	const mftLCN = 1 // cluster 0 holds the boot sector

	if _, ok := v.entries[ntfs.MftIndex]; !ok {
		v.entries[ntfs.MftIndex] = v.mftSelfEntry(mftClusters)
	}

	indices := make([]uint64, 0, len(v.entries))
	for idx := range v.entries {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	// Assign an LCN to every present (non-sparse, non-$MFT-self) run, in
	// entry/attribute/run order, so placement is deterministic regardless
	// of map iteration order. runLCN is keyed by pointer into the run
	// actually stored in v.entries, so encodeEntry's later pass over the
	// same map keys sees the same placement.
	nextLCN := mftLCN + mftClusters
	type placement struct {
		lcn  uint64
		data []byte
	}
	runLCN := map[*RunSpec]uint64{}
	var placements []placement
	for _, idx := range indices {
		if idx == ntfs.MftIndex {
			continue // its one run is the MFT region itself, fixed at mftLCN
		}
		spec := v.entries[idx]
		for ai := range spec.Attrs {
			attr := &spec.Attrs[ai]
			if attr.Resident {
				continue
			}
			for ri := range attr.Runs {
				run := &attr.Runs[ri]
				if run.Sparse {
					continue
				}
				lcn := nextLCN
				nextLCN += run.Length
				runLCN[run] = lcn
				placements = append(placements, placement{lcn: lcn, data: padOrTruncate(run.Data, run.Length*v.ClusterSize)})
			}
		}
	}

	image := make([]byte, nextLCN*v.ClusterSize)
	v.writeBootSector(image, mftLCN)

	mftRegionOff := mftLCN * v.ClusterSize
	for _, idx := range indices {
		spec := v.entries[idx]
		fixedLCN := uint64(0)
		if idx == ntfs.MftIndex {
			fixedLCN = mftLCN
		}
		record := v.encodeEntry(spec, fixedLCN, runLCN)
		copy(image[mftRegionOff+idx*uint64(v.MftEntrySize):], record)
	}
	for _, p := range placements {
		copy(image[p.lcn*v.ClusterSize:], p.data)
	}

	return roundTripThroughWriterSeeker(image)
}

// roundTripThroughWriterSeeker writes image into an orcaman/writerseeker
// buffer and reads it back, so image construction goes through the same
// seekable-write primitive a real multi-pass image writer would use
// instead of only ever handing back a plain byte slice.
func roundTripThroughWriterSeeker(image []byte) []byte {
	var ws writerseeker.WriterSeeker
	if _, err := ws.Write(image); err != nil {
		panic(err)
	}
	r, err := ws.Reader()
	if err != nil {
		panic(err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		panic(err)
	}
	return out
}

func padOrTruncate(data []byte, length uint64) []byte {
	out := make([]byte, length)
	copy(out, data)
	return out
}

// mftSelfEntry synthesizes MFT record 0: a single non-resident, unnamed
// $DATA attribute whose run list is exactly the MFT's own cluster range.
// Its LCN is fixed at mftLCN (the caller, Build, knows this without going
// through the general run-placement pass).
func (v *Volume) mftSelfEntry(mftClusters uint64) EntrySpec {
	dataLen := mftClusters * v.ClusterSize
	return EntrySpec{
		Index:    ntfs.MftIndex,
		Sequence: 1,
		Flags:    ntfs.RecordInUse,
		Attrs: []AttrSpec{{
			Type:          ntfs.AttrData,
			Runs:          []RunSpec{{Length: mftClusters}},
			DataSize:      dataLen,
			ValidDataSize: dataLen,
		}},
	}
}

func ceilDiv(a, b uint64) uint64 { return (a + b - 1) / b }

// writeBootSector encodes the NTFS VBR fields internal/ntfs.parseBootSector
// reads: OEM id, sector/cluster geometry, MFT location, the signed-byte
// record-size encoding, and the volume serial number.
func (v *Volume) writeBootSector(image []byte, mftLCN uint64) {
	boot := image[:512]
	copy(boot[3:11], "NTFS    ")
	putUint16(boot[11:], uint16(v.SectorSize))
	sectorsPerCluster := v.ClusterSize / uint64(v.SectorSize)
	boot[13] = byte(sectorsPerCluster)

	putUint64(boot[48:], mftLCN)
	putUint64(boot[56:], mftLCN) // mirror shares the primary's location

	boot[64] = encodeRecordSizeByte(uint64(v.MftEntrySize), v.ClusterSize)
	boot[68] = encodeRecordSizeByte(uint64(v.IndexEntrySize), v.ClusterSize)

	putUint64(boot[72:], v.SerialNumber)
}

// encodeRecordSizeByte is the inverse of internal/ntfs.decodeRecordSize: a
// size that's a whole multiple of clusterSize is stored as that multiple; a
// size smaller than one cluster is stored as -log2(size).
func encodeRecordSizeByte(size, clusterSize uint64) byte {
	if size >= clusterSize && size%clusterSize == 0 {
		return byte(size / clusterSize)
	}
	shift := 0
	for s := size; s > 1; s >>= 1 {
		shift++
	}
	return byte(int8(-shift))
}

// encodeEntry builds one complete, fixed-up MFT record for spec. fixedMftLCN
// is nonzero only for the $MFT's own record (index 0), whose single $DATA
// attribute's run list is the MFT region itself rather than a run placed by
// Build's general LCN-assignment pass. runLCN resolves every other
// non-resident, non-sparse run to its assigned LCN.
func (v *Volume) encodeEntry(spec EntrySpec, fixedMftLCN uint64, runLCN map[*RunSpec]uint64) []byte {
	record := make([]byte, v.MftEntrySize)
	copy(record[0:], "FILE")

	numSectors := int(v.MftEntrySize) / v.SectorSize
	usaCount := uint16(numSectors + 1)
	usaOffset := uint16(42)

	putUint16(record[4:], usaOffset)
	putUint16(record[6:], usaCount)
	putUint16(record[16:], spec.Sequence)
	putUint16(record[18:], 1) // link count
	putUint16(record[22:], spec.Flags)
	putUint64(record[32:], 0) // base record reference: always a base record here

	firstAttrOffset := int(usaOffset) + 2*int(usaCount)
	firstAttrOffset = (firstAttrOffset + 7) &^ 7 // 8-byte align, as real records do
	putUint16(record[20:], uint16(firstAttrOffset))

	pos := firstAttrOffset
	for ai := range spec.Attrs {
		attr := &spec.Attrs[ai]
		fixedLCN := uint64(0)
		if fixedMftLCN != 0 && attr.Type == ntfs.AttrData {
			fixedLCN = fixedMftLCN
		}
		encoded := v.encodeAttribute(attr, fixedLCN, runLCN)
		copy(record[pos:], encoded)
		pos += len(encoded)
	}
	putUint32(record[pos:], 0xFFFFFFFF) // end-of-attributes marker
	pos += 4

	putUint32(record[24:], uint32(pos))    // used_size
	putUint32(record[28:], v.MftEntrySize) // allocated_size

	applyFixupEncode(record, v.SectorSize, usaOffset, usaCount)
	return record
}

// applyFixupEncode is the inverse of internal/ntfs's applyFixup: it stashes
// each sector's real trailing two bytes into the Update Sequence Array and
// overwrites those trailing bytes with the chosen USN, the on-disk form
// parseEntry expects to undo.
func applyFixupEncode(record []byte, sectorSize int, usaOffset, usaCount uint16) {
	const usn = 1
	putUint16(record[usaOffset:], usn)
	for i := 0; i < int(usaCount)-1; i++ {
		tailOff := (i+1)*sectorSize - 2
		saveOff := int(usaOffset) + 2 + 2*i
		copy(record[saveOff:saveOff+2], record[tailOff:tailOff+2])
		putUint16(record[tailOff:], usn)
	}
}

// encodeAttribute builds one attribute record (header plus resident body or
// non-resident header+run list), sized to a multiple of 8 bytes as
// parseAttribute requires. fixedLCN, when nonzero, overrides runLCN for
// attr's single run (used only for the $MFT's self-describing $DATA run).
func (v *Volume) encodeAttribute(attr *AttrSpec, fixedLCN uint64, runLCN map[*RunSpec]uint64) []byte {
	nameBytes := encodeUTF16LE(attr.Name)
	const headerLen = 16

	var body []byte
	var nameOffset int
	if attr.Resident {
		// Resident attributes read data_size/data_offset at absolute
		// offsets 16-21, right after the 16-byte common header, so the
		// name follows at 24 and the payload after it.
		nameOffset = headerLen + 8
		dataOffset := (nameOffset + len(nameBytes) + 7) &^ 7
		size := (dataOffset + len(attr.ResidentData) + 7) &^ 7
		body = make([]byte, size)
		copy(body[nameOffset:], nameBytes)
		putUint32(body[16:], uint32(len(attr.ResidentData)))
		putUint16(body[20:], uint16(dataOffset))
		copy(body[dataOffset:], attr.ResidentData)
	} else {
		// Non-resident attributes read first_vcn/last_vcn/run_list_offset/
		// cu_shift/allocated_size/data_size/valid_data_size at fixed
		// absolute offsets 16-63 (16-71 if compressed) no matter where the
		// name sits, so the name has to follow that fixed region rather
		// than the common header.
		nonResHeaderEnd := headerLen + 48
		if attr.CompressionUnitShift != 0 {
			nonResHeaderEnd = headerLen + 56
		}
		nameOffset = nonResHeaderEnd
		runListOffset := (nameOffset + len(nameBytes) + 7) &^ 7

		runs := make([]encodedRun, len(attr.Runs))
		for ri := range attr.Runs {
			run := &attr.Runs[ri]
			runs[ri] = encodedRun{length: run.Length, sparse: run.Sparse}
			if !run.Sparse {
				if fixedLCN != 0 {
					runs[ri].lcn = fixedLCN
				} else {
					runs[ri].lcn = runLCN[run]
				}
			}
		}
		runList := encodeRuns(runs)

		size := (runListOffset + len(runList) + 7) &^ 7
		body = make([]byte, size)
		copy(body[nameOffset:], nameBytes)

		var vcn uint64
		for _, r := range attr.Runs {
			vcn += r.Length
		}
		lastVCN := uint64(0)
		if vcn > 0 {
			lastVCN = vcn - 1
		}

		putUint64(body[16:], 0) // first_vcn: every synthetic run list starts at 0
		putUint64(body[24:], lastVCN)
		putUint16(body[32:], uint16(runListOffset))
		body[34] = attr.CompressionUnitShift
		putUint64(body[40:], vcn*v.ClusterSize) // allocated_size
		putUint64(body[48:], attr.DataSize)
		putUint64(body[56:], attr.ValidDataSize)
		if attr.CompressionUnitShift != 0 {
			putUint64(body[64:], attr.DataSize)
		}
		copy(body[runListOffset:], runList)
	}

	header := make([]byte, headerLen)
	putUint32(header[0:], uint32(attr.Type))
	putUint32(header[4:], uint32(len(body))) // body is laid out at absolute offsets
	if !attr.Resident {
		header[8] = 1
	}
	header[9] = byte(len(nameBytes) / 2)
	putUint16(header[10:], uint16(nameOffset))
	putUint16(header[12:], attr.DataFlags)
	putUint16(header[14:], attr.Identifier)

	return append(header, body[headerLen:]...)
}

// encodedRun is one run ready for the packed nibble-length-header encoding
// internal/ntfs.decodeDataRuns reads: mirrors datarun.go's own (unexported)
// encoder, duplicated here because it can't be imported across packages.
type encodedRun struct {
	length uint64
	lcn    uint64
	sparse bool
}

func encodeRuns(runs []encodedRun) []byte {
	var out []byte
	var prevLCN int64
	for _, run := range runs {
		lengthBytes := minBytesForUint(run.length)
		lengthField := makeLEBytes(run.length, lengthBytes)

		var offsetBytes int
		var offsetField []byte
		if !run.sparse {
			delta := int64(run.lcn) - prevLCN
			offsetBytes = minBytesForInt(delta)
			offsetField = makeLEBytes(uint64(delta), offsetBytes)
			prevLCN = int64(run.lcn)
		}

		header := byte(lengthBytes) | byte(offsetBytes)<<4
		out = append(out, header)
		out = append(out, lengthField...)
		out = append(out, offsetField...)
	}
	out = append(out, 0)
	return out
}

func makeLEBytes(val uint64, n int) []byte {
	b := make([]byte, n)
	for i := 0; i < n; i++ {
		b[i] = byte(val >> (8 * uint(i)))
	}
	return b
}

func minBytesForUint(v uint64) int {
	n := 0
	for v > 0 {
		n++
		v >>= 8
	}
	if n == 0 {
		n = 1
	}
	return n
}

func minBytesForInt(v int64) int {
	if v == 0 {
		return 1
	}
	n := 1
	for {
		lo := -(int64(1) << (8*uint(n) - 1))
		hi := int64(1)<<(8*uint(n)-1) - 1
		if v >= lo && v <= hi {
			return n
		}
		n++
	}
}

// NewFileNameKey builds a full $FILE_NAME attribute body (also valid as an
// $I30 index key, which shares the identical layout) for one name.
func NewFileNameKey(parent ntfs.FileReference, name string, isDirectory bool, size uint64) []byte {
	u16 := encodeUTF16LE(name)
	flags := uint32(0)
	if isDirectory {
		flags = 0x10000000
	}
	buf := make([]byte, 66+len(u16))
	putUint64(buf[0:], uint64(parent))
	putUint64(buf[40:], size) // allocated_size
	putUint64(buf[48:], size) // real_size
	putUint32(buf[56:], flags)
	buf[64] = byte(len(u16) / 2)
	buf[65] = 1 // NameWin32
	copy(buf[66:], u16)
	return buf
}

func encodeUTF16LE(s string) []byte {
	out := make([]byte, 0, len(s)*2)
	for _, r := range s {
		if r >= 0x10000 {
			continue // astral names aren't needed by any seed scenario
		}
		out = append(out, byte(r), byte(r>>8))
	}
	return out
}

func putUint16(b []byte, v uint16) { b[0] = byte(v); b[1] = byte(v >> 8) }

func putUint32(b []byte, v uint32) {
	for i := 0; i < 4; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}
