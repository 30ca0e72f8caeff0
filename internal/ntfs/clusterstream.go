package ntfs

import (
	"sync/atomic"

	"github.com/go-ntfs/ntfsfs/internal/lznt1"
	"github.com/go-ntfs/ntfsfs/internal/ntfserr"
	"github.com/go-ntfs/ntfsfs/internal/rangeio"
)

// Extent describes one contiguous piece of a ClusterStream's logical byte
// range, for callers that want to reason about layout without reading data.
type Extent struct {
	Offset uint64 // logical byte offset
	Length uint64 // byte length
	Sparse bool
}

// ClusterStream presents the logical byte stream backed by one chain of
// non-resident attributes (or a single resident attribute) (L5, §4.6).
type ClusterStream struct {
	reader      rangeio.Reader
	volOffset   uint64
	clusterSize uint64
	abort       *atomic.Bool

	resident []byte // non-nil for a resident backing

	chain       []*Attribute // ordered by first VCN, flattened from the linked list
	dataSize    uint64
	validSize   uint64
	cuSize      uint64 // 0 if not compressed
}

// newResidentStream wraps a resident attribute's inline bytes.
func newResidentStream(data []byte) *ClusterStream {
	cp := append([]byte(nil), data...)
	return &ClusterStream{resident: cp, dataSize: uint64(len(cp)), validSize: uint64(len(cp))}
}

// newClusterStream builds a stream over a non-resident attribute chain
// (already spliced by the attribute-list resolver, if applicable).
func newClusterStream(reader rangeio.Reader, volOffset, clusterSize uint64, head *Attribute, abort *atomic.Bool) *ClusterStream {
	var chain []*Attribute
	for a := head; a != nil; a = a.next {
		chain = append(chain, a)
	}
	last := chain[len(chain)-1]
	cs := &ClusterStream{
		reader:      reader,
		volOffset:   volOffset,
		clusterSize: clusterSize,
		abort:       abort,
		chain:       chain,
		dataSize:    last.dataSize,
		validSize:   last.validDataSize,
		cuSize:      head.CompressionUnitSize(clusterSize),
	}
	return cs
}

// Size is the logical stream length (data_size).
func (cs *ClusterStream) Size() uint64 { return cs.dataSize }

// ValidSize is the prefix of Size holding meaningful bytes.
func (cs *ClusterStream) ValidSize() uint64 { return cs.validSize }

// ReadAt reads into buf starting at logical offset, returning the number of
// bytes actually placed (0 at or past Size, never an error for EOF — only
// for true IO/corruption faults, per §7).
func (cs *ClusterStream) ReadAt(buf []byte, offset uint64) (int, error) {
	if cs.resident != nil {
		return cs.readResident(buf, offset)
	}
	return cs.readNonResident(buf, offset)
}

func (cs *ClusterStream) readResident(buf []byte, offset uint64) (int, error) {
	if offset >= uint64(len(cs.resident)) {
		return 0, nil
	}
	n := copy(buf, cs.resident[offset:])
	return n, nil
}

func (cs *ClusterStream) readNonResident(buf []byte, offset uint64) (int, error) {
	if offset >= cs.dataSize {
		return 0, nil
	}
	remaining := cs.dataSize - offset
	if uint64(len(buf)) > remaining {
		buf = buf[:remaining]
	}

	if cs.cuSize > 0 {
		return cs.readCompressed(buf, offset)
	}
	return cs.readDirect(buf, offset)
}

// readDirect serves an uncompressed, possibly-sparse stream by mapping
// logical offset to (attribute, run, physical offset) (§4.6 steps 1-5).
func (cs *ClusterStream) readDirect(buf []byte, offset uint64) (int, error) {
	total := 0
	for len(buf) > 0 {
		if cs.abortRequested() {
			return total, ntfserr.New(ntfserr.Aborted, op, nil)
		}
		if offset >= cs.validSize {
			zeroFill(buf)
			return total + len(buf), nil
		}

		run, runOff, attr, err := cs.locateRun(offset)
		if err != nil {
			return total, err
		}
		runBytesLeft := (run.Length * cs.clusterSize) - runOff
		n := uint64(len(buf))
		if n > runBytesLeft {
			n = runBytesLeft
		}
		if offset+n > cs.validSize {
			n = cs.validSize - offset
		}

		if run.Sparse {
			zeroFill(buf[:n])
		} else {
			physOff := cs.volOffset + run.LCN*cs.clusterSize + runOff
			if _, err := cs.reader.ReadAt(buf[:n], int64(physOff)); err != nil {
				return total, ntfserr.New(ntfserr.IO, op, err)
			}
		}
		_ = attr
		buf = buf[n:]
		offset += n
		total += int(n)
	}
	return total, nil
}

// locateRun finds the run (and the byte offset within it) covering a given
// logical byte offset, across the attribute chain.
func (cs *ClusterStream) locateRun(offset uint64) (Run, uint64, *Attribute, error) {
	vcn := offset / cs.clusterSize
	for _, attr := range cs.chain {
		first, last := attr.VCNRange()
		if vcn < first || vcn > last {
			continue
		}
		for _, run := range attr.runs {
			if vcn < run.FirstVCN || vcn > run.LastVCN() {
				continue
			}
			runStartByte := run.FirstVCN * cs.clusterSize
			return run, offset - runStartByte, attr, nil
		}
	}
	return Run{}, 0, nil, ntfserr.Errorf(ntfserr.CorruptedRunList, op, "no run covers vcn %d", vcn)
}

// readCompressed serves a compressed stream by decompressing whole
// compression units and copying out the requested slice (§4.6).
func (cs *ClusterStream) readCompressed(buf []byte, offset uint64) (int, error) {
	total := 0
	for len(buf) > 0 {
		if cs.abortRequested() {
			return total, ntfserr.New(ntfserr.Aborted, op, nil)
		}
		unitIndex := offset / cs.cuSize
		unitStart := unitIndex * cs.cuSize
		unitTarget := cs.cuSize
		if unitStart+unitTarget > cs.dataSize {
			unitTarget = cs.dataSize - unitStart
		}

		unit, err := cs.decodeUnit(unitStart, unitTarget)
		if err != nil {
			return total, err
		}

		withinUnit := offset - unitStart
		n := uint64(len(buf))
		if n > unitTarget-withinUnit {
			n = unitTarget - withinUnit
		}
		copy(buf[:n], unit[withinUnit:withinUnit+n])
		buf = buf[n:]
		offset += n
		total += int(n)
	}
	return total, nil
}

// decodeUnit decompresses the compression unit starting at logical byte
// unitStart into exactly unitTarget bytes, per the three unit shapes in
// §4.6: all-sparse, fully-present (stored verbatim), or present-then-sparse
// (LZNT1 over the present prefix).
func (cs *ClusterStream) decodeUnit(unitStart, unitTarget uint64) ([]byte, error) {
	clustersPerUnit := cs.cuSize / cs.clusterSize
	firstVCN := unitStart / cs.clusterSize

	var presentRuns []Run
	allSparse := true
	for _, attr := range cs.chain {
		first, last := attr.VCNRange()
		if firstVCN < first || firstVCN > last {
			continue
		}
		for _, run := range attr.runs {
			if run.FirstVCN+run.Length <= firstVCN || run.FirstVCN >= firstVCN+clustersPerUnit {
				continue
			}
			presentRuns = append(presentRuns, run)
			if !run.Sparse {
				allSparse = false
			}
		}
	}

	if len(presentRuns) == 0 || allSparse {
		return make([]byte, unitTarget), nil
	}

	// Fully-present unit (every covering run is non-sparse and together
	// span the whole unit): stored verbatim, no LZNT1 framing.
	presentClusters := uint64(0)
	fullyPresent := true
	for _, run := range presentRuns {
		if run.Sparse {
			fullyPresent = false
			break
		}
		presentClusters += run.Length
	}
	if fullyPresent && presentClusters >= clustersPerUnit {
		out := make([]byte, unitTarget)
		n, err := cs.readDirect(out, unitStart)
		if err != nil {
			return nil, err
		}
		return out[:n], nil
	}

	// Mixed unit: present clusters (non-sparse prefix) hold an LZNT1
	// stream; decode it, then pad per decodeUnit's target.
	var compressedLen uint64
	for _, run := range presentRuns {
		if !run.Sparse {
			compressedLen += run.Length * cs.clusterSize
		}
	}
	raw := make([]byte, compressedLen)
	if _, err := cs.readDirect(raw, unitStart); err != nil {
		return nil, err
	}
	decoded, err := lznt1.DecompressUnit(raw, int(unitTarget))
	if err != nil {
		return nil, err
	}
	return decoded, nil
}

func (cs *ClusterStream) abortRequested() bool {
	return cs.abort != nil && cs.abort.Load()
}

func zeroFill(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Extents reports the stream's run layout as a flat sequence of logical
// extents (sparse vs. present), one per run in chain order; adjacent runs
// are not merged. For callers that want layout without reading data.
func (cs *ClusterStream) Extents() []Extent {
	if cs.resident != nil {
		return []Extent{{Offset: 0, Length: uint64(len(cs.resident)), Sparse: false}}
	}
	var out []Extent
	for _, attr := range cs.chain {
		for _, run := range attr.runs {
			out = append(out, Extent{
				Offset: run.FirstVCN * cs.clusterSize,
				Length: run.Length * cs.clusterSize,
				Sparse: run.Sparse,
			})
		}
	}
	return out
}
