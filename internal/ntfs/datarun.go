package ntfs

import (
	"github.com/go-ntfs/ntfsfs/internal/binreader"
	"github.com/go-ntfs/ntfsfs/internal/ntfserr"
)

// Run is one decoded data-run extent (§3, §4.2): a contiguous range of
// virtual clusters, either backed by a contiguous physical range starting
// at LCN, or sparse (no physical backing, reads as zero).
type Run struct {
	FirstVCN uint64
	Length   uint64 // clusters
	LCN      uint64 // meaningful only when !Sparse
	Sparse   bool
}

// LastVCN is the inclusive last VCN covered by this run.
func (r Run) LastVCN() uint64 { return r.FirstVCN + r.Length - 1 }

// decodeDataRuns parses the packed run list at the tail of a non-resident
// attribute body (§4.2) starting at firstVCN, verifying the decoded runs
// span exactly [firstVCN, lastVCN].
func decodeDataRuns(data []byte, firstVCN, lastVCN uint64, totalClusters uint64) ([]Run, error) {
	r := binreader.New(data)
	var runs []Run
	vcn := firstVCN
	var prevLCN int64

	for {
		header, ok := r.Uint8()
		if !ok {
			return nil, ntfserr.Errorf(ntfserr.CorruptedRunList, op, "run list truncated before terminator")
		}
		if header == 0 {
			break
		}
		lengthBytes := int(header & 0x0F)
		offsetBytes := int(header >> 4)
		if lengthBytes > 8 || offsetBytes > 8 {
			return nil, ntfserr.Errorf(ntfserr.CorruptedRunList, op, "run header %#x has out-of-range field widths", header)
		}

		lengthRaw, ok := r.Read(lengthBytes)
		if !ok {
			return nil, ntfserr.Errorf(ntfserr.CorruptedRunList, op, "run length field truncated")
		}
		length := binreader.UintLE(lengthRaw)
		if length == 0 {
			return nil, ntfserr.Errorf(ntfserr.CorruptedRunList, op, "run length is zero")
		}
		if length > 1<<48 {
			return nil, ntfserr.Errorf(ntfserr.CorruptedRunList, op, "run length %d exceeds 2^48 clusters", length)
		}

		sparse := offsetBytes == 0
		var lcn uint64
		if !sparse {
			offsetRaw, ok := r.Read(offsetBytes)
			if !ok {
				return nil, ntfserr.Errorf(ntfserr.CorruptedRunList, op, "run offset field truncated")
			}
			delta := binreader.IntLE(offsetRaw)
			newLCN := prevLCN + delta
			if newLCN < 0 || (totalClusters > 0 && uint64(newLCN) >= totalClusters) {
				return nil, ntfserr.Errorf(ntfserr.CorruptedRunList, op, "lcn %d out of device bounds", newLCN)
			}
			prevLCN = newLCN
			lcn = uint64(newLCN)
		}

		runs = append(runs, Run{FirstVCN: vcn, Length: length, LCN: lcn, Sparse: sparse})
		vcn += length
	}

	var sum uint64
	for _, run := range runs {
		sum += run.Length
	}
	want := lastVCN - firstVCN + 1
	if lastVCN >= firstVCN && sum != want {
		return nil, ntfserr.Errorf(ntfserr.CorruptedRunList, op, "run lengths sum to %d, want %d", sum, want)
	}
	return runs, nil
}

// encodeDataRuns is the inverse of decodeDataRuns, used by tests to exercise
// the round-trip property (§8): encode then decode K random runs within
// bounds yields an identical sequence.
func encodeDataRuns(runs []Run) []byte {
	var out []byte
	var prevLCN int64
	for _, run := range runs {
		lengthBytes := minBytesForUint(run.Length)
		lengthField := makeLE(run.Length, lengthBytes)

		var offsetBytes int
		var offsetField []byte
		if !run.Sparse {
			delta := int64(run.LCN) - prevLCN
			offsetBytes = minBytesForInt(delta)
			// Low-order bytes of the two's-complement uint64 bit pattern
			// are exactly what IntLE's sign-extension-from-top-bit expects
			// back, so no separate signed encoder is needed.
			offsetField = makeLE(uint64(delta), offsetBytes)
			prevLCN = int64(run.LCN)
		}

		header := byte(lengthBytes) | byte(offsetBytes)<<4
		out = append(out, header)
		out = append(out, lengthField...)
		out = append(out, offsetField...)
	}
	out = append(out, 0)
	return out
}

func makeLE(v uint64, n int) []byte {
	b := make([]byte, n)
	for i := 0; i < n; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
	return b
}

func minBytesForUint(v uint64) int {
	n := 0
	for v > 0 {
		n++
		v >>= 8
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
