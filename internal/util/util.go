// Package util holds small formatting helpers shared by the CLI and TUI
// front ends — the teacher's equivalent package formats BD-ROM sizes and
// timestamps the same way, for the same reason: keep display formatting
// out of the parsing layers entirely.
package util

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// ntfsEpochOffset is the number of 100ns intervals between the NTFS/Windows
// FILETIME epoch (1601-01-01 UTC) and the Unix epoch (1970-01-01 UTC).
const ntfsEpochOffset = 116444736000000000

// FormatFileSize renders size in bytes, either as a bare count or (human
// true) scaled to the largest unit that keeps the mantissa under 1024.
func FormatFileSize(size float64, human bool) string {
	if size <= 0 {
		return "0"
	}
	if !human {
		return fmt.Sprintf("%.0f", size)
	}
	units := []string{"B", "KB", "MB", "GB", "TB", "PB", "EB"}
	group := int(math.Log10(size) / math.Log10(1024))
	if group < 0 {
		group = 0
	}
	if group >= len(units) {
		group = len(units) - 1
	}
	return fmt.Sprintf("%.2f %s", size/math.Pow(1024, float64(group)), units[group])
}

// FILETimeToUTC converts a raw NTFS FILETIME (100ns intervals since
// 1601-01-01 UTC, as stored in $STANDARD_INFORMATION/$FILE_NAME) to a Go
// time.Time. A zero FILETIME (field absent/never set) maps to the zero
// time.Time rather than 1601-01-01, which callers should treat as "unset".
func FILETimeToUTC(filetime uint64) time.Time {
	if filetime == 0 {
		return time.Time{}
	}
	unix100ns := int64(filetime) - ntfsEpochOffset
	return time.Unix(0, unix100ns*100).UTC()
}

// FormatNumber formats an integer with thousands separators (entry counts,
// cluster counts, and similar CLI summary output).
func FormatNumber(n int64) string {
	if n == 0 {
		return "0"
	}
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return sign + s
	}
	out := make([]byte, 0, len(s)+len(s)/3)
	for i, c := range s {
		if i != 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, byte(c))
	}
	return sign + string(out)
}
