// Package collation implements NTFS name comparison (§4.12): canonical
// Unicode case-insensitive compare, the on-disk $UpCase table, short-name
// (8.3, "~1") equivalence, and the B+-tree COLLATION_* orderings $INDEX_ROOT
// declares.
//
// Case folding defaults to golang.org/x/text/cases (language.Und, Upper)
// rather than a hand-rolled towupper table — the spec explicitly allows
// "fall back to towupper when [the on-disk $UpCase table is] unavailable",
// and x/text is the ecosystem's towupper for Go.
package collation

import (
	"unicode/utf16"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// UpCaseTableSize is the size in bytes of the $UpCase system file (MFT
// index 10): 32768 little-endian uint16 uppercase mappings, one per code
// point U+0000–U+7FFF.
const UpCaseTableSize = 65536

var fallbackCaser = cases.Upper(language.Und)

// UpCaseTable holds the decoded $UpCase mapping. A zero-value UpCaseTable
// (Entries == nil) falls back to x/text/cases for every code point.
type UpCaseTable struct {
	Entries []uint16 // length 32768, code point U+0000–U+7FFF -> its upper-case form
}

// ParseUpCaseTable decodes the raw $UpCase stream bytes (little-endian
// uint16 entries) into a table. Entries past the end of a short table map
// each code point to itself; NTFS always
// stores the full 64 KiB, but partial reads (e.g. during carving) shouldn't
// panic.
func ParseUpCaseTable(raw []byte) *UpCaseTable {
	n := len(raw) / 2
	if n > 32768 {
		n = 32768
	}
	entries := make([]uint16, 32768)
	for i := 0; i < n; i++ {
		entries[i] = uint16(raw[2*i]) | uint16(raw[2*i+1])<<8
	}
	for i := n; i < 32768; i++ {
		entries[i] = uint16(i)
	}
	return &UpCaseTable{Entries: entries}
}

// upperRune upper-cases one rune, preferring the on-disk table for code
// points it covers (U+0000–U+7FFF) and falling back to x/text/cases
// otherwise (code points past the table, or no table loaded at all).
func (t *UpCaseTable) upperRune(r rune) rune {
	if t != nil && r >= 0 && int(r) < len(t.Entries) {
		return rune(t.Entries[r])
	}
	return []rune(fallbackCaser.String(string(r)))[0]
}

// FoldUpper upper-cases s the NTFS way: table-driven when t is non-nil,
// x/text/cases otherwise. Unpaired surrogates in malformed UTF-16-derived
// strings pass through unchanged (utf16.Decode already replaces them with
// the replacement character on decode, so by the time a Go string reaches
// here there are no raw surrogates left to mishandle).
func FoldUpper(t *UpCaseTable, s string) string {
	if t == nil {
		return fallbackCaser.String(s)
	}
	rs := []rune(s)
	for i, r := range rs {
		rs[i] = t.upperRune(r)
	}
	return string(rs)
}

// Equal reports whether a and b are the same NTFS name under case folding.
func Equal(t *UpCaseTable, a, b string) bool {
	return FoldUpper(t, a) == FoldUpper(t, b)
}

// Compare returns -1, 0, or 1 comparing a and b under NTFS case-insensitive,
// code-point-by-code-point order (COLLATION_FILENAME, §4.7).
func Compare(t *UpCaseTable, a, b string) int {
	fa, fb := FoldUpper(t, a), FoldUpper(t, b)
	ra, rb := []rune(fa), []rune(fb)
	for i := 0; i < len(ra) && i < len(rb); i++ {
		if ra[i] != rb[i] {
			if ra[i] < rb[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(ra) < len(rb):
		return -1
	case len(ra) > len(rb):
		return 1
	default:
		return 0
	}
}

// DecodeUTF16Lenient decodes possibly-malformed UTF-16 (unpaired
// surrogates) the same way NTFS names must tolerate them: utf16.Decode
// substitutes the Unicode replacement character for any surrogate that
// doesn't pair, rather than failing outright.
func DecodeUTF16Lenient(u16 []uint16) string {
	return string(utf16.Decode(u16))
}

// invalidShortChars are characters libfsntfs_name.c's short-name compare
// strips from the long name before comparison: control characters, space,
// and the 8.3-illegal punctuation set.
const invalidShortChars = "\"*+,./:;<=>?\\"

func isInvalidShortRune(r rune) bool {
	if r <= 0x20 {
		return true
	}
	for _, c := range invalidShortChars {
		if r == c {
			return true
		}
	}
	return false
}

// shortNameFold strips invalid 8.3 characters, maps '[' and ']' to '_', and
// upper-cases, mirroring libfsntfs_name.c's short-name normalization.
func shortNameFold(t *UpCaseTable, s string) []rune {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if isInvalidShortRune(r) {
			continue
		}
		if r == '[' || r == ']' {
			r = '_'
		}
		out = append(out, r)
	}
	folded := FoldUpper(t, string(out))
	return []rune(folded)
}

// splitExt splits a name into base and extension on the last '.', NTFS
// short-name style (no extension if there's no dot, or the dot is first).
func splitExt(name string) (base, ext string) {
	idx := -1
	for i, r := range name {
		if r == '.' {
			idx = i
		}
	}
	if idx <= 0 {
		return name, ""
	}
	return name[:idx], name[idx+1:]
}

// ShortNameMatches reports whether shortName (an 8.3 "~N" DOS name, e.g.
// "PROGRA~1.TXT") could have been generated from longName, per §4.8 and
// §4.12: the first up-to-4 folded characters of the long name's base must
// match the same leading characters of the short name's base (before its
// '~' marker), the short name must
// contain '~' followed by decimal digits (capped at 4, per
// libfsntfs_name.c), and if the long name has an extension the short
// name's (folded, truncated to 3 chars) extension must match too.
func ShortNameMatches(t *UpCaseTable, longName, shortName string) bool {
	shortBase, shortExt := splitExt(shortName)
	tilde := -1
	for i, r := range shortBase {
		if r == '~' {
			tilde = i
			break
		}
	}
	if tilde < 0 {
		return false
	}
	digits := []rune(shortBase)[tilde+1:]
	if len(digits) == 0 || len(digits) > 4 {
		return false
	}
	for _, d := range digits {
		if d < '0' || d > '9' {
			return false
		}
	}

	longBase, longExt := splitExt(longName)
	foldedLongBase := shortNameFold(t, longBase)
	prefixLen := tilde
	if prefixLen > 4 {
		prefixLen = 4
	}
	if len(foldedLongBase) < prefixLen {
		return false
	}
	foldedShortBasePrefix := shortNameFold(t, shortBase[:byteLenOfRunes(shortBase, tilde)])
	if len(foldedShortBasePrefix) > prefixLen {
		foldedShortBasePrefix = foldedShortBasePrefix[:prefixLen]
	}
	if string(foldedLongBase[:prefixLen]) != string(foldedShortBasePrefix) {
		return false
	}

	if longExt == "" {
		return shortExt == ""
	}
	foldedLongExt := shortNameFold(t, longExt)
	foldedShortExt := shortNameFold(t, shortExt)
	n := len(foldedLongExt)
	if n > 3 {
		n = 3
	}
	m := len(foldedShortExt)
	if m > n {
		m = n
	}
	return string(foldedShortExt) == string(foldedLongExt[:m]) && m == len(foldedShortExt)
}

func byteLenOfRunes(s string, n int) int {
	count := 0
	for i := range s {
		if count == n {
			return i
		}
		count++
	}
	return len(s)
}
