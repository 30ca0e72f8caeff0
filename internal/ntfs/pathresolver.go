package ntfs

import "strings"

// ResolvePath walks path, `\`-separated (or `/`-separated — both are
// accepted and treated identically), starting at the volume root (§4.11).
// `.` and `..` are ordinary names, not special-cased: NTFS directory
// indices don't special-case them either, so a volume that happens to
// contain literal "." or ".." entries resolves correctly. A trailing
// `:stream` suffix on the final segment names an alternate data stream and
// is split off into streamName rather than being looked up as a child.
func (v *Volume) ResolvePath(path string) (entry *FileEntry, streamName string, err error) {
	root, err := v.Root()
	if err != nil {
		return nil, "", err
	}

	segments := splitPath(path)
	if len(segments) == 0 {
		return root, "", nil
	}

	last := segments[len(segments)-1]
	name, stream := splitStreamSuffix(last)
	segments[len(segments)-1] = name

	current := root
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		next, err := current.Lookup(seg)
		if err != nil {
			return nil, "", err
		}
		if next == nil {
			return nil, "", nil
		}
		current = next
	}
	return current, stream, nil
}

// splitPath splits on both path separators and drops empty segments (a
// leading separator, doubled separators, or a trailing separator all
// collapse to nothing).
func splitPath(path string) []string {
	norm := strings.Map(func(r rune) rune {
		if r == '/' {
			return '\\'
		}
		return r
	}, path)
	parts := strings.Split(norm, `\`)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitStreamSuffix separates a trailing ":streamName" from the final path
// segment. A bare ":" with nothing after it is treated as no stream
// suffix at all (names containing ':' without a following name are
// vanishingly rare and not a valid ADS reference).
func splitStreamSuffix(segment string) (name, stream string) {
	idx := strings.IndexByte(segment, ':')
	if idx < 0 || idx == len(segment)-1 {
		return segment, ""
	}
	return segment[:idx], segment[idx+1:]
}
