// Package settings holds the library-facing configuration defaults
// pkg/ntfs and the CLI tools share, mirroring the teacher's pattern of a
// small internal Settings struct with a Default constructor that the
// public package's Options wraps.
package settings

import "github.com/go-ntfs/ntfsfs/internal/ntfs"

// Settings are the open-time knobs every entry point (library, CLI, TUI)
// exposes over a raw Volume (§4.9's ntfs.OpenOptions-equivalent
// configuration layer).
type Settings struct {
	// EntryCacheSize bounds the parsed-MFT-entry cache. Zero uses
	// ntfs.DefaultEntryCacheSize.
	EntryCacheSize int
	// VolumeOffset is the byte offset of the NTFS volume within the opened
	// file (nonzero for a whole-disk image containing a partition table).
	VolumeOffset uint64
	// ShowSystemFiles includes entries whose name starts with '$' in
	// directory listings.
	ShowSystemFiles bool
	// Human formats sizes as "12.34 MB" rather than a bare byte count.
	Human bool
}

// Default returns the library's baseline settings.
func Default() Settings {
	return Settings{
		EntryCacheSize:  ntfs.DefaultEntryCacheSize,
		VolumeOffset:    0,
		ShowSystemFiles: false,
		Human:           true,
	}
}
