// Package ntfs is the public library surface over internal/ntfs: a small
// Open/Stage/ProgressEvent wrapper in the teacher's pkg/bdinfo style, so a
// caller gets a structured open sequence and plain Go types back instead of
// reaching into the layered core parser directly.
package ntfs

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/go-ntfs/ntfsfs/internal/diag"
	internalntfs "github.com/go-ntfs/ntfsfs/internal/ntfs"
	"github.com/go-ntfs/ntfsfs/internal/rangeio"
	internalsettings "github.com/go-ntfs/ntfsfs/internal/settings"
	"github.com/go-ntfs/ntfsfs/internal/usnjrnl"
	"github.com/go-ntfs/ntfsfs/internal/util"
)

// usnJournalPath is the well-known path of the change journal's data
// stream, relative to the volume root.
const usnJournalPath = `\$Extend\$UsnJrnl:$J`

// UsnRecord is one parsed $UsnJrnl change record (§4.13).
type UsnRecord = usnjrnl.Record

// USN reason bits, re-exported for callers filtering ScanUsnJournal output.
const (
	UsnReasonDataOverwrite     = usnjrnl.ReasonDataOverwrite
	UsnReasonDataExtend        = usnjrnl.ReasonDataExtend
	UsnReasonDataTruncation    = usnjrnl.ReasonDataTruncation
	UsnReasonFileCreate        = usnjrnl.ReasonFileCreate
	UsnReasonFileDelete        = usnjrnl.ReasonFileDelete
	UsnReasonRename            = usnjrnl.ReasonRename
	UsnReasonSecurityChange    = usnjrnl.ReasonSecurityChange
	UsnReasonHardLinkChange    = usnjrnl.ReasonHardLinkChange
	UsnReasonCompressionChange = usnjrnl.ReasonCompressionChange
	UsnReasonBasicInfoChange   = usnjrnl.ReasonBasicInfoChange
	UsnReasonIndexableChange   = usnjrnl.ReasonIndexableChange
	UsnReasonStreamChange      = usnjrnl.ReasonStreamChange
	UsnReasonClose             = usnjrnl.ReasonClose
)

// Stage represents a coarse progress stage for Open.
type Stage string

const (
	StageOpening         Stage = "opening"
	StageBootSectorRead  Stage = "boot_sector_read"
	StageMftBootstrapped Stage = "mft_bootstrapped"
	StageReady           Stage = "ready"
)

// ProgressEvent is emitted when Open transitions between major phases.
type ProgressEvent struct {
	Stage      Stage
	Path       string
	Elapsed    time.Duration
	OccurredAt time.Time
}

// Settings are library-facing open controls.
type Settings = internalsettings.Settings

// DefaultSettings returns library defaults.
func DefaultSettings() Settings { return internalsettings.Default() }

// Options configure one Open call.
type Options struct {
	Path       string
	Settings   Settings
	OnProgress func(ProgressEvent)
}

// EntryInfo is a flattened, display-ready view of one FileEntry.
type EntryInfo struct {
	Name               string
	Path               string
	IsDirectory        bool
	Size               uint64
	SizeHuman          string
	FileAttributeFlags uint32
	ModificationTime   time.Time
	CreationTime       time.Time
}

// Mount is an open NTFS volume, ready for path lookups and reads.
type Mount struct {
	file       *rangeio.FileReader
	vol        *internalntfs.Volume
	abort      *atomic.Bool
	human      bool
	showSystem bool
}

// Open parses the boot sector, bootstraps the $MFT, and returns a ready
// Mount. The returned Mount must be closed with Close when done.
func Open(ctx context.Context, options Options) (*Mount, error) {
	if options.Path == "" {
		return nil, errors.New("path is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	emit(options.OnProgress, ProgressEvent{Stage: StageOpening, Path: options.Path, OccurredAt: time.Now()})

	f, err := rangeio.Open(options.Path)
	if err != nil {
		return nil, err
	}

	abort := &atomic.Bool{}
	vol, err := internalntfs.Open(f, internalntfs.Options{
		EntryCacheSize: options.Settings.EntryCacheSize,
		VolumeOffset:   options.Settings.VolumeOffset,
		Abort:          abort,
		Progress:       diag.Discard,
	})
	if err != nil {
		f.Close()
		return nil, err
	}
	emit(options.OnProgress, ProgressEvent{Stage: StageBootSectorRead, Path: options.Path, Elapsed: time.Since(start), OccurredAt: time.Now()})
	emit(options.OnProgress, ProgressEvent{Stage: StageMftBootstrapped, Path: options.Path, Elapsed: time.Since(start), OccurredAt: time.Now()})

	m := &Mount{file: f, vol: vol, abort: abort, human: options.Settings.Human, showSystem: options.Settings.ShowSystemFiles}
	emit(options.OnProgress, ProgressEvent{Stage: StageReady, Path: options.Path, Elapsed: time.Since(start), OccurredAt: time.Now()})
	return m, nil
}

// Close releases the underlying file handle.
func (m *Mount) Close() error {
	if m.file == nil {
		return nil
	}
	return m.file.Close()
}

// Cancel requests that any in-flight read abort at its next chunk boundary.
func (m *Mount) Cancel() { m.abort.Store(true) }

// Stat resolves path and returns its metadata, without reading content. A
// clean "not found" is (EntryInfo{}, nil, false).
func (m *Mount) Stat(path string) (EntryInfo, bool, error) {
	fe, _, err := m.vol.ResolvePath(path)
	if err != nil {
		return EntryInfo{}, false, err
	}
	if fe == nil {
		return EntryInfo{}, false, nil
	}
	info, err := m.entryInfo(fe, path)
	return info, true, err
}

// ReadFile reads the entire contents of path's unnamed (or, via the
// `:stream` suffix, named) data stream.
func (m *Mount) ReadFile(path string) ([]byte, error) {
	fe, stream, err := m.vol.ResolvePath(path)
	if err != nil {
		return nil, err
	}
	if fe == nil {
		return nil, errors.New("ntfs: not found: " + path)
	}
	cs, err := fe.OpenStream(stream)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, cs.Size())
	if _, err := cs.ReadAt(buf, 0); err != nil {
		return nil, err
	}
	return buf, nil
}

// ScanUsnJournal walks \$Extend\$UsnJrnl:$J from its first live record to
// EOF, calling visit for each one it decodes. A volume with no active
// journal reports that as a not-found error rather than an empty scan.
func (m *Mount) ScanUsnJournal(visit func(UsnRecord) error) error {
	fe, stream, err := m.vol.ResolvePath(usnJournalPath)
	if err != nil {
		return err
	}
	if fe == nil {
		return errors.New("ntfs: no $UsnJrnl on this volume")
	}
	cs, err := fe.OpenStream(stream)
	if err != nil {
		return err
	}
	return usnjrnl.Scan(cs, visit)
}

// EntryRecord is one decoded (or failed) record from ScanEntries, keyed by
// its $MFT index.
type EntryRecord struct {
	Index uint64
	Entry EntryInfo
	Err   error
}

// ScanEntries walks every record in $MFT by index, an `mft_entries_fprint`-
// style bulk scan: it fans the per-record parse out across concurrency
// workers with errgroup.WithContext (mirroring the retrieval pack's batch
// build scheduler), then delivers results to visit in index order. A
// parse failure on one record is reported to visit as that record's Err
// rather than aborting the scan; only ctx cancellation or a visit error
// stops it early. concurrency <= 0 uses GOMAXPROCS.
func (m *Mount) ScanEntries(ctx context.Context, concurrency int, visit func(EntryRecord) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	count := m.vol.EntryCount()
	records := make([]EntryRecord, count)

	eg, egCtx := errgroup.WithContext(ctx)
	work := make(chan uint64)

	for w := 0; w < concurrency; w++ {
		eg.Go(func() error {
			for idx := range work {
				fe, err := m.vol.GetEntryByIndex(idx)
				rec := EntryRecord{Index: idx, Err: err}
				if err == nil {
					info, infoErr := m.entryInfo(fe, "")
					rec.Entry, rec.Err = info, infoErr
				}
				records[idx] = rec
			}
			return nil
		})
	}
	eg.Go(func() error {
		defer close(work)
		for idx := uint64(0); idx < count; idx++ {
			select {
			case work <- idx:
			case <-egCtx.Done():
				return egCtx.Err()
			}
		}
		return nil
	})
	if err := eg.Wait(); err != nil {
		return err
	}

	for _, rec := range records {
		if err := visit(rec); err != nil {
			return err
		}
	}
	return nil
}

// ListDir resolves path and returns its immediate children.
func (m *Mount) ListDir(path string) ([]EntryInfo, error) {
	fe, _, err := m.vol.ResolvePath(path)
	if err != nil {
		return nil, err
	}
	if fe == nil {
		return nil, errors.New("ntfs: not found: " + path)
	}
	children, err := fe.SubEntries()
	if err != nil {
		return nil, err
	}

	out := make([]EntryInfo, 0, len(children))
	for _, child := range children {
		names, err := child.Names()
		if err != nil {
			continue
		}
		name := names[0].Name
		if !m.showSystemFile(name) {
			continue
		}
		info, err := m.entryInfo(child, joinPath(path, name))
		if err != nil {
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

// showSystemFile reports whether a child named name should appear in
// ListDir output: system files (NTFS's own "$"-prefixed metadata entries)
// are hidden unless the Mount was opened with ShowSystemFiles.
func (m *Mount) showSystemFile(name string) bool {
	if m.showSystem {
		return true
	}
	return len(name) == 0 || name[0] != '$'
}

func (m *Mount) entryInfo(fe *internalntfs.FileEntry, path string) (EntryInfo, error) {
	names, err := fe.Names()
	if err != nil {
		return EntryInfo{}, err
	}
	flags, err := fe.FileAttributeFlags()
	if err != nil {
		return EntryInfo{}, err
	}
	modTime, _ := fe.ModificationTime()
	creationTime, _ := fe.CreationTime()
	size := fe.Size()

	return EntryInfo{
		Name:               names[0].Name,
		Path:               path,
		IsDirectory:        fe.IsDirectory(),
		Size:               size,
		SizeHuman:          util.FormatFileSize(float64(size), m.human),
		FileAttributeFlags: flags,
		ModificationTime:   util.FILETimeToUTC(modTime),
		CreationTime:       util.FILETimeToUTC(creationTime),
	}, nil
}

func joinPath(parent, name string) string {
	if parent == "" || parent == `\` {
		return `\` + name
	}
	return parent + `\` + name
}

func emit(cb func(ProgressEvent), event ProgressEvent) {
	if cb != nil {
		cb(event)
	}
}
