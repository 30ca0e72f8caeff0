// Command ntfsinfo inspects an NTFS volume image: boot-sector/volume
// summary, directory listings, file/stream dumps, and USN journal records.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/blang/semver"
	"github.com/creativeprojects/go-selfupdate"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/go-ntfs/ntfsfs/internal/util"
	ntfslib "github.com/go-ntfs/ntfsfs/pkg/ntfs"
)

var version = "dev"

// optBool is a tri-state boolean flag: unset, explicitly true, or
// explicitly false, following go-bdinfo's cmd/bdinfo optBool pattern for
// overriding a Settings default only when the user actually passes the
// flag.
type optBool struct {
	set   bool
	value bool
}

func (o *optBool) Set(s string) error {
	if s == "" || s == "true" || s == "1" {
		o.value, o.set = true, true
		return nil
	}
	if s == "false" || s == "0" {
		o.value, o.set = false, true
		return nil
	}
	return fmt.Errorf("invalid boolean %q", s)
}

func (o *optBool) String() string {
	if !o.set {
		return ""
	}
	if o.value {
		return "true"
	}
	return "false"
}

func (o *optBool) Type() string { return "bool" }

var (
	imagePath      string
	volumeOffset   int64
	entryCacheSize int
	showSystem     optBool
	humanSizes     optBool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ntfsinfo",
		Short:         "Inspect an NTFS volume image",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&imagePath, "image", "i", "", "path to the NTFS volume image or device")
	root.PersistentFlags().Int64Var(&volumeOffset, "offset", 0, "byte offset of the NTFS volume within the image")
	root.PersistentFlags().IntVar(&entryCacheSize, "cache-size", 0, "parsed MFT entry cache size (0 = default)")
	root.PersistentFlags().Var(&showSystem, "show-system", "include $-prefixed system entries in listings")
	root.PersistentFlags().Var(&humanSizes, "human", "render sizes as e.g. \"12.34 MB\" instead of a bare byte count")

	root.AddCommand(newInfoCmd(), newLsCmd(), newCatCmd(), newUsnCmd(), newScanCmd(), newUpdateCmd())
	return root
}

func openMount(ctx context.Context) (*ntfslib.Mount, error) {
	if imagePath == "" {
		return nil, errors.New("--image is required")
	}
	s := ntfslib.DefaultSettings()
	s.VolumeOffset = uint64(volumeOffset)
	if entryCacheSize > 0 {
		s.EntryCacheSize = entryCacheSize
	}
	if showSystem.set {
		s.ShowSystemFiles = showSystem.value
	}
	if humanSizes.set {
		s.Human = humanSizes.value
	}

	// Progress lines are only worth printing to an interactive terminal;
	// piped/redirected output stays clean for scripting.
	interactive := isatty.IsTerminal(os.Stderr.Fd())
	m, err := ntfslib.Open(ctx, ntfslib.Options{
		Path:     imagePath,
		Settings: s,
		OnProgress: func(ev ntfslib.ProgressEvent) {
			if !interactive {
				return
			}
			fmt.Fprintf(os.Stderr, "\r%-20s %s", ev.Stage, ev.Elapsed)
		},
	})
	if interactive {
		fmt.Fprintln(os.Stderr)
	}
	return m, err
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print a summary of the volume's root directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openMount(cmd.Context())
			if err != nil {
				return err
			}
			defer m.Close()

			root, ok, err := m.Stat(`\`)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("volume root could not be resolved")
			}
			children, err := m.ListDir(`\`)
			if err != nil {
				return err
			}
			fmt.Printf("root entries: %d\n", len(children))
			fmt.Printf("root modified: %s\n", root.ModificationTime.Format(time.RFC3339))
			return nil
		},
	}
}

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List a directory's immediate children",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := `\`
			if len(args) == 1 {
				path = args[0]
			}
			m, err := openMount(cmd.Context())
			if err != nil {
				return err
			}
			defer m.Close()

			entries, err := m.ListDir(path)
			if err != nil {
				return err
			}
			for _, e := range entries {
				kind := "-"
				if e.IsDirectory {
					kind = "d"
				}
				fmt.Printf("%s %12s  %s\n", kind, e.SizeHuman, e.Name)
			}
			return nil
		},
	}
}

func newCatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path>",
		Short: "Write a file's (or alternate data stream's) content to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openMount(cmd.Context())
			if err != nil {
				return err
			}
			defer m.Close()

			data, err := m.ReadFile(args[0])
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(data)
			return err
		},
	}
}

func newUsnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "usn",
		Short: "Dump \\$Extend\\$UsnJrnl:$J records",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openMount(cmd.Context())
			if err != nil {
				return err
			}
			defer m.Close()
			return dumpUsnJournal(m)
		},
	}
}

func newScanCmd() *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Bulk-parse every $MFT record and report failures",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openMount(cmd.Context())
			if err != nil {
				return err
			}
			defer m.Close()

			var total, failed int
			err = m.ScanEntries(cmd.Context(), workers, func(rec ntfslib.EntryRecord) error {
				total++
				if rec.Err != nil {
					failed++
					fmt.Printf("%d\tERROR\t%v\n", rec.Index, rec.Err)
					return nil
				}
				fmt.Printf("%d\t%s\t%s\n", rec.Index, rec.Entry.SizeHuman, rec.Entry.Name)
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "scanned %d entries, %d failed\n", total, failed)
			return nil
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent record-parse workers (0 = GOMAXPROCS)")
	return cmd
}

func newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Update ntfsinfo to the latest release",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelfUpdate(cmd.Context())
		},
	}
}

func runSelfUpdate(ctx context.Context) error {
	if version == "" || version == "dev" {
		return errors.New("self-update is only available in release builds")
	}
	if _, err := semver.ParseTolerant(version); err != nil {
		return fmt.Errorf("could not parse version: %w", err)
	}

	latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug("go-ntfs/ntfsfs"))
	if err != nil {
		return fmt.Errorf("error occurred while detecting version: %w", err)
	}
	if !found {
		return fmt.Errorf("latest version for ntfsinfo %s could not be found", version)
	}
	if latest.LessOrEqual(version) {
		fmt.Printf("Current binary is the latest version: %s\n", version)
		return nil
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("could not locate executable path: %w", err)
	}
	if err := selfupdate.UpdateTo(ctx, latest.AssetURL, latest.AssetName, exe); err != nil {
		return fmt.Errorf("error occurred while updating binary: %w", err)
	}
	fmt.Printf("Successfully updated to version: %s\n", latest.Version())
	return nil
}

func dumpUsnJournal(m *ntfslib.Mount) error {
	return m.ScanUsnJournal(func(rec ntfslib.UsnRecord) error {
		fmt.Printf("%d\t%s\t%s\t%s\n",
			rec.USN,
			util.FILETimeToUTC(rec.Timestamp).Format(time.RFC3339),
			reasonString(rec.Reason),
			rec.Name,
		)
		return nil
	})
}

func reasonString(reason uint32) string {
	var parts []string
	for _, b := range []struct {
		bit  uint32
		name string
	}{
		{ntfslib.UsnReasonFileCreate, "FileCreate"},
		{ntfslib.UsnReasonFileDelete, "FileDelete"},
		{ntfslib.UsnReasonRename, "Rename"},
		{ntfslib.UsnReasonDataOverwrite, "DataOverwrite"},
		{ntfslib.UsnReasonDataExtend, "DataExtend"},
		{ntfslib.UsnReasonDataTruncation, "DataTruncation"},
		{ntfslib.UsnReasonSecurityChange, "SecurityChange"},
		{ntfslib.UsnReasonHardLinkChange, "HardLinkChange"},
		{ntfslib.UsnReasonCompressionChange, "CompressionChange"},
		{ntfslib.UsnReasonBasicInfoChange, "BasicInfoChange"},
		{ntfslib.UsnReasonIndexableChange, "IndexableChange"},
		{ntfslib.UsnReasonStreamChange, "StreamChange"},
		{ntfslib.UsnReasonClose, "Close"},
	} {
		if reason&b.bit != 0 {
			parts = append(parts, b.name)
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "|")
}
