package finddups

import (
	"errors"
	"fmt"
	"io"

	"github.com/calvinalkan/finddups/internal/archive"
	"github.com/calvinalkan/finddups/internal/filestore"
	"github.com/calvinalkan/finddups/internal/record"
	"github.com/calvinalkan/finddups/internal/sizes"
	"github.com/calvinalkan/finddups/pkg/fs"
)

// ErrDiffModeConflict is returned when both -m/--missing and -p/--present
// are given to the second-archive diff tool.
var ErrDiffModeConflict = errors.New("finddups-diff: -m/--missing and -p/--present are mutually exclusive")

// DiffOptions is the parsed CLI surface for cmd/finddups-diff.
type DiffOptions struct {
	PrimaryArchive   string
	SecondaryArchive string
	Missing          bool
	Present          bool
}

func (o DiffOptions) validate() error {
	if o.Missing && o.Present {
		return ErrDiffModeConflict
	}

	return nil
}

// RunDiff loads both archives' FileIndexes and classifies every entry in
// the secondary archive against the primary archive's HashIndex, per
// spec.md §6's second-archive diff tool. One path per line is written to
// stdout: entries missing from the primary archive under --missing,
// entries present under --present, every entry (prefixed with its status)
// when neither flag is given.
func RunDiff(opts DiffOptions, stdout, _ io.Writer) error {
	if err := opts.validate(); err != nil {
		return err
	}

	primary, err := openFileStore(opts.PrimaryArchive)
	if err != nil {
		return fmt.Errorf("finddups-diff: primary archive: %w", err)
	}

	secondary, err := openFileStore(opts.SecondaryArchive)
	if err != nil {
		return fmt.Errorf("finddups-diff: secondary archive: %w", err)
	}

	results := primary.FindDupsSecondArchive(secondary)

	for _, res := range results {
		if printDiffResult(res, opts) {
			fmt.Fprintln(stdout, formatDiffLine(res, opts))
		}
	}

	return nil
}

func printDiffResult(res filestore.DiffResult, opts DiffOptions) bool {
	switch {
	case opts.Missing:
		return !res.Present
	case opts.Present:
		return res.Present
	default:
		return true
	}
}

func formatDiffLine(res filestore.DiffResult, opts DiffOptions) string {
	if opts.Missing || opts.Present {
		return res.Entry.Name
	}

	status := "missing"
	if res.Present {
		status = "present"
	}

	return fmt.Sprintf("%s\t%s", status, res.Entry.Name)
}

func openFileStore(archiveDir string) (*filestore.FileStore, error) {
	a := archive.New(fs.NewReal(), archiveDir, "file", sizes.ArchiveSize)
	store := filestore.New(record.New(a))

	if err := store.Read(); err != nil {
		return nil, err
	}

	return store, nil
}
