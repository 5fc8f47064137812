package finddups

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/calvinalkan/finddups/internal/archive"
	"github.com/calvinalkan/finddups/internal/filestore"
	"github.com/calvinalkan/finddups/internal/record"
	"github.com/calvinalkan/finddups/internal/sizes"
	"github.com/calvinalkan/finddups/internal/walk"
	"github.com/calvinalkan/finddups/pkg/fs"
)

// ErrModeConflict is returned when ingest and check roots are given
// together, or when more than one query flag is set.
var ErrModeConflict = errors.New("finddups: --ingest and --check are mutually exclusive, as are -m/-p/-d/-l")

// RunOptions is the parsed, validated form of the CLI flags for the
// single-archive driver (cmd/finddups). It is the Driver's input: build one
// from flags, then call Run.
type RunOptions struct {
	ArchiveDir  string
	IngestRoots []string
	CheckRoots  []string
	Missing     bool
	Present     bool
	Duplicate   bool
	List        bool
	Prune       bool
	Backup      bool
	Report      bool
	Verbose     int
	Timeout     time.Duration
	Concurrency int
}

func (o RunOptions) queryMode() walk.QueryMode {
	switch {
	case o.Missing:
		return walk.QueryMissing
	case o.Present:
		return walk.QueryPresent
	case o.Duplicate:
		return walk.QueryDuplicate
	case o.List:
		return walk.QueryList
	default:
		return walk.QueryNone
	}
}

func (o RunOptions) validate() error {
	if len(o.IngestRoots) > 0 && len(o.CheckRoots) > 0 {
		return ErrModeConflict
	}

	modes := 0
	for _, set := range []bool{o.Missing, o.Present, o.Duplicate, o.List} {
		if set {
			modes++
		}
	}

	if modes > 1 {
		return ErrModeConflict
	}

	if o.Prune && len(o.IngestRoots) == 0 {
		return fmt.Errorf("finddups: %w", errPruneRequiresIngest)
	}

	return nil
}

var errPruneRequiresIngest = errors.New("--prune requires --ingest")

// Run instantiates the archive/record/filestore/walk stack per spec.md
// §4.6 (the Driver): it seeds the broker with the user-supplied roots --
// ingest roots if given, otherwise check roots, defaulting to --missing
// query mode when only --check roots are given and no query flag was
// requested -- and returns once the walk terminates.
func Run(ctx context.Context, opts RunOptions, stdout, stderr io.Writer) (walk.Summary, error) {
	if err := opts.validate(); err != nil {
		return walk.Summary{}, err
	}

	roots := opts.IngestRoots
	ingest := true

	query := opts.queryMode()

	if len(opts.CheckRoots) > 0 {
		roots = opts.CheckRoots
		ingest = false

		if query == walk.QueryNone {
			query = walk.QueryMissing
		}
	}

	fsys := fs.NewReal()

	if ingest {
		lock, err := archive.Lock(fsys, opts.ArchiveDir)
		if err != nil {
			return walk.Summary{}, fmt.Errorf("finddups: %w", err)
		}

		defer lock.Unlock() //nolint:errcheck // best-effort; Run's own error already reported
	}

	a := archive.New(fsys, opts.ArchiveDir, "file", sizes.ArchiveSize)
	store := filestore.New(record.New(a))

	if err := store.Read(); err != nil {
		return walk.Summary{}, fmt.Errorf("finddups: loading archive: %w", err)
	}

	broker := walk.New(store, walk.Options{
		Concurrency: opts.Concurrency,
		Timeout:     opts.Timeout,
		Ingest:      ingest,
		Prune:       opts.Prune,
		Backup:      opts.Backup,
		Report:      opts.Report,
		Verbose:     opts.Verbose,
		Query:       query,
	}, stdout, stderr)

	return broker.Run(ctx, roots)
}
