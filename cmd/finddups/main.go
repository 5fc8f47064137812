// Command finddups walks one or more directory trees, fingerprinting every
// regular file into a content-addressed archive and reporting duplicates.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/finddups/internal/cli"
	"github.com/calvinalkan/finddups/internal/finddups"
)

func main() {
	os.Exit(newCommand().Run(context.Background(), os.Stdout, os.Stderr, os.Args[1:]))
}

func newCommand() *cli.Command {
	fs := flag.NewFlagSet("finddups", flag.ContinueOnError)

	flagIngest := fs.StringArrayP("ingest", "i", nil, "root `path`s to ingest")
	flagCheck := fs.StringArrayP("check", "c", nil, "root `path`s to check")
	flagArchive := fs.StringP("archive", "a", "", "archive `directory` (default /tmp/finddups)")
	flagConfig := fs.String("config", "", "explicit JSONC config `file`")
	flagMissing := fs.BoolP("missing", "m", false, "report paths missing from the archive")
	flagPresent := fs.BoolP("present", "p", false, "report paths already present in the archive")
	flagDuplicate := fs.BoolP("duplicate", "d", false, "report duplicate-file groups")
	flagList := fs.BoolP("list", "l", false, "list every file visited")
	flagPrune := fs.Bool("prune", false, "prune entries not seen during this ingest (requires --ingest)")
	flagBackup := fs.Bool("backup", true, "back up existing segments before writing (--backup=false to disable)")
	flagReport := fs.BoolP("report", "r", false, "print a duplicate-summary report")
	flagVerbose := fs.CountP("verbose", "v", "increase verbosity (repeatable)")
	flagTimeout := fs.IntP("timeout", "t", 0, "stall timeout in `sec`onds (default 600)")
	flagConcurrency := fs.Int("concurrency", 0, "number of directories scanned in parallel (default 10)")

	return &cli.Command{
		Flags: fs,
		Usage: "finddups (-i <path>... | -c <path>...) [-a <dir>] [flags]",
		Short: "Find duplicate files across one or more directory trees using a content-addressed archive.",
		Exec: func(ctx context.Context, stdout, stderr io.Writer, args []string) error {
			workDir, err := os.Getwd()
			if err != nil {
				return err
			}

			cfg, err := finddups.LoadConfig(workDir, *flagConfig, os.Environ())
			if err != nil {
				return err
			}

			archiveDir := *flagArchive
			if archiveDir == "" {
				archiveDir = cfg.Archive
			}

			archiveDir, err = filepath.Abs(archiveDir)
			if err != nil {
				return err
			}

			concurrency := *flagConcurrency
			if concurrency == 0 {
				concurrency = cfg.Concurrency
			}

			timeoutSecs := *flagTimeout
			if timeoutSecs == 0 {
				timeoutSecs = cfg.TimeoutSeconds
			}

			// Positional paths continue the -i or -c root list, so
			// "-i a b" ingests both a and b.
			ingestRoots, checkRoots := *flagIngest, *flagCheck
			if len(checkRoots) > 0 && len(ingestRoots) == 0 {
				checkRoots = append(checkRoots, args...)
			} else if len(ingestRoots) > 0 {
				ingestRoots = append(ingestRoots, args...)
			}

			opts := finddups.RunOptions{
				ArchiveDir:  archiveDir,
				IngestRoots: ingestRoots,
				CheckRoots:  checkRoots,
				Missing:     *flagMissing,
				Present:     *flagPresent,
				Duplicate:   *flagDuplicate,
				List:        *flagList,
				Prune:       *flagPrune,
				Backup:      *flagBackup,
				Report:      *flagReport,
				Verbose:     *flagVerbose,
				Timeout:     time.Duration(timeoutSecs) * time.Second,
				Concurrency: concurrency,
			}

			runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			_, err = finddups.Run(runCtx, opts, stdout, stderr)

			return err
		},
	}
}
