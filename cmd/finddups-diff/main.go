// Command finddups-diff compares two content-addressed archives, reporting
// which entries in the secondary archive are missing from or already
// present in the primary archive.
package main

import (
	"context"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/finddups/internal/cli"
	"github.com/calvinalkan/finddups/internal/finddups"
)

func main() {
	os.Exit(newCommand().Run(context.Background(), os.Stdout, os.Stderr, os.Args[1:]))
}

func newCommand() *cli.Command {
	fs := flag.NewFlagSet("finddups-diff", flag.ContinueOnError)

	flagPrimary := fs.StringP("archive", "a", finddups.DefaultArchiveDir, "path to the primary archive")
	flagSecondary := fs.StringP("second-archive", "s", "", "path to the secondary archive")
	flagMissing := fs.BoolP("missing", "m", false, "report secondary-archive entries missing from the primary archive")
	flagPresent := fs.BoolP("present", "p", false, "report secondary-archive entries already present in the primary archive")

	return &cli.Command{
		Flags: fs,
		Usage: "finddups-diff -a <primary> -s <secondary> [-m | -p]",
		Short: "Compare two finddups archives and report which entries differ.",
		Exec: func(_ context.Context, stdout, _ io.Writer, _ []string) error {
			return finddups.RunDiff(finddups.DiffOptions{
				PrimaryArchive:   *flagPrimary,
				SecondaryArchive: *flagSecondary,
				Missing:          *flagMissing,
				Present:          *flagPresent,
			}, stdout, os.Stderr)
		},
	}
}
