// Package cli provides a small pflag-based command wrapper shared by the
// finddups driver binaries: unified flag parsing, help generation, and the
// 0/1/2 exit code convention (success / runtime error / usage error).
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	flag "github.com/spf13/pflag"
)

// ExitUsage is returned by Run when flag parsing itself fails -- an unknown
// flag or a malformed flag value -- as opposed to a runtime error surfacing
// from Exec. Conflicting flag combinations are not detected by parsing; the
// drivers report them from Exec, so they exit with 1.
const ExitUsage = 2

// Command defines one driver binary's CLI surface with unified help
// generation, mirroring the teacher's per-subcommand Command but flattened
// for a single-command binary (finddups and finddups-diff take no
// subcommand, only flags and positional root paths).
type Command struct {
	// Flags holds every flag this binary accepts. The FlagSet's own name is
	// unused; identity comes from Usage.
	Flags *flag.FlagSet

	// Usage is the freeform usage string shown after the binary name.
	Usage string

	// Short is a one-line description shown above the flag listing.
	Short string

	// Exec runs the command body after flags are parsed successfully. args
	// holds the non-flag positional arguments (ingest/check roots).
	Exec func(ctx context.Context, stdout, stderr io.Writer, args []string) error
}

// PrintHelp writes the full usage text for this command.
func (c *Command) PrintHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage:", c.Usage)
	fmt.Fprintln(w)
	fmt.Fprintln(w, c.Short)

	if c.Flags != nil && c.Flags.HasFlags() {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Flags:")

		var buf strings.Builder

		c.Flags.SetOutput(&buf)
		c.Flags.PrintDefaults()
		fmt.Fprint(w, buf.String())
	}
}

// Run parses args against Flags and, on success, invokes Exec. It returns
// the process exit code directly so main can call os.Exit with the result.
func (c *Command) Run(ctx context.Context, stdout, stderr io.Writer, args []string) int {
	c.Flags.SetOutput(&strings.Builder{})

	if err := c.Flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.PrintHelp(stdout)

			return 0
		}

		fmt.Fprintln(stderr, "error:", err)
		c.PrintHelp(stderr)

		return ExitUsage
	}

	if err := c.Exec(ctx, stdout, stderr, c.Flags.Args()); err != nil {
		fmt.Fprintln(stderr, "error:", err)

		return 1
	}

	return 0
}
