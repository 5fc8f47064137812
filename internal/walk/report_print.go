package walk

import (
	"fmt"
	"io"
	"strings"

	"github.com/calvinalkan/finddups/internal/filestore"
)

// printReportSummary writes the one-line duplicate tally to stderr, per
// --report.
func printReportSummary(w io.Writer, r filestore.Report) {
	gbytes := float64(r.TotalExtraBytes) / (1024 * 1024 * 1024)

	fmt.Fprintf(w, "%d dup, %d dup big, %.3f total Gbytes dup\n", r.Duplicates, r.DuplicatesBig, gbytes)
}

// printDuplicateGroups writes one line per duplicate group to stdout, per
// --duplicate: at verbose < 2 only the first path of each group (enough to
// point at the cluster); at verbose >= 2, every path in the group joined by
// semicolons.
func printDuplicateGroups(w io.Writer, r filestore.Report, verbose int) {
	for _, group := range r.Groups {
		if verbose < 2 {
			fmt.Fprintln(w, group.Entries[0].Name)

			continue
		}

		paths := make([]string, len(group.Entries))
		for i, e := range group.Entries {
			paths[i] = e.Name
		}

		fmt.Fprintln(w, strings.Join(paths, ";"))
	}
}
