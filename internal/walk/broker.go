package walk

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/calvinalkan/finddups/internal/filestore"
)

// progressSnapshot is the (nfiles, file_count, dir_count) triple compared
// across Report ticks to detect a stall.
type progressSnapshot struct {
	indexed int
	files   int
	dirs    int
}

// Run seeds the todo list with one NewDirMsg per root at depth 0, spawns the
// dispatch loop and the report timer, and blocks until the walk completes
// or stalls.
func (b *Broker) Run(parent context.Context, roots []string) (Summary, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	started := time.Now()

	ch := make(chan Msg, channelCapacity)

	var todo []dirTask
	for _, root := range roots {
		todo = append(todo, dirTask{Path: root, Depth: 0})
	}

	go b.runTimer(ctx, ch)

	var (
		active     int
		filesTotal int
		dirsTotal  int
		errTotal   int
		newTotal   int
	)

	last := progressSnapshot{}
	lastProgressAt := started

	dispatch := func() {
		for len(todo) > 0 && active < b.opts.concurrency() {
			n := len(todo) - 1
			task := todo[n]
			todo = todo[:n]
			active++

			go b.processDir(ch, task.Path, task.Depth)
		}
	}

	dispatch()

	stalled := false

	for active > 0 || len(todo) > 0 {
		msg := <-ch

		switch m := msg.(type) {
		case NewDirMsg:
			todo = append(todo, dirTask{Path: m.Path, Depth: m.Depth})
		case DoneMsg:
			active--
			filesTotal += m.Files
			dirsTotal += m.Dirs
			errTotal += m.Errors
			newTotal += m.New
		case ErrMsg:
			active--
			errTotal++

			fmt.Fprintf(b.stderr, "finddups: %v\n", m.Err)
		case ReportMsg:
			cur := progressSnapshot{indexed: b.store.Len(), files: filesTotal, dirs: dirsTotal}

			if cur != last {
				last = cur
				lastProgressAt = time.Now()
			} else if time.Since(lastProgressAt) >= b.opts.timeout() {
				stalled = true
			}

			if b.opts.Verbose > 0 {
				fmt.Fprintf(b.stderr, "files:%d dirs:%d errors:%d\n", filesTotal, dirsTotal, errTotal)
			}
		}

		if stalled {
			break
		}

		dispatch()
	}

	summary := Summary{
		Files:   filesTotal,
		Dirs:    dirsTotal,
		New:     newTotal,
		Errors:  errTotal,
		Elapsed: time.Since(started),
		Stalled: stalled,
	}

	fmt.Fprintf(b.stderr, "files:%d dirs:%d new:%d errors:%d elapsed:%s\n",
		summary.Files, summary.Dirs, summary.New, summary.Errors, summary.Elapsed)

	if stalled {
		fmt.Fprintln(b.stderr, "finddups: stall detected, no progress before timeout")
	}

	if b.opts.Ingest {
		if b.opts.Prune {
			if err := b.store.Prune(); err != nil {
				return summary, fmt.Errorf("walk: prune: %w", err)
			}
		}

		if newTotal > 0 || b.opts.Prune {
			if err := b.store.Write(b.opts.Backup); err != nil {
				return summary, fmt.Errorf("walk: write index: %w", err)
			}
		}
	}

	if b.opts.Report || b.opts.Query == QueryDuplicate {
		report := b.store.Report()

		if b.opts.Report {
			printReportSummary(b.stderr, report)
		}

		if b.opts.Query == QueryDuplicate {
			printDuplicateGroups(b.stdout, report, b.opts.Verbose)
		}
	}

	if stalled {
		return summary, ErrStalled
	}

	return summary, nil
}

// runTimer sends a ReportMsg every reportInterval until ctx is cancelled,
// which happens when Run returns.
func (b *Broker) runTimer(ctx context.Context, ch chan<- Msg) {
	ticker := time.NewTicker(b.reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case ch <- ReportMsg{}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// processDir reads one directory: every subdirectory becomes a NewDirMsg,
// every other entry is indexed via FileStore.AddFile. Errors opening the
// directory itself abort the scan with an ErrMsg instead of a DoneMsg;
// per-entry errors are counted but never abort the scan.
func (b *Broker) processDir(ch chan<- Msg, path string, depth int) {
	entries, err := b.readDir(path)
	if err != nil {
		ch <- ErrMsg{Err: fmt.Errorf("opening %s: %w", path, err)}

		return
	}

	var files, dirs, errs, newCount int

	for _, de := range entries {
		full := filepath.Join(path, de.Name())

		if de.IsDir() {
			dirs++
			ch <- NewDirMsg{Path: full, Depth: depth + 1}

			continue
		}

		info, err := de.Info()
		if err != nil {
			errs++

			continue
		}

		res, err := b.store.AddFile(full, info, b.opts.Ingest, b.opts.Prune)
		if err != nil {
			errs++

			continue
		}

		files++

		if b.opts.Ingest && res.Match != filestore.MatchEntry {
			newCount++
		}

		b.printQueryMatch(full, res)
	}

	ch <- DoneMsg{Files: files, Dirs: dirs, Errors: errs, New: newCount}
}

func (b *Broker) printQueryMatch(path string, res filestore.AddResult) {
	print := false

	switch b.opts.Query {
	case QueryPresent:
		print = res.Match != filestore.MatchNone
	case QueryMissing:
		print = res.Match == filestore.MatchNone
	case QueryList:
		print = true
	case QueryDuplicate, QueryNone:
		// QueryDuplicate is reported once at termination from the final
		// report; QueryNone prints nothing.
	}

	if !print {
		return
	}

	b.stdoutMu.Lock()
	defer b.stdoutMu.Unlock()

	fmt.Fprintln(b.stdout, path)
}
