package filestore

import "github.com/calvinalkan/finddups/internal/entry"

// bigFileThreshold is the size above which a duplicate group counts toward
// Report.DuplicatesBig, matching the "files > 1 MB" threshold used to
// separate noisy small-file duplication from large wasted-space clusters.
const bigFileThreshold = 1024 * 1024

// DuplicateGroup is every Entry sharing one fingerprint, when that group has
// two or more members.
type DuplicateGroup struct {
	Fingerprint entry.FileFingerprint
	Entries     []entry.Entry
}

// Report summarizes duplication across the whole index.
type Report struct {
	Groups          []DuplicateGroup
	Duplicates      int // groups with >= 2 entries
	DuplicatesBig   int // of those, groups whose entries exceed bigFileThreshold
	TotalExtraBytes uint64
}

// Report enumerates every HashIndex bucket with two or more Entries and
// accumulates the duplication totals described by the system's --report
// mode.
func (s *FileStore) Report() Report {
	var r Report

	for _, shard := range s.hashShards {
		shard.mu.Lock()

		for fp, entries := range shard.m {
			if len(entries) < 2 {
				continue
			}

			group := make([]entry.Entry, len(entries))
			copy(group, entries)

			r.Groups = append(r.Groups, DuplicateGroup{Fingerprint: fp, Entries: group})
			r.Duplicates++

			if group[0].Len > bigFileThreshold {
				r.DuplicatesBig++
			}

			r.TotalExtraBytes += group[0].Len * uint64(len(group)-1) //nolint:gosec // group length is bounded by files observed
		}

		shard.mu.Unlock()
	}

	return r
}
