package filestore

import "github.com/calvinalkan/finddups/internal/entry"

// DiffResult classifies one Entry from a secondary archive against this
// (primary) archive's HashIndex.
type DiffResult struct {
	Entry   entry.Entry
	Present bool // true if the Entry is non-empty and some Entry in the primary archive shares its fingerprint
}

// FindDupsSecondArchive classifies every Entry in other's FileIndex against
// self's HashIndex, for cross-archive duplicate checking (the --missing /
// --present modes of the second-archive diff tool).
func (s *FileStore) FindDupsSecondArchive(other *FileStore) []DiffResult {
	results := make([]DiffResult, 0, other.Len())

	for _, shard := range other.fileShards {
		shard.mu.Lock()

		for e, fp := range shard.m {
			// Zero-length files all share one fingerprint (length 0 folded
			// with the hash of an empty tail); without this guard every empty
			// file in the secondary archive would be reported "present" just
			// because some other empty file exists in the primary archive.
			// Entries with fingerprint 0 and a non-zero Len (symlinks) are
			// not excluded by this guard.
			present := e.Len > 0 && s.hashBucketLen(fp) > 0

			results = append(results, DiffResult{
				Entry:   e,
				Present: present,
			})
		}

		shard.mu.Unlock()
	}

	return results
}
