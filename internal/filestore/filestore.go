// Package filestore holds the in-memory duplicate-detection index: a
// concurrent Entry→Fingerprint map and the reverse Fingerprint→Entries
// grouping, persisted through a [record.Record].
package filestore

import (
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/calvinalkan/finddups/internal/entry"
	"github.com/calvinalkan/finddups/internal/record"
)

// shardCount bounds lock contention on the two indexes; picked to give
// every CPU core on a typical workstation its own shard without wasting
// memory on tiny trees.
const shardCount = 16

// ErrCorruptPair is returned by Read when the record stream ends between an
// Entry item and its fingerprint item. Pull and decoding errors on the
// fingerprint item are returned wrapped as they are, not as ErrCorruptPair.
var ErrCorruptPair = errors.New("filestore: entry without matching fingerprint")

// ErrNoPresentEntries is returned by Prune when the PresentSet is empty,
// refusing to erase the entire index as a safety net against an aborted or
// misconfigured run.
var ErrNoPresentEntries = errors.New("filestore: refusing to prune with no entries observed this run")

// MatchState classifies the outcome of AddFile against the existing index.
type MatchState int

const (
	// MatchNone means neither the Entry nor its fingerprint were already
	// indexed: a genuinely new or changed file.
	MatchNone MatchState = iota
	// MatchEntry means an Entry with identical metadata was already
	// indexed: the file is unchanged since it was last observed.
	MatchEntry
	// MatchFingerprint means the Entry itself is new, but its fingerprint
	// already has at least one Entry indexed under it: the file's content
	// duplicates something already known.
	MatchFingerprint
)

// AddResult reports what AddFile found for one filesystem object.
type AddResult struct {
	Entry       entry.Entry
	Fingerprint entry.FileFingerprint
	Match       MatchState
}

type fileShard struct {
	mu sync.Mutex
	m  map[entry.Entry]entry.FileFingerprint
}

type hashShard struct {
	mu sync.Mutex
	m  map[entry.FileFingerprint][]entry.Entry
}

// FileStore is the authoritative in-memory index for one archive: a
// FileIndex (Entry -> fingerprint), a HashIndex (fingerprint -> Entries),
// and, while pruning, a PresentSet of Entries observed this run.
//
// All exported methods are safe for concurrent use; each shard carries its
// own mutex so unrelated keys never contend.
type FileStore struct {
	fileShards [shardCount]*fileShard
	hashShards [shardCount]*hashShard

	presentMu sync.Mutex
	present   map[entry.Entry]struct{}

	rec *record.Record
}

// New creates an empty FileStore backed by rec for Write/Read.
func New(rec *record.Record) *FileStore {
	s := &FileStore{rec: rec}

	for i := range s.fileShards {
		s.fileShards[i] = &fileShard{m: make(map[entry.Entry]entry.FileFingerprint)}
	}

	for i := range s.hashShards {
		s.hashShards[i] = &hashShard{m: make(map[entry.FileFingerprint][]entry.Entry)}
	}

	return s
}

func shardIndex(name string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))

	return int(h.Sum32()) % shardCount
}

func (s *FileStore) fileShard(e entry.Entry) *fileShard {
	return s.fileShards[shardIndex(e.Name)]
}

func (s *FileStore) hashShard(fp entry.FileFingerprint) *hashShard {
	return s.hashShards[int(fp%shardCount)]
}

// AddFile builds an Entry from path and info, classifies it against the
// current index, and -- when ingest is true -- inserts it. When trackPresent
// is true the Entry is recorded in the PresentSet regardless of ingest, for
// a later Prune.
func (s *FileStore) AddFile(path string, info os.FileInfo, ingest, trackPresent bool) (AddResult, error) {
	e, err := entry.FromPath(path, info)
	if err != nil {
		return AddResult{}, err
	}

	if fp, ok := s.lookupEntry(e); ok {
		if trackPresent {
			s.markPresent(e)
		}

		return AddResult{Entry: e, Fingerprint: fp, Match: MatchEntry}, nil
	}

	var fp entry.FileFingerprint
	if e.IsFile {
		fp, err = entry.FingerprintFile(path, e.Len)
		if err != nil {
			return AddResult{}, err
		}
	}

	match := MatchNone
	if s.hashBucketLen(fp) > 0 {
		match = MatchFingerprint
	}

	if ingest {
		s.insert(e, fp)
	}

	if trackPresent {
		s.markPresent(e)
	}

	return AddResult{Entry: e, Fingerprint: fp, Match: match}, nil
}

// Lookup reports the fingerprint indexed for e, if any.
func (s *FileStore) Lookup(e entry.Entry) (entry.FileFingerprint, bool) {
	return s.lookupEntry(e)
}

func (s *FileStore) lookupEntry(e entry.Entry) (entry.FileFingerprint, bool) {
	shard := s.fileShard(e)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	fp, ok := shard.m[e]

	return fp, ok
}

func (s *FileStore) hashBucketLen(fp entry.FileFingerprint) int {
	shard := s.hashShard(fp)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	return len(shard.m[fp])
}

func (s *FileStore) insert(e entry.Entry, fp entry.FileFingerprint) {
	fshard := s.fileShard(e)

	fshard.mu.Lock()
	fshard.m[e] = fp
	fshard.mu.Unlock()

	hshard := s.hashShard(fp)

	hshard.mu.Lock()
	hshard.m[fp] = append(hshard.m[fp], e)
	hshard.mu.Unlock()
}

func (s *FileStore) markPresent(e entry.Entry) {
	s.presentMu.Lock()
	defer s.presentMu.Unlock()

	if s.present == nil {
		s.present = make(map[entry.Entry]struct{})
	}

	s.present[e] = struct{}{}
}

// Len reports the number of Entries currently indexed.
func (s *FileStore) Len() int {
	n := 0

	for _, shard := range s.fileShards {
		shard.mu.Lock()
		n += len(shard.m)
		shard.mu.Unlock()
	}

	return n
}

// Write persists the entire FileIndex through the backing Record as
// (Entry, fingerprint) item pairs, optionally backing up prior segments
// first, then finishes the Record (and its Archive).
func (s *FileStore) Write(backup bool) error {
	if backup {
		if err := s.rec.Backup(); err != nil {
			return fmt.Errorf("filestore: backup: %w", err)
		}
	}

	for _, shard := range s.fileShards {
		shard.mu.Lock()
		pairs := make([]struct {
			e  entry.Entry
			fp entry.FileFingerprint
		}, 0, len(shard.m))

		for e, fp := range shard.m {
			pairs = append(pairs, struct {
				e  entry.Entry
				fp entry.FileFingerprint
			}{e, fp})
		}
		shard.mu.Unlock()

		for _, p := range pairs {
			if err := s.pushPair(p.e, p.fp); err != nil {
				return err
			}
		}
	}

	if err := s.rec.Finish(); err != nil {
		return fmt.Errorf("filestore: finish: %w", err)
	}

	return nil
}

func (s *FileStore) pushPair(e entry.Entry, fp entry.FileFingerprint) error {
	eb, err := e.MarshalCBOR()
	if err != nil {
		return fmt.Errorf("filestore: encode entry: %w", err)
	}

	if _, err := s.rec.Push(eb); err != nil {
		return fmt.Errorf("filestore: push entry: %w", err)
	}

	fb, err := cbor.Marshal(fp)
	if err != nil {
		return fmt.Errorf("filestore: encode fingerprint: %w", err)
	}

	if _, err := s.rec.Push(fb); err != nil {
		return fmt.Errorf("filestore: push fingerprint: %w", err)
	}

	return nil
}

// Read pulls (Entry, fingerprint) pairs from the backing Record until end of
// stream, inserting each into the index. A decoding error or a truncated
// final pair stops the load but keeps everything read so far, per the
// system's partial-load-on-error policy.
func (s *FileStore) Read() error {
	for {
		eb, ok, err := s.rec.Pull()
		if err != nil {
			return fmt.Errorf("filestore: pull entry: %w", err)
		}

		if !ok {
			return nil
		}

		var e entry.Entry
		if err := e.UnmarshalCBOR(eb); err != nil {
			return fmt.Errorf("filestore: decode entry: %w", err)
		}

		fb, ok, err := s.rec.Pull()
		if err != nil {
			return fmt.Errorf("filestore: pull fingerprint: %w", err)
		}

		if !ok {
			return ErrCorruptPair
		}

		var fp entry.FileFingerprint
		if err := cbor.Unmarshal(fb, &fp); err != nil {
			return fmt.Errorf("filestore: decode fingerprint: %w", err)
		}

		s.load(e, fp)
	}
}

// load installs a (Entry, fingerprint) pair read from storage. Same-key
// loads overwrite the FileIndex entry wholesale; if the fingerprint changed,
// the HashIndex bucket is moved so invariant 1 (every FileIndex entry
// appears in exactly one HashIndex bucket) holds even across a reload that
// repeats a key with a different fingerprint.
func (s *FileStore) load(e entry.Entry, fp entry.FileFingerprint) {
	fshard := s.fileShard(e)

	fshard.mu.Lock()
	old, existed := fshard.m[e]
	fshard.m[e] = fp
	fshard.mu.Unlock()

	if existed && old == fp {
		return
	}

	if existed {
		s.hashRemove(old, e)
	}

	hshard := s.hashShard(fp)
	hshard.mu.Lock()
	hshard.m[fp] = append(hshard.m[fp], e)
	hshard.mu.Unlock()
}

func (s *FileStore) hashRemove(fp entry.FileFingerprint, e entry.Entry) {
	shard := s.hashShard(fp)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	list := shard.m[fp]
	for i, candidate := range list {
		if candidate == e {
			shard.m[fp] = append(list[:i], list[i+1:]...)

			break
		}
	}

	if len(shard.m[fp]) == 0 {
		delete(shard.m, fp)
	}
}

// Prune removes from the FileIndex every Entry not present in the
// PresentSet accumulated this run. HashIndex buckets are left as-is; a
// subsequent Write is expected to be the compaction point. Refuses to run
// (ErrNoPresentEntries) if nothing was observed, to avoid erasing an index
// because of a misconfigured or empty root.
func (s *FileStore) Prune() error {
	s.presentMu.Lock()
	present := s.present
	s.presentMu.Unlock()

	if len(present) == 0 {
		return ErrNoPresentEntries
	}

	for _, shard := range s.fileShards {
		shard.mu.Lock()

		for e := range shard.m {
			if _, ok := present[e]; !ok {
				delete(shard.m, e)
			}
		}

		shard.mu.Unlock()
	}

	return nil
}
