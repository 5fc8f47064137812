// Package archive implements the append-only segment-file layer: one named
// byte stream, spread across numbered files under one archive directory,
// with bounded-parallelism background writes and seekable reads.
package archive

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/calvinalkan/finddups/internal/sizes"
	"github.com/calvinalkan/finddups/pkg/fs"
)

// maxConcurrentWrites bounds the number of segment-write tasks allowed in
// flight at once, for one Archive.
const maxConcurrentWrites = 4

// ErrBufferTooLarge is a programmer error: Write was called with a block of
// sizes.MaxCompressedChunkSize bytes or more, which the design assumes never
// happens because the Record layer compresses in RecordSize-sized pieces.
var ErrBufferTooLarge = errors.New("archive: write buffer exceeds MaxCompressedChunkSize")

// Location identifies a position inside a specific segment file of a
// specific Archive.
type Location struct {
	ArchiveSet int `cbor:"0,keyasint"`
	SetOffset  int `cbor:"1,keyasint"`
}

// Archive is an append-only segment-file writer/reader for one named
// stream (record type) under one archive directory.
//
// An Archive is not safe for concurrent use by multiple goroutines beyond
// what [Archive.Write] and the background write tasks it spawns require
// internally; callers serialize their own Write/Read/Seek calls (the Record
// layer above it does this).
type Archive struct {
	fsys       fs.FS
	dir        string
	recordType string
	limit      int

	writeBuf      []byte
	writeSerial   int
	activeWrites  atomic.Int64
	waitingWrites atomic.Int64
	writeWG       sync.WaitGroup
	writeSem      chan struct{}

	readBuf    []byte
	readLoaded bool
	readSerial int
	readOffset int
}

// New creates an Archive over dir for the given recordType. limit is the
// uncompressed-payload ceiling per segment (sizes.ArchiveSize in
// production, smaller in tests that exercise rollover).
func New(fsys fs.FS, dir, recordType string, limit int) *Archive {
	return &Archive{
		fsys:       fsys,
		dir:        dir,
		recordType: recordType,
		limit:      limit,
		writeSem:   make(chan struct{}, maxConcurrentWrites),
	}
}

// TaskCounts reports (active, active+waiting) background write tasks.
// waitingWrites is read first because a task moves from waiting to active
// (see writeSegment): reading in this order can over-count during that move
// but never reports zero while a flush is mid-spawn.
func (a *Archive) TaskCounts() (active, total int) {
	w := a.waitingWrites.Load()
	act := a.activeWrites.Load()

	return int(act), int(act + w)
}

func (a *Archive) segmentPath(serial int) string {
	return fmt.Sprintf("%s/%04d_%s.cbor", a.dir, serial, a.recordType)
}

// WriteLocation returns the Location the next Write would produce,
// accounting for a pending rollover. Must be called before Write to obtain
// a token that remains valid after the write (see design note on
// location-token stability).
func (a *Archive) WriteLocation() Location {
	if len(a.writeBuf)+sizes.MaxCompressedChunkSize > a.limit {
		return Location{ArchiveSet: a.writeSerial + 1, SetOffset: 0}
	}

	return Location{ArchiveSet: a.writeSerial, SetOffset: len(a.writeBuf)}
}

// Write appends a byte block to the current segment buffer, flushing first
// if the block would overrun the segment limit.
func (a *Archive) Write(b []byte) error {
	if len(b) >= sizes.MaxCompressedChunkSize {
		return fmt.Errorf("%w: got %d bytes", ErrBufferTooLarge, len(b))
	}

	if len(a.writeBuf)+sizes.MaxCompressedChunkSize > a.limit {
		if err := a.Flush(); err != nil {
			return err
		}
	}

	a.writeBuf = append(a.writeBuf, b...)

	return nil
}

// Flush spills the current write buffer to its segment file in the
// background, if non-empty, then advances the write serial number.
func (a *Archive) Flush() error {
	if len(a.writeBuf) == 0 {
		return nil
	}

	name := a.segmentPath(a.writeSerial)
	payload := a.writeBuf

	// Bump waiting before spawn so TaskCounts never transiently reads zero
	// while a write is in flight.
	a.waitingWrites.Add(1)
	a.writeWG.Add(1)

	go a.writeSegment(name, payload)

	a.writeSerial++
	a.writeBuf = nil

	return nil
}

func (a *Archive) writeSegment(name string, payload []byte) {
	defer a.writeWG.Done()

	a.writeSem <- struct{}{}
	a.waitingWrites.Add(-1)
	a.activeWrites.Add(1)

	defer func() {
		<-a.writeSem
		a.activeWrites.Add(-1)
	}()

	if err := a.fsys.WriteFile(name, payload, 0o644); err != nil {
		// Per the design's error taxonomy, background write failures are
		// logged, not surfaced to Finish's caller: the counter still
		// decrements either way so Finish doesn't hang.
		fmt.Fprintf(os.Stderr, "archive: background write %s failed: %v\n", name, err)
	}
}

// Finish flushes any remaining buffer, then blocks until every outstanding
// background write task has completed.
func (a *Archive) Finish() error {
	if err := a.Flush(); err != nil {
		return err
	}

	a.writeWG.Wait()

	return nil
}

// SetWriteSerialNumber overrides the write serial, used when resuming
// writes after a load (append rather than overwrite).
func (a *Archive) SetWriteSerialNumber(n int) {
	a.writeSerial = n
}

// Read returns n bytes from the current read position, loading the next
// segment from disk as needed. When the loaded segment has fewer than n
// bytes left, the rest of it is skipped and the read is served from the
// start of the next segment (writers never split a block across segments).
// Returns (nil, false, nil) at end of stream (segment file doesn't exist)
// and (nil, true, nil) when n exceeds what the freshly loaded segment holds
// from the read position.
func (a *Archive) Read(n int) (data []byte, crossesBoundary bool, err error) {
	if !a.readLoaded || len(a.readBuf) < a.readOffset+n {
		if a.readLoaded {
			a.readSerial++
			a.readOffset = 0
		}

		a.readLoaded = false

		buf, loaded, readErr := a.loadSegment(a.readSerial)
		if readErr != nil {
			return nil, false, readErr
		}

		if !loaded {
			return nil, false, nil
		}

		a.readBuf = buf
		a.readLoaded = true
	}

	if a.readOffset+n > len(a.readBuf) {
		return nil, true, nil
	}

	out := a.readBuf[a.readOffset : a.readOffset+n]
	a.readOffset += n

	return out, false, nil
}

func (a *Archive) loadSegment(serial int) ([]byte, bool, error) {
	name := a.segmentPath(serial)

	exists, err := a.fsys.Exists(name)
	if err != nil {
		return nil, false, fmt.Errorf("archive: stat segment %s: %w", name, err)
	}

	if !exists {
		return nil, false, nil
	}

	buf, err := a.fsys.ReadFile(name)
	if err != nil {
		return nil, false, fmt.Errorf("archive: read segment %s: %w", name, err)
	}

	return buf, true, nil
}

// Seek drops the current read buffer and positions the next Read at loc.
func (a *Archive) Seek(loc Location) {
	a.readLoaded = false
	a.readBuf = nil
	a.readSerial = loc.ArchiveSet
	a.readOffset = loc.SetOffset
}

// ReadSerialNumber reports the segment the next Read will (re)load from,
// for callers resuming a write stream after a load.
func (a *Archive) ReadSerialNumber() int {
	return a.readSerial
}

// Backup copies every existing segment file for this (archive,
// recordType) to a sibling ".bak" path, so a fresh write does not clobber
// prior history; the original segment files are left in place. Goes through [fs.FS.WriteFile] like every other durable
// write in this package (atomic temp-file-plus-rename in [fs.Real]), so a
// crash mid-backup never leaves a segment half-written.
func (a *Archive) Backup() error {
	for serial := 0; ; serial++ {
		name := a.segmentPath(serial)

		exists, err := a.fsys.Exists(name)
		if err != nil {
			return fmt.Errorf("archive: backup stat %s: %w", name, err)
		}

		if !exists {
			return nil
		}

		data, err := a.fsys.ReadFile(name)
		if err != nil {
			return fmt.Errorf("archive: backup read %s: %w", name, err)
		}

		if err := a.fsys.WriteFile(name+".bak", data, 0o644); err != nil {
			return fmt.Errorf("archive: backup write %s.bak: %w", name, err)
		}
	}
}
