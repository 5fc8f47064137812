// Package record layers a framed, block-compressed item stream on top of
// [archive.Archive], issuing location tokens that remain stable across a
// seek-then-pull round trip.
package record

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pierrec/lz4/v4"

	"github.com/calvinalkan/finddups/internal/archive"
	"github.com/calvinalkan/finddups/internal/sizes"
)

// ErrTruncated is returned by Pull when the archive ends in the middle of a
// framed item: a compressed-length prefix with no matching payload.
var ErrTruncated = errors.New("record: truncated stream")

// Location is a stable token identifying a position an item was pushed at.
// Passing it to [Record.Seek] and pulling returns the item pushed there.
type Location struct {
	Archive            archive.Location `cbor:"0,keyasint"`
	UncompressedOffset int              `cbor:"1,keyasint"`
}

// Record turns a stream of variable-size items into framed, LZ4-compressed
// blocks handed to an Archive, and reverses the process on read.
//
// Not safe for concurrent use; callers serialize their own Push/Pull/Seek
// calls (the FileStore above it does this).
type Record struct {
	archive *archive.Archive

	writeBuf []byte

	readBuf    []byte
	readOffset int
	readLoaded bool

	// seekOffset is applied once, to the first block loaded after a Seek,
	// so that pulling after seeking to a RecordLocation (not just an
	// archive.Location) lands exactly on the item the token was issued
	// for, even when that item isn't first in its block.
	seekOffset  int
	seekPending bool

	compressor lz4.Compressor
}

// New creates a Record layered over a; the segment directory, record type
// and segment size limit are those a was created with.
func New(a *archive.Archive) *Record {
	return &Record{archive: a}
}

// TaskCounts reports the underlying Archive's background write task counts.
func (r *Record) TaskCounts() (active, total int) {
	return r.archive.TaskCounts()
}

// SetArchiveWriteSerialNumber resumes writes at a specific segment, used
// when appending after a load.
func (r *Record) SetArchiveWriteSerialNumber(n int) {
	r.archive.SetWriteSerialNumber(n)
}

// ArchiveReadSerialNumber reports the segment the next read will come from.
func (r *Record) ArchiveReadSerialNumber() int {
	return r.archive.ReadSerialNumber()
}

// Push appends one item to the record stream, returning a Location that can
// later be used to seek back to it. Items larger than sizes.RecordSize are
// split across consecutive flushed blocks; this is correct but not
// efficient, matching the discipline of the layer beneath it.
func (r *Record) Push(item []byte) (Location, error) {
	if len(item) <= sizes.RecordSize && len(r.writeBuf)+len(item) > sizes.RecordSize {
		if err := r.Flush(); err != nil {
			return Location{}, err
		}
	}

	loc := Location{
		Archive:            r.archive.WriteLocation(),
		UncompressedOffset: len(r.writeBuf),
	}

	var lenPrefix [4]byte
	binary.LittleEndian.PutUint32(lenPrefix[:], uint32(len(item))) //nolint:gosec // item sizes fit uint32 per format contract

	if err := r.append(lenPrefix[:]); err != nil {
		return Location{}, err
	}

	if err := r.append(item); err != nil {
		return Location{}, err
	}

	return loc, nil
}

// append writes data into the buffer, flushing every time the buffer fills
// to sizes.RecordSize, so that data longer than one record's worth is spread
// across as many flushed blocks as needed, with the final partial tail left
// buffered for the next push.
func (r *Record) append(data []byte) error {
	for len(data) > 0 {
		space := sizes.RecordSize - len(r.writeBuf)

		n := len(data)
		if n > space {
			n = space
		}

		r.writeBuf = append(r.writeBuf, data[:n]...)
		data = data[n:]

		if len(r.writeBuf) == sizes.RecordSize && len(data) > 0 {
			if err := r.Flush(); err != nil {
				return err
			}
		}
	}

	return nil
}

// Flush compresses the current write buffer (if non-empty) and hands it to
// the Archive as one length-prefixed block, then resets the buffer.
//
// The block payload is the LZ4-compressed bytes prefixed by the original
// uncompressed length (4 bytes LE), so Pull can size its decompression
// buffer without guessing; this mirrors how the reference implementation's
// LZ4 bindings embed the uncompressed size in block mode.
func (r *Record) Flush() error {
	if len(r.writeBuf) == 0 {
		return nil
	}

	bound := lz4.CompressBlockBound(len(r.writeBuf))
	compressed := make([]byte, 4+bound)

	binary.LittleEndian.PutUint32(compressed[:4], uint32(len(r.writeBuf))) //nolint:gosec // bounded by sizes.RecordSize

	n, err := r.compressor.CompressBlock(r.writeBuf, compressed[4:])
	if err != nil {
		return fmt.Errorf("record: compress block: %w", err)
	}

	compressed = compressed[:4+n]

	var blockLen [4]byte
	binary.LittleEndian.PutUint32(blockLen[:], uint32(len(compressed))) //nolint:gosec // bounded by sizes.MaxCompressedChunkSize

	if err := r.archive.Write(blockLen[:]); err != nil {
		return fmt.Errorf("record: write block length: %w", err)
	}

	if err := r.archive.Write(compressed); err != nil {
		return fmt.Errorf("record: write block: %w", err)
	}

	r.writeBuf = r.writeBuf[:0]

	return nil
}

// Finish flushes any remaining buffer and blocks until the underlying
// Archive has drained all outstanding background writes.
func (r *Record) Finish() error {
	if err := r.Flush(); err != nil {
		return err
	}

	return r.archive.Finish()
}

// Pull returns the next item in the stream, or (nil, false, nil) at a clean
// end of stream.
func (r *Record) Pull() (item []byte, ok bool, err error) {
	if !r.readLoaded {
		if err := r.readNextRecord(); err != nil {
			return nil, false, err
		}

		if r.readLoaded && r.seekPending {
			if r.seekOffset > len(r.readBuf) {
				return nil, false, fmt.Errorf("%w: seek offset %d beyond loaded block of %d bytes", ErrTruncated, r.seekOffset, len(r.readBuf))
			}

			r.readOffset = r.seekOffset
			r.seekPending = false
		}
	}

	if !r.readLoaded {
		return nil, false, nil
	}

	// Push can split the 4-byte length prefix itself across two blocks.
	for r.readRemaining() < 4 {
		before := r.readRemaining()

		if err := r.readNextRecord(); err != nil {
			return nil, false, err
		}

		if r.readRemaining() == before {
			return nil, false, fmt.Errorf("%w: item length prefix truncated", ErrTruncated)
		}
	}

	lengthPrefix, err := r.takeReadBytes(4)
	if err != nil {
		return nil, false, err
	}

	length := int(binary.LittleEndian.Uint32(lengthPrefix))

	for r.readRemaining() < length {
		before := r.readRemaining()

		if err := r.readNextRecord(); err != nil {
			return nil, false, err
		}

		if !r.readLoaded || r.readRemaining() == before {
			return nil, false, fmt.Errorf("%w: item of %d bytes truncated", ErrTruncated, length)
		}
	}

	out, err := r.takeReadBytes(length)
	if err != nil {
		return nil, false, err
	}

	return out, true, nil
}

func (r *Record) readRemaining() int {
	return len(r.readBuf) - r.readOffset
}

func (r *Record) takeReadBytes(n int) ([]byte, error) {
	if r.readRemaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncated, n, r.readRemaining())
	}

	out := r.readBuf[r.readOffset : r.readOffset+n]
	r.readOffset += n

	if r.readOffset == len(r.readBuf) {
		r.readBuf = nil
		r.readOffset = 0
		r.readLoaded = false
	}

	return out, nil
}

// readNextRecord reads one compressed block from the Archive, decompresses
// it, and either installs it as the read buffer or appends to the existing
// one -- the append path is exercised only when a large item spans blocks,
// and depends on the read buffer never being partially consumed between
// records (the [Record.Pull] loop only calls this while an item is still
// short of its declared length).
func (r *Record) readNextRecord() error {
	lengthBuf, crosses, err := r.archive.Read(4)
	if err != nil {
		return fmt.Errorf("record: read block length: %w", err)
	}

	if crosses {
		return fmt.Errorf("%w: block length prefix split across segments", ErrTruncated)
	}

	if lengthBuf == nil {
		return nil
	}

	compressedLen := int(binary.LittleEndian.Uint32(lengthBuf))

	compressed, crosses, err := r.archive.Read(compressedLen)
	if err != nil {
		return fmt.Errorf("record: read block: %w", err)
	}

	if crosses {
		return fmt.Errorf("%w: block body split across segments", ErrTruncated)
	}

	if compressed == nil {
		return fmt.Errorf("%w: block length with no body", ErrTruncated)
	}

	if len(compressed) < 4 {
		return fmt.Errorf("%w: block shorter than its own size header", ErrTruncated)
	}

	uncompressedLen := int(binary.LittleEndian.Uint32(compressed[:4]))

	dst := make([]byte, uncompressedLen)

	n, err := lz4.UncompressBlock(compressed[4:], dst)
	if err != nil {
		return fmt.Errorf("record: decompress block: %w", err)
	}

	dst = dst[:n]

	if !r.readLoaded {
		r.readBuf = dst
		r.readOffset = 0
		r.readLoaded = true
	} else {
		r.readBuf = append(r.readBuf[r.readOffset:], dst...)
		r.readOffset = 0
	}

	return nil
}

// Seek positions the next Pull to return exactly the item loc was issued
// for by [Record.Push], even when that item is not first in its block.
func (r *Record) Seek(loc Location) {
	r.readBuf = nil
	r.readOffset = 0
	r.readLoaded = false
	r.seekOffset = loc.UncompressedOffset
	r.seekPending = true
	r.archive.Seek(loc.Archive)
}

// Backup copies the underlying Archive's existing segments to .bak
// siblings.
func (r *Record) Backup() error {
	return r.archive.Backup()
}
