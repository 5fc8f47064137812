package entry

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"

	"github.com/calvinalkan/finddups/internal/sizes"
)

// ChunkHash is a non-cryptographic 64-bit hash of a byte buffer.
type ChunkHash = uint64

// FileFingerprint identifies a regular file's content and length. It is the
// XOR-fold of the file's length with the chunk hash of every ChunkSize-sized
// slice of the file, followed by one (possibly empty) tail chunk.
//
// The fold is order-dependent on chunk boundaries (chunks are read in
// sequence) but the XOR itself is order-independent. Collisions are possible
// between files of equal length whose chunks are a permutation of one
// another at identical indices; this is an accepted tradeoff for duplicate
// detection, not a content identity guarantee.
type FileFingerprint = uint64

// Fingerprint computes the FileFingerprint for a regular file of the given
// length by reading it in ChunkSize chunks through r.
//
// Directories and other non-regular objects are not passed here; callers
// fingerprint them to 0 directly (see Entry.IsFile / Entry.IsDir).
func Fingerprint(r io.Reader, length uint64) (FileFingerprint, error) {
	fp := length
	buf := make([]byte, sizes.ChunkSize)

	remaining := length
	for remaining >= sizes.ChunkSize {
		if _, err := io.ReadFull(r, buf); err != nil {
			return 0, fmt.Errorf("fingerprint: read chunk: %w", err)
		}

		fp ^= xxhash.Sum64(buf)
		remaining -= sizes.ChunkSize
	}

	tail := buf[:remaining]

	n, err := io.ReadFull(r, tail)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, fmt.Errorf("fingerprint: read tail: %w", err)
	}

	fp ^= xxhash.Sum64(tail[:n])

	return fp, nil
}

// FingerprintFile opens path and computes its FileFingerprint, per
// [Fingerprint]. length must match the Entry's recorded length. A file that
// grows between Stat and read is fingerprinted over its first length bytes;
// one that shrinks has its short tail hashed over the bytes actually read,
// but if a full ChunkSize chunk can no longer be read the call fails with
// an error.
func FingerprintFile(path string, length uint64) (FileFingerprint, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from a directory walk, not untrusted input
	if err != nil {
		return 0, fmt.Errorf("fingerprint: open %s: %w", path, err)
	}
	defer f.Close()

	return Fingerprint(f, length)
}
