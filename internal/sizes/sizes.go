// Package sizes holds the size constants shared by the archive, record, and
// entry layers. These are part of the on-disk format and must not change
// without a format version bump.
package sizes

const (
	// RecordSize is the uncompressed buffer threshold a [record.Record]
	// flushes at.
	RecordSize = 64 * 1024

	// ChunkSize is the size of a fingerprinting chunk.
	ChunkSize = 64 * 1024

	// MaxCompressedChunkSize bounds the worst-case LZ4-compressed size of one
	// RecordSize-sized input block (64 KiB + 384 bytes of LZ4 block overhead).
	MaxCompressedChunkSize = 64*1024 + 384

	// ArchiveSize is the uncompressed-payload ceiling for one archive
	// segment file, before reserving room for the next block.
	ArchiveSize = 4 * 1024 * 1024
)
