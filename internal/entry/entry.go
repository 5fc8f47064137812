// Package entry defines the filesystem metadata snapshot ([Entry]) and the
// content fingerprint derived from it.
package entry

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Entry is the metadata of one filesystem object. Two objects with
// identical field values and path are considered the same Entry.
// Entries are immutable once constructed.
type Entry struct {
	Perm     uint32 `cbor:"0,keyasint"`
	UID      uint32 `cbor:"1,keyasint"`
	GID      uint32 `cbor:"2,keyasint"`
	ModSecs  uint64 `cbor:"3,keyasint"`
	ModNanos uint32 `cbor:"4,keyasint"`
	IsFile   bool   `cbor:"5,keyasint"`
	IsDir    bool   `cbor:"6,keyasint"`
	Len      uint64 `cbor:"7,keyasint"`
	Name     string `cbor:"8,keyasint"`
}

// FromPath builds an Entry from a path and its already-obtained os.FileInfo.
//
// Symbolic links are recorded (IsFile and IsDir both false, Len from the
// link's own os.Lstat-style info) but never followed: this is the system's
// explicit policy decision that symlinks are neither files nor directories
// for fingerprinting purposes, matching how other non-regular objects
// fingerprint to 0.
func FromPath(path string, info os.FileInfo) (Entry, error) {
	mtime := info.ModTime()

	sys, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return Entry{}, fmt.Errorf("entry: %s: unsupported stat type %T", path, info.Sys())
	}

	mode := info.Mode()

	return Entry{
		Perm:     uint32(info.Mode().Perm()), //nolint:gosec // mode bits fit in 32 bits
		UID:      sys.Uid,
		GID:      sys.Gid,
		ModSecs:  uint64(mtime.Unix()),   //nolint:gosec // post-epoch timestamps are non-negative
		ModNanos: uint32(mtime.Nanosecond()),
		IsFile:   mode.IsRegular(),
		IsDir:    mode.IsDir(),
		Len:      uint64(info.Size()), //nolint:gosec // file sizes are non-negative
		Name:     path,
	}, nil
}

// ModTime reconstructs the modification time recorded on the Entry.
func (e Entry) ModTime() time.Time {
	return time.Unix(int64(e.ModSecs), int64(e.ModNanos)).UTC() //nolint:gosec // round trip of stored value
}

// MarshalCBOR encodes the Entry using the numeric field tags fixed by the
// on-disk format (Perm=0 .. Name=8). These tags must never change.
func (e Entry) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(entryAlias(e))
}

// UnmarshalCBOR decodes an Entry previously written by [Entry.MarshalCBOR].
func (e *Entry) UnmarshalCBOR(data []byte) error {
	var a entryAlias

	if err := cbor.Unmarshal(data, &a); err != nil {
		return err
	}

	*e = Entry(a)

	return nil
}

// entryAlias exists only so MarshalCBOR/UnmarshalCBOR can delegate to the
// struct-tag-driven codec without infinite recursion through the Marshaler.
type entryAlias Entry
