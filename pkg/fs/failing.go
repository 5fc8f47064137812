package fs

import (
	"errors"
	"os"
	"sync/atomic"
)

// ErrInjected is returned by [FailingFS] when a configured failure trigger
// fires.
var ErrInjected = errors.New("fs: injected failure")

// FailingFS wraps an [FS] and deterministically fails a chosen call of a
// chosen method, letting callers exercise write/crash-safety error paths
// without needing a real disk fault. It is a deliberately small adaptation
// of the teacher's probabilistic chaos-injection filesystem, cut down to
// the one trigger archive's background-write error path needs: "fail the
// Nth WriteFile call" rather than a tunable per-syscall failure-rate table.
type FailingFS struct {
	FS FS

	// WriteFileFailOn, if > 0, makes the WriteFileFailOn'th call to
	// WriteFile return ErrInjected instead of reaching the wrapped FS.
	WriteFileFailOn int

	writeFileCalls atomic.Int64
}

func (f *FailingFS) Open(path string) (File, error) { return f.FS.Open(path) }

func (f *FailingFS) Create(path string) (File, error) { return f.FS.Create(path) }

func (f *FailingFS) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	return f.FS.OpenFile(path, flag, perm)
}

func (f *FailingFS) ReadFile(path string) ([]byte, error) { return f.FS.ReadFile(path) }

func (f *FailingFS) WriteFile(path string, data []byte, perm os.FileMode) error {
	n := f.writeFileCalls.Add(1)

	if f.WriteFileFailOn > 0 && n == int64(f.WriteFileFailOn) {
		return ErrInjected
	}

	return f.FS.WriteFile(path, data, perm)
}

func (f *FailingFS) ReadDir(path string) ([]os.DirEntry, error) { return f.FS.ReadDir(path) }

func (f *FailingFS) MkdirAll(path string, perm os.FileMode) error {
	return f.FS.MkdirAll(path, perm)
}

func (f *FailingFS) Stat(path string) (os.FileInfo, error) { return f.FS.Stat(path) }

func (f *FailingFS) Exists(path string) (bool, error) { return f.FS.Exists(path) }

func (f *FailingFS) Remove(path string) error { return f.FS.Remove(path) }

func (f *FailingFS) RemoveAll(path string) error { return f.FS.RemoveAll(path) }

func (f *FailingFS) Rename(oldpath, newpath string) error { return f.FS.Rename(oldpath, newpath) }

// Compile-time interface check.
var _ FS = (*FailingFS)(nil)
