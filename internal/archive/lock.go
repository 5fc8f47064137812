package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/calvinalkan/finddups/pkg/fs"
)

// ErrLocked is returned by Lock when another process already holds the
// archive directory's lock.
var ErrLocked = errors.New("archive: directory locked by another process")

const lockFileName = ".finddups.lock"

// DirLock is a held advisory lock on one archive directory.
type DirLock struct {
	file fs.File
}

// Lock acquires an exclusive, non-blocking advisory lock (flock(2)) on a
// ".finddups.lock" file inside dir, held for the duration of an ingest or
// prune run. This doesn't add multi-process support -- concurrent runs
// against the same archive directory are still unsupported -- it makes the
// absence of that support loud: a second concurrent run fails fast with
// ErrLocked instead of corrupting segment numbering.
func Lock(fsys fs.FS, dir string) (*DirLock, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("archive: creating %s: %w", dir, err)
	}

	path := filepath.Join(dir, lockFileName)

	f, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("archive: opening lock file %s: %w", path, err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()

		if errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EAGAIN) {
			return nil, ErrLocked
		}

		return nil, fmt.Errorf("archive: locking %s: %w", path, err)
	}

	return &DirLock{file: f}, nil
}

// Unlock releases the lock and closes the underlying file descriptor.
// Safe to call once; a second call is a programmer error (double close).
func (l *DirLock) Unlock() error {
	unlockErr := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()

	if unlockErr != nil {
		return fmt.Errorf("archive: unlocking: %w", unlockErr)
	}

	return closeErr
}
