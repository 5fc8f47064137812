package archive_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/finddups/internal/archive"
	"github.com/calvinalkan/finddups/pkg/fs"
)

func Test_Lock_Acquires_And_Unlock_Releases(t *testing.T) {
	dir := t.TempDir()
	fsys := fs.NewReal()

	lock, err := archive.Lock(fsys, dir)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(dir, ".finddups.lock"))

	require.NoError(t, lock.Unlock())
}

func Test_Lock_Second_Acquire_Fails_While_First_Is_Held(t *testing.T) {
	dir := t.TempDir()
	fsys := fs.NewReal()

	first, err := archive.Lock(fsys, dir)
	require.NoError(t, err)

	defer first.Unlock() //nolint:errcheck

	_, err = archive.Lock(fsys, dir)
	require.True(t, errors.Is(err, archive.ErrLocked))
}

func Test_Lock_Can_Be_Reacquired_After_Unlock(t *testing.T) {
	dir := t.TempDir()
	fsys := fs.NewReal()

	first, err := archive.Lock(fsys, dir)
	require.NoError(t, err)
	require.NoError(t, first.Unlock())

	second, err := archive.Lock(fsys, dir)
	require.NoError(t, err)
	require.NoError(t, second.Unlock())
}

func Test_Lock_Creates_Missing_Archive_Directory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "archive")
	fsys := fs.NewReal()

	lock, err := archive.Lock(fsys, dir)
	require.NoError(t, err)
	defer lock.Unlock() //nolint:errcheck

	require.DirExists(t, dir)
}
