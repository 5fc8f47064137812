package archive_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/finddups/internal/archive"
	"github.com/calvinalkan/finddups/pkg/fs"
)

// A background write failure is logged, not surfaced -- see archive.go's
// writeSegment -- but Finish must still drain TaskCounts to zero so a
// caller never hangs waiting on a write that already failed.
func Test_Archive_Finish_Drains_Task_Counts_After_Background_Write_Failure(t *testing.T) {
	dir := t.TempDir()
	failing := &fs.FailingFS{FS: fs.NewReal(), WriteFileFailOn: 1}

	a := archive.New(failing, dir, "file", 4*1024*1024)

	require.NoError(t, a.Write([]byte("hello")))
	require.NoError(t, a.Finish())

	active, total := a.TaskCounts()
	require.Equal(t, 0, active)
	require.Equal(t, 0, total)

	_, err := os.Stat(filepath.Join(dir, "0000_file.cbor"))
	require.True(t, os.IsNotExist(err))
}

// Backup must not leave a half-renamed ".bak" sibling behind: if the
// injected failure happens on the backup write itself, the original
// segment is left untouched and Backup reports the error.
func Test_Archive_Backup_Reports_Error_And_Leaves_Original_Untouched_On_Write_Failure(t *testing.T) {
	dir := t.TempDir()
	real := fs.NewReal()

	seed := archive.New(real, dir, "file", 4*1024*1024)
	require.NoError(t, seed.Write([]byte("hello")))
	require.NoError(t, seed.Finish())

	failing := &fs.FailingFS{FS: real, WriteFileFailOn: 1}
	a := archive.New(failing, dir, "file", 4*1024*1024)

	err := a.Backup()
	require.ErrorIs(t, err, fs.ErrInjected)

	original, err := os.ReadFile(filepath.Join(dir, "0000_file.cbor"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(original))

	_, err = os.Stat(filepath.Join(dir, "0000_file.cbor.bak"))
	require.True(t, os.IsNotExist(err))
}
