package filestore_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/finddups/internal/archive"
	"github.com/calvinalkan/finddups/internal/filestore"
	"github.com/calvinalkan/finddups/internal/record"
	"github.com/calvinalkan/finddups/internal/sizes"
	"github.com/calvinalkan/finddups/pkg/fs"
)

func newStore(t *testing.T, dir string) *filestore.FileStore {
	t.Helper()

	a := archive.New(fs.NewReal(), dir, "file", sizes.ArchiveSize)

	return filestore.New(record.New(a))
}

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	return path
}

func Test_FileStore_AddFile_New_File_Is_MatchNone(t *testing.T) {
	root := t.TempDir()
	archiveDir := t.TempDir()

	path := writeFile(t, root, "a.txt", []byte("hello"))
	info, err := os.Stat(path)
	require.NoError(t, err)

	s := newStore(t, archiveDir)

	res, err := s.AddFile(path, info, true, false)
	require.NoError(t, err)
	require.Equal(t, filestore.MatchNone, res.Match)
	require.Equal(t, 1, s.Len())
}

func Test_FileStore_AddFile_Second_Identical_File_Is_MatchFingerprint(t *testing.T) {
	root := t.TempDir()
	archiveDir := t.TempDir()

	pathA := writeFile(t, root, "a.txt", []byte("duplicate content"))
	pathB := writeFile(t, root, "b.txt", []byte("duplicate content"))

	infoA, err := os.Stat(pathA)
	require.NoError(t, err)

	infoB, err := os.Stat(pathB)
	require.NoError(t, err)

	s := newStore(t, archiveDir)

	_, err = s.AddFile(pathA, infoA, true, false)
	require.NoError(t, err)

	res, err := s.AddFile(pathB, infoB, true, false)
	require.NoError(t, err)
	require.Equal(t, filestore.MatchFingerprint, res.Match)

	report := s.Report()
	require.Equal(t, 1, report.Duplicates)
	require.Len(t, report.Groups[0].Entries, 2)
}

func Test_FileStore_AddFile_Same_Entry_Again_Is_MatchEntry(t *testing.T) {
	root := t.TempDir()
	archiveDir := t.TempDir()

	path := writeFile(t, root, "a.txt", []byte("hello"))
	info, err := os.Stat(path)
	require.NoError(t, err)

	s := newStore(t, archiveDir)

	_, err = s.AddFile(path, info, true, false)
	require.NoError(t, err)

	res, err := s.AddFile(path, info, true, false)
	require.NoError(t, err)
	require.Equal(t, filestore.MatchEntry, res.Match)
	require.Equal(t, 1, s.Len())
}

func Test_FileStore_Write_Then_Read_Reproduces_Index(t *testing.T) {
	root := t.TempDir()
	archiveDir := t.TempDir()

	writer := newStore(t, archiveDir)

	var want []filestore.AddResult

	for i := range 5 {
		path := writeFile(t, root, string(rune('a'+i))+".txt", []byte{byte(i), byte(i), byte(i)})
		info, err := os.Stat(path)
		require.NoError(t, err)

		res, err := writer.AddFile(path, info, true, false)
		require.NoError(t, err)
		want = append(want, res)
	}

	require.NoError(t, writer.Write(false))

	reader := newStore(t, archiveDir)
	require.NoError(t, reader.Read())

	require.Equal(t, writer.Len(), reader.Len())

	for _, res := range want {
		got, ok := reader.Lookup(res.Entry)
		require.True(t, ok)
		require.Equal(t, res.Fingerprint, got)
	}
}

func Test_FileStore_Prune_Removes_Entries_Not_In_PresentSet(t *testing.T) {
	root := t.TempDir()
	archiveDir := t.TempDir()

	keep := writeFile(t, root, "keep.txt", []byte("keep"))
	gone := writeFile(t, root, "gone.txt", []byte("gone"))

	keepInfo, err := os.Stat(keep)
	require.NoError(t, err)

	goneInfo, err := os.Stat(gone)
	require.NoError(t, err)

	s := newStore(t, archiveDir)

	_, err = s.AddFile(keep, keepInfo, true, true)
	require.NoError(t, err)

	_, err = s.AddFile(gone, goneInfo, true, true)
	require.NoError(t, err)

	require.NoError(t, os.Remove(gone))
	require.Equal(t, 2, s.Len())
	require.NoError(t, s.Write(false))

	s2 := newStore(t, archiveDir)
	require.NoError(t, s2.Read())
	require.Equal(t, 2, s2.Len())
	_, err = s2.AddFile(keep, keepInfo, true, true)
	require.NoError(t, err)
	require.NoError(t, s2.Prune())
	require.Equal(t, 1, s2.Len())
}

func Test_FileStore_Prune_Refuses_When_PresentSet_Empty(t *testing.T) {
	s := newStore(t, t.TempDir())

	err := s.Prune()
	require.ErrorIs(t, err, filestore.ErrNoPresentEntries)
}
