package record_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/finddups/internal/archive"
	"github.com/calvinalkan/finddups/internal/record"
	"github.com/calvinalkan/finddups/internal/sizes"
	"github.com/calvinalkan/finddups/pkg/fs"
)

func newTestRecord(t *testing.T) (*record.Record, string) {
	t.Helper()

	dir := t.TempDir()
	a := archive.New(fs.NewReal(), dir, "file", sizes.ArchiveSize)

	return record.New(a), dir
}

func Test_Record_Push_N_Items_Then_Finish_Fresh_Reader_Pulls_Same_N_Items_Then_EndOfStream(t *testing.T) {
	w, dir := newTestRecord(t)

	items := [][]byte{
		[]byte("alpha"),
		[]byte("beta"),
		[]byte(""),
		bytes.Repeat([]byte{0x42}, 1000),
	}

	for _, item := range items {
		_, err := w.Push(item)
		require.NoError(t, err)
	}

	require.NoError(t, w.Finish())

	reader := record.New(archive.New(fs.NewReal(), dir, "file", sizes.ArchiveSize))

	for _, want := range items {
		got, ok, err := reader.Pull()
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want, got)
	}

	_, ok, err := reader.Pull()
	require.NoError(t, err)
	require.False(t, ok)
}

func Test_Record_Seek_To_Location_Then_Pull_Returns_Same_Item_Bit_Exact(t *testing.T) {
	w, dir := newTestRecord(t)

	_, err := w.Push([]byte("first item, short"))
	require.NoError(t, err)

	want := []byte("second item, the one we seek back to")
	loc, err := w.Push(want)
	require.NoError(t, err)

	_, err = w.Push([]byte("third item, trailing"))
	require.NoError(t, err)

	require.NoError(t, w.Finish())

	reader := record.New(archive.New(fs.NewReal(), dir, "file", sizes.ArchiveSize))
	reader.Seek(loc)

	got, ok, err := reader.Pull()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want, got)
}

func Test_Record_Large_Item_Flushes_Three_Times_And_Round_Trips(t *testing.T) {
	w, dir := newTestRecord(t)

	item := bytes.Repeat([]byte{0x7A}, 3*sizes.RecordSize+7)

	loc, err := w.Push(item)
	require.NoError(t, err)

	require.NoError(t, w.Finish())

	reader := record.New(archive.New(fs.NewReal(), dir, "file", sizes.ArchiveSize))

	got, ok, err := reader.Pull()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, item, got)

	seeker := record.New(archive.New(fs.NewReal(), dir, "file", sizes.ArchiveSize))
	seeker.Seek(loc)

	got, ok, err = seeker.Pull()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, item, got)
}

func Test_Record_Finish_Drains_Task_Counts_To_Zero(t *testing.T) {
	w, _ := newTestRecord(t)

	_, err := w.Push([]byte("x"))
	require.NoError(t, err)

	require.NoError(t, w.Finish())

	active, total := w.TaskCounts()
	require.Equal(t, 0, active)
	require.Equal(t, 0, total)
}

func Test_Record_Pull_On_Empty_Stream_Returns_EndOfStream(t *testing.T) {
	reader, _ := newTestRecord(t)

	_, ok, err := reader.Pull()
	require.NoError(t, err)
	require.False(t, ok)
}
