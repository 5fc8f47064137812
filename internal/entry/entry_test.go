package entry_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/finddups/internal/entry"
)

func Test_Entry_FromPath_Then_CBOR_RoundTrip_Preserves_All_Fields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")

	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	mtime := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(path, mtime, mtime))

	info, err := os.Stat(path)
	require.NoError(t, err)

	want, err := entry.FromPath(path, info)
	require.NoError(t, err)
	require.True(t, want.IsFile)
	require.False(t, want.IsDir)
	require.Equal(t, uint64(11), want.Len)

	encoded, err := want.MarshalCBOR()
	require.NoError(t, err)

	var got entry.Entry

	require.NoError(t, got.UnmarshalCBOR(encoded))

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func Test_Entry_FromPath_Dir_Sets_IsDir_Not_IsFile(t *testing.T) {
	dir := t.TempDir()

	info, err := os.Stat(dir)
	require.NoError(t, err)

	e, err := entry.FromPath(dir, info)
	require.NoError(t, err)

	require.True(t, e.IsDir)
	require.False(t, e.IsFile)
}
