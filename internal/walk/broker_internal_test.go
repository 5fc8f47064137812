package walk

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/finddups/internal/archive"
	"github.com/calvinalkan/finddups/internal/filestore"
	"github.com/calvinalkan/finddups/internal/record"
	"github.com/calvinalkan/finddups/internal/sizes"
	"github.com/calvinalkan/finddups/pkg/fs"
)

func newTestBroker(t *testing.T, opts Options) *Broker {
	t.Helper()

	a := archive.New(fs.NewReal(), t.TempDir(), "file", sizes.ArchiveSize)
	store := filestore.New(record.New(a))

	b := New(store, opts, io.Discard, io.Discard)
	b.reportInterval = 5 * time.Millisecond

	return b
}

func Test_Broker_Run_Detects_Stall_When_ReadDir_Never_Returns(t *testing.T) {
	b := newTestBroker(t, Options{Timeout: 10 * time.Millisecond})

	blocked := make(chan struct{})

	b.readDir = func(path string) ([]os.DirEntry, error) {
		<-blocked

		return nil, nil
	}

	summary, err := b.Run(context.Background(), []string{"/fake/root"})
	require.ErrorIs(t, err, ErrStalled)
	require.True(t, summary.Stalled)

	close(blocked)
}
