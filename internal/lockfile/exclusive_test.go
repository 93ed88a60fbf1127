package lockfile

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTryAcquire_BusyOnSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "writer.lock")

	first, err := TryAcquire(path)
	require.NoError(t, err)
	require.FileExists(t, path)

	_, err = TryAcquire(path)
	var busy *Busy
	require.ErrorAs(t, err, &busy)

	require.NoError(t, first.Release())
	require.NoFileExists(t, path)
}

func TestAcquire_TimesOutWhenContended(t *testing.T) {
	path := filepath.Join(t.TempDir(), "writer.lock")

	holder, err := TryAcquire(path)
	require.NoError(t, err)
	defer holder.Release()

	_, err = AcquireTimeout(path, 40*time.Millisecond)
	require.Error(t, err)
}

func TestAcquire_SucceedsOnceReleased(t *testing.T) {
	path := filepath.Join(t.TempDir(), "writer.lock")

	holder, err := TryAcquire(path)
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		holder.Release()
	}()

	second, err := AcquireTimeout(path, time.Second)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}
