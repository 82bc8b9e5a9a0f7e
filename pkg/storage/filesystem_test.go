package storage

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageSaveOpenDelete(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	name, err := store.Save("req-1/tracking_job.csv", []byte("a,b\n"))
	require.NoError(t, err)
	assert.Equal(t, "req-1/tracking_job.csv", name)

	file, err := store.Open(name)
	require.NoError(t, err)
	body, err := io.ReadAll(file)
	require.NoError(t, err)
	require.NoError(t, file.Close())
	assert.Equal(t, "a,b\n", string(body))

	require.NoError(t, store.Delete(name))
	require.NoError(t, store.Delete(name))
	_, err = store.Open(name)
	assert.Error(t, err)
}

func TestLocalStorageRejectsEscapes(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("../outside.csv", []byte("x"))
	assert.ErrorIs(t, err, ErrOutsideBase)
	_, err = store.Open("/etc/passwd")
	assert.ErrorIs(t, err, ErrOutsideBase)
	assert.Empty(t, store.Path("../../x"))
}

func TestLocalStorageCleanupOlderThan(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("old/a.pdf", []byte("old"))
	require.NoError(t, err)
	_, err = store.Save("new/b.pdf", []byte("new"))
	require.NoError(t, err)
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(store.Path("old/a.pdf"), past, past))

	removed, err := store.CleanupOlderThan(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"old/a.pdf"}, removed)
	assert.FileExists(t, store.Path("new/b.pdf"))
}
