package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalStoragePublishRefusesExistingDestination(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.SaveStream(".a.mbz", strings.NewReader("first"))
	require.NoError(t, err)
	require.NoError(t, store.EnsureDir("7"))
	require.NoError(t, store.Publish(".a.mbz", "7/a.mbz"))

	exists, err := store.Exists(".a.mbz")
	require.NoError(t, err)
	require.False(t, exists)

	_, err = store.SaveStream(".a.mbz", strings.NewReader("second"))
	require.NoError(t, err)
	err = store.Publish(".a.mbz", "7/a.mbz")
	require.True(t, errors.Is(err, ErrExists))

	content, err := os.ReadFile(store.Path("7/a.mbz"))
	require.NoError(t, err)
	require.Equal(t, "first", string(content))
}

func TestLocalStorageSaveStreamIsExclusive(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.SaveStream("x.json", strings.NewReader("{}"))
	require.NoError(t, err)
	_, err = store.SaveStream("x.json", strings.NewReader("{}"))
	require.Error(t, err)
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Open("../etc/passwd")
	require.True(t, errors.Is(err, ErrOutsideBase))
}

func TestLocalStorageListAndCleanup(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	require.NoError(t, err)
	require.NoError(t, store.EnsureDir("3"))
	for _, name := range []string{"3/b.json", "3/a.mbz", ".tmp.mbz"} {
		_, err := store.SaveStream(name, strings.NewReader("x"))
		require.NoError(t, err)
	}
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, ".tmp.mbz"), old, old))

	files, err := store.List("3")
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, "a.mbz", files[0].Name)

	missing, err := store.List("99")
	require.NoError(t, err)
	require.Empty(t, missing)

	require.NoError(t, store.EnsureDir("12"))
	dirs, err := store.ListDirs("")
	require.NoError(t, err)
	require.Equal(t, []string{"12", "3"}, dirs)

	deleted, err := store.CleanupOlderThan(time.Hour, func(rel string) bool {
		return strings.HasPrefix(filepath.Base(rel), ".")
	})
	require.NoError(t, err)
	require.Equal(t, []string{".tmp.mbz"}, deleted)
}
