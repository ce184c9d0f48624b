package credential

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveLoadDelete(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save("Ana@Example.com", "s3cret"))
	assert.True(t, store.Has("ana@example.com"))

	password, err := store.Load("ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", password)

	require.NoError(t, store.Save("ana@example.com", "rotated"))
	password, err = store.Load("ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, "rotated", password)

	require.NoError(t, store.Delete("ana@example.com"))
	assert.False(t, store.Has("ana@example.com"))
	require.NoError(t, store.Delete("ana@example.com"))

	_, err = store.Load("ana@example.com")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStore_NeverWritesPlaintext(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save("ana@example.com", "plain-password"))

	err = filepath.WalkDir(dir, func(path string, entry os.DirEntry, err error) error {
		require.NoError(t, err)
		if entry.IsDir() {
			return nil
		}
		content, readErr := os.ReadFile(path)
		require.NoError(t, readErr)
		assert.NotContains(t, string(content), "plain-password", path)

		info, statErr := entry.Info()
		require.NoError(t, statErr)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), path)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_SecretsAreBoundToIdentity(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save("ana@example.com", "s3cret"))

	require.NoError(t, os.Remove(filepath.Join(dir, identityFile)))
	_, err = store.Load("ana@example.com")
	require.Error(t, err)

	// A new identity cannot decrypt the old secret.
	require.NoError(t, store.Save("other@example.com", "x"))
	_, err = store.Load("ana@example.com")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "decrypt"))
}

func TestStore_RequiresEmail(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, store.Save("  ", "x"))
	assert.Error(t, store.Save("ana@example.com", ""))

	_, err = NewStore("")
	assert.Error(t, err)
}

func TestFileName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ana@example.com", fileName(" Ana@Example.COM "))
	assert.Equal(t, "a_b@example.com", fileName("a/b@example.com"))
	assert.Equal(t, "", fileName(".."))
}
