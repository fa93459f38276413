package clientstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exercise(t *testing.T, s Storage) {
	t.Helper()

	_, ok, err := s.Get(KeyAuthToken)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(KeyAuthToken, "abc"))
	require.NoError(t, s.Set(KeyAuthStorage, `{"isAuthenticated":true}`))

	v, ok, err := s.Get(KeyAuthToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	require.NoError(t, s.Delete(KeyAuthToken))
	require.NoError(t, s.Delete(KeyAuthToken))
	_, ok, _ = s.Get(KeyAuthToken)
	assert.False(t, ok)

	v, ok, _ = s.Get(KeyAuthStorage)
	assert.True(t, ok)
	assert.Equal(t, `{"isAuthenticated":true}`, v)
}

func TestMemory(t *testing.T) {
	exercise(t, NewMemory())
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "client.json")
	exercise(t, NewFile(path))

	// A second handle on the same path sees persisted data.
	v, ok, err := NewFile(path).Get(KeyAuthStorage)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"isAuthenticated":true}`, v)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, _, err := NewFile(path).Get(KeyAuthToken)
	assert.Error(t, err)
}
