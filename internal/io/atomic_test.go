package io

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSONAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	require.NoError(t, WriteJSONAtomic(path, map[string]int{"a": 1}, 0o600))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	var got map[string]int
	require.NoError(t, ReadJSON(path, &got))
	assert.Equal(t, 1, got["a"])

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file should be renamed away")
}

func TestReadJSON_Missing(t *testing.T) {
	var v any
	err := ReadJSON(filepath.Join(t.TempDir(), "none.json"), &v)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
