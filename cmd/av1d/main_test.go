package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClearStaleTempArtifactsRemovesMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "abc123.av1d-tmp.mkv")
	keep := filepath.Join(dir, "not-a-temp-artifact.txt")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(keep, []byte("x"), 0o644))

	n, err := clearStaleTempArtifacts(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(keep)
	assert.NoError(t, err)
}

func TestClearStaleTempArtifactsNoopWhenNoneExist(t *testing.T) {
	dir := t.TempDir()
	n, err := clearStaleTempArtifacts(dir)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
