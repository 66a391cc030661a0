package sidecar_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkvreel/av1d/internal/sidecar"
)

func TestSkipMarkerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "movie.mkv")
	require.NoError(t, os.WriteFile(source, []byte("x"), 0o644))

	m := sidecar.New()
	assert.False(t, m.HasSkipMarker(source))

	require.NoError(t, m.WriteSkipMarker(source))
	assert.True(t, m.HasSkipMarker(source))
}

func TestWriteExplanationWritesNextToSource(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "movie.mkv")
	require.NoError(t, os.WriteFile(source, []byte("x"), 0o644))

	m := sidecar.New()
	require.NoError(t, m.WriteExplanation(source, "below configured minimum size"))

	data, err := os.ReadFile(filepath.Join(dir, "movie.av1d-why.txt"))
	require.NoError(t, err)
	assert.Equal(t, "below configured minimum size", string(data))
}

func TestBackUpOriginalRenamesToSuffixedSibling(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "movie.mkv")
	require.NoError(t, os.WriteFile(source, []byte("original-bytes"), 0o644))

	m := sidecar.New()
	backupPath, err := m.BackUpOriginal(source)
	require.NoError(t, err)

	_, err = os.Stat(source)
	assert.True(t, os.IsNotExist(err), "original should have been moved away")

	data, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	assert.Equal(t, "original-bytes", string(data))
}

func TestWriteConversionReportWritesNextToOutput(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "movie.mkv")

	m := sidecar.New()
	require.NoError(t, m.WriteConversionReport(output, "=== Job ===\nid: abc\n"))

	data, err := os.ReadFile(filepath.Join(dir, "movie.av1d-report.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "id: abc")
}
