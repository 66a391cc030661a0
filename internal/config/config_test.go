package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkvreel/av1d/internal/config"
)

func TestLoadMissingFileFallsBackToDefault(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.Default().MaxSizeRatio, cfg.MaxSizeRatio)
}

func TestLoadMalformedYAMLIsFatalError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("library_roots: [unterminated"), 0o644))

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestValidateRejectsTempDirEqualToLibraryRoot(t *testing.T) {
	cfg := config.Default()
	cfg.LibraryRoots = []string{"/media/library"}
	cfg.TempOutputDir = "/media/library"

	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsOutOfRangeSizeRatio(t *testing.T) {
	cfg := config.Default()
	cfg.TempOutputDir = "/tmp/av1d"
	cfg.MaxSizeRatio = 1.5

	assert.Error(t, cfg.Validate())
}

func TestEnsureTempOutputDirCreatesMissingDir(t *testing.T) {
	cfg := config.Default()
	cfg.TempOutputDir = filepath.Join(t.TempDir(), "nested", "tmp")

	require.NoError(t, cfg.EnsureTempOutputDir())

	info, err := os.Stat(cfg.TempOutputDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestEnsureTempOutputDirFailsWhenPathIsAFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	cfg := config.Default()
	cfg.TempOutputDir = path

	assert.Error(t, cfg.EnsureTempOutputDir())
}

func TestLoadExpandsHomePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "av1d.yaml")
	require.NoError(t, os.WriteFile(path, []byte("temp_output_dir: ~/av1d-tmp\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "av1d-tmp"), cfg.TempOutputDir)
}
