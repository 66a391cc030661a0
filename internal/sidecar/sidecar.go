// Package sidecar implements the filesystem conventions that live
// alongside a source or output file: skip markers, explanations, backups,
// and conversion reports.
package sidecar

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/mkvreel/av1d/internal/logger"
)

const (
	skipSuffix        = ".av1d-skip"
	explanationSuffix = ".av1d-why.txt"
	backupSuffix      = ".av1d-orig"
	reportSuffix      = ".av1d-report.txt"
	previewSuffix     = ".preview.mkv"
)

// Manager performs best-effort sidecar writes. The explanation and report
// writes run after the main Job Store transition has already been durably
// recorded; a failure there is logged but never fails a job that already
// reached a terminal state in the Store. BackUpOriginal is the exception:
// it runs as part of the atomic swap, before success is persisted, and
// the Job Engine fails the job if it returns an error.
type Manager struct{}

// New returns a sidecar Manager.
func New() *Manager {
	return &Manager{}
}

func stem(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext)
}

// HasSkipMarker reports whether source carries a permanent skip marker.
func (m *Manager) HasSkipMarker(source string) bool {
	_, err := os.Stat(stem(source) + skipSuffix)
	return err == nil
}

// WriteSkipMarker idempotently creates the permanent skip marker for source.
func (m *Manager) WriteSkipMarker(source string) error {
	return m.writeAtomic(stem(source)+skipSuffix, nil)
}

// WriteExplanation idempotently (over)writes the human-readable reason
// file for source.
func (m *Manager) WriteExplanation(source, reason string) error {
	return m.writeAtomic(stem(source)+explanationSuffix, []byte(reason))
}

// BackUpOriginal atomically renames source to a suffixed sibling. Used
// immediately before the produced output is placed at the original path,
// so that a failure partway through the swap leaves a recoverable backup.
func (m *Manager) BackUpOriginal(source string) (backupPath string, err error) {
	backupPath = stem(source) + backupSuffix + filepath.Ext(source)
	if err := os.Rename(source, backupPath); err != nil {
		return "", err
	}
	return backupPath, nil
}

// WriteConversionReport writes the plain-text report next to a
// successful output.
func (m *Manager) WriteConversionReport(output, report string) error {
	return m.writeAtomic(stem(output)+reportSuffix, []byte(report))
}

// PreviewPath returns the conventional path for a test-clip preview
// encoded alongside source, for the opt-in approval workflow.
func (m *Manager) PreviewPath(source string) string {
	return stem(source) + previewSuffix
}

func (m *Manager) writeAtomic(path string, data []byte) error {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		logger.Warn("sidecar: open pending file failed", "path", path, "err", err)
		return err
	}
	defer func() {
		if cerr := pending.Cleanup(); cerr != nil {
			logger.Debug("sidecar: cleanup pending file", "path", path, "err", cerr)
		}
	}()
	if len(data) > 0 {
		if _, err := pending.Write(data); err != nil {
			logger.Warn("sidecar: write failed", "path", path, "err", err)
			return err
		}
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		logger.Warn("sidecar: commit failed", "path", path, "err", err)
		return err
	}
	return nil
}
