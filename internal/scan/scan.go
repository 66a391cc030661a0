// Package scan walks library roots, applies the stability gate, and
// materializes new pending jobs in the Job Store.
package scan

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mkvreel/av1d/internal/config"
	"github.com/mkvreel/av1d/internal/logger"
	"github.com/mkvreel/av1d/internal/sidecar"
	"github.com/mkvreel/av1d/internal/store"
)

var videoExtensions = map[string]bool{
	".mkv": true, ".mp4": true, ".m4v": true, ".avi": true, ".ts": true, ".mov": true, ".webm": true,
}

// candidateState is the in-memory, rebuilt-on-startup stability record
// for one path: its last observed size/mtime and when it was first seen
// in that state.
type candidateState struct {
	size        int64
	mtime       time.Time
	firstSeenAt time.Time
}

// StabilityGate tracks per-path (size, mtime, first-seen) so that a
// candidate is only promoted to a job once it has been observed
// unchanged for at least the configured dwell window.
type StabilityGate struct {
	mu     sync.Mutex
	dwell  time.Duration
	states map[string]candidateState
}

// NewStabilityGate returns a gate with the given dwell window.
func NewStabilityGate(dwell time.Duration) *StabilityGate {
	return &StabilityGate{dwell: dwell, states: make(map[string]candidateState)}
}

// Observe records the current size/mtime for path and reports whether it
// has been stable for at least the dwell window. Unseen or changed paths
// are recorded and reported not-yet-stable, unless the dwell window is
// zero, in which case every observation is stable.
func (g *StabilityGate) Observe(path string, size int64, mtime time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	prev, seen := g.states[path]
	if !seen || prev.size != size || !prev.mtime.Equal(mtime) {
		g.states[path] = candidateState{size: size, mtime: mtime, firstSeenAt: now}
		return g.dwell <= 0
	}
	return now.Sub(prev.firstSeenAt) >= g.dwell
}

// Forget drops the stability record for path, e.g. once it has been
// promoted to a job.
func (g *StabilityGate) Forget(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.states, path)
}

// Scanner discovers candidate source files and emits pending Jobs.
type Scanner struct {
	cfg     config.Config
	store   *store.Store
	sidecar *sidecar.Manager
	gate    *StabilityGate
}

// New returns a Scanner bound to the given store and sidecar manager.
func New(cfg config.Config, st *store.Store, sc *sidecar.Manager) *Scanner {
	return &Scanner{
		cfg:     cfg,
		store:   st,
		sidecar: sc,
		gate:    NewStabilityGate(cfg.StabilityDwell),
	}
}

// Tick performs one scan pass over every configured library root,
// returning the newly created pending jobs.
func (s *Scanner) Tick() ([]*store.Job, error) {
	var created []*store.Job

	for _, root := range s.cfg.LibraryRoots {
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				logger.Warn("scan: walk error", "path", path, "err", err)
				return nil
			}
			if info.IsDir() {
				return nil
			}
			job, ok, err := s.considerFile(path, info)
			if err != nil {
				logger.Warn("scan: failed to evaluate candidate", "path", path, "err", err)
				return nil
			}
			if ok {
				created = append(created, job)
			}
			return nil
		})
		if err != nil {
			logger.Warn("scan: failed to walk library root", "root", root, "err", err)
		}
	}

	return created, nil
}

func (s *Scanner) considerFile(path string, info os.FileInfo) (*store.Job, bool, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !videoExtensions[ext] {
		return nil, false, nil
	}
	if info.Size() < s.cfg.MinSourceBytes {
		return nil, false, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, false, err
	}

	if s.sidecar.HasSkipMarker(absPath) {
		return nil, false, nil
	}

	existing, err := s.store.Load(store.IDFor(absPath))
	if err == nil && existing.IsLive() {
		// Already pending or running for this source: one-per-source
		// invariant.
		return nil, false, nil
	}
	if err == nil && existing.Status == store.StatusSuccess {
		return nil, false, nil
	}

	if !s.gate.Observe(absPath, info.Size(), info.ModTime()) {
		return nil, false, nil
	}
	s.gate.Forget(absPath)

	job := store.NewJob(absPath, info.Size())
	if err := s.store.Save(job); err != nil {
		return nil, false, err
	}
	return job, true, nil
}
