package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/mkvreel/av1d/internal/logger"
)

// ErrNotFound is returned by Load when no job file exists for an id.
var ErrNotFound = errors.New("job not found")

const jobFileSuffix = ".job.json"

// Store is the durable mapping from job identifier to Job record. It
// imposes no cross-file locking; per-file atomicity via write-temp +
// rename is the only consistency primitive.
type Store struct {
	dir string
}

// New returns a Store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create job state dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+jobFileSuffix)
}

// Save durably persists a job. The write goes to a sibling temp file and
// is renamed over the final path; partial writes never become visible.
func (s *Store) Save(job *Job) error {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	pending, err := renameio.NewPendingFile(s.path(job.ID))
	if err != nil {
		return fmt.Errorf("open pending job file %s: %w", job.ID, err)
	}
	defer func() {
		if cerr := pending.Cleanup(); cerr != nil {
			logger.Debug("job store: cleanup pending file", "job", job.ID, "err", cerr)
		}
	}()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write job file %s: %w", job.ID, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("commit job file %s: %w", job.ID, err)
	}
	return nil
}

// Load reads a single job by id. Returns ErrNotFound if absent.
func (s *Store) Load(id string) (*Job, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read job file %s: %w", id, err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("parse job file %s: %w", id, err)
	}
	return &job, nil
}

// List returns every job currently on disk. Individually malformed or
// unreadable files are logged and skipped — never abort the caller.
func (s *Store) List() ([]*Job, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read job state dir %s: %w", s.dir, err)
	}

	jobs := make([]*Job, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), jobFileSuffix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			logger.Warn("job store: skipping unreadable job file", "file", entry.Name(), "err", err)
			continue
		}
		var job Job
		if err := json.Unmarshal(data, &job); err != nil {
			logger.Warn("job store: skipping malformed job file", "file", entry.Name(), "err", err)
			continue
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}

// Update performs a read-modify-write on a single job in one call. The
// caller's function receives the latest on-disk state (or a fresh
// zero-value Job if none exists yet, with id already set) and mutates it
// in place. Returning an error aborts the write.
func (s *Store) Update(id string, fn func(job *Job) error) (*Job, error) {
	job, err := s.Load(id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		job = &Job{ID: id}
	}
	if err := fn(job); err != nil {
		return nil, err
	}
	if err := s.Save(job); err != nil {
		return nil, err
	}
	return job, nil
}

// Delete removes a job file. Used only to implement clear-history
// commands; never invoked by the engine on live jobs.
func (s *Store) Delete(id string) error {
	err := os.Remove(s.path(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete job file %s: %w", id, err)
	}
	return nil
}

// FindBySourcePath returns the live (pending/running) job for a source
// path, if any, enforcing the one-pending-or-running-per-source
// invariant at the call site.
func (s *Store) FindBySourcePath(sourcePath string) (*Job, error) {
	jobs, err := s.List()
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		if job.SourcePath == sourcePath && job.IsLive() {
			return job, nil
		}
	}
	return nil, nil
}
