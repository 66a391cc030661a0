// Package command implements the Command Channel: a watched directory of
// command files that request runtime actions against the daemon
// as filenames.
package command

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/mkvreel/av1d/internal/encoder"
	"github.com/mkvreel/av1d/internal/logger"
	"github.com/mkvreel/av1d/internal/store"
)

// pollInterval is the polling-fallback cadence used alongside fsnotify,
// since network filesystems commonly used for library_roots-adjacent
// command directories don't always deliver inotify events reliably.
const pollInterval = 2 * time.Second

// Kind is the verb named by a command file.
type Kind string

const (
	KindRescanNow      Kind = "rescan-now"
	KindCancelJob      Kind = "cancel-job"
	KindClearCompleted Kind = "clear-completed"
	KindClearAll       Kind = "clear-all"
	KindApproveJob     Kind = "approve-job"
	KindRejectJob      Kind = "reject-job"
)

// Command is one parsed command message. ID is a synthetic identifier
// assigned at parse time for logging/correlation, not persisted anywhere.
type Command struct {
	ID    string
	Kind  Kind
	Arg   string // job id, for cancel-job/approve-job/reject-job
	Force bool   // explicit-force for clear-all while jobs are running
}

// Channel watches a directory for command files and applies them
// against the Job Store.
type Channel struct {
	dir      string
	store    *store.Store
	registry *encoder.Registry

	// RescanNow receives a signal whenever a rescan-now command arrives;
	// the daemon's main loop selects on it to wake the scanner early.
	RescanNow chan struct{}
}

// New returns a Channel bound to dir, the Job Store, and the Encoder
// Supervisor's process-handle registry (needed to signal cancellation).
func New(dir string, st *store.Store, registry *encoder.Registry) (*Channel, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create command dir %s: %w", dir, err)
	}
	return &Channel{
		dir:       dir,
		store:     st,
		registry:  registry,
		RescanNow: make(chan struct{}, 1),
	}, nil
}

// Run watches the command directory until ctx is cancelled, processing
// each file as it appears. fsnotify drives the common case; a poll tick
// is the fallback for filesystems where inotify events don't arrive.
func (c *Channel) Run(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("command: fsnotify unavailable, falling back to polling only", "err", err)
	} else {
		defer watcher.Close()
		if err := watcher.Add(c.dir); err != nil {
			logger.Warn("command: failed to watch command dir", "dir", c.dir, "err", err)
		}
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	var errs <-chan error
	if watcher != nil {
		events = watcher.Events
		errs = watcher.Errors
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.drain()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				c.processPath(ev.Name)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("command: watcher error", "err", err)
		}
	}
}

// drain processes every file currently in the command directory. The
// polling-fallback path uses it; its first tick also picks up any files
// that were already present when Run started.
func (c *Channel) drain() {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		logger.Warn("command: failed to read command dir", "dir", c.dir, "err", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		c.processPath(filepath.Join(c.dir, entry.Name()))
	}
}

func (c *Channel) processPath(path string) {
	info, err := os.Stat(path)
	if err != nil {
		// Most commonly: another poll/event already consumed it.
		return
	}
	if info.IsDir() {
		return
	}

	cmd, err := parse(filepath.Base(path))
	if err != nil {
		logger.Warn("command: unrecognized command file, deleting", "file", path, "err", err)
		c.remove(path)
		return
	}

	// Consume-then-delete: the command is applied first, then the file
	// is removed, so a crash mid-apply simply means the command is
	// retried on the next pass rather than silently lost.
	c.apply(cmd)
	c.remove(path)
}

func (c *Channel) remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("command: failed to delete consumed command file", "file", path, "err", err)
	}
}

// parse decodes a command from its filename, e.g. "cancel-job.<id>.cmd"
// or "clear-all.force.cmd". Unknown verbs are an error.
func parse(name string) (Command, error) {
	name = strings.TrimSuffix(name, ".cmd")
	parts := strings.Split(name, ".")
	if len(parts) == 0 || parts[0] == "" {
		return Command{}, fmt.Errorf("empty command filename")
	}

	cmd := Command{ID: uuid.NewString(), Kind: Kind(parts[0])}
	rest := parts[1:]

	switch cmd.Kind {
	case KindRescanNow, KindClearCompleted:
		return cmd, nil
	case KindClearAll:
		for _, p := range rest {
			if p == "force" {
				cmd.Force = true
			}
		}
		return cmd, nil
	case KindCancelJob, KindApproveJob, KindRejectJob:
		if len(rest) == 0 || rest[0] == "" {
			return Command{}, fmt.Errorf("%s requires a job id", cmd.Kind)
		}
		cmd.Arg = rest[0]
		return cmd, nil
	default:
		return Command{}, fmt.Errorf("unknown command verb %q", parts[0])
	}
}

func (c *Channel) apply(cmd Command) {
	logger.Info("command: applying", "id", cmd.ID, "kind", cmd.Kind, "arg", cmd.Arg)

	switch cmd.Kind {
	case KindRescanNow:
		select {
		case c.RescanNow <- struct{}{}:
		default:
		}

	case KindCancelJob:
		c.cancelJob(cmd.Arg)

	case KindClearCompleted:
		c.clearCompleted()

	case KindClearAll:
		c.clearAll(cmd.Force)

	case KindApproveJob:
		c.resolveApproval(cmd.Arg, true)

	case KindRejectJob:
		c.resolveApproval(cmd.Arg, false)

	default:
		logger.Warn("command: no handler for kind", "kind", cmd.Kind)
	}
}

// cancelJob handles cancel-job: a running job is
// signalled through the Encoder Supervisor's registry (the Job Engine
// removes the temp file once the supervised run returns); a pending job
// is transitioned directly to skipped.
func (c *Channel) cancelJob(id string) {
	job, err := c.store.Load(id)
	if err != nil {
		logger.Warn("command: cancel-job: job not found", "job", id, "err", err)
		return
	}

	switch job.Status {
	case store.StatusRunning:
		if !c.registry.Cancel(id) {
			logger.Warn("command: cancel-job: no running process registered", "job", id)
		}
	case store.StatusPending:
		job.Status = store.StatusSkipped
		job.Reason = "cancelled"
		now := time.Now()
		job.CompletedAt = &now
		if err := c.store.Save(job); err != nil {
			logger.Warn("command: cancel-job: failed to persist skip", "job", id, "err", err)
		}
	default:
		logger.Info("command: cancel-job: job already terminal, ignoring", "job", id, "status", job.Status)
	}
}

func (c *Channel) clearCompleted() {
	jobs, err := c.store.List()
	if err != nil {
		logger.Warn("command: clear-completed: failed to list jobs", "err", err)
		return
	}
	for _, job := range jobs {
		if job.IsTerminal() {
			if err := c.store.Delete(job.ID); err != nil {
				logger.Warn("command: clear-completed: failed to delete job", "job", job.ID, "err", err)
			}
		}
	}
}

func (c *Channel) clearAll(force bool) {
	jobs, err := c.store.List()
	if err != nil {
		logger.Warn("command: clear-all: failed to list jobs", "err", err)
		return
	}
	if !force {
		for _, job := range jobs {
			if job.Status == store.StatusRunning {
				logger.Warn("command: clear-all: rejected, jobs are running (use force)", "job", job.ID)
				return
			}
		}
	}
	for _, job := range jobs {
		if err := c.store.Delete(job.ID); err != nil {
			logger.Warn("command: clear-all: failed to delete job", "job", job.ID, "err", err)
		}
	}
}

// resolveApproval implements the test-clip approval workflow: a job
// parked in running with reason "awaiting-approval" is either released
// to continue (approve) or transitioned to skipped (reject). No-op,
// logged, if no job is actually awaiting approval under that id.
func (c *Channel) resolveApproval(id string, approve bool) {
	job, err := c.store.Load(id)
	if err != nil {
		logger.Warn("command: approval: job not found", "job", id, "err", err)
		return
	}
	if job.Status != store.StatusRunning || job.Reason != "awaiting-approval" {
		logger.Info("command: approval: no job awaiting approval under this id, ignoring", "job", id)
		return
	}
	if approve {
		job.Reason = "approved"
	} else {
		job.Status = store.StatusSkipped
		job.Reason = "rejected by operator"
		now := time.Now()
		job.CompletedAt = &now
	}
	if err := c.store.Save(job); err != nil {
		logger.Warn("command: approval: failed to persist", "job", id, "err", err)
	}
}
