// Package stuck implements the Stuck-Job Detector: the sole mechanism
// that recovers jobs stranded in "running" across a daemon restart or a
// supervisor crash.
package stuck

import (
	"os"
	"syscall"
	"time"

	"github.com/mkvreel/av1d/internal/config"
	"github.com/mkvreel/av1d/internal/logger"
	"github.com/mkvreel/av1d/internal/store"
)

// Detector periodically scans running jobs and fails any that are no
// longer making progress.
type Detector struct {
	cfg   config.Config
	store *store.Store
}

// New returns a Detector bound to the given store.
func New(cfg config.Config, st *store.Store) *Detector {
	return &Detector{cfg: cfg, store: st}
}

// Tick runs one detection pass over every job currently in state
// running.
func (d *Detector) Tick() {
	jobs, err := d.store.List()
	if err != nil {
		logger.Warn("stuck: failed to list jobs", "err", err)
		return
	}

	now := time.Now()
	for _, job := range jobs {
		if job.Status != store.StatusRunning {
			continue
		}
		if reason, stuck := d.isStuck(job, now); stuck {
			d.recover(job, reason)
		}
	}
}

// isStuck reports the job stuck if the process has vanished, the job has
// been running longer than the overall stuck timeout, no liveness signal
// (PID or start time) was ever recorded, or the temp file hasn't grown
// within the inactivity window. A job parked
// awaiting a test-clip approval decision is never stuck — it's waiting
// on an operator, not on a process.
func (d *Detector) isStuck(job *store.Job, now time.Time) (string, bool) {
	if job.Reason == "awaiting-approval" {
		return "", false
	}
	if job.SupervisorPID != 0 && !processAlive(job.SupervisorPID) {
		return "stuck", true
	}
	if job.StartedAt != nil && now.Sub(*job.StartedAt) > d.cfg.StuckTimeout {
		return "stuck", true
	}
	if job.SupervisorPID == 0 && job.StartedAt == nil {
		// No liveness signal was ever recorded for this job at all,
		// e.g. the process died before its first persisted write.
		return "stuck", true
	}
	if job.LastTempSizeCheck != nil && now.Sub(*job.LastTempSizeCheck) > d.cfg.StuckFileInactivity {
		return "stuck", true
	}
	return "", false
}

func (d *Detector) recover(job *store.Job, reason string) {
	if job.TempOutputPath != "" {
		if err := os.Remove(job.TempOutputPath); err != nil && !os.IsNotExist(err) {
			logger.Warn("stuck: failed to remove orphan temp file", "job", job.ID, "path", job.TempOutputPath, "err", err)
		}
	}

	job.Status = store.StatusFailed
	job.Reason = reason
	completed := time.Now()
	job.CompletedAt = &completed
	job.TempOutputPath = ""
	job.SupervisorPID = 0
	if err := d.store.Save(job); err != nil {
		logger.Warn("stuck: failed to persist recovery", "job", job.ID, "err", err)
		return
	}
	logger.Warn("stuck: recovered stranded job", "job", job.ID, "reason", reason)
}

// processAlive reports whether pid refers to a live process, using
// signal 0 which performs no action beyond existence/permission checks.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}
