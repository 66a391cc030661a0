// Package engine implements the Job Engine state machine: the per-job
// pipeline from probe through classify, plan, encode, validate, size
// gate, and atomic swap.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mkvreel/av1d/internal/classify"
	"github.com/mkvreel/av1d/internal/config"
	"github.com/mkvreel/av1d/internal/encoder"
	"github.com/mkvreel/av1d/internal/logger"
	"github.com/mkvreel/av1d/internal/plan"
	"github.com/mkvreel/av1d/internal/probe"
	"github.com/mkvreel/av1d/internal/report"
	"github.com/mkvreel/av1d/internal/sidecar"
	"github.com/mkvreel/av1d/internal/store"
	"github.com/mkvreel/av1d/internal/validate"
)

// Engine drives individual jobs through the full pipeline. It holds no
// mutable job state of its own; the Job Store on disk is the only
// source of truth.
type Engine struct {
	cfg       config.Config
	store     *store.Store
	sidecar   *sidecar.Manager
	prober    *probe.Prober
	validator *validate.Validator
	supervisor *encoder.Supervisor

	sem *semaphore.Weighted
}

// New returns an Engine wired to the given store and sidecar manager,
// bounded to cfg.Workers concurrent jobs; multiple workers may each
// claim a distinct pending job at once.
func New(cfg config.Config, st *store.Store, sc *sidecar.Manager, registry *encoder.Registry) *Engine {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	prober := probe.New(cfg.ProbePath, 30*time.Second)
	return &Engine{
		cfg:        cfg,
		store:      st,
		sidecar:    sc,
		prober:     prober,
		validator:  validate.New(prober),
		supervisor: encoder.New(cfg.EncoderPath, cfg.StuckTimeout, registry),
		sem:        semaphore.NewWeighted(int64(workers)),
	}
}

// RunPending claims and runs every currently-pending job, up to the
// configured worker concurrency. Returns once all claimed jobs have
// reached a terminal state (or been left pending by a claim failure).
func (e *Engine) RunPending(ctx context.Context) {
	jobs, err := e.store.List()
	if err != nil {
		logger.Warn("engine: failed to list jobs", "err", err)
		return
	}

	for _, job := range jobs {
		if job.Status != store.StatusPending && !isApprovedForResume(job) {
			continue
		}
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return
		}
		go func(j *store.Job) {
			defer e.sem.Release(1)
			e.RunJob(ctx, j.ID)
		}(job)
	}

	// Wait for all in-flight workers to finish by acquiring the full
	// weight back; a plain barrier since RunPending is called once per
	// scan tick and the caller doesn't need fire-and-forget semantics.
	workers := e.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	_ = e.sem.Acquire(ctx, int64(workers))
	e.sem.Release(int64(workers))
}

// RunJob claims and runs a single job by id through the full pipeline.
// A job already running with reason "approved" is resumed past the
// test-clip approval gate rather than reclaimed.
func (e *Engine) RunJob(ctx context.Context, jobID string) {
	job, err := e.store.Load(jobID)
	if err != nil {
		logger.Warn("engine: failed to load job for run", "job", jobID, "err", err)
		return
	}

	if isApprovedForResume(job) {
		logger.Info("engine: resuming approved job", "job", job.ID, "source", job.SourcePath)
		e.run(ctx, job)
		return
	}
	if job.Status != store.StatusPending {
		return
	}

	// Step 1: claim. Persist running before any action it authorizes
	// begins; if persistence fails, leave the job pending for a later
	// attempt.
	job.Status = store.StatusRunning
	now := time.Now()
	job.StartedAt = &now
	if err := e.store.Save(job); err != nil {
		logger.Warn("engine: failed to persist claim, leaving pending", "job", jobID, "err", err)
		return
	}

	logger.Info("engine: claimed job", "job", job.ID, "source", job.SourcePath)
	e.run(ctx, job)
}

// isApprovedForResume reports whether job is parked awaiting a test-clip
// approval decision that has since arrived.
func isApprovedForResume(job *store.Job) bool {
	return job.Status == store.StatusRunning && job.Reason == "approved"
}

const previewClipSeconds = "20"

func (e *Engine) run(ctx context.Context, job *store.Job) {
	// Step 2: probe.
	meta, err := e.prober.Probe(ctx, job.SourcePath)
	if err != nil {
		e.fail(job, fmt.Sprintf("probe failed: %v", err))
		return
	}
	job.Probe = probeSnapshot(meta)

	// Step 3: classify + plan (pure; errors here are programming bugs,
	// not runtime conditions).
	cls := classify.Classify(meta, job.SourcePath)
	job.Classification = &store.ClassificationSnapshot{
		Label:   string(cls.Label),
		Score:   cls.Score,
		Reasons: cls.Reasons,
	}

	p := plan.Build(meta, cls, e.cfg.ExcludeLanguageTags)
	job.Plan = planSnapshot(p)

	// Step 4: pre-flight size / no-recompress checks.
	if job.OriginalSize < e.cfg.MinSourceBytes {
		e.skip(job, "source below configured minimum size")
		return
	}
	if !e.cfg.ForceReencode && alreadyModernCodec(meta, e.cfg.ModernCodecs) && cls.Label == classify.LabelWeb {
		e.skip(job, "already in a modern codec at adequate quality")
		return
	}

	// Opt-in test-clip approval gate: a disc-like source gets a short
	// preview encoded first, and the job parks in running/awaiting-approval
	// until an operator approves or rejects it on the Command Channel.
	if e.cfg.TestClipEnabled && cls.Label == classify.LabelDisc && job.Reason != "approved" {
		if err := e.runPreviewClip(ctx, job, meta, p); err != nil {
			e.fail(job, fmt.Sprintf("preview clip failed: %v", err))
			return
		}
		return
	}

	// Step 5: run the Encoder Supervisor.
	tempPath := filepath.Join(e.cfg.TempOutputDir, job.ID+".av1d-tmp.mkv")
	job.TempOutputPath = tempPath
	if err := e.store.Save(job); err != nil {
		logger.Warn("engine: failed to persist temp path", "job", job.ID, "err", err)
	}

	args, err := encoder.BuildArgs(p, meta, job.SourcePath, tempPath)
	if err != nil {
		e.fail(job, fmt.Sprintf("failed to build encoder arguments: %v", err))
		return
	}

	onStart := func(pid int) {
		job.SupervisorPID = pid
		if err := e.store.Save(job); err != nil {
			logger.Debug("engine: failed to persist supervisor pid", "job", job.ID, "err", err)
		}
	}
	onGrowth := func(size int64) {
		// Only a change in size refreshes the timestamp, so the stuck
		// detector sees how long the temp file has gone without growing.
		if job.LastTempSizeCheck != nil && size == job.LastTempSize {
			return
		}
		t := time.Now()
		job.LastTempSizeCheck = &t
		job.LastTempSize = size
		if err := e.store.Save(job); err != nil {
			logger.Debug("engine: failed to persist temp growth signal", "job", job.ID, "err", err)
		}
	}

	result, err := e.supervisor.Run(ctx, job.ID, args, tempPath, onStart, onGrowth)
	job.SupervisorPID = 0
	if err != nil {
		e.cleanupTemp(tempPath)
		e.fail(job, fmt.Sprintf("encoder failed to run: %v", err))
		return
	}
	job.Result = &store.ResultSnapshot{
		ExitCode:   result.ExitCode,
		Elapsed:    result.Elapsed,
		StdoutTail: result.StdoutTail,
		StderrTail: result.StderrTail,
	}
	if result.ExitCode != 0 {
		e.cleanupTemp(tempPath)
		e.fail(job, fmt.Sprintf("encoder exited %d", result.ExitCode))
		return
	}

	// Step 6: validate output.
	vres := e.validator.Validate(ctx, tempPath, meta, p)
	job.Validation = &store.ValidationSnapshot{OK: vres.OK, Issues: vres.Issues, Warnings: vres.Warnings}
	if !vres.OK {
		e.cleanupTemp(tempPath)
		e.fail(job, fmt.Sprintf("output validation failed: %s", strings.Join(vres.Issues, "; ")))
		return
	}

	// Step 7: size gate.
	info, err := os.Stat(tempPath)
	if err != nil {
		e.cleanupTemp(tempPath)
		e.fail(job, fmt.Sprintf("failed to stat encoder output: %v", err))
		return
	}
	job.NewSize = info.Size()
	if job.OriginalSize > 0 {
		ratio := float64(job.NewSize) / float64(job.OriginalSize)
		if ratio > e.cfg.MaxSizeRatio {
			e.cleanupTemp(tempPath)
			e.skip(job, "insufficient savings")
			return
		}
	}

	// Step 8: atomic swap.
	if err := e.swap(job.SourcePath, tempPath); err != nil {
		e.cleanupTemp(tempPath)
		e.fail(job, fmt.Sprintf("atomic swap failed: %v", err))
		return
	}

	// Step 9: persist success and write the report.
	job.Status = store.StatusSuccess
	completed := time.Now()
	job.CompletedAt = &completed
	job.TempOutputPath = ""
	job.OutputPath = job.SourcePath
	if err := e.store.Save(job); err != nil {
		logger.Warn("engine: failed to persist success", "job", job.ID, "err", err)
	}
	if err := e.sidecar.WriteConversionReport(job.OutputPath, report.Render(job)); err != nil {
		logger.Warn("engine: failed to write conversion report", "job", job.ID, "err", err)
	}
	logger.Info("engine: job succeeded", "job", job.ID, "original_size", job.OriginalSize, "new_size", job.NewSize)
}

// runPreviewClip encodes a short preview of job's source with the same
// plan, writes it to the conventional preview path, and parks the job
// awaiting an approve-job/reject-job command.
func (e *Engine) runPreviewClip(ctx context.Context, job *store.Job, meta *probe.Metadata, p plan.Plan) error {
	previewPath := e.sidecar.PreviewPath(job.SourcePath)

	args, err := encoder.BuildArgs(p, meta, job.SourcePath, previewPath)
	if err != nil {
		return fmt.Errorf("build preview clip args: %w", err)
	}
	args = append(args[:len(args)-1], "-t", previewClipSeconds, previewPath)

	result, err := e.supervisor.Run(ctx, job.ID+"-preview", args, previewPath, nil, nil)
	if err != nil {
		return fmt.Errorf("run preview clip encoder: %w", err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("preview clip encoder exited %d", result.ExitCode)
	}

	job.Status = store.StatusRunning
	job.Reason = "awaiting-approval"
	if err := e.store.Save(job); err != nil {
		return fmt.Errorf("persist awaiting-approval: %w", err)
	}
	logger.Info("engine: preview clip ready, awaiting approval", "job", job.ID, "preview", previewPath)
	return nil
}

// swap backs up the original (rename to a suffixed sibling) and moves
// the temp file into place, falling back to copy-then-delete across
// filesystems.
func (e *Engine) swap(sourcePath, tempPath string) error {
	backupPath, err := e.sidecar.BackUpOriginal(sourcePath)
	if err != nil {
		return fmt.Errorf("backup original: %w", err)
	}

	if err := os.Rename(tempPath, sourcePath); err != nil {
		if copyErr := copyThenDelete(tempPath, sourcePath); copyErr != nil {
			// Restore the backup: the original swap failed and the
			// fallback also failed, so the original must be put back.
			_ = os.Rename(backupPath, sourcePath)
			return fmt.Errorf("rename failed (%v), cross-filesystem copy fallback also failed: %w", err, copyErr)
		}
	}
	return nil
}

func copyThenDelete(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.CreateTemp(filepath.Dir(dst), ".av1d-copy-*")
	if err != nil {
		return err
	}
	tmpName := out.Name()
	if _, err := out.ReadFrom(in); err != nil {
		out.Close()
		os.Remove(tmpName)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Remove(src)
}

func (e *Engine) fail(job *store.Job, reason string) {
	job.Status = store.StatusFailed
	job.Reason = reason
	completed := time.Now()
	job.CompletedAt = &completed
	if err := e.store.Save(job); err != nil {
		logger.Warn("engine: failed to persist failure", "job", job.ID, "err", err)
	}
	if err := e.sidecar.WriteExplanation(job.SourcePath, reason); err != nil {
		logger.Warn("engine: failed to write explanation", "job", job.ID, "err", err)
	}
	logger.Warn("engine: job failed", "job", job.ID, "reason", reason)
}

func (e *Engine) skip(job *store.Job, reason string) {
	job.Status = store.StatusSkipped
	job.Reason = reason
	completed := time.Now()
	job.CompletedAt = &completed
	if err := e.store.Save(job); err != nil {
		logger.Warn("engine: failed to persist skip", "job", job.ID, "err", err)
	}
	if err := e.sidecar.WriteExplanation(job.SourcePath, reason); err != nil {
		logger.Warn("engine: failed to write explanation", "job", job.ID, "err", err)
	}
	logger.Info("engine: job skipped", "job", job.ID, "reason", reason)
}

func (e *Engine) cleanupTemp(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("engine: failed to remove temp output", "path", path, "err", err)
	}
}

func alreadyModernCodec(m *probe.Metadata, modern []string) bool {
	v, ok := m.PrimaryVideoStream()
	if !ok {
		return false
	}
	codec := strings.ToLower(v.Codec)
	for _, c := range modern {
		if strings.ToLower(c) == codec {
			return true
		}
	}
	return false
}

func probeSnapshot(m *probe.Metadata) *store.ProbeSnapshot {
	v, _ := m.PrimaryVideoStream()
	return &store.ProbeSnapshot{
		ContainerFormat: m.ContainerFormat,
		MuxerTag:        m.MuxerTag,
		VideoCodec:      v.Codec,
		Width:           v.Width,
		Height:          v.Height,
		BitDepth:        probe.DetectBitDepth(v),
		ColorTransfer:   v.ColorTransfer,
		ColorPrimaries:  v.ColorPrimaries,
		AvgFrameRate:    v.AvgFrameRate,
		RFrameRate:      v.RFrameRate,
		BitrateBPS:      m.BitrateBPS,
		DurationSeconds: m.DurationSeconds,
		AudioStreams:    m.AudioStreamCount(),
		SubtitleStreams: m.SubtitleStreamCount(),
	}
}

func planSnapshot(p plan.Plan) *store.PlanSnapshot {
	return &store.PlanSnapshot{
		SourceBitDepth:    p.SourceBitDepth,
		TargetBitDepth:    p.BitDepth,
		PixelFormat:       string(p.PixelFormat),
		Profile:           p.Profile,
		Quality:           p.Quality,
		IsHDR:             p.IsHDR,
		HasDolbyVision:    p.HasDolbyVision,
		FilterChain:       p.FilterChain,
		ExcludedLanguages: p.StreamSelection.ExcludeLanguages,
	}
}
