// Package encoder drives the external encoder subprocess: argument
// construction, output capture, growth monitoring, timeouts, and
// graceful-then-forced cancellation.
package encoder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/mkvreel/av1d/internal/logger"
)

const (
	tailCaptureBytes  = 8 * 1024
	growthPollPeriod  = 5 * time.Second
	terminationGrace  = 10 * time.Second
)

// Result is the structured outcome of one encoder invocation. A non-zero
// exit is not a panic; it's a normal result the Job Engine interprets.
type Result struct {
	ExitCode   int
	Elapsed    time.Duration
	StdoutTail string
	StderrTail string
	TempPath   string
	TimedOut   bool
	Cancelled  bool
}

// boundedBuffer keeps only the tail of whatever is written to it, so a
// chatty encoder can't blow up memory while a report still gets useful
// context — the tail is where the actionable error text lives.
type boundedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func newBoundedBuffer(max int) *boundedBuffer {
	return &boundedBuffer{max: max}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Write(p)
	if b.buf.Len() > b.max {
		excess := b.buf.Len() - b.max
		b.buf.Next(excess)
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Handle identifies one in-flight supervised process, so the command
// channel's cancel-job can act on it. The stuck detector does not consult
// the registry.
type Handle struct {
	JobID string
	PID   int

	cancel context.CancelFunc
}

// Registry tracks handles for currently-running supervised processes.
type Registry struct {
	mu      sync.Mutex
	running map[string]*Handle
}

// NewRegistry returns an empty process-handle registry.
func NewRegistry() *Registry {
	return &Registry{running: make(map[string]*Handle)}
}

func (r *Registry) register(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running[h.JobID] = h
}

func (r *Registry) unregister(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, jobID)
}

// Cancel requests graceful-then-forced termination of the job's running
// encoder, if any. Returns false if no such process is registered.
func (r *Registry) Cancel(jobID string) bool {
	r.mu.Lock()
	h, ok := r.running[jobID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	h.cancel()
	return true
}

// Supervisor spawns and monitors one encoder invocation at a time per
// call to Run.
type Supervisor struct {
	EncoderPath string
	Timeout     time.Duration
	Registry    *Registry
}

// New returns a Supervisor bound to the given encoder binary path.
func New(encoderPath string, timeout time.Duration, registry *Registry) *Supervisor {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Supervisor{EncoderPath: encoderPath, Timeout: timeout, Registry: registry}
}

// Run spawns the encoder with args, streams its output, enforces the
// wall-clock timeout, and honors cancellation requested via the
// Supervisor's Registry. tempPath is polled for growth so a separate
// stuck detector can consume that signal through the Job record.
func (s *Supervisor) Run(ctx context.Context, jobID string, args []string, tempPath string, onStart func(pid int), onGrowth func(size int64)) (*Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	timeoutCtx, timeoutCancel := context.WithTimeout(runCtx, s.Timeout)
	defer timeoutCancel()

	cmd := exec.Command(s.EncoderPath, args...)
	cmd.SysProcAttr = setsid()

	stdout := newBoundedBuffer(tailCaptureBytes)
	stderr := newBoundedBuffer(tailCaptureBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("encoder: failed to start %s: %w", s.EncoderPath, err)
	}

	handle := &Handle{JobID: jobID, PID: cmd.Process.Pid, cancel: cancel}
	s.Registry.register(handle)
	defer s.Registry.unregister(jobID)
	if onStart != nil {
		onStart(cmd.Process.Pid)
	}

	growthDone := make(chan struct{})
	if onGrowth != nil {
		go pollGrowth(timeoutCtx, tempPath, onGrowth, growthDone)
	} else {
		close(growthDone)
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	var (
		result    Result
		timedOut  bool
		cancelled bool
	)

	select {
	case err := <-waitErr:
		result.ExitCode = exitCodeFrom(err)
		if err != nil && result.ExitCode == -1 {
			return nil, fmt.Errorf("encoder: wait failed: %w", err)
		}
	case <-timeoutCtx.Done():
		if runCtx.Err() != nil && ctx.Err() == nil {
			// runCtx was cancelled but not because of the parent ctx:
			// this was an explicit Cancel() call, not a timeout.
			cancelled = true
		} else {
			timedOut = true
		}
		terminate(cmd)
		<-waitErr
		result.ExitCode = -1
	}

	result.Elapsed = time.Since(start)
	result.StdoutTail = stdout.String()
	result.StderrTail = stderr.String()
	result.TempPath = tempPath
	result.TimedOut = timedOut
	result.Cancelled = cancelled

	return &result, nil
}

// terminate sends SIGTERM to the child's process group, waits a grace
// period, then SIGKILLs it — the one termination routine that the
// wall-clock timeout, daemon shutdown (cancellation of the parent
// context) and a command-triggered cancel all funnel through. The stuck
// detector does not call it: it marks the job failed and removes the
// temp file without signalling the process.
func terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pgid := -cmd.Process.Pid
	if err := syscall.Kill(pgid, syscall.SIGTERM); err != nil {
		logger.Debug("encoder: SIGTERM failed, process may already be gone", "err", err)
	}

	done := make(chan struct{})
	go func() {
		_, _ = cmd.Process.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(terminationGrace):
		if err := syscall.Kill(pgid, syscall.SIGKILL); err != nil {
			logger.Debug("encoder: SIGKILL failed, process may already be gone", "err", err)
		}
	}
}

func setsid() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

func exitCodeFrom(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

func pollGrowth(ctx context.Context, path string, onGrowth func(size int64), done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(growthPollPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			onGrowth(info.Size())
		}
	}
}
