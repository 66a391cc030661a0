package stuck

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkvreel/av1d/internal/config"
	"github.com/mkvreel/av1d/internal/store"
)

func newTestDetector(t *testing.T) (*Detector, *store.Store) {
	t.Helper()
	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	cfg := config.Default()
	cfg.StuckTimeout = time.Hour
	cfg.StuckFileInactivity = 15 * time.Minute
	return New(cfg, st), st
}

func TestProcessAliveTrueForSelf(t *testing.T) {
	assert.True(t, processAlive(os.Getpid()))
}

func TestProcessAliveFalseForImpossiblePID(t *testing.T) {
	assert.False(t, processAlive(1<<30))
}

func TestIsStuckWhenSupervisorProcessVanished(t *testing.T) {
	d, _ := newTestDetector(t)
	started := time.Now()
	job := &store.Job{Status: store.StatusRunning, StartedAt: &started, SupervisorPID: 1 << 30}

	reason, stuck := d.isStuck(job, time.Now())
	assert.True(t, stuck)
	assert.Equal(t, "stuck", reason)
}

func TestIsStuckWhenOverallTimeoutExceeded(t *testing.T) {
	d, _ := newTestDetector(t)
	started := time.Now().Add(-2 * time.Hour)
	job := &store.Job{Status: store.StatusRunning, StartedAt: &started, SupervisorPID: os.Getpid()}

	reason, stuck := d.isStuck(job, time.Now())
	assert.True(t, stuck)
	assert.Equal(t, "stuck", reason)
}

func TestIsStuckWhenTempFileInactiveTooLong(t *testing.T) {
	d, _ := newTestDetector(t)
	started := time.Now()
	lastCheck := time.Now().Add(-30 * time.Minute)
	job := &store.Job{Status: store.StatusRunning, StartedAt: &started, SupervisorPID: os.Getpid(), LastTempSizeCheck: &lastCheck}

	reason, stuck := d.isStuck(job, time.Now())
	assert.True(t, stuck)
	assert.Equal(t, "stuck", reason)
}

func TestIsStuckFalseWhenHealthy(t *testing.T) {
	d, _ := newTestDetector(t)
	started := time.Now()
	lastCheck := time.Now()
	job := &store.Job{Status: store.StatusRunning, StartedAt: &started, SupervisorPID: os.Getpid(), LastTempSizeCheck: &lastCheck}

	_, stuck := d.isStuck(job, time.Now())
	assert.False(t, stuck)
}

func TestIsStuckWhenNeverRecordedLiveness(t *testing.T) {
	d, _ := newTestDetector(t)
	job := &store.Job{Status: store.StatusRunning}

	reason, stuck := d.isStuck(job, time.Now())
	assert.True(t, stuck)
	assert.Equal(t, "stuck", reason)
}

func TestTickRecoversStuckRunningJob(t *testing.T) {
	d, st := newTestDetector(t)
	started := time.Now().Add(-2 * time.Hour)
	job := &store.Job{ID: "job-1", Status: store.StatusRunning, StartedAt: &started, SupervisorPID: os.Getpid()}
	require.NoError(t, st.Save(job))

	d.Tick()

	loaded, err := st.Load("job-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, loaded.Status)
	assert.Equal(t, "stuck", loaded.Reason)
	assert.NotNil(t, loaded.CompletedAt)
	assert.Zero(t, loaded.SupervisorPID)
}

func TestIsStuckFalseWhenAwaitingApprovalPastTimeout(t *testing.T) {
	d, _ := newTestDetector(t)
	started := time.Now().Add(-2 * time.Hour)
	job := &store.Job{Status: store.StatusRunning, StartedAt: &started, Reason: "awaiting-approval"}

	_, stuck := d.isStuck(job, time.Now())
	assert.False(t, stuck)
}

func TestTickIgnoresNonRunningJobs(t *testing.T) {
	d, st := newTestDetector(t)
	job := &store.Job{ID: "job-2", Status: store.StatusPending}
	require.NoError(t, st.Save(job))

	d.Tick()

	loaded, err := st.Load("job-2")
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, loaded.Status)
}
