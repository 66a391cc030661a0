package encoder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundedBufferKeepsOnlyTail(t *testing.T) {
	b := newBoundedBuffer(8)
	_, err := b.Write([]byte("0123456789abcdef"))
	require.NoError(t, err)
	assert.Equal(t, "89abcdef", b.String())
}

func TestBoundedBufferUnderCapacityKeepsEverything(t *testing.T) {
	b := newBoundedBuffer(64)
	_, err := b.Write([]byte("short"))
	require.NoError(t, err)
	assert.Equal(t, "short", b.String())
}

func TestExitCodeFromNilIsZero(t *testing.T) {
	assert.Equal(t, 0, exitCodeFrom(nil))
}

func TestRegistryCancelReturnsFalseWhenUnknown(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Cancel("no-such-job"))
}

func TestRegistryRegisterUnregister(t *testing.T) {
	r := NewRegistry()
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := &Handle{JobID: "job-1", PID: 1, cancel: cancel}

	r.register(h)
	assert.True(t, r.Cancel("job-1"))

	r.unregister("job-1")
	assert.False(t, r.Cancel("job-1"))
}

func TestRunSucceedsOnZeroExit(t *testing.T) {
	registry := NewRegistry()
	s := New("true", time.Second, registry)

	result, err := s.Run(context.Background(), "job-true", nil, "/tmp/does-not-matter", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.False(t, result.TimedOut)
	assert.False(t, result.Cancelled)
}

func TestRunReportsNonZeroExit(t *testing.T) {
	registry := NewRegistry()
	s := New("false", time.Second, registry)

	result, err := s.Run(context.Background(), "job-false", nil, "/tmp/does-not-matter", nil, nil)
	require.NoError(t, err)
	assert.NotEqual(t, 0, result.ExitCode)
}

func TestRunInvokesOnStartWithPID(t *testing.T) {
	registry := NewRegistry()
	s := New("true", time.Second, registry)

	var gotPID int
	_, err := s.Run(context.Background(), "job-pid", nil, "/tmp/does-not-matter", func(pid int) { gotPID = pid }, nil)
	require.NoError(t, err)
	assert.Greater(t, gotPID, 0)
}

func TestRunTimesOutLongRunningProcess(t *testing.T) {
	registry := NewRegistry()
	s := New("sleep", 100*time.Millisecond, registry)

	result, err := s.Run(context.Background(), "job-sleep", []string{"5"}, "/tmp/does-not-matter", nil, nil)
	require.NoError(t, err)
	assert.True(t, result.TimedOut)
}

func TestRunHonorsExplicitCancel(t *testing.T) {
	registry := NewRegistry()
	s := New("sleep", 5*time.Second, registry)

	done := make(chan *Result, 1)
	go func() {
		result, _ := s.Run(context.Background(), "job-cancel", []string{"5"}, "/tmp/does-not-matter", nil, nil)
		done <- result
	}()

	time.Sleep(50 * time.Millisecond)
	assert.True(t, registry.Cancel("job-cancel"))

	result := <-done
	assert.True(t, result.Cancelled)
}
