// Package tui implements the read-only companion dashboard: it observes
// the same on-disk Job Store the daemon writes, without any shared
// in-process state or locking.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mkvreel/av1d/internal/store"
)

// Model is the TUI's view of the world: a job snapshot plus host gauges,
// refreshed on a timer.
type Model struct {
	jobStateDir string
	jobs        []*store.Job
	cpuPercent  float64
	memPercent  float64
	width       int
	height      int
	lastRefresh time.Time
}

// NewModel returns a Model that observes the job store at jobStateDir.
func NewModel(jobStateDir string) Model {
	return Model{
		jobStateDir: jobStateDir,
		jobs:        []*store.Job{},
		lastRefresh: time.Now(),
	}
}

// Init kicks off the first refresh and the recurring tick.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		refreshJobs(m.jobStateDir),
		refreshMetrics(),
		tick(),
	)
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type tickMsg time.Time

func refreshJobs(jobStateDir string) tea.Cmd {
	return func() tea.Msg {
		st, err := store.New(jobStateDir)
		if err != nil {
			return errMsg{err}
		}
		jobs, err := st.List()
		if err != nil {
			return errMsg{err}
		}
		return jobsMsg{jobs}
	}
}

type jobsMsg struct {
	jobs []*store.Job
}

func refreshMetrics() tea.Cmd {
	return func() tea.Msg {
		return metricsMsg{}
	}
}

type metricsMsg struct{}

type errMsg struct {
	err error
}
