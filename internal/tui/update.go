package tui

import (
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/mkvreel/av1d/internal/store"
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Refresh):
			return m, tea.Batch(
				refreshJobs(m.jobStateDir),
				refreshMetrics(),
			)
		}
		return m, nil

	case jobsMsg:
		m.jobs = msg.jobs
		sortJobsByNewest(m.jobs)
		m.lastRefresh = time.Now()
		return m, nil

	case metricsMsg:
		cpuPercent, err := cpu.Percent(0, false)
		if err == nil && len(cpuPercent) > 0 {
			m.cpuPercent = cpuPercent[0]
		}
		memInfo, err := mem.VirtualMemory()
		if err == nil {
			m.memPercent = memInfo.UsedPercent
		}
		return m, nil

	case tickMsg:
		return m, tea.Batch(
			refreshJobs(m.jobStateDir),
			refreshMetrics(),
			tick(),
		)

	case errMsg:
		return m, nil
	}

	return m, nil
}

func sortJobsByNewest(jobs []*store.Job) {
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
}

type keyMap struct {
	Quit    key.Binding
	Refresh key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
}
