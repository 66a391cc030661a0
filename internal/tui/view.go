package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/mkvreel/av1d/internal/store"
)

var (
	// btop-inspired color scheme, carried over unchanged.
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("250")).
			Background(lipgloss.Color("236")).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Background(lipgloss.Color("236")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("238")).
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("250")).
			Padding(1, 1).
			Margin(0, 1, 1, 0)

	panelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238"))

	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("76"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("160"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	skippedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("136"))

	cpuColor = lipgloss.Color("196")
	memColor = lipgloss.Color("39")
)

// View renders the TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	title := titleStyle.Width(m.width - 2).Render("AV1 Transcoding Daemon")

	metricsWidth := maxInt(40, m.width/2-4)
	if metricsWidth > 50 {
		metricsWidth = 50
	}
	summaryWidth := maxInt(40, m.width-metricsWidth-6)

	metricsPanel := renderMetricsPanel(m.cpuPercent, m.memPercent, metricsWidth)
	summaryPanel := renderSummaryPanel(m.jobs, summaryWidth)
	topRow := lipgloss.JoinHorizontal(lipgloss.Top, metricsPanel, summaryPanel)

	activeBody, hasActive := renderActiveJob(m.jobs)
	if !hasActive {
		activeBody = mutedStyle.Render("No active transcoding job")
	}
	activePanel := renderPanel("ACTIVE JOB", activeBody, m.width-4)

	tableWidth := maxInt(80, m.width-4)
	titleHeight := lipgloss.Height(title)
	topRowHeight := lipgloss.Height(topRow)
	activeHeight := lipgloss.Height(activePanel)
	statusHeight := 1
	availableBody := m.height - (titleHeight + topRowHeight + activeHeight + statusHeight) - 6
	if availableBody < 5 {
		availableBody = 5
	}

	jobsPanel := renderPanel("JOB QUEUE", renderJobTable(m.jobs, tableWidth, availableBody), m.width-2)

	statusBar := renderStatusBar(m.jobs, m.jobStateDir, m.lastRefresh, m.width-2)

	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		topRow,
		activePanel,
		jobsPanel,
		statusBar,
	)
}

func renderPanel(title, body string, width int) string {
	titleBar := panelTitleStyle.Render(" " + title + " ")
	content := titleBar + "\n" + body

	if width > 0 {
		return panelStyle.Width(width).Render(content)
	}
	return panelStyle.Render(content)
}

func renderMetricsPanel(cpuPercent, memPercent float64, width int) string {
	lines := []string{
		renderBar("CPU", cpuPercent, cpuColor, width-4),
		renderBar("MEM", memPercent, memColor, width-4),
	}
	body := strings.Join(lines, "\n")
	return renderPanel("SYSTEM METRICS", body, width)
}

func renderBar(label string, value float64, color lipgloss.Color, width int) string {
	barWidth := width - 12
	if barWidth < 10 {
		barWidth = 10
	}

	filled := int((value / 100.0) * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}
	if filled < 0 {
		filled = 0
	}

	filledBar := strings.Repeat("█", filled)
	emptyBar := strings.Repeat("░", barWidth-filled)
	bar := lipgloss.NewStyle().Foreground(color).Render(filledBar + emptyBar)

	var percentColor lipgloss.Color
	if value < 50 {
		percentColor = lipgloss.Color("76")
	} else if value < 80 {
		percentColor = lipgloss.Color("226")
	} else {
		percentColor = lipgloss.Color("196")
	}

	percent := lipgloss.NewStyle().Foreground(percentColor).Render(fmt.Sprintf("%5.1f%%", value))
	labelText := labelStyle.Render(fmt.Sprintf("%-3s", label))

	return fmt.Sprintf("%s %s %s", labelText, bar, percent)
}

func renderSummaryPanel(jobList []*store.Job, width int) string {
	var total, pending, running, success, failed, skipped int

	for _, job := range jobList {
		total++
		switch job.Status {
		case store.StatusPending:
			pending++
		case store.StatusRunning:
			running++
		case store.StatusSuccess:
			success++
		case store.StatusFailed:
			failed++
		case store.StatusSkipped:
			skipped++
		}
	}

	lines := []string{
		renderSummaryLine("Total", total, lipgloss.Color("250")),
		renderSummaryLine("Pending", pending, lipgloss.Color("244")),
		renderSummaryLine("Running", running, lipgloss.Color("39")),
		renderSummaryLine("Success", success, lipgloss.Color("76")),
		renderSummaryLine("Failed", failed, lipgloss.Color("160")),
		renderSummaryLine("Skipped", skipped, lipgloss.Color("136")),
	}

	body := strings.Join(lines, "\n")
	return renderPanel("QUEUE SUMMARY", body, width)
}

func renderSummaryLine(label string, value int, color lipgloss.Color) string {
	labelText := labelStyle.Render(fmt.Sprintf("%-8s", label))
	valueText := lipgloss.NewStyle().Foreground(color).Render(fmt.Sprintf("%d", value))
	return fmt.Sprintf("%s %s", labelText, valueText)
}

func renderActiveJob(jobList []*store.Job) (string, bool) {
	var runningJob *store.Job
	for _, job := range jobList {
		if job.Status == store.StatusRunning {
			runningJob = job
			break
		}
	}

	if runningJob == nil {
		return "", false
	}

	var lines []string

	fileName := filepath.Base(runningJob.SourcePath)
	lines = append(lines, fmt.Sprintf("%s %s", labelStyle.Render("File:"), valueStyle.Render(fileName)))

	if p := runningJob.Probe; p != nil {
		if p.Width > 0 && p.Height > 0 {
			res := fmt.Sprintf("%dx%d", p.Width, p.Height)
			lines = append(lines, fmt.Sprintf("%s %s", labelStyle.Render("Resolution:"), valueStyle.Render(res)))
		}
		if p.VideoCodec != "" {
			codec := p.VideoCodec
			if p.BitDepth > 0 {
				codec = fmt.Sprintf("%s (%d-bit)", codec, p.BitDepth)
			}
			lines = append(lines, fmt.Sprintf("%s %s", labelStyle.Render("Codec:"), valueStyle.Render(codec)))
		}
		if p.AvgFrameRate != "" {
			lines = append(lines, fmt.Sprintf("%s %s", labelStyle.Render("Frame Rate:"), valueStyle.Render(p.AvgFrameRate+" fps")))
		}

		var streamParts []string
		if p.AudioStreams > 0 {
			streamParts = append(streamParts, fmt.Sprintf("%d audio", p.AudioStreams))
		}
		if p.SubtitleStreams > 0 {
			streamParts = append(streamParts, fmt.Sprintf("%d subtitle", p.SubtitleStreams))
		}
		if len(streamParts) > 0 {
			lines = append(lines, fmt.Sprintf("%s %s", labelStyle.Render("Streams:"), valueStyle.Render(strings.Join(streamParts, ", "))))
		}
	}

	lines = append(lines, fmt.Sprintf("%s %s", labelStyle.Render("Original:"), valueStyle.Render(humanize.IBytes(uint64(runningJob.OriginalSize)))))

	if runningJob.LastTempSize > 0 {
		savings := float64(runningJob.OriginalSize-runningJob.LastTempSize) / float64(runningJob.OriginalSize) * 100
		lines = append(lines, fmt.Sprintf("%s %s (%.1f%% so far)",
			labelStyle.Render("Current:"),
			valueStyle.Render(humanize.IBytes(uint64(runningJob.LastTempSize))),
			savings))
	}

	if runningJob.StartedAt != nil {
		lines = append(lines, fmt.Sprintf("%s %s", labelStyle.Render("Elapsed:"), valueStyle.Render(humanize.RelTime(*runningJob.StartedAt, time.Now(), "", ""))))
	}

	if c := runningJob.Classification; c != nil {
		lines = append(lines, fmt.Sprintf("%s %s", labelStyle.Render("Classification:"), valueStyle.Render(c.Label)))
	}

	return strings.Join(lines, "\n"), true
}

func renderJobTable(jobList []*store.Job, width int, maxLines int) string {
	if len(jobList) == 0 {
		return mutedStyle.Render("No jobs in queue")
	}

	if maxLines < 2 {
		maxLines = 2
	}

	colWidths := calculateColumnWidths(width)

	header := renderRow(
		[]string{"STATUS", "FILE", "CODEC", "RES", "ORIG", "NEW", "SAVE", "TIME", "REASON"},
		colWidths,
	)

	var rows []string
	rows = append(rows, panelTitleStyle.Render(header))

	remaining := maxLines - 1
	visibleCount := 0

	for _, job := range jobList {
		if remaining == 0 {
			break
		}
		row := renderJobRow(job, colWidths)
		rows = append(rows, row)
		visibleCount++
		remaining--
	}

	if len(jobList) > visibleCount {
		rows = append(rows, mutedStyle.Render(
			fmt.Sprintf("… %d more jobs", len(jobList)-visibleCount),
		))
	}

	return strings.Join(rows, "\n")
}

func renderRow(columns []string, widths map[string]int) string {
	colNames := []string{"STATUS", "FILE", "CODEC", "RES", "ORIG", "NEW", "SAVE", "TIME", "REASON"}
	var parts []string
	for i, colName := range colNames {
		width := widths[colName]
		text := ""
		if i < len(columns) {
			text = columns[i]
		}
		if len(text) > width {
			text = text[:width-3] + "..."
		} else {
			text = text + strings.Repeat(" ", width-len(text))
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, " ")
}

func renderJobRow(job *store.Job, widths map[string]int) string {
	status := formatStatus(job.Status)
	fileName := filepath.Base(job.SourcePath)
	codec, resolution := "-", "-"
	if job.Probe != nil {
		if job.Probe.VideoCodec != "" {
			codec = job.Probe.VideoCodec
		}
		if job.Probe.Width > 0 && job.Probe.Height > 0 {
			resolution = fmt.Sprintf("%dx%d", job.Probe.Width, job.Probe.Height)
		}
	}
	origSize := formatSize(job.OriginalSize)
	newSize := formatSize(job.NewSize)
	savings := calculateSavings(job.OriginalSize, job.NewSize)
	duration := formatDuration(job)
	reason := job.Reason
	if reason == "" {
		reason = "-"
	}

	row := renderRow(
		[]string{status, fileName, codec, resolution, origSize, newSize, savings, duration, reason},
		widths,
	)

	switch job.Status {
	case store.StatusSuccess:
		return successStyle.Render(row)
	case store.StatusFailed:
		return failedStyle.Render(row)
	case store.StatusSkipped:
		return skippedStyle.Render(row)
	case store.StatusRunning:
		return runningStyle.Render(row)
	case store.StatusPending:
		return pendingStyle.Render(row)
	default:
		return row
	}
}

func renderStatusBar(jobList []*store.Job, jobStateDir string, lastRefresh time.Time, width int) string {
	var stats struct {
		total   int
		running int
		failed  int
	}

	for _, job := range jobList {
		stats.total++
		switch job.Status {
		case store.StatusRunning:
			stats.running++
		case store.StatusFailed:
			stats.failed++
		}
	}

	runningText := lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Render(fmt.Sprintf("%d", stats.running))
	failedText := lipgloss.NewStyle().Foreground(lipgloss.Color("160")).Render(fmt.Sprintf("%d", stats.failed))

	statusText := fmt.Sprintf("Jobs: %d total | %s running | %s failed | Dir: %s | Updated: %s | [q]uit [r]efresh",
		stats.total,
		runningText,
		failedText,
		jobStateDir,
		lastRefresh.Format("15:04:05"),
	)

	if len(statusText) > width {
		statusText = statusText[:width-3] + "..."
	}

	return statusBarStyle.Width(width).Render(statusText)
}

func formatStatus(status store.Status) string {
	switch status {
	case store.StatusPending:
		return "PENDING"
	case store.StatusRunning:
		return "RUNNING"
	case store.StatusSuccess:
		return "SUCCESS"
	case store.StatusFailed:
		return "FAILED"
	case store.StatusSkipped:
		return "SKIPPED"
	default:
		return string(status)
	}
}

func formatDuration(job *store.Job) string {
	if job.StartedAt == nil {
		return "-"
	}
	var endTime time.Time
	if job.CompletedAt != nil {
		endTime = *job.CompletedAt
	} else {
		endTime = time.Now()
	}
	duration := endTime.Sub(*job.StartedAt)
	if duration < time.Second {
		return "<1s"
	}
	if duration < time.Minute {
		return fmt.Sprintf("%.0fs", duration.Seconds())
	}
	return fmt.Sprintf("%.1fm", duration.Minutes())
}

func formatSize(bytes int64) string {
	if bytes == 0 {
		return "-"
	}
	return humanize.IBytes(uint64(bytes))
}

func calculateSavings(origSize, newSize int64) string {
	if origSize == 0 || newSize == 0 {
		return "-"
	}
	savings := float64(origSize-newSize) / float64(origSize) * 100
	if savings < 0 {
		return fmt.Sprintf("+%.1f%%", -savings)
	}
	return fmt.Sprintf("%.1f%%", savings)
}

func calculateColumnWidths(totalWidth int) map[string]int {
	widths := map[string]int{
		"STATUS": 8,
		"CODEC":  6,
		"RES":    6,
		"ORIG":   8,
		"NEW":    8,
		"SAVE":   7,
		"TIME":   6,
		"REASON": 30,
	}

	usedWidth := widths["STATUS"] + widths["CODEC"] + widths["RES"] +
		widths["ORIG"] + widths["NEW"] +
		widths["SAVE"] + widths["TIME"] + widths["REASON"] + 8
	fileWidth := totalWidth - usedWidth - 2
	if fileWidth < 15 {
		fileWidth = 15
	}
	widths["FILE"] = fileWidth

	return widths
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
