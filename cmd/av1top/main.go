// Command av1top is the read-only companion dashboard for av1d: it
// observes the Job Store on disk and renders a btop-style view of the
// current queue, performing no writes the daemon could race against.
package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mkvreel/av1d/internal/config"
	"github.com/mkvreel/av1d/internal/tui"
)

func main() {
	configPath := flag.String("config", "./av1d.yaml", "path to daemon configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		cfg = config.Default()
	}

	m := tui.NewModel(cfg.JobStateDir)
	p := tea.NewProgram(m, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		fmt.Printf("av1top: error running TUI: %v\n", err)
		os.Exit(1)
	}
}
