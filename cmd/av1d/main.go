// Command av1d is the unattended AV1 transcoding daemon: it scans
// configured library roots, plans and runs conversions through the
// Encoder Supervisor, validates and swaps their output in place, and
// recovers stranded jobs across restarts.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mkvreel/av1d/internal/command"
	"github.com/mkvreel/av1d/internal/config"
	"github.com/mkvreel/av1d/internal/encoder"
	"github.com/mkvreel/av1d/internal/engine"
	"github.com/mkvreel/av1d/internal/logger"
	"github.com/mkvreel/av1d/internal/scan"
	"github.com/mkvreel/av1d/internal/sidecar"
	"github.com/mkvreel/av1d/internal/store"
	"github.com/mkvreel/av1d/internal/stuck"
)

// clearStaleTempArtifacts removes leftover temp-output files from a
// previous run that never reached the validate-and-swap step, so a crash
// mid-encode doesn't leave dead .mkv files accumulating in tempDir.
func clearStaleTempArtifacts(tempDir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(tempDir, "*.av1d-tmp.mkv"))
	if err != nil {
		return 0, err
	}
	cleared := 0
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return cleared, err
		}
		cleared++
	}
	return cleared, nil
}

func main() {
	configPath := flag.String("config", "./av1d.yaml", "path to daemon configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("av1d: failed to load config from %s: %v", *configPath, err)
	}

	logger.Init(cfg.LogLevel)
	logger.Info("av1d: starting", "config", *configPath, "library_roots", len(cfg.LibraryRoots), "workers", cfg.Workers)

	if len(cfg.LibraryRoots) == 0 {
		log.Fatalf("av1d: no library_roots configured, nothing to watch")
	}

	if err := cfg.EnsureTempOutputDir(); err != nil {
		log.Fatalf("av1d: %v", err)
	}
	if n, err := clearStaleTempArtifacts(cfg.TempOutputDir); err != nil {
		log.Fatalf("av1d: failed to clear stale temp_output_dir artifacts: %v", err)
	} else if n > 0 {
		logger.Info("av1d: cleared stale temp artifacts", "count", n)
	}

	st, err := store.New(cfg.JobStateDir)
	if err != nil {
		log.Fatalf("av1d: failed to open job store: %v", err)
	}

	sc := sidecar.New()
	scanner := scan.New(cfg, st, sc)
	registry := encoder.NewRegistry()
	eng := engine.New(cfg, st, sc, registry)
	detector := stuck.New(cfg, st)

	cmdChannel, err := command.New(cfg.CommandDir, st, registry)
	if err != nil {
		log.Fatalf("av1d: failed to open command channel: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go cmdChannel.Run(ctx)

	scanTicker := time.NewTicker(cfg.ScanInterval)
	defer scanTicker.Stop()

	stuckTicker := time.NewTicker(cfg.StuckFileInactivity)
	defer stuckTicker.Stop()

	runScan := func() {
		created, err := scanner.Tick()
		if err != nil {
			logger.Warn("av1d: scan tick failed", "err", err)
			return
		}
		if len(created) > 0 {
			logger.Info("av1d: scan created jobs", "count", len(created))
		}
		eng.RunPending(ctx)
	}

	// Recover any jobs stranded by a previous run before the first scan.
	detector.Tick()
	runScan()

	for {
		select {
		case <-ctx.Done():
			logger.Info("av1d: shutting down")
			return
		case <-scanTicker.C:
			runScan()
		case <-stuckTicker.C:
			detector.Tick()
		case <-cmdChannel.RescanNow:
			logger.Info("av1d: rescan requested via command channel")
			runScan()
		}
	}
}
