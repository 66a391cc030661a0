// Package config loads the daemon's YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable the daemon reads at startup.
type Config struct {
	LibraryRoots []string `yaml:"library_roots"`

	MinSourceBytes int64   `yaml:"min_source_bytes"`
	MaxSizeRatio   float64 `yaml:"max_size_ratio"`

	JobStateDir   string `yaml:"job_state_dir"`
	TempOutputDir string `yaml:"temp_output_dir"`
	CommandDir    string `yaml:"command_dir"`

	ScanInterval        time.Duration `yaml:"scan_interval"`
	StabilityDwell      time.Duration `yaml:"stability_dwell"`
	StuckTimeout        time.Duration `yaml:"stuck_timeout"`
	StuckFileInactivity time.Duration `yaml:"stuck_file_inactivity"`

	ExcludeLanguageTags []string `yaml:"exclude_language_tags"`
	ForceReencode       bool     `yaml:"force_reencode"`

	EncoderPath string `yaml:"encoder_path"`
	ProbePath   string `yaml:"probe_path"`

	// ModernCodecs is the set of codec names that already satisfy the
	// no-recompress rule. A config choice, not a fixed constant.
	ModernCodecs []string `yaml:"modern_codecs"`

	// TestClipEnabled turns on the opt-in test-clip approval workflow.
	TestClipEnabled bool `yaml:"test_clip_enabled"`

	Workers int `yaml:"workers"`

	LogLevel string `yaml:"log_level"`
}

// Default returns a configuration with sensible defaults, used whenever
// the config file can't be read.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dataDir := filepath.Join(home, ".local", "share", "av1d")

	return Config{
		LibraryRoots:        []string{},
		MinSourceBytes:      2 * 1024 * 1024 * 1024,
		MaxSizeRatio:        0.90,
		JobStateDir:         filepath.Join(dataDir, "jobs"),
		TempOutputDir:       filepath.Join(dataDir, "tmp"),
		CommandDir:          filepath.Join(dataDir, "commands"),
		ScanInterval:        60 * time.Second,
		StabilityDwell:      30 * time.Second,
		StuckTimeout:        6 * time.Hour,
		StuckFileInactivity: 15 * time.Minute,
		ExcludeLanguageTags: nil,
		ForceReencode:       false,
		EncoderPath:         "ffmpeg",
		ProbePath:           "ffprobe",
		ModernCodecs:        []string{"av1"},
		TestClipEnabled:     false,
		Workers:             1,
		LogLevel:            "info",
	}
}

// Load reads a YAML config file at path over Default(), so fields the file
// leaves out keep their default values, and expands "~/" paths. A field
// the file sets explicitly, even to a zero value, replaces the default.
// A missing file is not an error here;
// callers that require an explicit config should check os.IsNotExist on
// their own stat first. A malformed file is always a fatal error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.LibraryRoots = expandAll(cfg.LibraryRoots)
	cfg.JobStateDir = expand(cfg.JobStateDir)
	cfg.TempOutputDir = expand(cfg.TempOutputDir)
	cfg.CommandDir = expand(cfg.CommandDir)
	cfg.EncoderPath = expand(cfg.EncoderPath)
	cfg.ProbePath = expand(cfg.ProbePath)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants the rest of the daemon depends on,
// in particular that temp_output_dir is configured and distinct from
// every library root: there is no implicit fallback to the source
// directory.
func (c Config) Validate() error {
	if c.TempOutputDir == "" {
		return fmt.Errorf("config error: temp_output_dir is required")
	}
	for _, root := range c.LibraryRoots {
		if samePath(root, c.TempOutputDir) {
			return fmt.Errorf("config error: temp_output_dir must not equal a library root (%s)", root)
		}
	}
	if c.MaxSizeRatio <= 0 || c.MaxSizeRatio > 1 {
		return fmt.Errorf("config error: max_size_ratio must be in (0, 1], got %v", c.MaxSizeRatio)
	}
	return nil
}

// EnsureTempOutputDir creates c.TempOutputDir if missing and verifies it's
// writable, so the daemon refuses to start rather than failing the first
// job it tries to run.
func (c Config) EnsureTempOutputDir() error {
	if err := os.MkdirAll(c.TempOutputDir, 0o755); err != nil {
		return fmt.Errorf("create temp_output_dir %s: %w", c.TempOutputDir, err)
	}
	probe := filepath.Join(c.TempOutputDir, ".av1d-write-check")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("temp_output_dir %s is not writable: %w", c.TempOutputDir, err)
	}
	if err := os.Remove(probe); err != nil {
		return fmt.Errorf("temp_output_dir %s write-check cleanup: %w", c.TempOutputDir, err)
	}
	return nil
}

func samePath(a, b string) bool {
	ca, err1 := filepath.Abs(a)
	cb, err2 := filepath.Abs(b)
	if err1 != nil || err2 != nil {
		return a == b
	}
	return filepath.Clean(ca) == filepath.Clean(cb)
}

func expand(p string) string {
	if p == "" || !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~/"))
}

func expandAll(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = expand(p)
	}
	return out
}
