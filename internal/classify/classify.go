// Package classify labels a source as web-like, disc-like, or unknown
// from a weighted sum of independent signals.
package classify

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mkvreel/av1d/internal/probe"
)

// Label is the classifier's verdict.
type Label string

const (
	LabelWeb     Label = "web-like"
	LabelDisc    Label = "disc-like"
	LabelUnknown Label = "unknown"
)

const (
	webThreshold  = 0.4
	discThreshold = -0.3
)

// Result is the classifier's output: a label, the score that produced it,
// and one human-readable reason per firing signal.
type Result struct {
	Label   Label
	Score   float64
	Reasons []string
}

var webTokens = []string{"web-dl", "webrip", "web.dl", "nf", "amzn", "hulu", "dsnp", "atvp"}
var discTokens = []string{"bluray", "blu-ray", "bdrip", "remux", "bdmv", "dvd"}

var webAudioCodecs = map[string]bool{"aac": true, "opus": true, "mp3": true}
var discAudioCodecs = map[string]bool{"truehd": true, "dts": true, "flac": true, "pcm_s16le": true, "pcm_s24le": true}

// Classify scores a source from its probe metadata and filename.
// Deterministic: Classify depends only on m and filename.
func Classify(m *probe.Metadata, filename string) Result {
	var score float64
	var reasons []string

	add := func(delta float64, reason string) {
		score += delta
		reasons = append(reasons, reason)
	}

	// Filename tokens, weight 0.35.
	base := strings.ToLower(filepath.Base(filename))
	for _, tok := range webTokens {
		if strings.Contains(base, tok) {
			add(0.35, fmt.Sprintf("filename contains %s", strings.ToUpper(tok)))
			break
		}
	}
	for _, tok := range discTokens {
		if strings.Contains(base, tok) {
			add(-0.35, fmt.Sprintf("filename contains %s", strings.ToUpper(tok)))
			break
		}
	}

	// Container / muxer, weight 0.10-0.15.
	format := strings.ToLower(m.ContainerFormat)
	muxer := strings.ToLower(m.MuxerTag)
	if strings.Contains(format, "mp4") || strings.Contains(format, "mov") || strings.Contains(muxer, "mkvmerge") || strings.Contains(muxer, "handbrake") {
		add(0.12, "container/muxer looks web-authored")
	}
	if strings.Contains(muxer, "makemkv") || strings.Contains(muxer, "anydvd") {
		add(-0.12, "muxer tag indicates disc-ripping tool")
	}

	// Audio codec set, weight 0.10-0.15.
	audioSet := map[string]bool{}
	eac3Count := 0
	for _, s := range m.Streams {
		if s.Kind != probe.StreamAudio {
			continue
		}
		c := strings.ToLower(s.Codec)
		audioSet[c] = true
		if c == "eac3" {
			eac3Count++
		}
	}
	for c := range audioSet {
		if webAudioCodecs[c] {
			add(0.12, fmt.Sprintf("web audio codec: %s", c))
			break
		}
	}
	hasDiscAudio := false
	for c := range audioSet {
		if discAudioCodecs[c] {
			hasDiscAudio = true
			add(-0.12, fmt.Sprintf("disc audio codec: %s", c))
			break
		}
	}
	if !hasDiscAudio && eac3Count >= 2 {
		add(-0.12, fmt.Sprintf("%d E-AC3 audio streams", eac3Count))
	}

	// Stream counts, weight 0.10-0.15.
	audioCount := m.AudioStreamCount()
	subCount := m.SubtitleStreamCount()
	if audioCount == 1 && subCount <= 3 {
		add(0.12, fmt.Sprintf("lean stream layout: %d audio, %d subs", audioCount, subCount))
	}
	if audioCount >= 3 || subCount >= 5 {
		add(-0.12, fmt.Sprintf("heavy stream layout: %d audio, %d subs", audioCount, subCount))
	}

	// Video traits, weight 0.20.
	if v, ok := m.PrimaryVideoStream(); ok {
		if v.AvgFrameRate != "" && v.RFrameRate != "" && v.AvgFrameRate != v.RFrameRate {
			add(0.20, "variable frame rate detected")
		} else if v.Width > 0 && v.Width%2 != 0 {
			add(0.20, "odd width dimension")
		} else if v.Height > 0 && v.Height%2 != 0 {
			add(0.20, "odd height dimension")
		} else if strings.Contains(strings.ToLower(v.Codec), "x264") {
			add(0.20, "x264 encoder tag present")
		}

		// Bits-per-pixel-per-frame, weight 0.10.
		if bppf, ok := bitsPerPixelPerFrame(m, v); ok {
			if bppf < 0.15 {
				add(0.10, fmt.Sprintf("low bits-per-pixel-per-frame: %.3f", bppf))
			} else if bppf > 0.30 {
				add(-0.10, fmt.Sprintf("high bits-per-pixel-per-frame: %.3f", bppf))
			}
		}
	}

	label := LabelUnknown
	switch {
	case score >= webThreshold:
		label = LabelWeb
	case score <= discThreshold:
		label = LabelDisc
	}

	return Result{Label: label, Score: score, Reasons: reasons}
}

func bitsPerPixelPerFrame(m *probe.Metadata, v probe.Stream) (float64, bool) {
	if v.Width <= 0 || v.Height <= 0 || v.BitrateBPS <= 0 {
		return 0, false
	}
	fps := parseFrameRate(v.AvgFrameRate)
	if fps <= 0 {
		fps = parseFrameRate(v.RFrameRate)
	}
	if fps <= 0 {
		return 0, false
	}
	pixels := float64(v.Width * v.Height)
	return float64(v.BitrateBPS) / (pixels * fps), true
}

func parseFrameRate(s string) float64 {
	if s == "" {
		return 0
	}
	parts := strings.Split(s, "/")
	if len(parts) == 2 {
		var num, den float64
		if _, err := fmt.Sscanf(parts[0], "%f", &num); err != nil {
			return 0
		}
		if _, err := fmt.Sscanf(parts[1], "%f", &den); err != nil || den == 0 {
			return 0
		}
		return num / den
	}
	var v float64
	if _, err := fmt.Sscanf(s, "%f", &v); err != nil {
		return 0
	}
	return v
}
