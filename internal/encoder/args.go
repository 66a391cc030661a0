package encoder

import (
	"fmt"
	"strings"

	"github.com/mkvreel/av1d/internal/plan"
	"github.com/mkvreel/av1d/internal/probe"
)

// TargetCodec is the codec the Output Validator checks produced video
// streams against.
const TargetCodec = "av1"

// BuildArgs translates a Plan into concrete encoder command-line
// arguments using a VAAPI-style invocation. This is the one place that
// the command-line dialect lives.
func BuildArgs(p plan.Plan, m *probe.Metadata, sourcePath, tempOutputPath string) ([]string, error) {
	video, hasVideo := m.PrimaryVideoStream()
	if !hasVideo {
		return nil, fmt.Errorf("encoder: no video stream to encode")
	}

	args := []string{
		"-hide_banner",
		"-analyzeduration", "50M",
		"-probesize", "50M",
		"-init_hw_device", "vaapi=va",
		"-hwaccel", "vaapi",
		"-hwaccel_output_format", "vaapi",
		"-filter_hw_device", "va",
	}

	if hasFlag(p.SafetyFlags, "generate-timestamps") {
		args = append(args, "-fflags", "+genpts")
	}
	if hasFlag(p.SafetyFlags, "copy-timestamps") {
		args = append(args, "-copyts")
	}
	if hasFlag(p.SafetyFlags, "start-at-zero") {
		args = append(args, "-start_at_zero")
	}

	args = append(args, "-i", sourcePath)

	args = append(args,
		"-map", "0",
		"-map", "-0:v",
		"-map", "-0:t",
		"-map", fmt.Sprintf("0:v:%d", video.Index),
	)
	if p.StreamSelection.CopyAllAudio {
		args = append(args, "-map", "0:a?")
		for _, lang := range p.StreamSelection.ExcludeLanguages {
			args = append(args, "-map", fmt.Sprintf("-0:a:m:language:%s", lang))
		}
	}
	if p.StreamSelection.CopyAllSubtitles {
		args = append(args, "-map", "0:s?")
		for _, lang := range p.StreamSelection.ExcludeLanguages {
			args = append(args, "-map", fmt.Sprintf("-0:s:m:language:%s", lang))
		}
	}
	if p.StreamSelection.PreserveChapters {
		args = append(args, "-map_chapters", "0")
	}
	if p.StreamSelection.PreserveMetadata {
		args = append(args, "-map_metadata", "0")
	}

	args = append(args, "-vf:v:0", strings.Join(p.FilterChain, ","))

	args = append(args,
		"-c:v:0", "av1_vaapi",
		"-global_quality:v:0", fmt.Sprintf("%d", p.Quality),
		"-profile:v:0", fmt.Sprintf("%d", p.Profile),
		"-compression_level", "2",
	)

	if hasFlag(p.SafetyFlags, "passthrough-no-frame-drop") {
		args = append(args, "-vsync", "0")
	}
	if hasFlag(p.SafetyFlags, "normalize-negative-timestamps") {
		args = append(args, "-avoid_negative_ts", "make_zero")
	}

	args = append(args,
		"-c:a", "copy",
		"-c:s", "copy",
		"-max_muxing_queue_size", "2048",
		"-f", "matroska",
		tempOutputPath,
	)

	return args, nil
}

func hasFlag(flags []string, name string) bool {
	for _, f := range flags {
		if f == name {
			return true
		}
	}
	return false
}
