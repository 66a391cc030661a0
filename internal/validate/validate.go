// Package validate re-probes an encoder's temp output and runs the
// structural checks that decide whether it's safe to swap in.
package validate

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mkvreel/av1d/internal/encoder"
	"github.com/mkvreel/av1d/internal/plan"
	"github.com/mkvreel/av1d/internal/probe"
)

// Result is the Output Validator's verdict. Issues are fatal (swap must
// not proceed); Warnings are advisory and recorded in the report but
// don't block the swap.
type Result struct {
	OK       bool
	Issues   []string
	Warnings []string
}

func (r *Result) fail(format string, args ...interface{}) {
	r.Issues = append(r.Issues, fmt.Sprintf(format, args...))
	r.OK = false
}

func (r *Result) warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validator re-probes a temp output file and checks it against the
// source metadata and the plan that produced it.
type Validator struct {
	Prober *probe.Prober
}

// New returns a Validator that uses p to re-probe output files.
func New(p *probe.Prober) *Validator {
	return &Validator{Prober: p}
}

// Validate runs the full battery of structural checks against tempPath,
// comparing it to the source metadata srcMeta and the plan that
// produced it.
func (v *Validator) Validate(ctx context.Context, tempPath string, srcMeta *probe.Metadata, p plan.Plan) *Result {
	res := &Result{OK: true}

	// Check 1: existence and non-zero size.
	info, err := os.Stat(tempPath)
	if err != nil {
		res.fail("output file missing or unreadable: %v", err)
		res.OK = false
		return res
	}
	if info.Size() == 0 {
		res.fail("output file is empty")
		res.OK = false
		return res
	}

	// Check 2: probe succeeds.
	outMeta, err := v.Prober.Probe(ctx, tempPath)
	if err != nil {
		res.fail("output file failed to probe: %v", err)
		res.OK = false
		return res
	}

	// Check 3: at least one video stream.
	outVideo, hasOutVideo := outMeta.PrimaryVideoStream()
	if !hasOutVideo {
		res.fail("output has no video stream")
		res.OK = false
		return res
	}

	// Check 4: codec matches the target.
	if !strings.Contains(strings.ToLower(outVideo.Codec), encoder.TargetCodec) {
		res.fail("output video codec %q does not match target codec %q", outVideo.Codec, encoder.TargetCodec)
	}

	// Check 5: bit depth matches the plan.
	outBitDepth := probe.DetectBitDepth(outVideo)
	if outBitDepth != p.BitDepth {
		res.warn("output bit depth %d does not match planned bit depth %d", outBitDepth, p.BitDepth)
	}

	// Check 6: pixel format family matches the plan.
	if !pixelFormatMatches(outVideo.PixelFormat, p.PixelFormat) {
		res.warn("output pixel format %q does not match planned family %s", outVideo.PixelFormat, p.PixelFormat)
	}

	// Check 7: even dimensions.
	if outVideo.Width%2 != 0 || outVideo.Height%2 != 0 {
		res.warn("output has odd dimensions: %dx%d", outVideo.Width, outVideo.Height)
	}

	// Check 8: frame rate consistency with source.
	if srcVideo, ok := srcMeta.PrimaryVideoStream(); ok {
		srcFPS := parseFrameRateOrZero(srcVideo.AvgFrameRate, srcVideo.RFrameRate)
		outFPS := parseFrameRateOrZero(outVideo.AvgFrameRate, outVideo.RFrameRate)
		if srcFPS > 0 && outFPS > 0 {
			delta := srcFPS - outFPS
			if delta < 0 {
				delta = -delta
			}
			if delta/srcFPS > 0.02 {
				res.warn("frame rate drifted from %.3f to %.3f", srcFPS, outFPS)
			}
		}
	}

	// Check 9: audio stream count preserved — 0 remaining audio is allowed
	// but warned on, never a reason to fail the swap.
	srcAudio := srcMeta.AudioStreamCount()
	outAudio := outMeta.AudioStreamCount()
	if p.StreamSelection.CopyAllAudio && outAudio < srcAudio-len(p.StreamSelection.ExcludeLanguages) {
		res.warn("output audio stream count %d is lower than expected (source had %d)", outAudio, srcAudio)
	}

	// Check 10: bitrate sanity — output shouldn't be implausibly tiny
	// relative to its duration, which would indicate a truncated encode.
	if outMeta.BitrateBPS > 0 && outMeta.BitrateBPS < 50_000 {
		res.warn("output bitrate is suspiciously low: %d bps", outMeta.BitrateBPS)
	}

	if len(res.Issues) > 0 {
		res.OK = false
	}
	return res
}

func pixelFormatMatches(pixFmt string, family plan.PixelFormat) bool {
	pf := strings.ToLower(pixFmt)
	switch family {
	case plan.PixelFormat10Bit:
		return strings.Contains(pf, "10") || strings.Contains(pf, "p010")
	case plan.PixelFormat8Bit:
		return !strings.Contains(pf, "10") && !strings.Contains(pf, "p010") && !strings.Contains(pf, "12")
	default:
		return true
	}
}

func parseFrameRateOrZero(avg, r string) float64 {
	if f := parseFrameRate(avg); f > 0 {
		return f
	}
	return parseFrameRate(r)
}

func parseFrameRate(s string) float64 {
	if s == "" {
		return 0
	}
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0
	}
	var num, den float64
	if _, err := fmt.Sscanf(parts[0], "%f", &num); err != nil {
		return 0
	}
	if _, err := fmt.Sscanf(parts[1], "%f", &den); err != nil || den == 0 {
		return 0
	}
	return num / den
}
