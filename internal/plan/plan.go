// Package plan converts probe metadata and a classification into a pure,
// deterministic encoding plan. The planner performs no I/O.
package plan

import (
	"strconv"
	"strings"

	"github.com/mkvreel/av1d/internal/classify"
	"github.com/mkvreel/av1d/internal/probe"
)

// PixelFormat names the planned output pixel format family.
type PixelFormat string

const (
	PixelFormat8Bit  PixelFormat = "8-bit-semiplanar"  // nv12
	PixelFormat10Bit PixelFormat = "10-bit-semiplanar" // p010le
)

// StreamSelection describes which streams ride through to the output.
type StreamSelection struct {
	CopyAllAudio      bool
	CopyAllSubtitles  bool
	PreserveChapters  bool
	PreserveMetadata  bool
	ExcludeLanguages  []string
}

// Plan is the pure output of the planner: everything the Encoder
// Supervisor needs to build a concrete invocation, and nothing else.
type Plan struct {
	SourceBitDepth  int
	BitDepth        int
	PixelFormat     PixelFormat
	Profile         int
	Quality         int
	IsHDR           bool
	HasDolbyVision  bool
	FilterChain     []string
	StreamSelection StreamSelection
	SafetyFlags     []string
}

const (
	qualityMin = 20
	qualityMax = 40
)

var legacyCodecs = map[string]bool{
	"mpeg2video": true, "mpeg4": true, "msmpeg4v2": true, "msmpeg4v3": true,
	"h263": true, "vc1": true, "wmv3": true, "flv1": true,
}

var efficientCodecs = map[string]bool{
	"hevc": true, "av1": true, "vp9": true,
}

// Build produces a Plan from probe metadata, a classification, and the
// set of language tags to exclude from audio/subtitle copy. Deterministic
// given its inputs.
func Build(m *probe.Metadata, cls classify.Result, excludeLanguages []string) Plan {
	video, hasVideo := m.PrimaryVideoStream()

	sourceBitDepth := 10 // unknown defaults to 10-bit
	isHDR := false
	hasDV := false
	if hasVideo {
		sourceBitDepth = probe.DetectBitDepth(video)
		isHDR = probe.IsHDR(video)
	}
	hasDV = probe.HasDolbyVision(m)

	targetBitDepth := sourceBitDepth
	pixFmt := PixelFormat8Bit
	if targetBitDepth == 10 {
		pixFmt = PixelFormat10Bit
	}

	quality := qualityFor(video, hasVideo, targetBitDepth)

	filterChain := buildFilterChain(hasDV, pixFmt)

	selection := StreamSelection{
		CopyAllAudio:     true,
		CopyAllSubtitles: true,
		PreserveChapters: true,
		PreserveMetadata: true,
		ExcludeLanguages: append([]string(nil), excludeLanguages...),
	}

	var safety []string
	if cls.Label == classify.LabelWeb || cls.Label == classify.LabelUnknown {
		safety = []string{
			"generate-timestamps",
			"copy-timestamps",
			"start-at-zero",
			"passthrough-no-frame-drop",
			"normalize-negative-timestamps",
		}
	}

	return Plan{
		SourceBitDepth:  sourceBitDepth,
		BitDepth:        targetBitDepth,
		PixelFormat:     pixFmt,
		Profile:         profileFor(targetBitDepth),
		Quality:         quality,
		IsHDR:           isHDR,
		HasDolbyVision:  hasDV,
		FilterChain:     filterChain,
		StreamSelection: selection,
		SafetyFlags:     safety,
	}
}

// profileFor maps target bit depth to an encoder profile integer. Main
// (0) for 8-bit, Main10-equivalent (1) for 10-bit — an opaque integer the
// Encoder Supervisor's plan-to-arguments translation interprets.
func profileFor(bitDepth int) int {
	if bitDepth == 10 {
		return 1
	}
	return 0
}

func qualityFor(v probe.Stream, hasVideo bool, bitDepth int) int {
	if !hasVideo {
		return clampQuality(baseForResolution(0) + bitDepthAdjust(bitDepth))
	}

	q := baseForResolution(v.Height)
	q += bitDepthAdjust(bitDepth)
	q += codecAdjust(v.Codec)
	q += bppfAdjust(v)
	q += frameRateAdjust(v)

	return clampQuality(q)
}

func baseForResolution(height int) int {
	switch {
	case height >= 2160:
		return 26
	case height >= 1440:
		return 25
	case height >= 1080:
		return 24
	case height >= 720:
		return 27
	default:
		return 30
	}
}

func bitDepthAdjust(bitDepth int) int {
	if bitDepth == 10 {
		return -1
	}
	return 0
}

func codecAdjust(codec string) int {
	c := strings.ToLower(codec)
	if legacyCodecs[c] {
		return 3
	}
	if efficientCodecs[c] {
		return -2
	}
	return 0
}

func bppfAdjust(v probe.Stream) int {
	if v.Width <= 0 || v.Height <= 0 || v.BitrateBPS <= 0 {
		return 0
	}
	fps := parseFrameRate(v.AvgFrameRate)
	if fps <= 0 {
		fps = parseFrameRate(v.RFrameRate)
	}
	if fps <= 0 {
		return 0
	}
	bppf := float64(v.BitrateBPS) / (float64(v.Width*v.Height) * fps)
	switch {
	case bppf > 0.30:
		return 2
	case bppf < 0.15:
		return -1
	default:
		return 0
	}
}

func frameRateAdjust(v probe.Stream) int {
	fps := parseFrameRate(v.AvgFrameRate)
	if fps <= 0 {
		fps = parseFrameRate(v.RFrameRate)
	}
	switch {
	case fps >= 48:
		return 1
	case fps > 0 && fps < 20:
		return -1
	default:
		return 0
	}
}

func clampQuality(q int) int {
	if q < qualityMin {
		return qualityMin
	}
	if q > qualityMax {
		return qualityMax
	}
	return q
}

func parseFrameRate(s string) float64 {
	if s == "" {
		return 0
	}
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		num, err1 := strconv.ParseFloat(parts[0], 64)
		den, err2 := strconv.ParseFloat(parts[1], 64)
		if err1 != nil || err2 != nil || den == 0 {
			return 0
		}
		return num / den
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// buildFilterChain assembles the ordered filter steps: pad/setsar
// always first, the Dolby Vision tonemap sub-chain (when present)
// before the pixel-format conversion, which
// itself always precedes the hardware upload.
func buildFilterChain(hasDV bool, pixFmt PixelFormat) []string {
	chain := []string{
		"pad=ceil(iw/2)*2:ceil(ih/2)*2",
		"setsar=1",
	}

	if hasDV {
		chain = append(chain,
			"zscale=transfer=linear",
			"zscale=npl=100",
			"format=gbrpf32le",
			"zscale=primaries=bt709:matrix=bt709",
			"tonemap=hable:desat=0",
			"zscale=transfer=bt709:matrix=bt709:range=tv",
		)
	}

	pf := "format=nv12"
	if pixFmt == PixelFormat10Bit {
		pf = "format=p010le"
	}
	chain = append(chain, pf, "hwupload")

	return chain
}
