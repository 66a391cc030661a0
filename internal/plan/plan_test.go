package plan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkvreel/av1d/internal/classify"
	"github.com/mkvreel/av1d/internal/plan"
	"github.com/mkvreel/av1d/internal/probe"
)

func video(codec string, w, h int, bps int64, fps string) probe.Stream {
	return probe.Stream{Kind: probe.StreamVideo, Codec: codec, Width: w, Height: h, BitrateBPS: bps, AvgFrameRate: fps, RFrameRate: fps}
}

func TestBuildQualityPinnedValues(t *testing.T) {
	cases := []struct {
		name    string
		stream  probe.Stream
		label   classify.Label
		wantQ   int
	}{
		{"2160p h264", video("h264", 3840, 2160, 40_000_000, "24/1"), classify.LabelDisc, 26},
		{"1080p hevc", video("hevc", 1920, 1080, 8_000_000, "24/1"), classify.LabelUnknown, 22},
		{"720p mpeg2", video("mpeg2video", 1280, 720, 6_000_000, "30/1"), classify.LabelDisc, 30},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := &probe.Metadata{Streams: []probe.Stream{tc.stream}}
			p := plan.Build(m, classify.Result{Label: tc.label}, nil)
			assert.Equal(t, tc.wantQ, p.Quality, "quality mismatch for %s", tc.name)
		})
	}
}

func TestBuildClampsQualityToRange(t *testing.T) {
	m := &probe.Metadata{Streams: []probe.Stream{video("mpeg2video", 640, 480, 500_000, "10/1")}}
	p := plan.Build(m, classify.Result{Label: classify.LabelDisc}, nil)
	assert.LessOrEqual(t, p.Quality, 40)
	assert.GreaterOrEqual(t, p.Quality, 20)
}

func TestBuildFilterChainOrderWithDolbyVision(t *testing.T) {
	m := &probe.Metadata{
		Streams: []probe.Stream{
			{Kind: probe.StreamVideo, Codec: "hevc", Width: 3840, Height: 2160, ColorTransfer: "smpte2094-40", PixelFormat: "yuv420p10le"},
		},
	}
	p := plan.Build(m, classify.Result{Label: classify.LabelDisc}, nil)

	require.True(t, p.HasDolbyVision)
	require.Equal(t, plan.PixelFormat10Bit, p.PixelFormat)

	padIdx := indexOf(p.FilterChain, "pad=ceil(iw/2)*2:ceil(ih/2)*2")
	tonemapIdx := indexOf(p.FilterChain, "tonemap=hable:desat=0")
	formatIdx := indexOf(p.FilterChain, "format=p010le")
	hwuploadIdx := indexOf(p.FilterChain, "hwupload")

	require.NotEqual(t, -1, padIdx)
	require.NotEqual(t, -1, tonemapIdx)
	require.NotEqual(t, -1, formatIdx)
	require.NotEqual(t, -1, hwuploadIdx)

	assert.Less(t, padIdx, tonemapIdx)
	assert.Less(t, tonemapIdx, formatIdx)
	assert.Less(t, formatIdx, hwuploadIdx)
}

func TestBuildSafetyFlagsOnlyForWebOrUnknown(t *testing.T) {
	m := &probe.Metadata{Streams: []probe.Stream{video("h264", 1920, 1080, 4_000_000, "24/1")}}

	webPlan := plan.Build(m, classify.Result{Label: classify.LabelWeb}, nil)
	assert.NotEmpty(t, webPlan.SafetyFlags)

	discPlan := plan.Build(m, classify.Result{Label: classify.LabelDisc}, nil)
	assert.Empty(t, discPlan.SafetyFlags)
}

func TestBuildExcludesConfiguredLanguages(t *testing.T) {
	m := &probe.Metadata{Streams: []probe.Stream{video("h264", 1920, 1080, 4_000_000, "24/1")}}
	p := plan.Build(m, classify.Result{Label: classify.LabelDisc}, []string{"rus", "jpn"})
	assert.Equal(t, []string{"rus", "jpn"}, p.StreamSelection.ExcludeLanguages)
}

func indexOf(s []string, v string) int {
	for i, item := range s {
		if item == v {
			return i
		}
	}
	return -1
}
