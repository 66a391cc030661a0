package encoder_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkvreel/av1d/internal/encoder"
	"github.com/mkvreel/av1d/internal/plan"
	"github.com/mkvreel/av1d/internal/probe"
)

func basicMetadata() *probe.Metadata {
	return &probe.Metadata{
		Streams: []probe.Stream{
			{Kind: probe.StreamVideo, Index: 0, Codec: "hevc", Width: 1920, Height: 1080},
			{Kind: probe.StreamAudio, Index: 1, Codec: "truehd"},
		},
	}
}

func TestBuildArgsFailsWithoutVideoStream(t *testing.T) {
	m := &probe.Metadata{}
	_, err := encoder.BuildArgs(plan.Plan{}, m, "in.mkv", "out.mkv")
	assert.Error(t, err)
}

func TestBuildArgsIncludesInputAndOutputPaths(t *testing.T) {
	p := plan.Plan{Quality: 24, Profile: 1, FilterChain: []string{"format=p010le"}}
	args, err := encoder.BuildArgs(p, basicMetadata(), "/library/movie.mkv", "/tmp/out.mkv")
	require.NoError(t, err)

	assert.Contains(t, args, "/library/movie.mkv")
	assert.Equal(t, "/tmp/out.mkv", args[len(args)-1])
}

func TestBuildArgsEncodesQualityAndProfile(t *testing.T) {
	p := plan.Plan{Quality: 30, Profile: 2, FilterChain: []string{"format=yuv420p"}}
	args, err := encoder.BuildArgs(p, basicMetadata(), "in.mkv", "out.mkv")
	require.NoError(t, err)

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-global_quality:v:0 30")
	assert.Contains(t, joined, "-profile:v:0 2")
	assert.Contains(t, joined, "-c:v:0 av1_vaapi")
}

func TestBuildArgsAppliesSafetyFlags(t *testing.T) {
	p := plan.Plan{
		FilterChain: []string{"format=yuv420p"},
		SafetyFlags: []string{"generate-timestamps", "normalize-negative-timestamps"},
	}
	args, err := encoder.BuildArgs(p, basicMetadata(), "in.mkv", "out.mkv")
	require.NoError(t, err)

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-fflags +genpts")
	assert.Contains(t, joined, "-avoid_negative_ts make_zero")
	assert.NotContains(t, joined, "-copyts")
}

func TestBuildArgsExcludesLanguagesFromAudioAndSubtitleMaps(t *testing.T) {
	p := plan.Plan{
		FilterChain: []string{"format=yuv420p"},
		StreamSelection: plan.StreamSelection{
			CopyAllAudio:     true,
			CopyAllSubtitles: true,
			ExcludeLanguages: []string{"rus"},
		},
	}
	args, err := encoder.BuildArgs(p, basicMetadata(), "in.mkv", "out.mkv")
	require.NoError(t, err)

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-0:a:m:language:rus")
	assert.Contains(t, joined, "-0:s:m:language:rus")
}
