package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkvreel/av1d/internal/plan"
	"github.com/mkvreel/av1d/internal/store"
	"github.com/mkvreel/av1d/internal/probe"
)

func TestAlreadyModernCodecMatchesCaseInsensitively(t *testing.T) {
	m := &probe.Metadata{Streams: []probe.Stream{
		{Kind: probe.StreamVideo, Codec: "AV1"},
	}}
	assert.True(t, alreadyModernCodec(m, []string{"av1"}))
}

func TestAlreadyModernCodecFalseWhenNoVideoStream(t *testing.T) {
	m := &probe.Metadata{}
	assert.False(t, alreadyModernCodec(m, []string{"av1"}))
}

func TestAlreadyModernCodecFalseWhenNotInList(t *testing.T) {
	m := &probe.Metadata{Streams: []probe.Stream{
		{Kind: probe.StreamVideo, Codec: "h264"},
	}}
	assert.False(t, alreadyModernCodec(m, []string{"av1"}))
}

func TestProbeSnapshotCopiesPrimaryVideoFields(t *testing.T) {
	m := &probe.Metadata{
		ContainerFormat: "matroska,webm",
		BitrateBPS:      5_000_000,
		DurationSeconds: 120.5,
		Streams: []probe.Stream{
			{Kind: probe.StreamVideo, Codec: "hevc", Width: 1920, Height: 1080, PixelFormat: "yuv420p10le"},
			{Kind: probe.StreamAudio, Codec: "truehd"},
		},
	}
	snap := probeSnapshot(m)
	assert.Equal(t, "matroska,webm", snap.ContainerFormat)
	assert.Equal(t, "hevc", snap.VideoCodec)
	assert.Equal(t, 1920, snap.Width)
	assert.Equal(t, 1080, snap.Height)
	assert.Equal(t, 10, snap.BitDepth)
	assert.Equal(t, 1, snap.AudioStreams)
}

func TestPlanSnapshotCopiesFields(t *testing.T) {
	p := plan.Plan{
		SourceBitDepth: 10,
		BitDepth:       10,
		PixelFormat:    plan.PixelFormat10Bit,
		Quality:        24,
		HasDolbyVision: true,
		FilterChain:    []string{"pad=ceil(iw/2)*2:ceil(ih/2)*2"},
	}
	snap := planSnapshot(p)
	assert.Equal(t, 10, snap.SourceBitDepth)
	assert.Equal(t, string(plan.PixelFormat10Bit), snap.PixelFormat)
	assert.Equal(t, 24, snap.Quality)
	assert.True(t, snap.HasDolbyVision)
	assert.Equal(t, []string{"pad=ceil(iw/2)*2:ceil(ih/2)*2"}, snap.FilterChain)
}

func TestCopyThenDeleteMovesContentAndRemovesSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	require.NoError(t, copyThenDelete(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}

func TestIsApprovedForResumeRequiresRunningAndApprovedReason(t *testing.T) {
	assert.True(t, isApprovedForResume(&store.Job{Status: store.StatusRunning, Reason: "approved"}))
	assert.False(t, isApprovedForResume(&store.Job{Status: store.StatusRunning, Reason: "awaiting-approval"}))
	assert.False(t, isApprovedForResume(&store.Job{Status: store.StatusPending, Reason: "approved"}))
}
