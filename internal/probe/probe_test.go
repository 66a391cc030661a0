package probe

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexIntAcceptsNumberOrString(t *testing.T) {
	var fi flexInt
	require.NoError(t, json.Unmarshal([]byte(`10`), &fi))
	assert.Equal(t, flexInt(10), fi)

	require.NoError(t, json.Unmarshal([]byte(`"10"`), &fi))
	assert.Equal(t, flexInt(10), fi)

	require.NoError(t, json.Unmarshal([]byte(`""`), &fi))
	assert.Equal(t, flexInt(0), fi)

	require.NoError(t, json.Unmarshal([]byte(`null`), &fi))
	assert.Equal(t, flexInt(0), fi)
}

func TestFromJSONMapsStreamsAndKinds(t *testing.T) {
	raw := probeJSON{
		Format: formatJSON{FormatName: "matroska,webm", Duration: "3600.5", BitRate: "9000000", Tags: map[string]string{"encoder": "libmakemkv"}},
		Streams: []streamJSON{
			{Index: 0, CodecName: "hevc", CodecType: "video", Width: 3840, Height: 2160, PixFmt: "yuv420p10le", BitsPerRawSample: 10, Disposition: map[string]int{"default": 1}},
			{Index: 1, CodecName: "truehd", CodecType: "audio", Tags: map[string]string{"language": "eng"}},
			{Index: 2, CodecName: "hdmv_pgs_subtitle", CodecType: "subtitle"},
		},
	}

	m := fromJSON(raw)
	assert.Equal(t, "matroska,webm", m.ContainerFormat)
	assert.Equal(t, "libmakemkv", m.MuxerTag)
	assert.InDelta(t, 3600.5, m.DurationSeconds, 0.001)
	assert.Equal(t, 1, m.AudioStreamCount())
	assert.Equal(t, 1, m.SubtitleStreamCount())

	video, ok := m.PrimaryVideoStream()
	require.True(t, ok)
	assert.Equal(t, "hevc", video.Codec)
	assert.True(t, video.Default)
	assert.Equal(t, 10, DetectBitDepth(video))
}

func TestDetectBitDepthDefaultsToEight(t *testing.T) {
	v := Stream{Codec: "h264", PixelFormat: "yuv420p"}
	assert.Equal(t, 8, DetectBitDepth(v))
}

func TestIsHDRDetectsPQAndHLG(t *testing.T) {
	assert.True(t, IsHDR(Stream{ColorTransfer: "smpte2084"}))
	assert.True(t, IsHDR(Stream{ColorTransfer: "arib-std-b67"}))
	assert.False(t, IsHDR(Stream{ColorTransfer: "bt709"}))
}

func TestHasDolbyVisionDetectsTagMarkers(t *testing.T) {
	m := &Metadata{Streams: []Stream{
		{Kind: StreamVideo, Codec: "hevc", Tags: map[string]string{"DOVI_CONFIGURATION": "dvhe.05"}},
	}}
	assert.True(t, HasDolbyVision(m))
}

func TestHasDolbyVisionFalseWhenNoSignals(t *testing.T) {
	m := &Metadata{Streams: []Stream{
		{Kind: StreamVideo, Codec: "hevc", ColorTransfer: "bt709"},
	}}
	assert.False(t, HasDolbyVision(m))
}
