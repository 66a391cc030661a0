// Package probe invokes the external probe tool and parses its
// structured output into an in-memory metadata record.
package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// StreamKind is the coarse type of a probed stream.
type StreamKind string

const (
	StreamVideo    StreamKind = "video"
	StreamAudio    StreamKind = "audio"
	StreamSubtitle StreamKind = "subtitle"
	StreamOther    StreamKind = "other"
)

// Stream is one media stream inside a container.
type Stream struct {
	Index          int
	Kind           StreamKind
	Codec          string
	Language       string
	PixelFormat    string
	BitDepthTag    int
	ColorTransfer  string
	ColorPrimaries string
	AvgFrameRate   string
	RFrameRate     string
	Width          int
	Height         int
	BitrateBPS     int64
	Tags           map[string]string
	Default        bool
}

// Metadata is the parsed result of probing one media file.
type Metadata struct {
	ContainerFormat string
	MuxerTag        string
	DurationSeconds float64
	BitrateBPS      int64
	Tags            map[string]string
	Streams         []Stream
}

// VideoStreams returns every video stream, in probe order.
func (m *Metadata) VideoStreams() []Stream {
	var out []Stream
	for _, s := range m.Streams {
		if s.Kind == StreamVideo {
			out = append(out, s)
		}
	}
	return out
}

// PrimaryVideoStream returns the default-disposition video stream, or the
// first video stream if none is marked default. Returns false if the
// source has no video stream at all.
func (m *Metadata) PrimaryVideoStream() (Stream, bool) {
	videos := m.VideoStreams()
	if len(videos) == 0 {
		return Stream{}, false
	}
	for _, v := range videos {
		if v.Default {
			return v, true
		}
	}
	return videos[0], true
}

func (m *Metadata) countKind(kind StreamKind) int {
	n := 0
	for _, s := range m.Streams {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

// AudioStreamCount returns the number of audio streams.
func (m *Metadata) AudioStreamCount() int { return m.countKind(StreamAudio) }

// SubtitleStreamCount returns the number of subtitle streams.
func (m *Metadata) SubtitleStreamCount() int { return m.countKind(StreamSubtitle) }

// DetectBitDepth examines the explicit bit-depth field, then the
// pixel-format name, then HDR-implies-10-bit, defaulting to 8-bit if
// nothing matches.
func DetectBitDepth(v Stream) int {
	if v.BitDepthTag == 10 || v.BitDepthTag == 12 {
		return 10
	}
	if v.BitDepthTag == 8 {
		return 8
	}
	pf := strings.ToLower(v.PixelFormat)
	if strings.Contains(pf, "10") || strings.Contains(pf, "p010") {
		return 10
	}
	if IsHDR(v) {
		return 10
	}
	return 8
}

// IsHDR reports whether a video stream's color transfer names a PQ or
// HLG transfer.
func IsHDR(v Stream) bool {
	t := strings.ToLower(v.ColorTransfer)
	return strings.Contains(t, "smpte2084") || strings.Contains(t, "pq") || strings.Contains(t, "arib-std-b67") || strings.Contains(t, "hlg")
}

var dvTagMarkers = []string{"dolby", "dovi", "dvcl", "dvhe", "dvh1"}

// HasDolbyVision checks three signals: color transfer naming
// smpte2094/st2094, a tag key or value containing a DV marker, or a
// codec name containing dovi/dolby. Pure and deterministic: repeated
// calls on the same Metadata always agree.
func HasDolbyVision(m *Metadata) bool {
	for _, v := range m.VideoStreams() {
		t := strings.ToLower(v.ColorTransfer)
		if strings.Contains(t, "smpte2094") || strings.Contains(t, "st2094") {
			return true
		}
		codec := strings.ToLower(v.Codec)
		if strings.Contains(codec, "dovi") || strings.Contains(codec, "dolby") {
			return true
		}
		for k, val := range v.Tags {
			lk, lv := strings.ToLower(k), strings.ToLower(val)
			for _, marker := range dvTagMarkers {
				if strings.Contains(lk, marker) || strings.Contains(lv, marker) {
					return true
				}
			}
		}
	}
	return false
}

// --- external tool invocation ---

type probeJSON struct {
	Format  formatJSON   `json:"format"`
	Streams []streamJSON `json:"streams"`
}

type formatJSON struct {
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	BitRate    string            `json:"bit_rate"`
	Tags       map[string]string `json:"tags"`
}

type streamJSON struct {
	Index             int               `json:"index"`
	CodecName         string            `json:"codec_name"`
	CodecType         string            `json:"codec_type"`
	Width             int               `json:"width"`
	Height            int               `json:"height"`
	PixFmt            string            `json:"pix_fmt"`
	AvgFrameRate      string            `json:"avg_frame_rate"`
	RFrameRate        string            `json:"r_frame_rate"`
	BitRate           string            `json:"bit_rate"`
	BitsPerRawSample  flexInt           `json:"bits_per_raw_sample"`
	ColorTransfer     string            `json:"color_transfer"`
	ColorPrimaries    string            `json:"color_primaries"`
	Disposition       map[string]int    `json:"disposition"`
	Tags              map[string]string `json:"tags"`
}

// flexInt unmarshals ints represented as either JSON numbers or strings,
// which ffprobe-shaped tools do inconsistently.
type flexInt int

func (fi *flexInt) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*fi = 0
		return nil
	}
	var i int
	if err := json.Unmarshal(data, &i); err == nil {
		*fi = flexInt(i)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			*fi = 0
			return nil
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid integer %q: %w", s, err)
		}
		*fi = flexInt(v)
		return nil
	}
	return fmt.Errorf("invalid integer JSON: %s", data)
}

// Prober invokes an external probe tool (ffprobe-compatible JSON output)
// with a bounded timeout.
type Prober struct {
	ProbePath string
	Timeout   time.Duration
}

// New returns a Prober bound to the given tool path.
func New(probePath string, timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Prober{ProbePath: probePath, Timeout: timeout}
}

// Probe runs the external tool against path and parses its output.
// Fails with a probe error on non-zero exit or unparsable output.
func (p *Prober) Probe(ctx context.Context, path string) (*Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.ProbePath,
		"-hide_banner",
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("probe error: %s: %w: %s", p.ProbePath, err, stderr.String())
	}

	var raw probeJSON
	if err := json.Unmarshal(stdout.Bytes(), &raw); err != nil {
		return nil, fmt.Errorf("probe error: unparsable output for %s: %w", path, err)
	}

	return fromJSON(raw), nil
}

func fromJSON(raw probeJSON) *Metadata {
	duration, _ := strconv.ParseFloat(raw.Format.Duration, 64)
	bitrate, _ := strconv.ParseInt(raw.Format.BitRate, 10, 64)

	md := &Metadata{
		ContainerFormat: raw.Format.FormatName,
		MuxerTag:        raw.Format.Tags["encoder"],
		DurationSeconds: duration,
		BitrateBPS:      bitrate,
		Tags:            raw.Format.Tags,
	}

	for _, s := range raw.Streams {
		kind := StreamOther
		switch s.CodecType {
		case "video":
			kind = StreamVideo
		case "audio":
			kind = StreamAudio
		case "subtitle":
			kind = StreamSubtitle
		}
		sbr, _ := strconv.ParseInt(s.BitRate, 10, 64)
		lang := ""
		if s.Tags != nil {
			lang = s.Tags["language"]
		}
		md.Streams = append(md.Streams, Stream{
			Index:          s.Index,
			Kind:           kind,
			Codec:          s.CodecName,
			Language:       lang,
			PixelFormat:    s.PixFmt,
			BitDepthTag:    int(s.BitsPerRawSample),
			ColorTransfer:  s.ColorTransfer,
			ColorPrimaries: s.ColorPrimaries,
			AvgFrameRate:   s.AvgFrameRate,
			RFrameRate:     s.RFrameRate,
			Width:          s.Width,
			Height:         s.Height,
			BitrateBPS:     sbr,
			Tags:           s.Tags,
			Default:        s.Disposition["default"] == 1,
		})
	}
	return md
}
