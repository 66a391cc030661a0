package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mkvreel/av1d/internal/plan"
)

func TestPixelFormatMatches(t *testing.T) {
	assert.True(t, pixelFormatMatches("yuv420p10le", plan.PixelFormat10Bit))
	assert.True(t, pixelFormatMatches("p010le", plan.PixelFormat10Bit))
	assert.False(t, pixelFormatMatches("yuv420p", plan.PixelFormat10Bit))

	assert.True(t, pixelFormatMatches("yuv420p", plan.PixelFormat8Bit))
	assert.False(t, pixelFormatMatches("yuv420p10le", plan.PixelFormat8Bit))
}

func TestParseFrameRate(t *testing.T) {
	assert.InDelta(t, 23.976, parseFrameRate("24000/1001"), 0.001)
	assert.Equal(t, 0.0, parseFrameRate(""))
	assert.Equal(t, 0.0, parseFrameRate("0/1"))
	assert.Equal(t, 0.0, parseFrameRate("not-a-rate"))
}

func TestResultFailMarksNotOK(t *testing.T) {
	res := &Result{OK: true}
	res.fail("bad thing: %d", 1)
	assert.False(t, len(res.Issues) == 0)
	assert.Equal(t, "bad thing: 1", res.Issues[0])
	assert.False(t, res.OK)
}

func TestResultWarnDoesNotAffectOK(t *testing.T) {
	res := &Result{OK: true}
	res.warn("heads up: %s", "foo")
	assert.Equal(t, "heads up: foo", res.Warnings[0])
	assert.True(t, res.OK)
}
