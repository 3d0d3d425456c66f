package device

import (
	"testing"

	"github.com/blackjack/webcam"
	"github.com/stretchr/testify/assert"
)

func TestChooseSize(t *testing.T) {
	discrete := []webcam.FrameSize{
		{MinWidth: 320, MaxWidth: 320, MinHeight: 240, MaxHeight: 240},
		{MinWidth: 640, MaxWidth: 640, MinHeight: 480, MaxHeight: 480},
		{MinWidth: 1280, MaxWidth: 1280, MinHeight: 720, MaxHeight: 720},
	}
	w, h := chooseSize(discrete, 800, 600)
	assert.Equal(t, [2]uint32{640, 480}, [2]uint32{w, h})

	w, h = chooseSize(discrete, 1920, 1080)
	assert.Equal(t, [2]uint32{1280, 720}, [2]uint32{w, h})

	stepwise := []webcam.FrameSize{
		{MinWidth: 160, MaxWidth: 1920, StepWidth: 16, MinHeight: 120, MaxHeight: 1080, StepHeight: 8},
	}
	w, h = chooseSize(stepwise, 650, 485)
	assert.Equal(t, [2]uint32{640, 480}, [2]uint32{w, h})

	w, h = chooseSize(nil, 640, 480)
	assert.Equal(t, [2]uint32{640, 480}, [2]uint32{w, h})
}

func TestSizeValues(t *testing.T) {
	sizes := []webcam.FrameSize{
		{MinWidth: 320, MaxWidth: 320, MinHeight: 240, MaxHeight: 240},
		{MinWidth: 1280, MaxWidth: 1280, MinHeight: 720, MaxHeight: 720},
		{MinWidth: 320, MaxWidth: 320, MinHeight: 240, MaxHeight: 240},
		{MinWidth: 160, MaxWidth: 1920, StepWidth: 2, MinHeight: 120, MaxHeight: 1080, StepHeight: 2},
	}
	assert.Equal(t, "1280x720,320x240", sizeValues(sizes))
}

func TestFourcc(t *testing.T) {
	assert.Equal(t, "MJPG", fourcc(pixFmtMJPEG))
	assert.Equal(t, "YUYV", fourcc(pixFmtYUYV))
}
