package ui

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNightLUT(t *testing.T) {
	lut := newNightLUT(1.6)
	assert.Equal(t, uint8(0), lut[0])
	assert.Equal(t, uint8(160), lut[100])
	assert.Equal(t, uint8(255), lut[200], "clamped")

	assert.Equal(t, uint8(100), newNightLUT(1.0)[100])
}

func TestNightLUT_Apply(t *testing.T) {
	lut := newNightLUT(2)

	rgba := image.NewRGBA(image.Rect(0, 0, 2, 1))
	rgba.Set(0, 0, color.RGBA{100, 100, 100, 255})
	rgba.Set(1, 0, color.RGBA{255, 255, 255, 255})

	out := lut.apply(rgba, nil)
	assert.Equal(t, color.RGBA{200, 0, 0, 255}, out.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{255, 0, 0, 255}, out.RGBAAt(1, 0))

	ycc := image.NewYCbCr(image.Rect(0, 0, 2, 1), image.YCbCrSubsampleRatio422)
	ycc.Y[0], ycc.Y[1] = 50, 10
	reused := lut.apply(ycc, out)
	assert.Same(t, &out.Pix[0], &reused.Pix[0], "buffer reused")
	assert.Equal(t, color.RGBA{100, 0, 0, 255}, reused.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{20, 0, 0, 255}, reused.RGBAAt(1, 0))

	gray := image.NewGray(image.Rect(3, 3, 4, 4))
	gray.SetGray(3, 3, color.Gray{Y: 30})
	assert.Equal(t, color.RGBA{60, 0, 0, 255}, lut.apply(gray, nil).RGBAAt(0, 0))
}
