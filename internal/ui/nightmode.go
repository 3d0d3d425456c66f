package ui

import (
	"image"
)

// =============================================================================
// Night Mode Filter
// =============================================================================
// Red-tinted, brightness-enhanced rendering for dark rooms:
//   1. Convert pixel to grayscale luminance (BT.601)
//   2. Apply the configured brightness gain through a LUT (clamped to 255)
//   3. Map the result to the red channel only
// =============================================================================

// nightLUT maps grayscale value -> boosted value.
type nightLUT [256]uint8

func newNightLUT(boost float64) *nightLUT {
	var lut nightLUT
	for i := range lut {
		v := float64(i) * boost
		if v > 255 {
			v = 255
		}
		lut[i] = uint8(v)
	}
	return &lut
}

func luma(r, g, b uint8) uint8 {
	return uint8((299*uint32(r) + 587*uint32(g) + 114*uint32(b)) / 1000)
}

// apply renders src in night mode, reusing dst when it is large enough.
// Fast paths cover *image.RGBA and *image.YCbCr (the V4L2 decoders'
// output); everything else goes through color.Model.
func (lut *nightLUT) apply(src image.Image, dst *image.RGBA) *image.RGBA {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	neededLen := w * h * 4

	if dst != nil && cap(dst.Pix) >= neededLen {
		dst.Pix = dst.Pix[:neededLen]
		dst.Stride = w * 4
		dst.Rect = image.Rect(0, 0, w, h)
	} else {
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
	}

	switch s := src.(type) {
	case *image.RGBA:
		for y := 0; y < h; y++ {
			srcOff := s.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			dstOff := y * dst.Stride
			for x := 0; x < w; x++ {
				lut.put(dst.Pix[dstOff:dstOff+4], luma(s.Pix[srcOff], s.Pix[srcOff+1], s.Pix[srcOff+2]))
				srcOff += 4
				dstOff += 4
			}
		}
	case *image.YCbCr:
		// Luma is already there.
		for y := 0; y < h; y++ {
			dstOff := y * dst.Stride
			for x := 0; x < w; x++ {
				lut.put(dst.Pix[dstOff:dstOff+4], s.Y[s.YOffset(bounds.Min.X+x, bounds.Min.Y+y)])
				dstOff += 4
			}
		}
	default:
		for y := 0; y < h; y++ {
			dstOff := y * dst.Stride
			for x := 0; x < w; x++ {
				r, g, b, _ := src.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
				lut.put(dst.Pix[dstOff:dstOff+4], luma(uint8(r>>8), uint8(g>>8), uint8(b>>8)))
				dstOff += 4
			}
		}
	}
	return dst
}

func (lut *nightLUT) put(px []uint8, gray uint8) {
	px[0] = lut[gray]
	px[1] = 0
	px[2] = 0
	px[3] = 255
}
