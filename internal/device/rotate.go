package device

import (
	"image"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Rotate returns img turned clockwise by degrees (0, 90, 180 or 270). Any
// other value returns img unchanged.
func Rotate(img image.Image, degrees int) image.Image {
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	minX, minY := float64(b.Min.X), float64(b.Min.Y)

	var (
		m   f64.Aff3
		dst *image.RGBA
	)
	switch degrees {
	case 90:
		m = f64.Aff3{0, -1, h + minY, 1, 0, -minX}
		dst = image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
	case 180:
		m = f64.Aff3{-1, 0, w + minX, 0, -1, h + minY}
		dst = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	case 270:
		m = f64.Aff3{0, 1, -minY, -1, 0, w + minX}
		dst = image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
	default:
		return img
	}

	draw.NearestNeighbor.Transform(dst, m, img, b, draw.Src, nil)
	return dst
}
