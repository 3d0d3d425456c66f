package device

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

func decodeMJPEG(data []byte) (image.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("device: decode mjpeg: %w", err)
	}
	return img, nil
}

// decodeYUYV converts packed 4:2:2 (Y0 U Y1 V) into a new image.YCbCr.
func decodeYUYV(data []byte, width, height int) (image.Image, error) {
	if width <= 0 || height <= 0 || width%2 != 0 {
		return nil, fmt.Errorf("device: bad yuyv geometry %dx%d", width, height)
	}
	if len(data) < width*height*2 {
		return nil, fmt.Errorf("device: short yuyv frame: %d bytes for %dx%d", len(data), width, height)
	}

	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio422)
	for y := 0; y < height; y++ {
		row := data[y*width*2 : (y+1)*width*2]
		yOff := y * img.YStride
		cOff := y * img.CStride
		for x := 0; x < width/2; x++ {
			px := row[x*4 : x*4+4]
			img.Y[yOff+2*x] = px[0]
			img.Cb[cOff+x] = px[1]
			img.Y[yOff+2*x+1] = px[2]
			img.Cr[cOff+x] = px[3]
		}
	}
	return img, nil
}
