// Package raster holds image decoding and preprocessing for the
// detection pipeline.
package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// Decode parses tile bytes into an image. Imagery providers serve webp
// with assorted content types, so a webp decode is attempted when the
// registered formats fail.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err == nil {
		return img, nil
	}
	wimg, werr := webp.Decode(bytes.NewReader(data))
	if werr == nil {
		return wimg, nil
	}
	return nil, fmt.Errorf("decode image: %w", err)
}

// EncodePNG renders an image to PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Letterbox is the result of fitting an image onto a square model input:
// the padded canvas plus the transform needed to map model pixels back
// to source pixels.
type Letterbox struct {
	Image *image.NRGBA
	Scale float64
	PadX  int
	PadY  int
}

// LetterboxFit scales src to fit a size x size canvas preserving aspect
// ratio and centers it on neutral gray padding.
func LetterboxFit(src image.Image, size int) Letterbox {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	scale := float64(size) / float64(w)
	if s := float64(size) / float64(h); s < scale {
		scale = s
	}
	newW := int(float64(w) * scale)
	newH := int(float64(h) * scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	resized := imaging.Resize(src, newW, newH, imaging.Lanczos)
	canvas := imaging.New(size, size, color.NRGBA{R: 114, G: 114, B: 114, A: 255})
	padX := (size - newW) / 2
	padY := (size - newH) / 2
	canvas = imaging.Paste(canvas, resized, image.Pt(padX, padY))

	return Letterbox{Image: canvas, Scale: scale, PadX: padX, PadY: padY}
}

// ToSource maps a model-input pixel coordinate back through the
// letterbox transform to source-image pixels.
func (l Letterbox) ToSource(x, y float64) (float64, float64) {
	return (x - float64(l.PadX)) / l.Scale, (y - float64(l.PadY)) / l.Scale
}

// ToCHW converts an NRGBA image to a normalized [3, h, w] float tensor
// in RGB channel order, values scaled to [0, 1].
func ToCHW(img *image.NRGBA) ([]float32, []int) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]float32, 3*h*w)
	plane := h * w

	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			i := y*w + x
			out[i] = float32(row[x*4]) / 255.0
			out[plane+i] = float32(row[x*4+1]) / 255.0
			out[2*plane+i] = float32(row[x*4+2]) / 255.0
		}
	}
	return out, []int{1, 3, h, w}
}
