package raster_test

import (
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/aitzol/tilescout/internal/pkg/raster"
)

func TestDecode_PNGRoundTrip(t *testing.T) {
	src := imaging.New(16, 8, color.NRGBA{R: 200, G: 10, B: 10, A: 255})
	data, err := raster.EncodePNG(src)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	img, err := raster.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 16 || img.Bounds().Dy() != 8 {
		t.Errorf("unexpected bounds %v", img.Bounds())
	}
}

func TestDecode_Garbage(t *testing.T) {
	if _, err := raster.Decode([]byte("not an image")); err == nil {
		t.Fatal("expected error for garbage input")
	}
}

func TestLetterboxFit_Wide(t *testing.T) {
	src := imaging.New(200, 100, color.NRGBA{R: 255, A: 255})
	lb := raster.LetterboxFit(src, 100)

	if lb.Image.Bounds().Dx() != 100 || lb.Image.Bounds().Dy() != 100 {
		t.Fatalf("canvas should be 100x100, got %v", lb.Image.Bounds())
	}
	if lb.Scale != 0.5 {
		t.Errorf("scale = %v, want 0.5", lb.Scale)
	}
	if lb.PadX != 0 || lb.PadY != 25 {
		t.Errorf("pad = (%d,%d), want (0,25)", lb.PadX, lb.PadY)
	}

	// Padding rows carry the gray fill, the centered band the source.
	if c := lb.Image.NRGBAAt(50, 5); c.R != 114 {
		t.Errorf("top padding should be gray, got %+v", c)
	}
	if c := lb.Image.NRGBAAt(50, 50); c.R < 200 {
		t.Errorf("center should hold the source red, got %+v", c)
	}
}

func TestLetterbox_ToSource(t *testing.T) {
	src := imaging.New(200, 100, color.NRGBA{A: 255})
	lb := raster.LetterboxFit(src, 100)

	x, y := lb.ToSource(50, 50)
	if x != 100 || y != 50 {
		t.Errorf("ToSource(50,50) = (%v,%v), want (100,50)", x, y)
	}
	x, y = lb.ToSource(0, 25)
	if x != 0 || y != 0 {
		t.Errorf("ToSource(0,25) = (%v,%v), want origin", x, y)
	}
}

func TestToCHW(t *testing.T) {
	img := imaging.New(2, 2, color.NRGBA{R: 255, G: 0, B: 0, A: 255})
	img.SetNRGBA(1, 1, color.NRGBA{R: 0, G: 255, B: 0, A: 255})

	data, shape := raster.ToCHW(img)
	if len(shape) != 4 || shape[0] != 1 || shape[1] != 3 || shape[2] != 2 || shape[3] != 2 {
		t.Fatalf("shape = %v", shape)
	}
	if len(data) != 12 {
		t.Fatalf("len = %d, want 12", len(data))
	}
	// R plane: (0,0) is red.
	if data[0] != 1.0 {
		t.Errorf("R(0,0) = %v, want 1", data[0])
	}
	// G plane: (1,1) is green; index plane+3.
	if data[4+3] != 1.0 {
		t.Errorf("G(1,1) = %v, want 1", data[7])
	}
}

func TestLetterboxFit_TinySource(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	lb := raster.LetterboxFit(src, 64)
	if lb.Image.Bounds().Dx() != 64 {
		t.Errorf("canvas width = %d", lb.Image.Bounds().Dx())
	}
}
