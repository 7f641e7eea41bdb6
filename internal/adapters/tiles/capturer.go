package tiles

import (
	"context"
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/aitzol/tilescout/internal/core/domain"
	"github.com/aitzol/tilescout/internal/core/ports"
	"github.com/aitzol/tilescout/internal/pkg/raster"
	"github.com/aitzol/tilescout/internal/pkg/tilemath"
)

// MosaicCapturer renders a viewport by stitching the covering tiles
// into one canvas, cropping to the exact pixel window, and scaling to
// the viewport's on-screen size.
type MosaicCapturer struct {
	fetcher     ports.TileFetcher
	urlTemplate string
}

// NewMosaicCapturer creates a MosaicCapturer using the same {z}/{y}/{x}
// URL template as the rasterizer.
func NewMosaicCapturer(fetcher ports.TileFetcher, urlTemplate string) *MosaicCapturer {
	return &MosaicCapturer{fetcher: fetcher, urlTemplate: urlTemplate}
}

// Capture builds the viewport raster. Any missing tile fails the whole
// capture; a partially rendered viewport would silently skew the
// detection back-projection.
func (c *MosaicCapturer) Capture(ctx context.Context, vp domain.Viewport) (image.Image, error) {
	if vp.Width <= 0 || vp.Height <= 0 {
		return nil, fmt.Errorf("viewport has no pixel size")
	}

	tlX, tlY := tilemath.LatLonToGlobalPixel(vp.Bounds.North, vp.Bounds.West, vp.Zoom)
	brX, brY := tilemath.LatLonToGlobalPixel(vp.Bounds.South, vp.Bounds.East, vp.Zoom)
	if brX <= tlX || brY <= tlY {
		return nil, fmt.Errorf("viewport bounds are degenerate")
	}

	minTileX := int(math.Floor(tlX / tilemath.TileSize))
	minTileY := int(math.Floor(tlY / tilemath.TileSize))
	// Ceil-1 keeps an exactly tile-aligned east/south edge from pulling
	// in an extra row of tiles.
	maxTileX := int(math.Ceil(brX/tilemath.TileSize)) - 1
	maxTileY := int(math.Ceil(brY/tilemath.TileSize)) - 1
	if maxTileX < minTileX {
		maxTileX = minTileX
	}
	if maxTileY < minTileY {
		maxTileY = minTileY
	}

	canvas := imaging.New(
		(maxTileX-minTileX+1)*tilemath.TileSize,
		(maxTileY-minTileY+1)*tilemath.TileSize,
		image.Black,
	)
	for ty := minTileY; ty <= maxTileY; ty++ {
		for tx := minTileX; tx <= maxTileX; tx++ {
			data, err := c.fetcher.Fetch(ctx, c.tileURL(tx, ty, vp.Zoom))
			if err != nil {
				return nil, fmt.Errorf("tile %d/%d/%d: %w", vp.Zoom, ty, tx, err)
			}
			img, err := raster.Decode(data)
			if err != nil {
				return nil, fmt.Errorf("tile %d/%d/%d: %w", vp.Zoom, ty, tx, err)
			}
			canvas = imaging.Paste(canvas, img, image.Pt(
				(tx-minTileX)*tilemath.TileSize,
				(ty-minTileY)*tilemath.TileSize,
			))
		}
	}

	// Crop the mosaic to the viewport's exact pixel window.
	cropX := int(math.Round(tlX - float64(minTileX)*tilemath.TileSize))
	cropY := int(math.Round(tlY - float64(minTileY)*tilemath.TileSize))
	cropW := int(math.Round(brX - tlX))
	cropH := int(math.Round(brY - tlY))
	view := imaging.Crop(canvas, image.Rect(cropX, cropY, cropX+cropW, cropY+cropH))

	if view.Bounds().Dx() != vp.Width || view.Bounds().Dy() != vp.Height {
		view = imaging.Resize(view, vp.Width, vp.Height, imaging.Lanczos)
	}
	return view, nil
}

func (c *MosaicCapturer) tileURL(x, y, zoom int) string {
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(zoom),
		"{y}", strconv.Itoa(y),
		"{x}", strconv.Itoa(x),
	)
	return r.Replace(c.urlTemplate)
}
