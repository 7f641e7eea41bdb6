package usecases

import (
	"strconv"
	"strings"

	"github.com/aitzol/tilescout/internal/core/domain"
	"github.com/aitzol/tilescout/internal/pkg/tilemath"
)

// RasterizeService converts a drawn region into the set of imagery tiles
// covering it at a given zoom.
type RasterizeService struct {
	urlTemplate string
}

// NewRasterizeService creates a new RasterizeService. The template uses
// {z}, {y} and {x} placeholders for the tile address.
func NewRasterizeService(urlTemplate string) *RasterizeService {
	return &RasterizeService{urlTemplate: urlTemplate}
}

// Rasterize returns the tiles whose corners fall inside the region,
// ordered by discovery. Deterministic for identical region and zoom.
//
// Inclusion is a corner-sampling approximation: a tile is kept when any
// of its four corners lies inside any region component. Thin slivers
// crossing a tile without covering a corner are missed; that tradeoff is
// accepted for its predictability.
func (s *RasterizeService) Rasterize(region domain.Region, zoom int) []domain.Tile {
	if region.IsEmpty() {
		return nil
	}

	bbox := region.Bound()
	nw := tilemath.LatLonToTile(bbox.North, bbox.West, zoom)
	se := tilemath.LatLonToTile(bbox.South, bbox.East, zoom)

	seen := make(map[string]struct{})
	var tiles []domain.Tile
	for y := nw.Y; y <= se.Y; y++ {
		for x := nw.X; x <= se.X; x++ {
			idx := domain.TileIndex{X: x, Y: y, Zoom: zoom}
			if _, ok := seen[idx.Key()]; ok {
				continue
			}
			seen[idx.Key()] = struct{}{}

			b := tilemath.TileToBounds(idx)
			if !anyCornerInside(region, b) {
				continue
			}
			tiles = append(tiles, domain.Tile{
				Index:     idx,
				Bounds:    b,
				Center:    b.Center(),
				SourceURL: s.tileURL(idx),
			})
		}
	}
	return tiles
}

func anyCornerInside(region domain.Region, b domain.Bounds) bool {
	corners := [4]domain.GeoPoint{
		{Lat: b.North, Lon: b.West},
		{Lat: b.North, Lon: b.East},
		{Lat: b.South, Lon: b.West},
		{Lat: b.South, Lon: b.East},
	}
	for _, c := range corners {
		if region.Contains(c) {
			return true
		}
	}
	return false
}

func (s *RasterizeService) tileURL(idx domain.TileIndex) string {
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(idx.Zoom),
		"{y}", strconv.Itoa(idx.Y),
		"{x}", strconv.Itoa(idx.X),
	)
	return r.Replace(s.urlTemplate)
}
