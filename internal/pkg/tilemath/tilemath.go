// Package tilemath provides pure web-Mercator tile arithmetic.
//
// All functions are stateless and deterministic. Inputs are assumed
// finite and in range; out-of-range zoom or indices are a caller
// contract violation, not a handled error.
package tilemath

import (
	"math"

	"github.com/aitzol/tilescout/internal/core/domain"
)

// TileSize is the pixel size of one imagery tile.
const TileSize = 256

// LatLonToTile returns the tile containing the coordinate at the given zoom.
func LatLonToTile(lat, lon float64, zoom int) domain.TileIndex {
	n := math.Exp2(float64(zoom))
	x := int(math.Floor((lon + 180.0) / 360.0 * n))
	latRad := lat * math.Pi / 180.0
	y := int(math.Floor((1.0 - math.Asinh(math.Tan(latRad))/math.Pi) / 2.0 * n))

	// Clamp the poles and the antimeridian onto the edge tile.
	maxTile := int(n) - 1
	if x < 0 {
		x = 0
	} else if x > maxTile {
		x = maxTile
	}
	if y < 0 {
		y = 0
	} else if y > maxTile {
		y = maxTile
	}
	return domain.TileIndex{X: x, Y: y, Zoom: zoom}
}

// TileToBounds returns the geographic bounds of a tile via the inverse
// Mercator formula.
func TileToBounds(t domain.TileIndex) domain.Bounds {
	n := math.Exp2(float64(t.Zoom))
	west := float64(t.X)/n*360.0 - 180.0
	east := float64(t.X+1)/n*360.0 - 180.0
	north := math.Atan(math.Sinh(math.Pi*(1-2*float64(t.Y)/n))) * 180.0 / math.Pi
	south := math.Atan(math.Sinh(math.Pi*(1-2*float64(t.Y+1)/n))) * 180.0 / math.Pi
	return domain.Bounds{North: north, South: south, East: east, West: west}
}

// TileToLatLon returns the northwest corner of a tile.
func TileToLatLon(t domain.TileIndex) domain.GeoPoint {
	b := TileToBounds(t)
	return domain.GeoPoint{Lat: b.North, Lon: b.West}
}

// TileCenter returns the geographic center of a tile.
func TileCenter(t domain.TileIndex) domain.GeoPoint {
	return TileToBounds(t).Center()
}

// TileToPixels returns the global pixel origin of a tile and the world
// size in pixels at its zoom.
func TileToPixels(t domain.TileIndex) (pixelX, pixelY, worldSize float64) {
	worldSize = math.Exp2(float64(t.Zoom)) * TileSize
	return float64(t.X) * TileSize, float64(t.Y) * TileSize, worldSize
}

// LatLonToGlobalPixel projects a coordinate to global pixel space at the
// given zoom (256px tiles).
func LatLonToGlobalPixel(lat, lon float64, zoom int) (px, py float64) {
	n := math.Exp2(float64(zoom))
	px = (lon + 180.0) / 360.0 * n * TileSize
	latRad := lat * math.Pi / 180.0
	py = (1.0 - math.Asinh(math.Tan(latRad))/math.Pi) / 2.0 * n * TileSize
	return px, py
}

// GlobalPixelToLatLon is the inverse of LatLonToGlobalPixel.
func GlobalPixelToLatLon(px, py float64, zoom int) domain.GeoPoint {
	world := math.Exp2(float64(zoom)) * TileSize
	lon := px/world*360.0 - 180.0
	lat := math.Atan(math.Sinh(math.Pi*(1-2*py/world))) * 180.0 / math.Pi
	return domain.GeoPoint{Lat: lat, Lon: lon}
}

// LatToMercatorY maps latitude to the unitless Mercator ordinate used
// for interpolating inside a viewport.
func LatToMercatorY(lat float64) float64 {
	return math.Asinh(math.Tan(lat * math.Pi / 180.0))
}

// MercatorYToLat inverts LatToMercatorY.
func MercatorYToLat(y float64) float64 {
	return math.Atan(math.Sinh(y)) * 180.0 / math.Pi
}

// PointInBounds interpolates a fractional viewport position (u right,
// v down, both in [0,1]) to a coordinate, linear in longitude and in
// Mercator space for latitude.
func PointInBounds(b domain.Bounds, u, v float64) domain.GeoPoint {
	lon := b.West + u*(b.East-b.West)
	mercN := LatToMercatorY(b.North)
	mercS := LatToMercatorY(b.South)
	lat := MercatorYToLat(mercN + v*(mercS-mercN))
	return domain.GeoPoint{Lat: lat, Lon: lon}
}
