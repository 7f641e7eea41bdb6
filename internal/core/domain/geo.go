package domain

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Bounds represents a geographic bounding box.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Center returns the midpoint of the bounds.
func (b Bounds) Center() GeoPoint {
	return GeoPoint{Lat: (b.North + b.South) / 2, Lon: (b.East + b.West) / 2}
}

// RegionKind tags the two geometry variants a drawn region can take.
type RegionKind int

const (
	RegionPolygon RegionKind = iota
	RegionMultiPolygon
)

// Region is a user-drawn polygon or multipolygon. It is immutable once
// built; a redraw replaces it wholesale.
type Region struct {
	kind     RegionKind
	polygons orb.MultiPolygon
}

// PolygonRegion builds a Region from a single polygon.
func PolygonRegion(p orb.Polygon) Region {
	return Region{kind: RegionPolygon, polygons: orb.MultiPolygon{p}}
}

// MultiPolygonRegion builds a Region from a multipolygon.
func MultiPolygonRegion(mp orb.MultiPolygon) Region {
	return Region{kind: RegionMultiPolygon, polygons: mp}
}

// RegionFromGeoJSON parses a GeoJSON Polygon or MultiPolygon geometry.
func RegionFromGeoJSON(data json.RawMessage) (Region, error) {
	geom, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return Region{}, fmt.Errorf("parse region geometry: %w", err)
	}
	switch g := geom.Geometry().(type) {
	case orb.Polygon:
		return PolygonRegion(g), nil
	case orb.MultiPolygon:
		return MultiPolygonRegion(g), nil
	default:
		return Region{}, fmt.Errorf("unsupported region geometry %q", geom.Type)
	}
}

// Kind reports whether the region was drawn as a polygon or multipolygon.
func (r Region) Kind() RegionKind { return r.kind }

// IsEmpty reports whether the region has no usable ring.
func (r Region) IsEmpty() bool {
	for _, poly := range r.polygons {
		for _, ring := range poly {
			if len(ring) >= 3 {
				return false
			}
		}
	}
	return true
}

// Bound returns the union bounding box over every coordinate ring of
// every component.
func (r Region) Bound() Bounds {
	b := r.polygons.Bound()
	return Bounds{North: b.Max.Y(), South: b.Min.Y(), East: b.Max.X(), West: b.Min.X()}
}

// Contains reports whether the point falls inside any ring of any
// component (union semantics). Points on a ring edge count as inside.
func (r Region) Contains(p GeoPoint) bool {
	pt := orb.Point{p.Lon, p.Lat}
	for _, poly := range r.polygons {
		for _, ring := range poly {
			if ringContains(ring, pt) {
				return true
			}
		}
	}
	return false
}

// ringContains is a standard ray-casting (edge-crossing parity) test.
// Boundary-touching points are classified as inside.
func ringContains(ring orb.Ring, pt orb.Point) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]

		if onSegment(xi, yi, xj, yj, pt[0], pt[1]) {
			return true
		}

		if (yi > pt[1]) != (yj > pt[1]) {
			cross := (xj-xi)*(pt[1]-yi)/(yj-yi) + xi
			if pt[0] < cross {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// onSegment reports whether (px,py) lies on the segment (x1,y1)-(x2,y2).
func onSegment(x1, y1, x2, y2, px, py float64) bool {
	cross := (px-x1)*(y2-y1) - (py-y1)*(x2-x1)
	if cross != 0 {
		return false
	}
	if px < min(x1, x2) || px > max(x1, x2) {
		return false
	}
	if py < min(y1, y2) || py > max(y1, y2) {
		return false
	}
	return true
}
