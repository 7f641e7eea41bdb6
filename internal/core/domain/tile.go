package domain

import "fmt"

// TileIndex addresses a slippy-map tile: 0 <= X,Y < 2^Zoom.
type TileIndex struct {
	X    int `json:"x"`
	Y    int `json:"y"`
	Zoom int `json:"zoom"`
}

// Key returns the deduplication key used during rasterization.
func (t TileIndex) Key() string {
	return fmt.Sprintf("%d-%d-%d", t.X, t.Y, t.Zoom)
}

// Tile is one imagery tile selected by the rasterizer. Tiles are values:
// downstream stages annotate copies, never the original.
type Tile struct {
	Index     TileIndex `json:"index"`
	Bounds    Bounds    `json:"bounds"`
	Center    GeoPoint  `json:"center"`
	SourceURL string    `json:"source_url"`
}

// Caption returns a short human-readable description stored alongside the
// tile's embedding so search results carry context without recomputation.
func (t Tile) Caption() string {
	return fmt.Sprintf("satellite tile %d/%d/%d centered at %.5f, %.5f",
		t.Index.Zoom, t.Index.X, t.Index.Y, t.Center.Lat, t.Center.Lon)
}
