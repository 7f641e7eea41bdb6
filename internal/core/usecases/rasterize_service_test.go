package usecases_test

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/paulmach/orb"

	"github.com/aitzol/tilescout/internal/core/domain"
	"github.com/aitzol/tilescout/internal/core/usecases"
	"github.com/aitzol/tilescout/internal/pkg/tilemath"
)

const testTileTemplate = "https://tiles.example.com/sat/{z}/{y}/{x}"

func rectRegion(north, south, east, west float64) domain.Region {
	ring := orb.Ring{
		{west, north},
		{east, north},
		{east, south},
		{west, south},
		{west, north},
	}
	return domain.PolygonRegion(orb.Polygon{ring})
}

func TestRasterize_RectangleGrid(t *testing.T) {
	// A rectangle sitting strictly inside the 2x3 block of tiles
	// (512,340)-(513,342) at zoom 10. Every tile in the block has an
	// interior grid corner inside the rectangle; no neighbor does.
	nwBounds := tilemath.TileToBounds(domain.TileIndex{X: 512, Y: 340, Zoom: 10})
	seBounds := tilemath.TileToBounds(domain.TileIndex{X: 513, Y: 342, Zoom: 10})
	const eps = 0.01
	region := rectRegion(nwBounds.North-eps, seBounds.South+eps, seBounds.East-eps, nwBounds.West+eps)

	svc := usecases.NewRasterizeService(testTileTemplate)
	tiles := svc.Rasterize(region, 10)

	if len(tiles) != 6 {
		t.Fatalf("expected 6 tiles, got %d", len(tiles))
	}
	want := map[string]bool{
		"512-340-10": true, "513-340-10": true,
		"512-341-10": true, "513-341-10": true,
		"512-342-10": true, "513-342-10": true,
	}
	for _, tile := range tiles {
		if !want[tile.Index.Key()] {
			t.Errorf("unexpected tile %s", tile.Index.Key())
		}
	}
}

func TestRasterize_Idempotent(t *testing.T) {
	region := rectRegion(43.4, 43.2, -2.8, -3.1)
	svc := usecases.NewRasterizeService(testTileTemplate)

	first := svc.Rasterize(region, 12)
	second := svc.Rasterize(region, 12)

	if len(first) == 0 {
		t.Fatal("expected a non-empty tile set")
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("two runs over the same region produced different tile sets")
	}
}

func TestRasterize_EmptyRegion(t *testing.T) {
	svc := usecases.NewRasterizeService(testTileTemplate)
	if tiles := svc.Rasterize(domain.Region{}, 10); len(tiles) != 0 {
		t.Errorf("empty region should yield no tiles, got %d", len(tiles))
	}

	// A degenerate two-point ring has no usable geometry either.
	degenerate := domain.PolygonRegion(orb.Polygon{orb.Ring{{0, 0}, {1, 1}}})
	if tiles := svc.Rasterize(degenerate, 10); len(tiles) != 0 {
		t.Errorf("degenerate region should yield no tiles, got %d", len(tiles))
	}
}

func TestRasterize_PointCollapse(t *testing.T) {
	// A tiny triangle well inside one tile covers at most that tile.
	region := domain.PolygonRegion(orb.Polygon{orb.Ring{
		{-2.9350, 43.2630},
		{-2.9349, 43.2630},
		{-2.9350, 43.2631},
		{-2.9350, 43.2630},
	}})
	svc := usecases.NewRasterizeService(testTileTemplate)
	tiles := svc.Rasterize(region, 10)
	if len(tiles) > 1 {
		t.Errorf("point-like region should cover at most one tile, got %d", len(tiles))
	}
}

func TestRasterize_FullyContainedTile(t *testing.T) {
	// A rectangle strictly containing tile (503,371,10)'s bounds must
	// include that tile.
	b := tilemath.TileToBounds(domain.TileIndex{X: 503, Y: 371, Zoom: 10})
	region := rectRegion(b.North+0.1, b.South-0.1, b.East+0.1, b.West-0.1)

	svc := usecases.NewRasterizeService(testTileTemplate)
	found := false
	for _, tile := range svc.Rasterize(region, 10) {
		if tile.Index == (domain.TileIndex{X: 503, Y: 371, Zoom: 10}) {
			found = true
		}
	}
	if !found {
		t.Error("tile fully contained by the region was not selected")
	}
}

func TestRasterize_SourceURLTemplate(t *testing.T) {
	b := tilemath.TileToBounds(domain.TileIndex{X: 503, Y: 371, Zoom: 10})
	region := rectRegion(b.North+0.1, b.South-0.1, b.East+0.1, b.West-0.1)

	svc := usecases.NewRasterizeService(testTileTemplate)
	tiles := svc.Rasterize(region, 10)
	if len(tiles) == 0 {
		t.Fatal("expected tiles")
	}
	for _, tile := range tiles {
		want := fmt.Sprintf("https://tiles.example.com/sat/10/%d/%d", tile.Index.Y, tile.Index.X)
		if tile.SourceURL != want {
			t.Errorf("source url = %s, want %s", tile.SourceURL, want)
		}
	}
}
