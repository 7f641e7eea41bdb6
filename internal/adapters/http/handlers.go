package http

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/aitzol/tilescout/internal/core/domain"
	"github.com/aitzol/tilescout/internal/pkg/metrics"
)

const (
	minZoom = 0
	maxZoom = 22
)

// RasterizeRegionRequest carries a drawn region as a GeoJSON geometry.
type RasterizeRegionRequest struct {
	Geometry json.RawMessage `json:"geometry"`
	Zoom     int             `json:"zoom"`
}

// RasterizeRegionResponse lists the covering tiles in discovery order.
type RasterizeRegionResponse struct {
	Tiles []domain.Tile `json:"tiles"`
	Count int           `json:"count"`
}

// RasterizeRegionHandler converts a GeoJSON polygon or multipolygon into
// its covering tile set.
func RasterizeRegionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req RasterizeRegionRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if len(req.Geometry) == 0 {
			return errBadRequest(c, "geometry is required")
		}
		if req.Zoom < minZoom || req.Zoom > maxZoom {
			return errBadRequest(c, "zoom must be between 0 and 22")
		}

		region, err := domain.RegionFromGeoJSON(req.Geometry)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		tiles := deps.Rasterizer.Rasterize(region, req.Zoom)
		if tiles == nil {
			tiles = []domain.Tile{}
		}
		return c.JSON(RasterizeRegionResponse{Tiles: tiles, Count: len(tiles)})
	}
}

// IngestEmbeddingsRequest carries either an explicit tile set or a
// region to rasterize first.
type IngestEmbeddingsRequest struct {
	Tiles    []domain.Tile   `json:"tiles,omitempty"`
	Geometry json.RawMessage `json:"geometry,omitempty"`
	Zoom     int             `json:"zoom,omitempty"`
}

// IngestEmbeddingsHandler embeds a tile batch into a fresh collection.
func IngestEmbeddingsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req IngestEmbeddingsRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if len(req.Tiles) == 0 && len(req.Geometry) > 0 {
			if req.Zoom < minZoom || req.Zoom > maxZoom {
				return errBadRequest(c, "zoom must be between 0 and 22")
			}
			region, err := domain.RegionFromGeoJSON(req.Geometry)
			if err != nil {
				return errBadRequest(c, err.Error())
			}
			req.Tiles = deps.Rasterizer.Rasterize(region, req.Zoom)
		}
		if len(req.Tiles) == 0 {
			return errBadRequest(c, "tiles or a non-empty region are required")
		}

		result, err := deps.Ingest.Ingest(c.Context(), req.Tiles)
		if err != nil {
			return errInternal(c, err.Error())
		}

		metrics.EmbeddingsComputed.WithLabelValues("image").Add(float64(result.Count))
		if n := len(result.Failures); n > 0 {
			metrics.IngestItemFailures.Add(float64(n))
		}
		return c.JSON(result)
	}
}

// SearchEmbeddingsRequest is a one-shot query against a stored
// collection. Image is base64-encoded raw image bytes.
type SearchEmbeddingsRequest struct {
	ID    string `json:"id"`
	Size  int    `json:"size"`
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

// SearchEmbeddingsResponse carries the re-ranked tile list.
type SearchEmbeddingsResponse struct {
	Results []domain.RankedTile `json:"results"`
}

// SearchEmbeddingsHandler ranks a collection against a text and/or
// image query, then discards the collection.
func SearchEmbeddingsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req SearchEmbeddingsRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.ID == "" {
			return errBadRequest(c, "collection id is required")
		}

		var image []byte
		if req.Image != "" {
			var err error
			image, err = base64.StdEncoding.DecodeString(req.Image)
			if err != nil {
				return errBadRequest(c, "image must be base64 encoded")
			}
		}

		results, err := deps.Search.Search(c.Context(), req.ID, req.Size, req.Text, image)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrInvalidQuery):
				return errBadRequest(c, "either text or image is required")
			case errors.Is(err, domain.ErrStoreFailure):
				// A missing or unreadable collection is a caller error:
				// session collections are one-shot and never reused.
				return errBadRequest(c, err.Error())
			default:
				return errInternal(c, err.Error())
			}
		}

		if req.Text != "" {
			metrics.EmbeddingsComputed.WithLabelValues("text").Inc()
		}
		if len(image) > 0 {
			metrics.EmbeddingsComputed.WithLabelValues("image").Inc()
		}
		if results == nil {
			results = []domain.RankedTile{}
		}
		return c.JSON(SearchEmbeddingsResponse{Results: results})
	}
}

// CaptureDetectionsHandler runs one detection pass over the posted
// viewport. A pass already in flight is reported, not queued.
func CaptureDetectionsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var vp domain.Viewport
		if err := c.BodyParser(&vp); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if vp.Width <= 0 || vp.Height <= 0 {
			return errBadRequest(c, "viewport width and height are required")
		}
		if vp.Bounds.North <= vp.Bounds.South || vp.Bounds.East <= vp.Bounds.West {
			return errBadRequest(c, "viewport bounds are degenerate")
		}

		start := time.Now()
		set, err := deps.Detect.Detect(c.Context(), vp)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrCaptureBusy):
				metrics.CapturesSkipped.Inc()
				return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
					"status": "skipped",
					"reason": "a detection pass is already in flight",
				})
			case errors.Is(err, domain.ErrModelUnavailable):
				return errUnavailable(c, err.Error())
			default:
				return errInternal(c, err.Error())
			}
		}

		metrics.InferenceDuration.Observe(time.Since(start).Seconds())
		metrics.DetectionsFound.Add(float64(len(set.Detections)))
		return c.JSON(set)
	}
}

// LatestDetectionsHandler returns the most recent detection set.
func LatestDetectionsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		set := deps.Detect.Latest()
		if set == nil {
			return errNotFound(c, "no detection pass has completed yet")
		}
		return c.JSON(set)
	}
}

// ListRunsHandler returns recorded pipeline runs, newest first.
func ListRunsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Runs == nil {
			return errInternal(c, "run bookkeeping not available")
		}

		kind := c.Query("kind")
		switch kind {
		case "", string(domain.RunIngest), string(domain.RunDetection):
		default:
			return errBadRequest(c, "kind must be ingest or detection")
		}

		offset := c.QueryInt("offset", 0)
		limit := c.QueryInt("limit", 50)
		if offset < 0 {
			offset = 0
		}
		if limit <= 0 || limit > 200 {
			limit = 50
		}

		runs, err := deps.Runs.List(c.Context(), domain.RunKind(kind), limit, offset)
		if err != nil {
			return errInternal(c, err.Error())
		}
		if runs == nil {
			runs = []domain.Run{}
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: offset + len(runs)}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: runs, Pagination: pg})
	}
}
