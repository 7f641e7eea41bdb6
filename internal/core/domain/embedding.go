package domain

// EmbeddingRecord is one stored vector plus the tile metadata payload.
// Records live in a session-scoped collection: created, queried, and
// deleted within a single search session.
type EmbeddingRecord struct {
	ID      uint64    `json:"id"`
	Vector  []float32 `json:"vector"`
	Tile    Tile      `json:"tile"`
	Caption string    `json:"caption"`
}

// TileFailure records a single tile that failed to fetch or embed.
// Failures are collected, never fatal to the batch.
type TileFailure struct {
	URL string `json:"url"`
	Err string `json:"error"`
}

// IngestResult summarises one ingestion run.
type IngestResult struct {
	CollectionID string        `json:"id"`
	Count        int           `json:"size"`
	Failures     []TileFailure `json:"failures,omitempty"`
}

// RankedTile is a tile annotated with its similarity to the query.
type RankedTile struct {
	Tile    Tile    `json:"tile"`
	Caption string  `json:"caption"`
	Score   float64 `json:"score"`
}
