package domain

import "time"

// RunKind distinguishes the two pipeline run types kept for bookkeeping.
type RunKind string

const (
	RunIngest    RunKind = "ingest"
	RunDetection RunKind = "detection"
)

// Run is one recorded pipeline execution.
type Run struct {
	ID           string    `json:"id"`
	Kind         RunKind   `json:"kind"`
	CollectionID string    `json:"collection_id,omitempty"`
	TileCount    int       `json:"tile_count"`
	FailedCount  int       `json:"failed_count"`
	Detections   int       `json:"detections"`
	CreatedAt    time.Time `json:"created_at"`
}
