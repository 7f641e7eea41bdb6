package ports

import (
	"context"

	"github.com/aitzol/tilescout/internal/core/domain"
)

// VectorStore persists tile embeddings in per-session collections.
type VectorStore interface {
	CreateCollection(ctx context.Context, name string, dims int) error
	Upsert(ctx context.Context, collection string, records []domain.EmbeddingRecord) error
	// Scroll pages through a collection in insertion order. A nil offset
	// starts from the beginning; a nil returned cursor means the end.
	Scroll(ctx context.Context, collection string, limit int, offset *uint64) ([]domain.EmbeddingRecord, *uint64, error)
	DeleteCollection(ctx context.Context, name string) error
}

// RunRepository persists pipeline run bookkeeping.
type RunRepository interface {
	Record(ctx context.Context, run *domain.Run) error
	List(ctx context.Context, kind domain.RunKind, limit, offset int) ([]domain.Run, error)
}
