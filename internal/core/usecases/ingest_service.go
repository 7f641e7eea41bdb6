package usecases

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aitzol/tilescout/internal/core/domain"
	"github.com/aitzol/tilescout/internal/core/ports"
)

// ingestBatchSize bounds concurrent fetch+embed calls. Batches run
// concurrently internally but strictly sequentially with respect to
// each other.
const ingestBatchSize = 5

// IngestService embeds a rasterized tile set into a fresh vector-store
// collection.
type IngestService struct {
	store    ports.VectorStore
	embedder ports.EmbeddingModel
	fetcher  ports.TileFetcher
	runs     ports.RunRepository
}

// NewIngestService creates a new IngestService. runs may be nil when
// bookkeeping is disabled.
func NewIngestService(store ports.VectorStore, embedder ports.EmbeddingModel, fetcher ports.TileFetcher, runs ports.RunRepository) *IngestService {
	return &IngestService{store: store, embedder: embedder, fetcher: fetcher, runs: runs}
}

// Ingest creates a session collection, embeds every tile, and upserts
// the successful ones keyed by their position. Per-tile failures are
// collected on the result, never fatal: the call succeeds as long as
// the collection exists, even with zero stored embeddings.
func (s *IngestService) Ingest(ctx context.Context, tiles []domain.Tile) (*domain.IngestResult, error) {
	collection := uuid.NewString()
	if err := s.store.CreateCollection(ctx, collection, s.embedder.Dimensions()); err != nil {
		return nil, fmt.Errorf("%w: create collection: %v", domain.ErrStoreFailure, err)
	}

	// Indexed by tile position so the stored order matches the
	// rasterizer's discovery order regardless of goroutine timing.
	vectors := make([][]float32, len(tiles))
	errs := make([]error, len(tiles))

	for start := 0; start < len(tiles); start += ingestBatchSize {
		end := start + ingestBatchSize
		if end > len(tiles) {
			end = len(tiles)
		}
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				vectors[i], errs[i] = s.embedTile(ctx, tiles[i])
			}(i)
		}
		wg.Wait()
	}

	var (
		records  []domain.EmbeddingRecord
		failures []domain.TileFailure
	)
	for i, tile := range tiles {
		if errs[i] != nil {
			failures = append(failures, domain.TileFailure{URL: tile.SourceURL, Err: errs[i].Error()})
			continue
		}
		records = append(records, domain.EmbeddingRecord{
			ID:      uint64(len(records)),
			Vector:  vectors[i],
			Tile:    tile,
			Caption: tile.Caption(),
		})
	}

	if len(records) > 0 {
		if err := s.store.Upsert(ctx, collection, records); err != nil {
			_ = s.store.DeleteCollection(ctx, collection)
			return nil, fmt.Errorf("%w: upsert: %v", domain.ErrStoreFailure, err)
		}
	}

	if s.runs != nil {
		_ = s.runs.Record(ctx, &domain.Run{
			ID:           uuid.NewString(),
			Kind:         domain.RunIngest,
			CollectionID: collection,
			TileCount:    len(records),
			FailedCount:  len(failures),
			CreatedAt:    time.Now().UTC(),
		})
	}

	return &domain.IngestResult{
		CollectionID: collection,
		Count:        len(records),
		Failures:     failures,
	}, nil
}

func (s *IngestService) embedTile(ctx context.Context, tile domain.Tile) ([]float32, error) {
	data, err := s.fetcher.Fetch(ctx, tile.SourceURL)
	if err != nil {
		return nil, fmt.Errorf("fetch tile: %w", err)
	}
	vec, err := s.embedder.EmbedImage(ctx, data, tile.Caption())
	if err != nil {
		return nil, fmt.Errorf("embed tile: %w", err)
	}
	if dims := s.embedder.Dimensions(); len(vec) > dims {
		vec = vec[:dims]
	}
	return vec, nil
}
