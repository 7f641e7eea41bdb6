package usecases_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aitzol/tilescout/internal/core/domain"
	"github.com/aitzol/tilescout/internal/core/usecases"
)

func storedRecords(vectors ...[]float32) []domain.EmbeddingRecord {
	records := make([]domain.EmbeddingRecord, len(vectors))
	for i, v := range vectors {
		records[i] = domain.EmbeddingRecord{
			ID:      uint64(i),
			Vector:  v,
			Tile:    domain.Tile{Index: domain.TileIndex{X: i, Y: 0, Zoom: 10}},
			Caption: "tile",
		}
	}
	return records
}

func singlePageStore(records []domain.EmbeddingRecord) *mockVectorStore {
	return &mockVectorStore{
		scrollFn: func(ctx context.Context, collection string, limit int, offset *uint64) ([]domain.EmbeddingRecord, *uint64, error) {
			return records, nil, nil
		},
	}
}

func TestSearchService_RanksByDescendingSimilarity(t *testing.T) {
	// Query [1,0] against stored vectors scoring 1.0, 0.0 and ~0.707.
	store := singlePageStore(storedRecords(
		[]float32{1, 0},
		[]float32{0, 1},
		[]float32{1, 1},
	))
	embedder := &mockEmbedder{
		embedTextFn: func(ctx context.Context, text string) ([]float32, error) {
			return []float32{1, 0}, nil
		},
	}

	svc := usecases.NewSearchService(store, embedder)
	results, err := svc.Search(context.Background(), "col", 10, "oil well", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Tile.Index.X != 0 || results[1].Tile.Index.X != 2 || results[2].Tile.Index.X != 1 {
		t.Errorf("wrong order: %v %v %v", results[0].Tile.Index, results[1].Tile.Index, results[2].Tile.Index)
	}
	if results[0].Score <= results[1].Score || results[1].Score <= results[2].Score {
		t.Errorf("scores not strictly descending: %v", results)
	}
}

func TestSearchService_StableOnTies(t *testing.T) {
	store := singlePageStore(storedRecords(
		[]float32{1, 0},
		[]float32{2, 0},
		[]float32{3, 0},
	))
	embedder := &mockEmbedder{
		embedTextFn: func(ctx context.Context, text string) ([]float32, error) {
			return []float32{1, 0}, nil
		},
	}

	svc := usecases.NewSearchService(store, embedder)
	results, err := svc.Search(context.Background(), "col", 10, "anything", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, r := range results {
		if r.Tile.Index.X != i {
			t.Errorf("equal scores must keep retrieval order, position %d holds tile %d", i, r.Tile.Index.X)
		}
	}
}

func TestSearchService_InvalidQuery(t *testing.T) {
	store := &mockVectorStore{}
	svc := usecases.NewSearchService(store, &mockEmbedder{})

	_, err := svc.Search(context.Background(), "col", 10, "", nil)
	if !errors.Is(err, domain.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
	if len(store.deleted) != 0 {
		t.Error("a rejected query must not touch the collection")
	}
}

func TestSearchService_DeletesCollectionAfterSearch(t *testing.T) {
	store := singlePageStore(storedRecords([]float32{1, 0}))
	embedder := &mockEmbedder{
		embedTextFn: func(ctx context.Context, text string) ([]float32, error) {
			return []float32{1, 0}, nil
		},
	}

	svc := usecases.NewSearchService(store, embedder)
	if _, err := svc.Search(context.Background(), "session-1", 10, "query", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "session-1" {
		t.Errorf("collection not deleted after search: %v", store.deleted)
	}
}

func TestSearchService_DeletesCollectionOnRetrievalFailure(t *testing.T) {
	store := &mockVectorStore{
		scrollFn: func(ctx context.Context, collection string, limit int, offset *uint64) ([]domain.EmbeddingRecord, *uint64, error) {
			return nil, nil, errors.New("collection missing")
		},
	}

	svc := usecases.NewSearchService(store, &mockEmbedder{})
	_, err := svc.Search(context.Background(), "session-1", 10, "query", nil)
	if !errors.Is(err, domain.ErrStoreFailure) {
		t.Fatalf("expected ErrStoreFailure, got %v", err)
	}
	if len(store.deleted) != 1 {
		t.Error("cleanup must run even when retrieval fails")
	}
}

func TestSearchService_PaginatedScroll(t *testing.T) {
	all := storedRecords(make([][]float32, 150)...)
	for i := range all {
		all[i].Vector = []float32{1, 0}
	}

	var limits []int
	store := &mockVectorStore{
		scrollFn: func(ctx context.Context, collection string, limit int, offset *uint64) ([]domain.EmbeddingRecord, *uint64, error) {
			limits = append(limits, limit)
			start := 0
			if offset != nil {
				start = int(*offset)
			}
			end := start + limit
			if end >= len(all) {
				return all[start:], nil, nil
			}
			next := uint64(end)
			return all[start:end], &next, nil
		},
	}
	embedder := &mockEmbedder{
		embedTextFn: func(ctx context.Context, text string) ([]float32, error) {
			return []float32{1, 0}, nil
		},
	}

	svc := usecases.NewSearchService(store, embedder)
	results, err := svc.Search(context.Background(), "col", 100, "query", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 100 {
		t.Errorf("expected results truncated to 100, got %d", len(results))
	}
	for _, l := range limits {
		if l != 64 {
			t.Errorf("scroll page size = %d, want fixed 64", l)
		}
	}
	if len(limits) < 2 {
		t.Errorf("expected multiple scroll pages, got %d", len(limits))
	}
}

func TestSearchService_CombinedModalityConcatenates(t *testing.T) {
	// Stored vectors are image||text concatenations. The query must be
	// assembled in the same order for the comparison to line up.
	store := singlePageStore(storedRecords(
		[]float32{1, 0, 0, 1},
		[]float32{0, 1, 1, 0},
	))
	embedder := &mockEmbedder{
		embedImageFn: func(ctx context.Context, imageData []byte, caption string) ([]float32, error) {
			return []float32{1, 0}, nil
		},
		embedTextFn: func(ctx context.Context, text string) ([]float32, error) {
			return []float32{0, 1}, nil
		},
	}

	svc := usecases.NewSearchService(store, embedder)
	results, err := svc.Search(context.Background(), "col", 10, "pier", []byte("img"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].Tile.Index.X != 0 {
		t.Errorf("concatenated query should match record 0 first, got tile %d", results[0].Tile.Index.X)
	}
}

func TestSearchService_EmbeddingFailure(t *testing.T) {
	store := singlePageStore(storedRecords([]float32{1, 0}))
	embedder := &mockEmbedder{
		embedTextFn: func(ctx context.Context, text string) ([]float32, error) {
			return nil, errors.New("model offline")
		},
	}

	svc := usecases.NewSearchService(store, embedder)
	_, err := svc.Search(context.Background(), "col", 10, "query", nil)
	if !errors.Is(err, domain.ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
	if len(store.deleted) != 1 {
		t.Error("cleanup must run even when embedding fails")
	}
}
