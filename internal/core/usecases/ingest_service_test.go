package usecases_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aitzol/tilescout/internal/core/domain"
	"github.com/aitzol/tilescout/internal/core/usecases"
)

// --- Mock VectorStore ---

type mockVectorStore struct {
	createFn func(ctx context.Context, name string, dims int) error
	upsertFn func(ctx context.Context, collection string, records []domain.EmbeddingRecord) error
	scrollFn func(ctx context.Context, collection string, limit int, offset *uint64) ([]domain.EmbeddingRecord, *uint64, error)
	deleteFn func(ctx context.Context, name string) error

	deleted []string
}

func (m *mockVectorStore) CreateCollection(ctx context.Context, name string, dims int) error {
	if m.createFn != nil {
		return m.createFn(ctx, name, dims)
	}
	return nil
}

func (m *mockVectorStore) Upsert(ctx context.Context, collection string, records []domain.EmbeddingRecord) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, collection, records)
	}
	return nil
}

func (m *mockVectorStore) Scroll(ctx context.Context, collection string, limit int, offset *uint64) ([]domain.EmbeddingRecord, *uint64, error) {
	if m.scrollFn != nil {
		return m.scrollFn(ctx, collection, limit, offset)
	}
	return nil, nil, nil
}

func (m *mockVectorStore) DeleteCollection(ctx context.Context, name string) error {
	m.deleted = append(m.deleted, name)
	if m.deleteFn != nil {
		return m.deleteFn(ctx, name)
	}
	return nil
}

// --- Mock EmbeddingModel ---

type mockEmbedder struct {
	embedTextFn  func(ctx context.Context, text string) ([]float32, error)
	embedImageFn func(ctx context.Context, imageData []byte, caption string) ([]float32, error)
	dims         int
}

func (m *mockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if m.embedTextFn != nil {
		return m.embedTextFn(ctx, text)
	}
	return make([]float32, m.Dimensions()), nil
}

func (m *mockEmbedder) EmbedImage(ctx context.Context, imageData []byte, caption string) ([]float32, error) {
	if m.embedImageFn != nil {
		return m.embedImageFn(ctx, imageData, caption)
	}
	return make([]float32, m.Dimensions()), nil
}

func (m *mockEmbedder) Dimensions() int {
	if m.dims == 0 {
		return 4
	}
	return m.dims
}

// --- Mock TileFetcher ---

type mockFetcher struct {
	fetchFn func(ctx context.Context, url string) ([]byte, error)
}

func (m *mockFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, url)
	}
	return []byte("tile"), nil
}

func testTiles(n int) []domain.Tile {
	tiles := make([]domain.Tile, n)
	for i := range tiles {
		tiles[i] = domain.Tile{
			Index:     domain.TileIndex{X: 500 + i, Y: 370, Zoom: 10},
			SourceURL: fmt.Sprintf("https://tiles.example.com/sat/10/370/%d", 500+i),
		}
	}
	return tiles
}

// --- Tests ---

func TestIngestService_OneFailureOutOfFive(t *testing.T) {
	badURL := "https://tiles.example.com/sat/10/370/502"
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, url string) ([]byte, error) {
			if url == badURL {
				return nil, errors.New("boom")
			}
			return []byte("tile"), nil
		},
	}

	var upserted []domain.EmbeddingRecord
	store := &mockVectorStore{
		upsertFn: func(ctx context.Context, collection string, records []domain.EmbeddingRecord) error {
			upserted = records
			return nil
		},
	}

	svc := usecases.NewIngestService(store, &mockEmbedder{}, fetcher, nil)
	result, err := svc.Ingest(context.Background(), testTiles(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Count != 4 {
		t.Errorf("count = %d, want 4", result.Count)
	}
	if len(result.Failures) != 1 || result.Failures[0].URL != badURL {
		t.Errorf("failures = %+v, want the one failed url", result.Failures)
	}
	if len(upserted) != 4 {
		t.Fatalf("stored %d records, want 4", len(upserted))
	}
	for i, rec := range upserted {
		if rec.ID != uint64(i) {
			t.Errorf("record %d has id %d, want positional ids", i, rec.ID)
		}
		if rec.Tile.SourceURL == badURL {
			t.Error("failed tile must never reach the store")
		}
	}
}

func TestIngestService_BatchConcurrencyBound(t *testing.T) {
	var inFlight, peak int32
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, url string) ([]byte, error) {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return []byte("tile"), nil
		},
	}

	svc := usecases.NewIngestService(&mockVectorStore{}, &mockEmbedder{}, fetcher, nil)
	result, err := svc.Ingest(context.Background(), testTiles(12))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Count != 12 {
		t.Errorf("count = %d, want 12", result.Count)
	}
	if p := atomic.LoadInt32(&peak); p > 5 {
		t.Errorf("peak concurrent fetches = %d, want at most 5", p)
	}
}

func TestIngestService_EmptyTileSet(t *testing.T) {
	upsertCalled := false
	store := &mockVectorStore{
		upsertFn: func(ctx context.Context, collection string, records []domain.EmbeddingRecord) error {
			upsertCalled = true
			return nil
		},
	}

	svc := usecases.NewIngestService(store, &mockEmbedder{}, &mockFetcher{}, nil)
	result, err := svc.Ingest(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Count != 0 || result.CollectionID == "" {
		t.Errorf("expected an empty collection, got %+v", result)
	}
	if upsertCalled {
		t.Error("upsert should not run for an empty tile set")
	}
}

func TestIngestService_CreateCollectionFailure(t *testing.T) {
	store := &mockVectorStore{
		createFn: func(ctx context.Context, name string, dims int) error {
			return errors.New("qdrant down")
		},
	}

	svc := usecases.NewIngestService(store, &mockEmbedder{}, &mockFetcher{}, nil)
	_, err := svc.Ingest(context.Background(), testTiles(2))
	if !errors.Is(err, domain.ErrStoreFailure) {
		t.Fatalf("expected ErrStoreFailure, got %v", err)
	}
}

func TestIngestService_UpsertFailureCleansUp(t *testing.T) {
	store := &mockVectorStore{
		upsertFn: func(ctx context.Context, collection string, records []domain.EmbeddingRecord) error {
			return errors.New("write refused")
		},
	}

	svc := usecases.NewIngestService(store, &mockEmbedder{}, &mockFetcher{}, nil)
	_, err := svc.Ingest(context.Background(), testTiles(3))
	if !errors.Is(err, domain.ErrStoreFailure) {
		t.Fatalf("expected ErrStoreFailure, got %v", err)
	}
	if len(store.deleted) != 1 {
		t.Errorf("partially created collection was not cleaned up")
	}
}

func TestIngestService_VectorTruncatedToDims(t *testing.T) {
	embedder := &mockEmbedder{
		dims: 3,
		embedImageFn: func(ctx context.Context, imageData []byte, caption string) ([]float32, error) {
			return []float32{1, 2, 3, 4, 5}, nil
		},
	}

	var upserted []domain.EmbeddingRecord
	store := &mockVectorStore{
		upsertFn: func(ctx context.Context, collection string, records []domain.EmbeddingRecord) error {
			upserted = records
			return nil
		},
	}

	svc := usecases.NewIngestService(store, embedder, &mockFetcher{}, nil)
	if _, err := svc.Ingest(context.Background(), testTiles(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(upserted) != 1 || len(upserted[0].Vector) != 3 {
		t.Errorf("vector not truncated to declared dimensionality: %+v", upserted)
	}
}
