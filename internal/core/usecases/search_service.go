package usecases

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/aitzol/tilescout/internal/core/domain"
	"github.com/aitzol/tilescout/internal/core/ports"
)

// scrollPageSize is the fixed page size for paging a collection out of
// the vector store.
const scrollPageSize = 64

// SearchService ranks a stored collection against a text and/or image
// query. Search is one-shot: the collection is deleted when it returns.
type SearchService struct {
	store    ports.VectorStore
	embedder ports.EmbeddingModel
}

// NewSearchService creates a new SearchService.
func NewSearchService(store ports.VectorStore, embedder ports.EmbeddingModel) *SearchService {
	return &SearchService{store: store, embedder: embedder}
}

// Search retrieves up to size records from the collection and returns
// them ordered by descending cosine similarity to the query, stable on
// ties. At least one of text and image must be supplied.
//
// Once retrieval has started the collection is deleted on every exit
// path; a session collection is never reused.
func (s *SearchService) Search(ctx context.Context, collection string, size int, text string, image []byte) ([]domain.RankedTile, error) {
	if text == "" && len(image) == 0 {
		return nil, domain.ErrInvalidQuery
	}
	if size <= 0 || size > 256 {
		size = 64
	}

	defer func() {
		_ = s.store.DeleteCollection(context.WithoutCancel(ctx), collection)
	}()

	records, err := s.scrollAll(ctx, collection, size)
	if err != nil {
		return nil, fmt.Errorf("%w: load collection: %v", domain.ErrStoreFailure, err)
	}

	query, err := s.queryVector(ctx, text, image)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
	}

	ranked := make([]domain.RankedTile, 0, len(records))
	for _, rec := range records {
		ranked = append(ranked, domain.RankedTile{
			Tile:    rec.Tile,
			Caption: rec.Caption,
			Score:   cosineSimilarity(query, rec.Vector),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked, nil
}

func (s *SearchService) scrollAll(ctx context.Context, collection string, size int) ([]domain.EmbeddingRecord, error) {
	var (
		records []domain.EmbeddingRecord
		cursor  *uint64
	)
	for len(records) < size {
		page, next, err := s.store.Scroll(ctx, collection, scrollPageSize, cursor)
		if err != nil {
			return nil, err
		}
		records = append(records, page...)
		if next == nil {
			break
		}
		cursor = next
	}
	if len(records) > size {
		records = records[:size]
	}
	return records, nil
}

// queryVector concatenates the image embedding before the text embedding
// when both modalities are present. Ranking against single-modality
// collections degrades gracefully: cosine runs over the overlapping
// prefix of the two vectors.
func (s *SearchService) queryVector(ctx context.Context, text string, image []byte) ([]float32, error) {
	var query []float32
	if len(image) > 0 {
		vec, err := s.embedder.EmbedImage(ctx, image, text)
		if err != nil {
			return nil, fmt.Errorf("embed query image: %w", err)
		}
		query = append(query, vec...)
	}
	if text != "" {
		vec, err := s.embedder.EmbedText(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed query text: %w", err)
		}
		query = append(query, vec...)
	}
	return query, nil
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
