package ports

import (
	"context"
	"image"

	"github.com/aitzol/tilescout/internal/core/domain"
)

// EmbeddingModel computes text and image embeddings.
type EmbeddingModel interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedImage(ctx context.Context, imageData []byte, caption string) ([]float32, error)
	Dimensions() int
}

// TileFetcher retrieves raw imagery tile bytes.
type TileFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ViewportCapturer renders the current map view as a raster image.
type ViewportCapturer interface {
	Capture(ctx context.Context, vp domain.Viewport) (image.Image, error)
}

// DetectionRuntime runs the object-detection model.
type DetectionRuntime interface {
	Load(ctx context.Context) error
	Infer(ctx context.Context, data []float32, shape []int) (domain.Tensor, error)
	InputSize() int
	Close() error
}

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishDetections(ctx context.Context, set *domain.DetectionSet) error
	PublishViewport(ctx context.Context, vp *domain.Viewport) error
}

// EventSubscriber subscribes to domain events from a message broker.
type EventSubscriber interface {
	SubscribeViewports(ctx context.Context, handler func(ctx context.Context, vp *domain.Viewport) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
