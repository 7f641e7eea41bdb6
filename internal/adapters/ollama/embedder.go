// Package ollama implements the embedding model port against a local
// Ollama instance.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

// Embedder computes text and image embeddings through Ollama. Images
// are described by the vision model and embedded by the text model, so
// every vector lives in the text model's embedding space.
type Embedder struct {
	client      *api.Client
	textModel   string
	visionModel string
	dims        int
}

// NewEmbedder creates an Embedder against the given Ollama base URL.
func NewEmbedder(ollamaURL, textModel, visionModel string, dims int) (*Embedder, error) {
	parsed, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url: %w", err)
	}
	base := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}
	return &Embedder{
		client:      api.NewClient(base, http.DefaultClient),
		textModel:   textModel,
		visionModel: visionModel,
		dims:        dims,
	}, nil
}

// EmbedText embeds a text query.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model: e.textModel,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama embed: empty response for model %s", e.textModel)
	}
	return e.truncate(resp.Embeddings[0]), nil
}

// EmbedImage embeds raw image bytes. Ollama's embedding endpoints are
// text-only, so the vision model first describes the tile (the image
// travels as a multimodal attachment) and the description is embedded
// with the text model. Stored tiles and image queries take the same
// path, so their vectors share a space with text queries.
func (e *Embedder) EmbedImage(ctx context.Context, imageData []byte, caption string) ([]float32, error) {
	prompt := "Describe the visible land cover, structures, and features in this satellite image tile in one short paragraph."
	if caption != "" {
		prompt += " Context: " + caption
	}

	stream := false
	var description string
	err := e.client.Chat(ctx, &api.ChatRequest{
		Model: e.visionModel,
		Messages: []api.Message{{
			Role:    "user",
			Content: prompt,
			Images:  []api.ImageData{api.ImageData(imageData)},
		}},
		Stream: &stream,
	}, func(resp api.ChatResponse) error {
		description += resp.Message.Content
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama describe: %w", err)
	}
	if description == "" {
		return nil, fmt.Errorf("ollama describe: empty response for model %s", e.visionModel)
	}

	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model: e.textModel,
		Input: description,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama embed: empty response for model %s", e.textModel)
	}
	return e.truncate(resp.Embeddings[0]), nil
}

// Dimensions returns the declared output dimensionality.
func (e *Embedder) Dimensions() int {
	return e.dims
}

func (e *Embedder) truncate(vec []float32) []float32 {
	if len(vec) > e.dims {
		return vec[:e.dims]
	}
	return vec
}
