// Package inference implements the detection runtime port against an
// HTTP model-serving sidecar.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aitzol/tilescout/internal/core/domain"
)

// Client drives a model-serving process over HTTP: one load call per
// process lifetime, then synchronous inference calls.
type Client struct {
	baseURL   string
	modelPath string
	inputSize int
	client    *http.Client
}

type loadRequest struct {
	ModelPath string `json:"model_path"`
}

type inferRequest struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

type inferResponse struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
	Error string    `json:"error,omitempty"`
}

// New creates a Client. modelPath names the versioned model artifact on
// the runtime's filesystem; inputSize is the model's square input edge.
func New(baseURL, modelPath string, inputSize int) *Client {
	return &Client{
		baseURL:   baseURL,
		modelPath: modelPath,
		inputSize: inputSize,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// Load asks the runtime to load the model artifact. No retry policy:
// the caller decides what a failed load means.
func (c *Client) Load(ctx context.Context) error {
	body, err := json.Marshal(loadRequest{ModelPath: c.modelPath})
	if err != nil {
		return fmt.Errorf("marshal load request: %w", err)
	}
	resp, err := c.post(ctx, "/v1/models/load", body)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("load model: runtime returned %s: %s", resp.Status, readBody(resp.Body))
	}
	return nil
}

// Infer runs one forward pass over a raw input tensor.
func (c *Client) Infer(ctx context.Context, data []float32, shape []int) (domain.Tensor, error) {
	body, err := json.Marshal(inferRequest{Shape: shape, Data: data})
	if err != nil {
		return domain.Tensor{}, fmt.Errorf("marshal infer request: %w", err)
	}
	resp, err := c.post(ctx, "/v1/infer", body)
	if err != nil {
		return domain.Tensor{}, fmt.Errorf("infer: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.Tensor{}, fmt.Errorf("infer: runtime returned %s: %s", resp.Status, readBody(resp.Body))
	}

	var out inferResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Tensor{}, fmt.Errorf("decode infer response: %w", err)
	}
	if out.Error != "" {
		return domain.Tensor{}, fmt.Errorf("infer: %s", out.Error)
	}
	return domain.Tensor{Shape: out.Shape, Data: out.Data}, nil
}

// InputSize returns the model's square input edge in pixels.
func (c *Client) InputSize() int {
	return c.inputSize
}

// Close is a no-op; the runtime owns the model's lifetime.
func (c *Client) Close() error { return nil }

func (c *Client) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

func readBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return string(bytes.TrimSpace(b))
}
