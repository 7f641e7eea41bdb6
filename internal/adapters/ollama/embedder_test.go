package ollama_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aitzol/tilescout/internal/adapters/ollama"
)

type recordedChat struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string   `json:"role"`
		Content string   `json:"content"`
		Images  []string `json:"images"`
	} `json:"messages"`
}

type recordedEmbed struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

func fakeOllama(t *testing.T, chat *recordedChat, embed *recordedEmbed) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat":
			if err := json.NewDecoder(r.Body).Decode(chat); err != nil {
				t.Errorf("decode chat request: %v", err)
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"model":   chat.Model,
				"message": map[string]string{"role": "assistant", "content": "a harbor with moored vessels"},
				"done":    true,
			})
		case "/api/embed":
			if err := json.NewDecoder(r.Body).Decode(embed); err != nil {
				t.Errorf("decode embed request: %v", err)
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"model":      embed.Model,
				"embeddings": [][]float32{{0.1, 0.2, 0.3, 0.4, 0.5}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestEmbedImage_ImageTravelsAsAttachment(t *testing.T) {
	var chat recordedChat
	var embed recordedEmbed
	srv := fakeOllama(t, &chat, &embed)
	defer srv.Close()

	e, err := ollama.NewEmbedder(srv.URL, "nomic-embed-text", "llava", 4)
	if err != nil {
		t.Fatal(err)
	}

	imgBytes := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a}
	vec, err := e.EmbedImage(context.Background(), imgBytes, "satellite tile 10/503/375")
	if err != nil {
		t.Fatalf("embed image: %v", err)
	}

	if chat.Model != "llava" {
		t.Errorf("description model = %q, want the vision model", chat.Model)
	}
	if len(chat.Messages) != 1 {
		t.Fatalf("expected one chat message, got %d", len(chat.Messages))
	}
	msg := chat.Messages[0]
	if len(msg.Images) != 1 || msg.Images[0] != base64.StdEncoding.EncodeToString(imgBytes) {
		t.Errorf("image must travel as a multimodal attachment, got %v", msg.Images)
	}
	if strings.Contains(msg.Content, base64.StdEncoding.EncodeToString(imgBytes)) {
		t.Error("image bytes leaked into the text prompt")
	}
	if !strings.Contains(msg.Content, "satellite tile 10/503/375") {
		t.Errorf("caption missing from prompt: %q", msg.Content)
	}

	if embed.Model != "nomic-embed-text" {
		t.Errorf("embedding model = %q, want the text model", embed.Model)
	}
	if embed.Input != "a harbor with moored vessels" {
		t.Errorf("embedded input = %q, want the vision description", embed.Input)
	}

	// Truncated to the declared dimensionality.
	if len(vec) != 4 {
		t.Errorf("vector length = %d, want 4", len(vec))
	}
}

func TestEmbedText_UsesTextModel(t *testing.T) {
	var chat recordedChat
	var embed recordedEmbed
	srv := fakeOllama(t, &chat, &embed)
	defer srv.Close()

	e, err := ollama.NewEmbedder(srv.URL, "nomic-embed-text", "llava", 8)
	if err != nil {
		t.Fatal(err)
	}

	vec, err := e.EmbedText(context.Background(), "container ships")
	if err != nil {
		t.Fatalf("embed text: %v", err)
	}
	if embed.Model != "nomic-embed-text" || embed.Input != "container ships" {
		t.Errorf("unexpected embed request: %+v", embed)
	}
	if len(vec) != 5 {
		t.Errorf("vector length = %d, want the 5 values served", len(vec))
	}
	if chat.Model != "" {
		t.Error("a text query must not call the vision model")
	}
}
