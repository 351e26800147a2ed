package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tincomking/tinmem/internal/logging"
)

var log = logging.GetLogger("embedding")

// OllamaClient calls Ollama's /api/embeddings endpoint. It is the one
// concrete Capability implementation this module ships; callers that need
// another provider implement the same interface.
type OllamaClient struct {
	baseURL    string
	model      string
	dimensions int
	httpClient *http.Client
}

// NewOllamaClient returns a client for the given base URL and model.
// dimensions must match what the model actually produces (the store's
// vec0 index is created at this width); there is no way to discover it
// from the API without making a probe call, so the caller supplies it from
// configuration, matching how the teacher hardcodes nomic-embed-text's
// 768 dimensions rather than probing for it.
func NewOllamaClient(baseURL, model string, dimensions int) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	if dimensions <= 0 {
		dimensions = 768
	}
	return &OllamaClient{
		baseURL:    baseURL,
		model:      model,
		dimensions: dimensions,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(embeddingRequest{Model: c.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var out embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(out.Embedding) != c.dimensions {
		log.Warn("embedding returned unexpected dimension", "want", c.dimensions, "got", len(out.Embedding))
	}

	vec := make([]float32, len(out.Embedding))
	for i, v := range out.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

func (c *OllamaClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := c.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed batch item %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

func (c *OllamaClient) Dimensions() int { return c.dimensions }

func (c *OllamaClient) Provider() string { return "ollama:" + c.model }
