package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// MaxEmbeddingBatch is the largest input array accepted by the embeddings endpoint.
const MaxEmbeddingBatch = 2048

// EmbeddingConfig holds API settings for text-embedding (OpenAI-compatible).
type EmbeddingConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	Dimension int
	BatchSize int
}

// Embeddings sends one request for all inputs and returns vectors in input order.
func (c *OpenAICompatibleClient) Embeddings(ctx context.Context, cfg EmbeddingConfig, inputs []string) ([][]float32, error) {
	reqBody := map[string]interface{}{
		"model": cfg.Model,
		"input": inputs,
	}
	resp, err := c.postJSON(ctx, c.httpClient, cfg.BaseURL, "/embeddings", cfg.APIKey, reqBody)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read embedding response failed: %w", ErrProvider, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: embedding response status %d: %s", ErrProvider, resp.StatusCode, string(raw))
	}

	var parsed struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: parse embedding json failed: %w", ErrProvider, err)
	}
	if len(parsed.Data) != len(inputs) {
		return nil, fmt.Errorf("%w: embedding count %d does not match input count %d", ErrProvider, len(parsed.Data), len(inputs))
	}
	sort.SliceStable(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })

	result := make([][]float32, len(parsed.Data))
	for i := range parsed.Data {
		result[i] = parsed.Data[i].Embedding
	}
	return result, nil
}

// Embedder produces fixed-width vectors, paging large inputs into provider-sized batches.
type Embedder struct {
	client *OpenAICompatibleClient
	cfg    EmbeddingConfig
}

func NewEmbedder(client *OpenAICompatibleClient, cfg EmbeddingConfig) *Embedder {
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxEmbeddingBatch {
		cfg.BatchSize = MaxEmbeddingBatch
	}
	return &Embedder{client: client, cfg: cfg}
}

// Embed returns the embedding vector for the given text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("embedding input is empty")
	}
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one vector per text, in the same order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	result := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(texts))
		batch, err := e.client.Embeddings(ctx, e.cfg, texts[start:end])
		if err != nil {
			return nil, err
		}
		for _, vec := range batch {
			if e.cfg.Dimension > 0 && len(vec) != e.cfg.Dimension {
				return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), e.cfg.Dimension)
			}
		}
		result = append(result, batch...)
	}
	return result, nil
}
