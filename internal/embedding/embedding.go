// Package embedding provides the sentence-embedding service backing
// semantic chunking and corpus retrieval. The model identity is fixed to
// the 384-dimension MiniLM family; embeddings must be deterministic for a
// given input so that similarity gates behave reproducibly.
package embedding

import (
	"context"
	"math"

	openai "github.com/sashabaranov/go-openai"

	"github.com/clauseguard/clauseguard/internal/config"
	"github.com/clauseguard/clauseguard/internal/errors"
	"github.com/clauseguard/clauseguard/internal/logging"
)

// Service embeds text into fixed-dimension vectors.
type Service interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dim() int
}

// Client calls an OpenAI-compatible /embeddings endpoint serving the
// MiniLM sentence model. Read-mostly singleton; safe for concurrent use.
type Client struct {
	client *openai.Client
	model  string
	dim    int
	logger *logging.Logger
}

// NewClient builds the embedding client from configuration.
func NewClient(cfg config.EmbeddingConfig) *Client {
	conf := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		conf.BaseURL = cfg.BaseURL
	}

	dim := cfg.Dim
	if dim == 0 {
		dim = 384
	}

	return &Client{
		client: openai.NewClientWithConfig(conf),
		model:  cfg.Model,
		dim:    dim,
		logger: logging.With("component", "embedding"),
	}
}

// Dim returns the embedding dimensionality.
func (c *Client) Dim() int { return c.dim }

// Embed returns the embedding for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds all texts in one request.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, errors.NetworkError(err, "embedding request failed")
	}

	if len(resp.Data) != len(texts) {
		return nil, errors.InternalError("embedding response count does not match input count")
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// CosineSimilarity returns the cosine similarity of two vectors, 0 for
// degenerate input.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
