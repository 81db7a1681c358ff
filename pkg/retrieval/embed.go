// Package retrieval implements the semantic-search path over tenancy
// documents: a closed intent-label map narrows the search with exact
// metadata filters, the query is embedded, and the vector store returns
// the best matches. A miss falls back to the planner.
package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
	"google.golang.org/genai"
)

// Embedder turns text into a fixed-width float vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// GenAIEmbedder generates embeddings with the Gemini API.
type GenAIEmbedder struct {
	models     genaiEmbedModels
	model      string
	dimensions int
}

type genaiEmbedModels interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// NewGenAIEmbedder builds an embedder with a fresh GenAI client.
func NewGenAIEmbedder(apiKey, model string, dimensions int) (*GenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embedding API key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &GenAIEmbedder{models: client.Models, model: model, dimensions: dimensions}, nil
}

// Embed generates one embedding for the text.
func (e *GenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	result, err := e.models.EmbedContent(ctx, e.model, contents,
		&genai.EmbedContentConfig{TaskType: "RETRIEVAL_QUERY"})
	if err != nil {
		return nil, fmt.Errorf("embed failed: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return result.Embeddings[0].Values, nil
}

// Dimensions returns the configured vector width.
func (e *GenAIEmbedder) Dimensions() int { return e.dimensions }

// CachedEmbedder wraps an Embedder with an in-process cache keyed by the
// text hash. Concurrent requests for the same text collapse into one
// upstream call via singleflight.
type CachedEmbedder struct {
	inner Embedder
	group singleflight.Group

	mu    sync.RWMutex
	cache map[string][]float32
}

// NewCachedEmbedder wraps inner with the cache.
func NewCachedEmbedder(inner Embedder) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: map[string][]float32{}}
}

// Embed returns the cached vector or computes and stores it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := hashText(text)
	c.mu.RLock()
	if v, ok := c.cache[key]; ok {
		c.mu.RUnlock()
		return v, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do(key, func() (any, error) {
		vec, err := c.inner.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cache[key] = vec
		c.mu.Unlock()
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

// Dimensions delegates to the wrapped embedder.
func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
