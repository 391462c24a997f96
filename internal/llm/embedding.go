package llm

import (
	"context"
	"log/slog"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mpetralia/anima/internal/httpkit"
)

// cacheLimit bounds the in-memory embedding cache. When reached the cache
// is dropped wholesale; entries are cheap to recompute.
const cacheLimit = 8192

// EmbeddingConfig holds embedding client settings.
type EmbeddingConfig struct {
	APIBase   string
	APIKey    string
	Model     string
	Dimension int
	Timeout   time.Duration
}

// EmbeddingClient turns text into fixed-dimension vectors. Results are
// cached in memory keyed by exact text, which also serves as the
// most-recent-assistant-turn cache the retriever relies on. The cache is
// process-local; after a restart the first use recomputes.
type EmbeddingClient struct {
	api    *openai.Client
	model  string
	dim    int
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string][]float32
}

// NewEmbedding creates an embedding client.
func NewEmbedding(cfg EmbeddingConfig, logger *slog.Logger) *EmbeddingClient {
	if logger == nil {
		logger = slog.Default()
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.APIBase != "" {
		oc.BaseURL = cfg.APIBase
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	oc.HTTPClient = httpkit.NewClient(httpkit.WithTimeout(timeout))

	return &EmbeddingClient{
		api:    openai.NewClientWithConfig(oc),
		model:  cfg.Model,
		dim:    cfg.Dimension,
		logger: logger,
		cache:  make(map[string][]float32),
	}
}

// Embed returns the embedding for text, from cache when available.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	if vec, ok := c.cache[text]; ok {
		c.mu.Unlock()
		return vec, nil
	}
	c.mu.Unlock()

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.model),
		Input: []string{text},
	})
	if err != nil {
		return nil, wrapUpstream("create embedding", err)
	}
	if len(resp.Data) == 0 {
		return nil, upstreamf("create embedding: empty response")
	}

	vec := resp.Data[0].Embedding
	if len(vec) != c.dim {
		c.logger.Warn("embedding dimension mismatch",
			"expected", c.dim,
			"got", len(vec),
		)
	}

	c.store(text, vec)
	return vec, nil
}

// EmbedBatch returns embeddings for multiple texts, consulting the cache
// per entry and sending only the misses upstream in a single request.
func (c *EmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	c.mu.Lock()
	for i, text := range texts {
		if vec, ok := c.cache[text]; ok {
			results[i] = vec
		} else {
			missing = append(missing, text)
			missingIdx = append(missingIdx, i)
		}
	}
	c.mu.Unlock()

	if len(missing) == 0 {
		return results, nil
	}

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.model),
		Input: missing,
	})
	if err != nil {
		return nil, wrapUpstream("create embeddings batch", err)
	}
	if len(resp.Data) != len(missing) {
		return nil, upstreamf("create embeddings batch: got %d vectors for %d inputs", len(resp.Data), len(missing))
	}

	for i, item := range resp.Data {
		vec := item.Embedding
		if len(vec) != c.dim {
			c.logger.Warn("embedding dimension mismatch",
				"expected", c.dim,
				"got", len(vec),
			)
		}
		results[missingIdx[i]] = vec
		c.store(missing[i], vec)
	}

	return results, nil
}

func (c *EmbeddingClient) store(text string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.cache) >= cacheLimit {
		c.cache = make(map[string][]float32)
	}
	c.cache[text] = vec
}
