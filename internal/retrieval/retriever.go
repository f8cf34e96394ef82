// Package retrieval finds reference fragments similar to a transcript.
package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"chat-risk-analysis/backend/internal/vectorindex"
	"chat-risk-analysis/backend/pkg/cache"
	"chat-risk-analysis/backend/pkg/logger"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrEmptyEmbedding is returned when the embedder produced no vector.
var ErrEmptyEmbedding = errors.New("embedder returned an empty vector")

// Searcher returns up to k fragment texts ordered by similarity to query.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]string, error)
}

// Embedder turns query text into a vector. embeddings.Embedder satisfies it.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingConfig configures the OpenAI-compatible embedding endpoint.
type EmbeddingConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// NewOpenAIEmbedder creates a langchaingo embedder for the configured endpoint.
func NewOpenAIEmbedder(cfg EmbeddingConfig) (embeddings.Embedder, error) {
	token := cfg.APIKey
	if token == "" {
		token = "none"
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}
	return embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
}

// VectorRetriever embeds queries and searches an in-memory index.
type VectorRetriever struct {
	embedder Embedder
	index    *vectorindex.MemoryIndex
	cache    *cache.Cache[[]float32]
	log      *logger.Logger
}

// NewVectorRetriever wires an embedder to a loaded index. cacheSize <= 0 disables
// the query embedding cache.
func NewVectorRetriever(embedder Embedder, index *vectorindex.MemoryIndex, cacheSize int, log *logger.Logger) *VectorRetriever {
	r := &VectorRetriever{
		embedder: embedder,
		index:    index,
		log:      log.WithComponent("retrieval"),
	}
	if cacheSize > 0 {
		r.cache = cache.New[[]float32](cache.Options{MaxItems: cacheSize})
	}
	return r
}

// Search embeds query and returns up to k fragment texts, most similar first.
func (r *VectorRetriever) Search(ctx context.Context, query string, k int) ([]string, error) {
	if k < 1 {
		return nil, vectorindex.ErrInvalidK
	}

	vec, err := r.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := r.index.Search(vec, k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Text
		r.log.Debug("retrieved fragment", "rank", i+1, "id", h.ID, "score", h.Score)
	}
	return out, nil
}

// IndexSize reports the number of loaded fragments.
func (r *VectorRetriever) IndexSize() int {
	return r.index.Size()
}

// Close releases the embedding cache.
func (r *VectorRetriever) Close() {
	if r.cache != nil {
		r.cache.Close()
	}
}

func (r *VectorRetriever) embed(ctx context.Context, query string) ([]float32, error) {
	key := cacheKey(query)
	if r.cache != nil {
		if vec, ok := r.cache.Get(key); ok {
			return vec, nil
		}
	}

	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vec) == 0 {
		return nil, ErrEmptyEmbedding
	}

	if r.cache != nil {
		r.cache.Set(key, vec)
	}
	return vec, nil
}

func cacheKey(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])
}

// Unavailable is a Searcher used when the index could not be loaded; every
// search fails with the load error.
type Unavailable struct {
	Err error
}

func (u Unavailable) Search(context.Context, string, int) ([]string, error) {
	return nil, fmt.Errorf("vector index unavailable: %w", u.Err)
}
