package embedder

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/dshills/songmatch/internal/textnorm"
)

// Provider configuration
const (
	ProviderLocal  = "local"
	ProviderOpenAI = "openai"
	ProviderHTTP   = "http"

	// Default models
	DefaultLocalModel  = "hashed-bow-384"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultHTTPModel   = "all-MiniLM-L6-v2"

	// LocalDimension is the width every provider is configured to produce
	LocalDimension = 384

	DefaultCacheSize = 10000

	// Batch limits
	DefaultBatchSize = 32
	MaxBatchSize     = 100

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// Token weights for the local provider
const (
	surfaceWeight = 1.0
	lemmaWeight   = 0.6
	bigramWeight  = 0.4
)

// LocalProvider embeds text by hashing normalized words into a fixed-width
// signed bag of words. It needs no model files and is deterministic, so it
// serves development, tests and catalogs ingested without a model service.
type LocalProvider struct {
	model     string
	dimension int
	cache     *Cache
}

// NewLocalProvider creates the hashed bag-of-words embedder
func NewLocalProvider(dimension int, cache *Cache) (*LocalProvider, error) {
	if dimension <= 0 {
		dimension = LocalDimension
	}
	return &LocalProvider{
		model:     DefaultLocalModel,
		dimension: dimension,
		cache:     cache,
	}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := cacheKey(l.model, req.Text)
	if l.cache != nil {
		if emb, ok := l.cache.Get(key); ok {
			return emb, nil
		}
	}

	emb := &Embedding{
		Vector:    l.embed(req.Text),
		Dimension: l.dimension,
		Provider:  ProviderLocal,
		Model:     l.model,
		Hash:      key,
	}

	if l.cache != nil {
		l.cache.Set(key, emb)
	}

	return emb, nil
}

// embed hashes surface words, their lemmas and adjacent-word pairs into
// signed buckets and normalizes the result
func (l *LocalProvider) embed(text string) []float32 {
	vector := make([]float32, l.dimension)

	words := textnorm.ContentTokens(text)
	if len(words) == 0 {
		words = textnorm.Tokens(text)
	}
	if len(words) == 0 {
		// Punctuation only: still return a stable non-zero vector
		l.add(vector, text, surfaceWeight)
		return NormalizeVector(vector)
	}

	for i, w := range words {
		l.add(vector, w, surfaceWeight)
		if lemma := textnorm.Lemmatize(w); lemma != w {
			l.add(vector, "lemma:"+lemma, lemmaWeight)
		}
		if i > 0 {
			l.add(vector, words[i-1]+" "+w, bigramWeight)
		}
	}

	return NormalizeVector(vector)
}

func (l *LocalProvider) add(vector []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	idx := int(sum % uint64(l.dimension))
	if sum>>63 == 1 {
		weight = -weight
	}
	vector[idx] += weight
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := l.GenerateEmbedding(ctx, EmbeddingRequest{Text: text, Model: req.Model})
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      l.model,
	}, nil
}

func (l *LocalProvider) Dimension() int {
	return l.dimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

// Status is always available for the in-process provider
func (l *LocalProvider) Status(ctx context.Context) Status {
	return Status{Available: true, Provider: ProviderLocal, Model: l.model, Dimension: l.dimension}
}

func (l *LocalProvider) Close() error {
	return nil
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
