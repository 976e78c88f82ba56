package embedder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Wire formats understood by HTTPProvider
const (
	// FormatOpenAI: {"input": [...], "model": m} -> {"data": [{"embedding": [...], "index": i}]}
	FormatOpenAI = "openai"
	// FormatInputs: {"inputs": [...]} -> [[...], ...], as served by
	// sentence-transformers and text-embeddings-inference servers
	FormatInputs = "inputs"

	DefaultOpenAIURL = "https://api.openai.com/v1/embeddings"

	defaultHTTPTimeout = 10 * time.Second
	maxErrorBody       = 512
)

// HTTPProvider implements Embedder against a remote embedding service
type HTTPProvider struct {
	name       string
	format     string
	url        string
	apiKey     string
	model      string
	dimension  int
	httpClient *http.Client
	cache      *Cache
	retry      RetryConfig

	mu      sync.Mutex
	probed  bool
	lastErr error
}

// HTTPConfig configures an HTTPProvider
type HTTPConfig struct {
	Name      string // reported by Provider()
	Format    string
	URL       string
	APIKey    string
	Model     string
	Dimension int
	Timeout   time.Duration
	Retry     *RetryConfig
}

// NewHTTPProvider creates a provider for the given wire format
func NewHTTPProvider(cfg HTTPConfig, cache *Cache) (*HTTPProvider, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: embedding service url not set", ErrNoProviderEnabled)
	}
	if cfg.Format != FormatOpenAI && cfg.Format != FormatInputs {
		return nil, fmt.Errorf("%w: unknown wire format %q", ErrUnsupportedModel, cfg.Format)
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = LocalDimension
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	if cfg.Name == "" {
		cfg.Name = ProviderHTTP
	}
	retry := DefaultRetryConfig()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}

	return &HTTPProvider{
		name:       cfg.Name,
		format:     cfg.Format,
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimension:  cfg.Dimension,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      cache,
		retry:      retry,
	}, nil
}

// NewOpenAIProvider creates an OpenAI-compatible provider. The API key falls
// back to OPENAI_API_KEY.
func NewOpenAIProvider(apiKey, url, model string, dimension int, cache *Cache) (*HTTPProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv(EnvOpenAIAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvOpenAIAPIKey)
	}
	if url == "" {
		url = DefaultOpenAIURL
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return NewHTTPProvider(HTTPConfig{
		Name:      ProviderOpenAI,
		Format:    FormatOpenAI,
		URL:       url,
		APIKey:    apiKey,
		Model:     model,
		Dimension: dimension,
	}, cache)
}

func (h *HTTPProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	key := cacheKey(h.modelFor(req.Model), req.Text)
	if h.cache != nil {
		if emb, ok := h.cache.Get(key); ok {
			return emb, nil
		}
	}

	resp, err := h.GenerateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
		Model: req.Model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}

	return resp.Embeddings[0], nil
}

func (h *HTTPProvider) modelFor(override string) string {
	if override != "" {
		return override
	}
	return h.model
}

func (h *HTTPProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	model := h.modelFor(req.Model)

	embeddings, err := retryWithBackoff(ctx, h.retry, func() ([]*Embedding, error) {
		return h.callAPI(ctx, req.Texts, model)
	})
	h.record(err)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	if len(embeddings) != len(req.Texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrProviderFailed, len(embeddings), len(req.Texts))
	}

	for i, emb := range embeddings {
		emb.Hash = cacheKey(model, req.Texts[i])
		if h.cache != nil {
			h.cache.Set(emb.Hash, emb)
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   h.name,
		Model:      model,
	}, nil
}

func (h *HTTPProvider) record(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probed = true
	h.lastErr = err
}

func (h *HTTPProvider) requestBody(texts []string, model string) ([]byte, error) {
	if h.format == FormatInputs {
		return json.Marshal(map[string]interface{}{"inputs": texts})
	}
	body := map[string]interface{}{"input": texts}
	if model != "" {
		body["model"] = model
	}
	return json.Marshal(body)
}

func (h *HTTPProvider) callAPI(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	body, err := h.requestBody(texts, model)
	if err != nil {
		return nil, permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return nil, permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, permanent(apiErr)
		}
		return nil, apiErr
	}

	vectors, respModel, err := h.decode(resp.Body)
	if err != nil {
		return nil, permanent(fmt.Errorf("decode response: %w", err))
	}
	if respModel == "" {
		respModel = model
	}

	embeddings := make([]*Embedding, len(vectors))
	for i, v := range vectors {
		embeddings[i] = &Embedding{
			Vector:    v,
			Dimension: len(v),
			Provider:  h.name,
			Model:     respModel,
		}
	}
	return embeddings, nil
}

func (h *HTTPProvider) decode(r io.Reader) ([][]float32, string, error) {
	if h.format == FormatInputs {
		var vectors [][]float32
		if err := json.NewDecoder(r).Decode(&vectors); err != nil {
			return nil, "", err
		}
		return vectors, "", nil
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}
	if err := json.NewDecoder(r).Decode(&apiResp); err != nil {
		return nil, "", err
	}

	vectors := make([][]float32, len(apiResp.Data))
	for i, d := range apiResp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(vectors) || vectors[idx] != nil {
			idx = i
		}
		vectors[idx] = d.Embedding
	}
	return vectors, apiResp.Model, nil
}

func (h *HTTPProvider) Dimension() int {
	return h.dimension
}

func (h *HTTPProvider) Provider() string {
	return h.name
}

func (h *HTTPProvider) Model() string {
	return h.model
}

// Status reports the outcome of the most recent call, probing once when
// no call has been made yet
func (h *HTTPProvider) Status(ctx context.Context) Status {
	st := Status{Provider: h.name, Model: h.model, Dimension: h.dimension}

	h.mu.Lock()
	probed, lastErr := h.probed, h.lastErr
	h.mu.Unlock()

	if !probed {
		_, lastErr = h.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"status probe"}})
	}
	if lastErr != nil {
		st.Detail = lastErr.Error()
		return st
	}
	st.Available = true
	return st
}

func (h *HTTPProvider) Close() error {
	h.httpClient.CloseIdleConnections()
	return nil
}
