package embedder

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Environment variables consulted by NewFromEnv
const (
	EnvProvider     = "SONGMATCH_EMBEDDER_PROVIDER"
	EnvURL          = "SONGMATCH_EMBEDDER_URL"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
)

// Config holds embedder configuration
type Config struct {
	Provider  string        `koanf:"provider" validate:"required,oneof=local openai http"`
	URL       string        `koanf:"url" validate:"required_if=Provider http,omitempty,url"`
	APIKey    string        `koanf:"api_key"`
	Model     string        `koanf:"model"`
	Dimension int           `koanf:"dimension" validate:"omitempty,min=1"`
	CacheSize int           `koanf:"cache_size" validate:"min=0"`
	Timeout   time.Duration `koanf:"timeout"`
	Breaker   BreakerConfig `koanf:"breaker"`
}

// DefaultConfig selects the local provider
func DefaultConfig() Config {
	return Config{
		Provider:  ProviderLocal,
		Dimension: LocalDimension,
		CacheSize: DefaultCacheSize,
		Timeout:   defaultHTTPTimeout,
		Breaker:   DefaultBreakerConfig(),
	}
}

// New creates an embedder with explicit configuration. Remote providers are
// wrapped in a circuit breaker.
func New(cfg Config, logger zerolog.Logger, observe StateObserver) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = LocalDimension
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderLocal, "":
		return NewLocalProvider(cfg.Dimension, cache)
	case ProviderOpenAI:
		p, err := NewOpenAIProvider(cfg.APIKey, cfg.URL, cfg.Model, cfg.Dimension, cache)
		if err != nil {
			return nil, err
		}
		return WithBreaker(p, cfg.Breaker, logger, observe), nil
	case ProviderHTTP:
		model := cfg.Model
		if model == "" {
			model = DefaultHTTPModel
		}
		p, err := NewHTTPProvider(HTTPConfig{
			Format:    FormatInputs,
			URL:       cfg.URL,
			APIKey:    cfg.APIKey,
			Model:     model,
			Dimension: cfg.Dimension,
			Timeout:   cfg.Timeout,
		}, cache)
		if err != nil {
			return nil, err
		}
		return WithBreaker(p, cfg.Breaker, logger, observe), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// NewFromEnv creates an embedder from environment variables:
//  1. SONGMATCH_EMBEDDER_PROVIDER (local, openai, http)
//  2. SONGMATCH_EMBEDDER_URL set: http
//  3. OPENAI_API_KEY set: openai
//  4. otherwise local
func NewFromEnv(logger zerolog.Logger) (Embedder, error) {
	cfg := DefaultConfig()
	cfg.Provider = DetectProvider()
	cfg.URL = os.Getenv(EnvURL)
	if cfg.Provider == ProviderOpenAI {
		cfg.APIKey = os.Getenv(EnvOpenAIAPIKey)
	}
	return New(cfg, logger, nil)
}

// DetectProvider returns the provider NewFromEnv would use
func DetectProvider() string {
	if provider := os.Getenv(EnvProvider); provider != "" {
		return strings.ToLower(provider)
	}
	if os.Getenv(EnvURL) != "" {
		return ProviderHTTP
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	return ProviderLocal
}
