package embedder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerConfig configures the circuit breaker around a remote embedder
type BreakerConfig struct {
	// ConsecutiveFailures opens the circuit
	ConsecutiveFailures uint32 `koanf:"consecutive_failures" validate:"min=1"`
	// OpenTimeout is how long the circuit stays open before a trial request
	OpenTimeout time.Duration `koanf:"open_timeout"`
	// HalfOpenRequests is the number of trial requests allowed
	HalfOpenRequests uint32 `koanf:"half_open_requests"`
}

// DefaultBreakerConfig opens after 5 straight failures for 30s
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		HalfOpenRequests:    1,
	}
}

// StateObserver is notified of breaker transitions
type StateObserver func(name, from, to string)

// BreakerEmbedder short-circuits calls while the wrapped embedder is failing
type BreakerEmbedder struct {
	inner Embedder
	cb    *gobreaker.CircuitBreaker[*BatchEmbeddingResponse]
}

// WithBreaker wraps inner in a circuit breaker
func WithBreaker(inner Embedder, cfg BreakerConfig, logger zerolog.Logger, observe StateObserver) *BreakerEmbedder {
	if cfg.ConsecutiveFailures == 0 {
		cfg = DefaultBreakerConfig()
	}
	name := "embedder-" + inner.Provider()

	cb := gobreaker.NewCircuitBreaker[*BatchEmbeddingResponse](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		// Bad input is the caller's fault, not the service's
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrEmptyText) ||
				errors.Is(err, ErrBatchTooLarge) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("embedder circuit state change")
			if observe != nil {
				observe(name, from.String(), to.String())
			}
		},
	})

	return &BreakerEmbedder{inner: inner, cb: cb}
}

func (b *BreakerEmbedder) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	resp, err := b.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}, Model: req.Model})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}
	return resp.Embeddings[0], nil
}

func (b *BreakerEmbedder) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	resp, err := b.cb.Execute(func() (*BatchEmbeddingResponse, error) {
		return b.inner.GenerateBatch(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return resp, err
}

func (b *BreakerEmbedder) Dimension() int   { return b.inner.Dimension() }
func (b *BreakerEmbedder) Provider() string { return b.inner.Provider() }
func (b *BreakerEmbedder) Model() string    { return b.inner.Model() }

// Status reports unavailable while the circuit is open without touching
// the service
func (b *BreakerEmbedder) Status(ctx context.Context) Status {
	if b.cb.State() == gobreaker.StateOpen {
		return Status{
			Provider:  b.inner.Provider(),
			Model:     b.inner.Model(),
			Dimension: b.inner.Dimension(),
			Detail:    "circuit open",
		}
	}
	return b.inner.Status(ctx)
}

// State returns the breaker state name
func (b *BreakerEmbedder) State() string {
	return b.cb.State().String()
}

func (b *BreakerEmbedder) Close() error {
	return b.inner.Close()
}
