package pipeline

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config tunes request handling
type Config struct {
	// Timeout bounds the signal stages of one request
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
	// SemanticCandidates is the k passed to the semantic searcher
	SemanticCandidates int `koanf:"semantic_candidates" validate:"min=1,max=500"`
	// MaxK caps the number of songs a caller may ask for
	MaxK int `koanf:"max_k" validate:"min=1,max=100"`
	// FallbackLimit is how many popular songs back an empty result
	FallbackLimit int `koanf:"fallback_limit" validate:"min=1,max=100"`
}

// DefaultConfig returns the documented defaults
func DefaultConfig() Config {
	return Config{
		Timeout:            2 * time.Second,
		SemanticCandidates: 20,
		MaxK:               50,
		FallbackLimit:      10,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid pipeline config: %w", err)
	}
	return nil
}
