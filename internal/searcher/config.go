package searcher

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/dshills/songmatch/internal/embedder"
)

// StrategyName selects a ranking strategy
type StrategyName string

const (
	StrategyMetaOnly          StrategyName = "meta_only"
	StrategyMetaAboutness     StrategyName = "meta_aboutness"
	StrategyMetaEmotionMoment StrategyName = "meta_emotion_moment"
)

// AboutnessWeights weight the two-signal union
type AboutnessWeights struct {
	Meta  float64 `koanf:"meta" validate:"gte=0"`
	About float64 `koanf:"about" validate:"gte=0"`
}

// EmotionMomentWeights weight the three-signal union
type EmotionMomentWeights struct {
	Meta    float64 `koanf:"meta" validate:"gte=0"`
	Emotion float64 `koanf:"emotion" validate:"gte=0"`
	Moment  float64 `koanf:"moment" validate:"gte=0"`
}

// Config holds searcher settings. It is fixed once the searcher is built.
type Config struct {
	Dimension     int          `koanf:"dimension" validate:"min=1"`
	MinSimilarity float64      `koanf:"min_similarity" validate:"gte=0,lte=1"`
	Strategy      StrategyName `koanf:"strategy" validate:"oneof=meta_only meta_aboutness meta_emotion_moment"`
	// LegCandidates caps each leg of the union strategies
	LegCandidates int     `koanf:"leg_candidates" validate:"min=1"`
	TagBoost      float64 `koanf:"tag_boost" validate:"gte=0,lte=1"`

	Aboutness     AboutnessWeights       `koanf:"aboutness"`
	EmotionMoment EmotionMomentWeights   `koanf:"emotion_moment"`
	Breaker       embedder.BreakerConfig `koanf:"breaker"`
}

// DefaultConfig returns the baseline meta-only configuration
func DefaultConfig() Config {
	return Config{
		Dimension:     embedder.LocalDimension,
		MinSimilarity: 0.3,
		Strategy:      StrategyMetaOnly,
		LegCandidates: 50,
		TagBoost:      0.05,
		Aboutness:     AboutnessWeights{Meta: 0.6, About: 0.4},
		EmotionMoment: EmotionMomentWeights{Meta: 0.5, Emotion: 0.3, Moment: 0.2},
		Breaker:       embedder.DefaultBreakerConfig(),
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid searcher config: %w", err)
	}
	if c.Aboutness.Meta+c.Aboutness.About == 0 {
		return fmt.Errorf("invalid searcher config: aboutness weights are all zero")
	}
	if c.EmotionMoment.Meta+c.EmotionMoment.Emotion+c.EmotionMoment.Moment == 0 {
		return fmt.Errorf("invalid searcher config: emotion_moment weights are all zero")
	}
	return nil
}
