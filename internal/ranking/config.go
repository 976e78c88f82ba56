package ranking

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/dshills/songmatch/internal/entity"
)

// Weights scale the four base signals of the final score
type Weights struct {
	Semantic   float64 `koanf:"semantic" json:"semantic" validate:"gte=0"`
	Keyword    float64 `koanf:"keyword" json:"keyword" validate:"gte=0"`
	Popularity float64 `koanf:"popularity" json:"popularity" validate:"gte=0"`
	Clarity    float64 `koanf:"clarity" json:"clarity" validate:"gte=0"`
}

// DefaultWeights returns the seed weights
func DefaultWeights() Weights {
	return Weights{
		Semantic:   0.45,
		Keyword:    0.30,
		Popularity: 0.15,
		Clarity:    0.10,
	}
}

// EntityBoosts is the additive bonus per entity category with tag overlap
type EntityBoosts struct {
	Cities        float64 `koanf:"cities" validate:"gte=0,lte=1"`
	Countries     float64 `koanf:"countries" validate:"gte=0,lte=1"`
	Temporal      float64 `koanf:"temporal" validate:"gte=0,lte=1"`
	Weather       float64 `koanf:"weather" validate:"gte=0,lte=1"`
	Relationships float64 `koanf:"relationships" validate:"gte=0,lte=1"`
	Activities    float64 `koanf:"activities" validate:"gte=0,lte=1"`
	Emotions      float64 `koanf:"emotions" validate:"gte=0,lte=1"`
	Colors        float64 `koanf:"colors" validate:"gte=0,lte=1"`
	Numbers       float64 `koanf:"numbers" validate:"gte=0,lte=1"`
}

// For returns the bonus for category c
func (b EntityBoosts) For(c entity.Category) float64 {
	switch c {
	case entity.Cities:
		return b.Cities
	case entity.Countries:
		return b.Countries
	case entity.Temporal:
		return b.Temporal
	case entity.Weather:
		return b.Weather
	case entity.Relationships:
		return b.Relationships
	case entity.Activities:
		return b.Activities
	case entity.Emotions:
		return b.Emotions
	case entity.Colors:
		return b.Colors
	case entity.Numbers:
		return b.Numbers
	}
	return 0
}

// Config holds combiner and reranker settings
type Config struct {
	Weights Weights `koanf:"weights"`
	// MoodBoost is a multiplier-style factor; a song aliasing the dominant
	// mood gains MoodBoost-1
	MoodBoost         float64      `koanf:"mood_boost" validate:"gte=1,lte=2"`
	RepetitionPenalty float64      `koanf:"repetition_penalty" validate:"gt=0"`
	EntityBoosts      EntityBoosts `koanf:"entity_boosts"`
	DefaultLimit      int          `koanf:"default_limit" validate:"min=1,max=100"`
}

// DefaultConfig returns the seed configuration
func DefaultConfig() Config {
	return Config{
		Weights:           DefaultWeights(),
		MoodBoost:         1.2,
		RepetitionPenalty: 0.25,
		EntityBoosts: EntityBoosts{
			Cities:        0.10,
			Countries:     0.10,
			Temporal:      0.05,
			Weather:       0.10,
			Relationships: 0.10,
			Activities:    0.15,
			Emotions:      0.15,
			Colors:        0.05,
			Numbers:       0.05,
		},
		DefaultLimit: 10,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid ranking config: %w", err)
	}
	w := c.Weights
	if w.Semantic+w.Keyword+w.Popularity+w.Clarity == 0 {
		return fmt.Errorf("invalid ranking config: all weights are zero")
	}
	return nil
}
