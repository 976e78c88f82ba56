package searcher

import (
	"context"

	"github.com/dshills/songmatch/internal/embedder"
)

// HealthReport describes whether semantic search can serve requests
type HealthReport struct {
	Healthy       bool            `json:"healthy"`
	Embedder      embedder.Status `json:"embedder"`
	EligibleSongs int             `json:"eligible_songs"`
	Strategy      StrategyName    `json:"strategy"`
	Breaker       string          `json:"aboutness_breaker"`
	Detail        string          `json:"detail,omitempty"`
}

// Health is healthy only when the embedder is available and at least one
// song has a metadata vector
func (s *Searcher) Health(ctx context.Context) HealthReport {
	report := HealthReport{
		Embedder: s.embedder.Status(ctx),
		Strategy: s.strategy.Name(),
		Breaker:  s.BreakerState(),
	}

	stats, err := s.store.Stats(ctx)
	if err != nil {
		report.Detail = "catalog unavailable: " + err.Error()
		return report
	}
	report.EligibleSongs = stats.EligibleSongs

	switch {
	case !report.Embedder.Available:
		report.Detail = "embedder unavailable"
	case stats.EligibleSongs == 0:
		report.Detail = "no songs with metadata vectors"
	default:
		report.Healthy = true
	}
	return report
}
