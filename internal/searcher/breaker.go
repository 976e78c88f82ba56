package searcher

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/dshills/songmatch/internal/catalog"
	"github.com/dshills/songmatch/internal/embedder"
)

const legBreakerName = "aboutness-legs"

// newLegBreaker guards the auxiliary legs so a broken aboutness table stops
// costing a query per request
func newLegBreaker(cfg embedder.BreakerConfig, logger zerolog.Logger, observe embedder.StateObserver) *gobreaker.CircuitBreaker[[]catalog.Neighbor] {
	if cfg.ConsecutiveFailures == 0 {
		cfg = embedder.DefaultBreakerConfig()
	}
	return gobreaker.NewCircuitBreaker[[]catalog.Neighbor](gobreaker.Settings{
		Name:        legBreakerName,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		// A cancelled request says nothing about the table
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("aboutness circuit state change")
			if observe != nil {
				observe(name, from.String(), to.String())
			}
		},
	})
}

// BreakerState returns the aboutness circuit state name
func (s *Searcher) BreakerState() string {
	return s.breaker.State().String()
}
