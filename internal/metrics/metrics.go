// Package metrics provides Prometheus metrics for the recommendation path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names
const (
	MetricRequestsTotal       = "songmatch_requests_total"
	MetricRequestDuration     = "songmatch_request_duration_seconds"
	MetricStageDuration       = "songmatch_stage_duration_seconds"
	MetricStageErrorsTotal    = "songmatch_stage_errors_total"
	MetricDegradedTotal       = "songmatch_degraded_requests_total"
	MetricCandidatesReturned  = "songmatch_candidates_returned"
	MetricKeywordCacheHits    = "songmatch_keyword_cache_hits"
	MetricKeywordCacheMisses  = "songmatch_keyword_cache_misses"
	MetricBreakerStateChanges = "songmatch_circuit_breaker_transitions_total"
	MetricIngestedSongsTotal  = "songmatch_ingested_songs_total"
)

// Stage labels
const (
	StageKeyword  = "keyword"
	StageSemantic = "semantic"
	StageMood     = "mood"
	StageEntity   = "entity"
	StageRank     = "rank"
	StageFallback = "fallback"
)

// Outcome labels
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeError    = "error"
)

// Metrics holds the collectors. All methods are safe for concurrent use and
// tolerate a nil receiver so components can run without metrics.
type Metrics struct {
	requestsTotal      *prometheus.CounterVec
	requestDuration    prometheus.Histogram
	stageDuration      *prometheus.HistogramVec
	stageErrors        *prometheus.CounterVec
	degradedTotal      *prometheus.CounterVec
	candidatesReturned prometheus.Histogram
	keywordCacheHits   prometheus.Gauge
	keywordCacheMisses prometheus.Gauge
	breakerTransitions *prometheus.CounterVec
	ingestedSongs      *prometheus.CounterVec
}

// NewMetrics creates the collectors without registering them
func NewMetrics() *Metrics {
	return &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRequestsTotal,
				Help: "Recommendation requests by outcome",
			},
			[]string{"outcome"},
		),
		requestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricRequestDuration,
				Help:    "End-to-end recommendation latency in seconds",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricStageDuration,
				Help:    "Per-stage latency in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
			},
			[]string{"stage"},
		),
		stageErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricStageErrorsTotal,
				Help: "Stage failures by stage",
			},
			[]string{"stage"},
		),
		degradedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricDegradedTotal,
				Help: "Requests served without one or more signals, by reason",
			},
			[]string{"reason"},
		),
		candidatesReturned: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricCandidatesReturned,
				Help:    "Number of candidates returned per request",
				Buckets: []float64{0, 1, 3, 5, 10, 20, 50},
			},
		),
		keywordCacheHits: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: MetricKeywordCacheHits,
				Help: "Keyword phrase cache hits since start",
			},
		),
		keywordCacheMisses: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: MetricKeywordCacheMisses,
				Help: "Keyword phrase cache misses since start",
			},
		),
		breakerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricBreakerStateChanges,
				Help: "Circuit breaker state transitions",
			},
			[]string{"name", "from", "to"},
		),
		ingestedSongs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricIngestedSongsTotal,
				Help: "Songs processed by catalog ingestion, by status",
			},
			[]string{"status"},
		),
	}
}

// Register registers all collectors with reg
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all collectors
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.requestsTotal,
		m.requestDuration,
		m.stageDuration,
		m.stageErrors,
		m.degradedTotal,
		m.candidatesReturned,
		m.keywordCacheHits,
		m.keywordCacheMisses,
		m.breakerTransitions,
		m.ingestedSongs,
	}
}

// ObserveRequest records one finished recommendation
func (m *Metrics) ObserveRequest(outcome string, seconds float64, candidates int) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(outcome).Inc()
	m.requestDuration.Observe(seconds)
	if outcome != OutcomeError {
		m.candidatesReturned.Observe(float64(candidates))
	}
}

// ObserveStage records a stage latency sample
func (m *Metrics) ObserveStage(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// IncStageError counts a stage failure
func (m *Metrics) IncStageError(stage string) {
	if m == nil {
		return
	}
	m.stageErrors.WithLabelValues(stage).Inc()
}

// IncDegraded counts a degraded request by reason
func (m *Metrics) IncDegraded(reason string) {
	if m == nil {
		return
	}
	m.degradedTotal.WithLabelValues(reason).Inc()
}

// SetKeywordCache publishes the keyword cache counters
func (m *Metrics) SetKeywordCache(hits, misses int64) {
	if m == nil {
		return
	}
	m.keywordCacheHits.Set(float64(hits))
	m.keywordCacheMisses.Set(float64(misses))
}

// IncBreakerTransition counts a circuit breaker state change
func (m *Metrics) IncBreakerTransition(name, from, to string) {
	if m == nil {
		return
	}
	m.breakerTransitions.WithLabelValues(name, from, to).Inc()
}

// AddIngested counts songs processed by ingestion
func (m *Metrics) AddIngested(status string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.ingestedSongs.WithLabelValues(status).Add(float64(n))
}
