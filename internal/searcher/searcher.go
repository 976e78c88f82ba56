package searcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/dshills/songmatch/internal/catalog"
	"github.com/dshills/songmatch/internal/embedder"
)

var (
	// ErrDimensionMismatch means the query vector width differs from the
	// configured or stored width. Results would be meaningless, so it is fatal.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrIndexAnomaly means the index returned nothing, or failed outright,
	// while eligible songs exist
	ErrIndexAnomaly = errors.New("vector index anomaly")
)

const (
	defaultK   = 10
	minBreadth = 100
)

// Store is the catalog surface the searcher needs
type Store interface {
	catalog.NearestNeighborSearch
	GetSongs(ctx context.Context, ids []int64) (map[int64]*catalog.Song, error)
	Stats(ctx context.Context) (*catalog.Stats, error)
}

// Query is a semantic search request. Context is only honored by
// FindSimilarWithContext.
type Query struct {
	Message string
	Context *Context
}

// Context narrows and biases a search
type Context struct {
	ExcludeSongIDs []int64
	PreferredTags  []string
	MinPopularity  int
	YearFrom       int
	YearTo         int
}

// Leg names a nearest-neighbor signal
type Leg string

const (
	LegMeta    Leg = "meta"
	LegAbout   Leg = "about"
	LegEmotion Leg = "emotion"
	LegMoment  Leg = "moment"
)

// Match is one semantically similar song
type Match struct {
	SongID     int64    `json:"song_id"`
	Similarity float64  `json:"similarity"`
	Distance   float64  `json:"distance"`
	Title      string   `json:"title"`
	Artist     string   `json:"artist"`
	Tags       []string `json:"tags"`
	Year       *int     `json:"year,omitempty"`
	Popularity int      `json:"popularity"`
	Explicit   bool     `json:"explicit,omitempty"`

	// Per-leg similarities; a leg that did not return the song is 0
	SimMeta    float64 `json:"sim_meta"`
	SimAbout   float64 `json:"sim_about,omitempty"`
	SimEmotion float64 `json:"sim_emotion,omitempty"`
	SimMoment  float64 `json:"sim_moment,omitempty"`

	// AboutnessScore is the weighted contribution of the auxiliary legs
	AboutnessScore float64 `json:"aboutness_score,omitempty"`
	Legs           []Leg   `json:"legs"`
}

// Searcher runs semantic search through the configured strategy. It holds
// no per-request state and is safe for concurrent use.
type Searcher struct {
	store    Store
	embedder embedder.Embedder
	cfg      Config
	strategy Strategy
	breaker  *gobreaker.CircuitBreaker[[]catalog.Neighbor]
	logger   zerolog.Logger
}

// Option configures a Searcher
type Option func(*options)

type options struct {
	observe embedder.StateObserver
}

// WithBreakerObserver reports aboutness circuit transitions
func WithBreakerObserver(observe embedder.StateObserver) Option {
	return func(o *options) {
		o.observe = observe
	}
}

// New creates a searcher. The configuration is validated and copied.
func New(store Store, emb embedder.Embedder, cfg Config, logger zerolog.Logger, opts ...Option) (*Searcher, error) {
	if store == nil {
		return nil, fmt.Errorf("searcher: store is required")
	}
	if emb == nil {
		return nil, fmt.Errorf("searcher: embedder is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Searcher{
		store:    store,
		embedder: emb,
		cfg:      cfg,
		logger:   logger,
	}
	s.breaker = newLegBreaker(cfg.Breaker, logger, o.observe)

	strategy, err := newStrategy(cfg.Strategy, s)
	if err != nil {
		return nil, err
	}
	s.strategy = strategy
	return s, nil
}

// Strategy returns the active ranking strategy
func (s *Searcher) Strategy() Strategy {
	return s.strategy
}

// FindSimilar returns songs semantically close to message
func (s *Searcher) FindSimilar(ctx context.Context, message string, k int) ([]Match, error) {
	return s.strategy.Rank(ctx, Query{Message: message}, k)
}

// FindSimilarWithContext applies exclusions, the popularity floor and the
// year range inside the store query, and boosts songs carrying preferred tags
func (s *Searcher) FindSimilarWithContext(ctx context.Context, q Query, k int) ([]Match, error) {
	return s.strategy.Rank(ctx, q, k)
}

// request is the validated, embedded form of a query
type request struct {
	vector  []float32
	filters *catalog.Filters
	tags    []string
	stats   *catalog.Stats
	k       int
}

// begin embeds the query and checks it against the catalog. A nil request
// with a nil error means there is nothing to search.
func (s *Searcher) begin(ctx context.Context, q Query, k int) (*request, error) {
	if strings.TrimSpace(q.Message) == "" {
		return nil, nil
	}
	if k <= 0 {
		k = defaultK
	}

	emb, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: q.Message})
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}
	if len(emb.Vector) != s.cfg.Dimension {
		return nil, fmt.Errorf("%w: embedder returned %d, configured %d",
			ErrDimensionMismatch, len(emb.Vector), s.cfg.Dimension)
	}

	// Stats runs before the query is prepared; a prepared query may hold the
	// store's only connection
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog stats: %w", err)
	}
	if stats.EligibleSongs == 0 {
		return nil, nil
	}
	if stats.VectorWidth != 0 && stats.VectorWidth != len(emb.Vector) {
		return nil, fmt.Errorf("%w: query is %d wide, catalog stores %d",
			ErrDimensionMismatch, len(emb.Vector), stats.VectorWidth)
	}

	req := &request{vector: emb.Vector, stats: stats, k: k}
	if c := q.Context; c != nil {
		req.filters = &catalog.Filters{
			ExcludeIDs:    c.ExcludeSongIDs,
			MinPopularity: c.MinPopularity,
			YearFrom:      c.YearFrom,
			YearTo:        c.YearTo,
		}
		req.tags = c.PreferredTags
	}
	return req, nil
}

// withPrepared materializes the query vector, runs fn and releases the
// session before returning
func (s *Searcher) withPrepared(ctx context.Context, vector []float32, fn func(pq catalog.PreparedQuery) error) error {
	pq, err := s.store.PrepareQuery(ctx, vector)
	if err != nil {
		return fmt.Errorf("failed to prepare query vector: %w", err)
	}
	defer func() {
		if cerr := pq.Close(); cerr != nil {
			s.logger.Warn().Err(cerr).Msg("failed to release prepared query")
		}
	}()
	return fn(pq)
}

// metaLeg runs the primary leg. An outright failure or an empty result over
// a populated, unfiltered catalog is an index anomaly.
func (s *Searcher) metaLeg(ctx context.Context, pq catalog.PreparedQuery, req *request, limit int) ([]catalog.Neighbor, error) {
	neighbors, err := pq.Nearest(ctx, catalog.ColumnMeta, catalog.NeighborOptions{
		Limit:   limit,
		Breadth: req.breadth(limit),
		Filters: req.filters,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Error().Err(err).Int("eligible_songs", req.stats.EligibleSongs).
			Msg("nearest-neighbor query failed over populated catalog")
		return nil, fmt.Errorf("%w: meta leg: %v", ErrIndexAnomaly, err)
	}

	if len(neighbors) == 0 && !req.filters.Restrictive() {
		s.logger.Error().Int("eligible_songs", req.stats.EligibleSongs).
			Msg("nearest-neighbor query returned no rows over populated catalog")
		return nil, fmt.Errorf("%w: no rows from %d eligible songs", ErrIndexAnomaly, req.stats.EligibleSongs)
	}
	return neighbors, nil
}

// auxLeg runs an auxiliary leg through the circuit breaker. Failures are
// logged and reported as ok=false; they never fail the request.
func (s *Searcher) auxLeg(ctx context.Context, leg Leg, run func() ([]catalog.Neighbor, error)) ([]catalog.Neighbor, bool) {
	neighbors, err := s.breaker.Execute(run)
	if err != nil {
		s.logger.Warn().Str("leg", string(leg)).Err(err).Msg("auxiliary leg failed, continuing without it")
		return nil, false
	}
	return neighbors, true
}

// hydrate copies catalog fields onto matches and drops songs that vanished
func (s *Searcher) hydrate(ctx context.Context, matches map[int64]*Match) ([]Match, error) {
	if len(matches) == 0 {
		return []Match{}, nil
	}

	ids := make([]int64, 0, len(matches))
	for id := range matches {
		ids = append(ids, id)
	}
	songs, err := s.store.GetSongs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load matched songs: %w", err)
	}

	out := make([]Match, 0, len(matches))
	for id, m := range matches {
		song, ok := songs[id]
		if !ok || !song.Eligible() {
			continue
		}
		m.Title = song.Title
		m.Artist = song.Artist
		m.Tags = song.Tags
		m.Year = song.Year
		m.Popularity = song.Popularity
		m.Explicit = song.Explicit
		out = append(out, *m)
	}
	return out, nil
}

// boostPreferred adds TagBoost per preferred tag the song carries
func (s *Searcher) boostPreferred(matches []Match, preferred []string) {
	if len(preferred) == 0 {
		return
	}
	want := make(map[string]struct{}, len(preferred))
	for _, t := range preferred {
		want[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	for i := range matches {
		overlap := 0
		for _, t := range matches[i].Tags {
			if _, ok := want[strings.ToLower(t)]; ok {
				overlap++
			}
		}
		if overlap > 0 {
			matches[i].Similarity = clamp01(matches[i].Similarity + float64(overlap)*s.cfg.TagBoost)
		}
	}
}

// sortMatches orders by similarity descending, then popularity descending,
// then song id ascending
func sortMatches(matches []Match) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		if matches[i].Popularity != matches[j].Popularity {
			return matches[i].Popularity > matches[j].Popularity
		}
		return matches[i].SongID < matches[j].SongID
	})
}

// breadth is the exploration factor for a leg of this request. It never
// drops below 2k, whatever the leg's own row limit.
func (r *request) breadth(limit int) int {
	return breadth(max(limit, 2*r.k))
}

// breadth is the index exploration factor for a leg returning limit rows
func breadth(limit int) int {
	if limit < minBreadth {
		return minBreadth
	}
	return limit
}

// similarity converts a cosine distance into [0, 1]
func similarity(distance float64) float64 {
	return clamp01(1 - distance)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncate(matches []Match, n int) []Match {
	if len(matches) > n {
		return matches[:n]
	}
	return matches
}
