package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/songmatch/internal/catalog"
	"github.com/dshills/songmatch/internal/entity"
	"github.com/dshills/songmatch/internal/keyword"
	"github.com/dshills/songmatch/internal/metrics"
	"github.com/dshills/songmatch/internal/mood"
	"github.com/dshills/songmatch/internal/ranking"
	"github.com/dshills/songmatch/internal/searcher"
	"github.com/dshills/songmatch/internal/tracing"
	"github.com/dshills/songmatch/pkg/types"
)

// ErrInternal marks failures that must not be mistaken for "no matches"
var ErrInternal = errors.New("internal error")

// Degraded reasons
const (
	ReasonKeywordFailed   = "keyword_failed"
	ReasonKeywordTimeout  = "keyword_timeout"
	ReasonSemanticFailed  = "semantic_failed"
	ReasonSemanticTimeout = "semantic_timeout"
	ReasonSongLookup      = "song_lookup_failed"
	ReasonFallbackFailed  = "fallback_failed"
)

// KeywordMatcher finds songs by curated phrase
type KeywordMatcher interface {
	FindMatches(ctx context.Context, message string) ([]keyword.Match, error)
}

// SemanticSearcher finds songs by embedding similarity
type SemanticSearcher interface {
	FindSimilarWithContext(ctx context.Context, q searcher.Query, k int) ([]searcher.Match, error)
}

// MoodClassifier never fails; it returns a neutral result instead
type MoodClassifier interface {
	Classify(message string) mood.Result
}

// EntityExtractor never fails; it returns empty entities instead
type EntityExtractor interface {
	Extract(message string) entity.Entities
}

// SongSource resolves song rows and serves the popularity fallback
type SongSource interface {
	GetSongs(ctx context.Context, ids []int64) (map[int64]*catalog.Song, error)
	TopPopular(ctx context.Context, limit int, exclude []int64) ([]*catalog.Song, error)
}

// Stages are the collaborators of a pipeline. Keyword, Semantic, Mood,
// Entity and Songs are required.
type Stages struct {
	Keyword  KeywordMatcher
	Semantic SemanticSearcher
	Mood     MoodClassifier
	Entity   EntityExtractor
	Songs    SongSource

	// Filter defaults to ExplicitFilter
	Filter ContentFilter
	// Ranking defaults to ranking.DefaultConfig
	Ranking *ranking.Config
	Metrics *metrics.Metrics
}

// Request is one message to answer
type Request struct {
	Message string
	// K is the number of songs wanted; zero uses the ranking default
	K int
	// Context narrows the semantic search
	Context            *searcher.Context
	RoomAllowsExplicit bool
	// RecentSongIDs are penalized, not excluded
	RecentSongIDs []int64
}

// Response is the ranked answer to a Request
type Response struct {
	RequestID       string            `json:"request_id"`
	Candidates      []types.Candidate `json:"candidates"`
	Mood            mood.Result       `json:"mood"`
	Entities        entity.Entities   `json:"entities"`
	Degraded        bool              `json:"degraded"`
	DegradedReasons []string          `json:"degraded_reasons,omitempty"`
	Fallback        bool              `json:"fallback"`
	Duration        time.Duration     `json:"duration_ns"`
}

// Pipeline answers requests. It is safe for concurrent use.
type Pipeline struct {
	stages   Stages
	cfg      Config
	combiner *ranking.Combiner
	reranker *ranking.Reranker
	filter   ContentFilter
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// New validates cfg and wires the stages
func New(stages Stages, cfg Config, logger zerolog.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case stages.Keyword == nil:
		return nil, errors.New("keyword stage is required")
	case stages.Semantic == nil:
		return nil, errors.New("semantic stage is required")
	case stages.Mood == nil:
		return nil, errors.New("mood stage is required")
	case stages.Entity == nil:
		return nil, errors.New("entity stage is required")
	case stages.Songs == nil:
		return nil, errors.New("song source is required")
	}

	rankCfg := ranking.DefaultConfig()
	if stages.Ranking != nil {
		rankCfg = *stages.Ranking
	}
	if err := rankCfg.Validate(); err != nil {
		return nil, err
	}

	filter := stages.Filter
	if filter == nil {
		filter = ExplicitFilter{}
	}

	return &Pipeline{
		stages:   stages,
		cfg:      cfg,
		combiner: ranking.NewCombiner(rankCfg),
		reranker: ranking.NewReranker(rankCfg),
		filter:   filter,
		metrics:  stages.Metrics,
		logger:   logger,
	}, nil
}

// signals are the joined stage outputs. Each stage goroutine writes only its
// own fields.
type signals struct {
	keyword        []keyword.Match
	keywordReason  string
	semantic       []searcher.Match
	semanticReason string
	mood           mood.Result
	entities       entity.Entities
}

// Recommend runs the stages concurrently and returns the ranked candidates
func (p *Pipeline) Recommend(ctx context.Context, req Request) (resp *Response, err error) {
	start := time.Now()
	ctx, end := tracing.StartSpan(ctx, "pipeline.recommend", attribute.Int("k", req.K))
	defer func() { end(err) }()

	resp = &Response{RequestID: uuid.NewString()}
	logger := p.logger.With().Str("request_id", resp.RequestID).Logger()

	sig, err := p.collect(ctx, req, logger)
	if err != nil {
		p.metrics.ObserveRequest(metrics.OutcomeError, time.Since(start).Seconds(), 0)
		logger.Error().Err(err).Msg("recommendation failed")
		return nil, err
	}
	resp.Mood = sig.mood
	resp.Entities = sig.entities

	var reasons []string
	for _, r := range []string{sig.keywordReason, sig.semanticReason} {
		if r != "" {
			reasons = append(reasons, r)
		}
	}

	songs, err := p.keywordSongs(ctx, sig.keyword)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn().Err(err).Str("leg", metrics.StageKeyword).Msg("failed to load keyword songs, dropping keyword signal")
		reasons = append(reasons, ReasonSongLookup)
		sig.keyword = nil
	}

	rankStart := time.Now()
	cands := p.combiner.Combine(ranking.Inputs{
		Keyword:  sig.keyword,
		Semantic: sig.semantic,
		Mood:     sig.mood,
		Entities: sig.entities,
		Songs:    songs,
	})
	cands = p.filter.Filter(ctx, req, cands)

	if len(cands) == 0 {
		resp.Fallback = true
		cands, err = p.fallback(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn().Err(err).Str("leg", metrics.StageFallback).Msg("popularity fallback failed")
			p.metrics.IncStageError(metrics.StageFallback)
			reasons = append(reasons, ReasonFallbackFailed)
			cands = []types.Candidate{}
		}
	}

	resp.Candidates = p.reranker.Rerank(cands, req.RecentSongIDs, p.limit(req.K))
	p.metrics.ObserveStage(metrics.StageRank, time.Since(rankStart).Seconds())

	resp.DegradedReasons = reasons
	resp.Degraded = len(reasons) > 0
	resp.Duration = time.Since(start)

	outcome := metrics.OutcomeOK
	if resp.Degraded {
		outcome = metrics.OutcomeDegraded
		for _, r := range reasons {
			p.metrics.IncDegraded(r)
		}
	}
	p.metrics.ObserveRequest(outcome, resp.Duration.Seconds(), len(resp.Candidates))
	if cs, ok := p.stages.Keyword.(interface{ CacheStats() keyword.CacheStats }); ok {
		st := cs.CacheStats()
		p.metrics.SetKeywordCache(st.Hits, st.Misses)
	}

	tracing.SetAttributes(ctx,
		attribute.Int("candidates", len(resp.Candidates)),
		attribute.Bool("degraded", resp.Degraded),
		attribute.Bool("fallback", resp.Fallback),
	)
	logger.Debug().
		Int("candidates", len(resp.Candidates)).
		Bool("degraded", resp.Degraded).
		Bool("fallback", resp.Fallback).
		Dur("duration", resp.Duration).
		Msg("recommendation complete")

	return resp, nil
}

// collect runs the four stages under the stage deadline. Only fatal errors
// and caller cancellation are returned.
func (p *Pipeline) collect(ctx context.Context, req Request, logger zerolog.Logger) (*signals, error) {
	stageCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(stageCtx)
	sig := &signals{}

	g.Go(func() error {
		sctx, end := tracing.StartSpan(gctx, "pipeline.keyword")
		t := time.Now()
		matches, err := p.stages.Keyword.FindMatches(sctx, req.Message)
		end(err)
		p.metrics.ObserveStage(metrics.StageKeyword, time.Since(t).Seconds())
		if err == nil {
			sig.keyword = matches
			return nil
		}
		reason, fatal := p.stageFailure(ctx, stageCtx, metrics.StageKeyword, err, logger)
		sig.keywordReason = reason
		return fatal
	})

	g.Go(func() error {
		sctx, end := tracing.StartSpan(gctx, "pipeline.semantic")
		t := time.Now()
		matches, err := p.stages.Semantic.FindSimilarWithContext(sctx,
			searcher.Query{Message: req.Message, Context: req.Context}, p.cfg.SemanticCandidates)
		end(err)
		p.metrics.ObserveStage(metrics.StageSemantic, time.Since(t).Seconds())
		if err == nil {
			sig.semantic = matches
			return nil
		}
		if errors.Is(err, searcher.ErrDimensionMismatch) || errors.Is(err, searcher.ErrIndexAnomaly) {
			p.metrics.IncStageError(metrics.StageSemantic)
			return fmt.Errorf("%w: %w", ErrInternal, err)
		}
		reason, fatal := p.stageFailure(ctx, stageCtx, metrics.StageSemantic, err, logger)
		sig.semanticReason = reason
		return fatal
	})

	g.Go(func() error {
		t := time.Now()
		sig.mood = p.stages.Mood.Classify(req.Message)
		p.metrics.ObserveStage(metrics.StageMood, time.Since(t).Seconds())
		return nil
	})

	g.Go(func() error {
		t := time.Now()
		sig.entities = p.stages.Entity.Extract(req.Message)
		p.metrics.ObserveStage(metrics.StageEntity, time.Since(t).Seconds())
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sig, nil
}

// stageFailure classifies a recoverable stage error. Caller cancellation is
// returned as fatal; a sibling's fatal error cancels this stage silently.
func (p *Pipeline) stageFailure(parent, stageCtx context.Context, stage string, err error, logger zerolog.Logger) (string, error) {
	if perr := parent.Err(); perr != nil {
		return "", perr
	}

	timedOut := errors.Is(stageCtx.Err(), context.DeadlineExceeded)
	if !timedOut && errors.Is(err, context.Canceled) {
		return "", nil
	}

	p.metrics.IncStageError(stage)
	reason := stage + "_failed"
	if timedOut {
		reason = stage + "_timeout"
	}
	logger.Warn().Err(err).Str("leg", stage).Str("reason", reason).Msg("stage degraded")
	return reason, nil
}

// keywordSongs loads the rows behind keyword matches
func (p *Pipeline) keywordSongs(ctx context.Context, matches []keyword.Match) (map[int64]*catalog.Song, error) {
	if len(matches) == 0 {
		return map[int64]*catalog.Song{}, nil
	}
	ids := make([]int64, len(matches))
	for i, m := range matches {
		ids[i] = m.SongID
	}
	return p.stages.Songs.GetSongs(ctx, ids)
}

// fallback returns popular songs the session has not heard recently
func (p *Pipeline) fallback(ctx context.Context, req Request) ([]types.Candidate, error) {
	ctx, end := tracing.StartSpan(ctx, "pipeline.fallback")
	limit := p.cfg.FallbackLimit
	if k := p.limit(req.K); k > limit {
		limit = k
	}
	songs, err := p.stages.Songs.TopPopular(ctx, limit, req.RecentSongIDs)
	end(err)
	if err != nil {
		return nil, err
	}
	return p.filter.Filter(ctx, req, ranking.FromPopular(songs)), nil
}

// limit caps k at MaxK; zero or less defers to the reranker default
func (p *Pipeline) limit(k int) int {
	if k > p.cfg.MaxK {
		return p.cfg.MaxK
	}
	if k < 0 {
		return 0
	}
	return k
}
