package keyword

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/dshills/songmatch/internal/catalog"
	"github.com/dshills/songmatch/internal/textnorm"
	"github.com/dshills/songmatch/pkg/types"
)

// PhraseLookup is the catalog surface the matcher needs
type PhraseLookup interface {
	FindPhrase(ctx context.Context, phrase string, mode catalog.PhraseMode) ([]catalog.PhraseHit, error)
}

// Config tunes the matcher
type Config struct {
	MinPhraseLength int           `koanf:"min_phrase_length" validate:"min=1"`
	ExactWeight     float64       `koanf:"exact_weight" validate:"gt=0"`
	LemmaWeight     float64       `koanf:"lemma_weight" validate:"gt=0,ltfield=ExactWeight"`
	CacheSize       int           `koanf:"cache_size" validate:"min=1"`
	CacheTTL        time.Duration `koanf:"cache_ttl" validate:"min=0"`
}

// DefaultConfig returns the documented defaults
func DefaultConfig() Config {
	return Config{
		MinPhraseLength: 3,
		ExactWeight:     1.0,
		LemmaWeight:     0.7,
		CacheSize:       10000,
	}
}

// Clarity bounds
const (
	minClarity = 0.1
	maxClarity = 1.2
	maxPrior   = 0.2

	// Windows of four words are only tried on longer messages
	longMessageWords = 6
)

// Match is one song found through its phrase list
type Match struct {
	SongID        int64
	MatchedPhrase string
	MatchType     types.MatchType
	Score         float64
	Clarity       float64
	Popularity    int
}

// CacheStats is a point-in-time view of the phrase cache
type CacheStats struct {
	Size    int     `json:"size"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Matcher finds songs whose curated phrases appear in a message
type Matcher struct {
	store  PhraseLookup
	prior  ClarityPrior
	cfg    Config
	logger zerolog.Logger

	cache  *expirable.LRU[string, []catalog.PhraseHit]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewMatcher creates a matcher. A nil prior means NoPrior.
func NewMatcher(store PhraseLookup, prior ClarityPrior, cfg Config, logger zerolog.Logger) *Matcher {
	def := DefaultConfig()
	if cfg.MinPhraseLength <= 0 {
		cfg.MinPhraseLength = def.MinPhraseLength
	}
	if cfg.ExactWeight <= 0 {
		cfg.ExactWeight = def.ExactWeight
	}
	if cfg.LemmaWeight <= 0 {
		cfg.LemmaWeight = def.LemmaWeight
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}
	if prior == nil {
		prior = NoPrior{}
	}

	return &Matcher{
		store:  store,
		prior:  prior,
		cfg:    cfg,
		logger: logger,
		cache:  expirable.NewLRU[string, []catalog.PhraseHit](cfg.CacheSize, nil, cfg.CacheTTL),
	}
}

// FindMatches returns phrase matches sorted by score descending, then song
// id ascending, with at most one match per song
func (m *Matcher) FindMatches(ctx context.Context, message string) ([]Match, error) {
	words := textnorm.ContentTokens(message)
	if len(words) == 0 {
		return []Match{}, nil
	}

	best := make(map[int64]Match)
	for _, phrase := range windows(words) {
		if utf8.RuneCountInString(phrase) < m.cfg.MinPhraseLength {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		hits, matchType, err := m.lookup(ctx, phrase)
		if err != nil {
			return nil, fmt.Errorf("phrase lookup %q: %w", phrase, err)
		}

		weight := m.cfg.ExactWeight
		if matchType == types.MatchLemma {
			weight = m.cfg.LemmaWeight
		}

		for _, h := range hits {
			clarity := m.clarity(phrase, h.Popularity)
			candidate := Match{
				SongID:        h.SongID,
				MatchedPhrase: h.Phrase,
				MatchType:     matchType,
				Score:         weight * clarity,
				Clarity:       clarity,
				Popularity:    h.Popularity,
			}
			if cur, ok := best[h.SongID]; !ok || candidate.Score > cur.Score {
				best[h.SongID] = candidate
			}
		}
	}

	matches := make([]Match, 0, len(best))
	for _, mt := range best {
		matches = append(matches, mt)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].SongID < matches[j].SongID
	})

	m.logger.Debug().Int("words", len(words)).Int("matches", len(matches)).Msg("keyword matching complete")
	return matches, nil
}

// lookup tries the exact form first and falls back to the lemma form only
// when the exact form finds nothing
func (m *Matcher) lookup(ctx context.Context, phrase string) ([]catalog.PhraseHit, types.MatchType, error) {
	hits, err := m.cachedFind(ctx, phrase, catalog.PhraseExact)
	if err != nil {
		return nil, "", err
	}
	if len(hits) > 0 {
		return hits, types.MatchExact, nil
	}

	hits, err = m.cachedFind(ctx, phrase, catalog.PhraseLemma)
	if err != nil {
		return nil, "", err
	}
	return hits, types.MatchLemma, nil
}

func (m *Matcher) cachedFind(ctx context.Context, phrase string, mode catalog.PhraseMode) ([]catalog.PhraseHit, error) {
	key := mode.String() + ":" + phrase
	if hits, ok := m.cache.Get(key); ok {
		m.hits.Add(1)
		return hits, nil
	}
	m.misses.Add(1)

	hits, err := m.store.FindPhrase(ctx, phrase, mode)
	if err != nil {
		return nil, err
	}
	m.cache.Add(key, hits)
	return hits, nil
}

// clarity blends phrase length, word count and popularity with the prior,
// clamped to [0.1, 1.2]
func (m *Matcher) clarity(phrase string, popularity int) float64 {
	length := minf(float64(utf8.RuneCountInString(phrase))/20, 1)
	wordCount := minf(float64(len(strings.Fields(phrase)))/4, 1)
	pop := float64(popularity) / 100

	prior := clamp(m.prior.Adjust(phrase), -maxPrior, maxPrior)
	return clamp(0.4*length+0.4*wordCount+0.2*pop+prior, minClarity, maxClarity)
}

// CacheStats reports phrase cache effectiveness
func (m *Matcher) CacheStats() CacheStats {
	hits, misses := m.hits.Load(), m.misses.Load()
	st := CacheStats{Size: m.cache.Len(), Hits: hits, Misses: misses}
	if total := hits + misses; total > 0 {
		st.HitRate = float64(hits) / float64(total)
	}
	return st
}

// windows returns every contiguous run of 1-3 words, plus 4-word runs when
// the message has more than six words
func windows(words []string) []string {
	maxN := 3
	if len(words) > longMessageWords {
		maxN = 4
	}

	seen := make(map[string]struct{})
	out := make([]string, 0, len(words)*maxN)
	for n := 1; n <= maxN; n++ {
		for i := 0; i+n <= len(words); i++ {
			phrase := strings.Join(words[i:i+n], " ")
			if _, dup := seen[phrase]; dup {
				continue
			}
			seen[phrase] = struct{}{}
			out = append(out, phrase)
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
