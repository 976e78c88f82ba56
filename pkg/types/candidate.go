package types

import (
	"math"
	"strings"
)

// MatchType describes which signal first surfaced a candidate
type MatchType string

const (
	MatchExact    MatchType = "exact"    // Phrase matched a song phrase verbatim
	MatchLemma    MatchType = "lemma"    // Phrase matched after suffix stripping
	MatchSemantic MatchType = "semantic" // Vector search only
	MatchPopular  MatchType = "popular"  // Popularity fallback
)

// SignalScores holds the per-signal contributions for one candidate
type SignalScores struct {
	Keyword           float64 `json:"keyword"`
	Semantic          float64 `json:"semantic"`
	Mood              float64 `json:"mood"`
	Entity            float64 `json:"entity"`
	Popularity        float64 `json:"popularity"`
	Clarity           float64 `json:"clarity"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
	Final             float64 `json:"final"`
}

// Candidate is a scored song for a single request. Candidates are created by
// the combiner and discarded once the response is produced.
type Candidate struct {
	// Identification
	SongID int64  `json:"song_id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`

	// Denormalized catalog fields
	Tags       []string `json:"tags"`
	Year       *int     `json:"year,omitempty"`
	Popularity int      `json:"popularity"`
	Explicit   bool     `json:"explicit,omitempty"`

	// Scoring
	Scores        SignalScores `json:"scores"`
	Reasons       []string     `json:"reasons"`
	MatchedPhrase string       `json:"matched_phrase,omitempty"`
	MatchType     MatchType    `json:"match_type"`
}

// HasTag reports whether the candidate carries tag (case-insensitive)
func (c *Candidate) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// AddReason appends a reason unless an identical one is already present
func (c *Candidate) AddReason(reason string) {
	for _, r := range c.Reasons {
		if r == reason {
			return
		}
	}
	c.Reasons = append(c.Reasons, reason)
}

// Validate checks if the candidate is well formed
func (c *Candidate) Validate() error {
	if c.SongID <= 0 {
		return ErrInvalidSongID
	}

	if c.Popularity < 0 || c.Popularity > 100 {
		return ErrInvalidPopularity
	}

	if c.Scores.Semantic < 0 || c.Scores.Semantic > 1 {
		return ErrInvalidSimilarity
	}

	if math.IsNaN(c.Scores.Final) || math.IsInf(c.Scores.Final, 0) {
		return ErrInvalidFinalScore
	}

	return nil
}

// Dedupe reports whether the list holds at most one candidate per song id
func Dedupe(cands []Candidate) bool {
	seen := make(map[int64]struct{}, len(cands))
	for _, c := range cands {
		if _, ok := seen[c.SongID]; ok {
			return false
		}
		seen[c.SongID] = struct{}{}
	}
	return true
}
