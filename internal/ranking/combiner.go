package ranking

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/songmatch/internal/catalog"
	"github.com/dshills/songmatch/internal/entity"
	"github.com/dshills/songmatch/internal/keyword"
	"github.com/dshills/songmatch/internal/mood"
	"github.com/dshills/songmatch/internal/searcher"
	"github.com/dshills/songmatch/internal/textnorm"
	"github.com/dshills/songmatch/pkg/types"
)

// Inputs are the stage outputs of one request
type Inputs struct {
	Keyword  []keyword.Match
	Semantic []searcher.Match
	Mood     mood.Result
	Entities entity.Entities
	// Songs resolves keyword matches to catalog rows. Keyword matches for
	// songs missing here are skipped.
	Songs map[int64]*catalog.Song
}

// Combiner merges stage outputs into one candidate per song
type Combiner struct {
	cfg Config
}

// NewCombiner creates a combiner
func NewCombiner(cfg Config) *Combiner {
	return &Combiner{cfg: cfg}
}

// Combine returns the deduplicated candidate set in ascending song id order
func (c *Combiner) Combine(in Inputs) []types.Candidate {
	byID := make(map[int64]*types.Candidate, len(in.Keyword)+len(in.Semantic))

	for _, m := range in.Keyword {
		song, ok := in.Songs[m.SongID]
		if !ok {
			continue
		}
		cand, exists := byID[m.SongID]
		if !exists {
			cand = fromSong(song)
			byID[m.SongID] = cand
		}
		if m.Score > cand.Scores.Keyword {
			cand.Scores.Keyword = m.Score
			cand.Scores.Clarity = m.Clarity
			cand.MatchedPhrase = m.MatchedPhrase
			cand.MatchType = m.MatchType
		}
		cand.AddReason(fmt.Sprintf("matched phrase %q", m.MatchedPhrase))
	}

	for _, m := range in.Semantic {
		cand, exists := byID[m.SongID]
		if !exists {
			cand = fromSemantic(m)
			byID[m.SongID] = cand
		}
		if m.Similarity > cand.Scores.Semantic {
			cand.Scores.Semantic = m.Similarity
		}
		cand.AddReason(semanticReason(m))
	}

	aliases := moodAliases(in.Mood)
	active := in.Entities.Categories()

	out := make([]types.Candidate, 0, len(byID))
	for _, cand := range byID {
		if len(aliases) > 0 && hasAnyTag(cand.Tags, aliases) {
			cand.Scores.Mood = c.cfg.MoodBoost - 1
			cand.AddReason(fmt.Sprintf("fits a %s mood", in.Mood.Dominant))
		}
		c.applyEntityBoost(cand, in.Entities, active)
		out = append(out, *cand)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].SongID < out[j].SongID })
	return out
}

// applyEntityBoost adds the category bonus once per category whose terms
// overlap the candidate's tags
func (c *Combiner) applyEntityBoost(cand *types.Candidate, ents entity.Entities, active []entity.Category) {
	if len(active) == 0 || len(cand.Tags) == 0 {
		return
	}
	tags := tagSet(cand.Tags)
	for _, cat := range active {
		for _, term := range ents.Get(cat) {
			if _, ok := tags[term]; ok {
				cand.Scores.Entity += c.cfg.EntityBoosts.For(cat)
				cand.AddReason(fmt.Sprintf("mentions %s", term))
				break
			}
		}
	}
}

// FromPopular turns fallback songs into candidates
func FromPopular(songs []*catalog.Song) []types.Candidate {
	out := make([]types.Candidate, 0, len(songs))
	for _, s := range songs {
		cand := fromSong(s)
		cand.MatchType = types.MatchPopular
		cand.AddReason("popular pick")
		out = append(out, *cand)
	}
	return out
}

func fromSong(s *catalog.Song) *types.Candidate {
	return &types.Candidate{
		SongID:     s.ID,
		Title:      s.Title,
		Artist:     s.Artist,
		Tags:       s.Tags,
		Year:       s.Year,
		Popularity: s.Popularity,
		Explicit:   s.Explicit,
		Reasons:    []string{},
	}
}

func fromSemantic(m searcher.Match) *types.Candidate {
	return &types.Candidate{
		SongID:     m.SongID,
		Title:      m.Title,
		Artist:     m.Artist,
		Tags:       m.Tags,
		Year:       m.Year,
		Popularity: m.Popularity,
		Explicit:   m.Explicit,
		MatchType:  types.MatchSemantic,
		Reasons:    []string{},
	}
}

func semanticReason(m searcher.Match) string {
	if m.SimMeta == 0 && m.AboutnessScore > 0 {
		return fmt.Sprintf("feels similar (%.2f)", m.Similarity)
	}
	return fmt.Sprintf("semantically similar (%.2f)", m.Similarity)
}

// moodAliases returns the tags that express the dominant mood. A result
// with no confidence carries no mood signal.
func moodAliases(res mood.Result) map[string]struct{} {
	if res.Confidence <= 0 {
		return nil
	}
	return tagSet(mood.TagAliases(res.Dominant))
}

// tagSet lowercases tags into a set, also indexing their normalized form so
// "feel-good" and "feel good" compare equal
func tagSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, 2*len(tags))
	for _, t := range tags {
		set[strings.ToLower(t)] = struct{}{}
		set[textnorm.Normalize(t)] = struct{}{}
	}
	return set
}

func hasAnyTag(tags []string, want map[string]struct{}) bool {
	for t := range tagSet(tags) {
		if _, ok := want[t]; ok {
			return true
		}
	}
	return false
}
