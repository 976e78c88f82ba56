package types

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCandidateValidate(t *testing.T) {
	valid := func() Candidate {
		return Candidate{
			SongID:     1,
			Title:      "Song",
			Artist:     "Artist",
			Popularity: 50,
			Scores:     SignalScores{Semantic: 0.5, Final: 0.7},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Candidate)
		wantErr error
	}{
		{name: "valid", mutate: func(c *Candidate) {}},
		{name: "zero id", mutate: func(c *Candidate) { c.SongID = 0 }, wantErr: ErrInvalidSongID},
		{name: "popularity too high", mutate: func(c *Candidate) { c.Popularity = 101 }, wantErr: ErrInvalidPopularity},
		{name: "negative popularity", mutate: func(c *Candidate) { c.Popularity = -1 }, wantErr: ErrInvalidPopularity},
		{name: "similarity above one", mutate: func(c *Candidate) { c.Scores.Semantic = 1.2 }, wantErr: ErrInvalidSimilarity},
		{name: "nan final", mutate: func(c *Candidate) { c.Scores.Final = math.NaN() }, wantErr: ErrInvalidFinalScore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCandidateHasTagAndReasons(t *testing.T) {
	c := Candidate{SongID: 1, Tags: []string{"Happy", "pop"}}
	assert.True(t, c.HasTag("happy"))
	assert.False(t, c.HasTag("sad"))

	c.AddReason("semantic match")
	c.AddReason("semantic match")
	c.AddReason("popular")
	assert.Equal(t, []string{"semantic match", "popular"}, c.Reasons)
}

func TestDedupe(t *testing.T) {
	assert.True(t, Dedupe([]Candidate{{SongID: 1}, {SongID: 2}}))
	assert.False(t, Dedupe([]Candidate{{SongID: 1}, {SongID: 1}}))
	assert.True(t, Dedupe(nil))
}
