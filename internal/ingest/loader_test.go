package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCatalog = `
songs:
  - id: 1
    title: Happy
    artist: Pharrell Williams
    tags: [happy, pop, upbeat]
    year: 2013
    popularity: 90
    phrases: [clap along, happy]
    aboutness:
      emotion: pure uncomplicated joy
      moment: a sunny morning with nowhere to be
      confidence: high
  - id: 2
    title: Someone Like You
    artist: Adele
    tags: [sad]
    popularity: 85
  - id: 3
    title: Coming Soon
    placeholder: true
`

func TestParse(t *testing.T) {
	file, err := Parse(strings.NewReader(sampleCatalog))
	require.NoError(t, err)
	require.Len(t, file.Songs, 3)

	happy := file.Songs[0]
	assert.Equal(t, int64(1), happy.ID)
	require.NotNil(t, happy.Year)
	assert.Equal(t, 2013, *happy.Year)
	assert.Equal(t, []string{"clap along", "happy"}, happy.Phrases)
	require.NotNil(t, happy.Aboutness)
	assert.Equal(t, "high", happy.Aboutness.Confidence)
	assert.True(t, happy.hasAboutness())

	assert.Nil(t, file.Songs[1].Year)
	assert.False(t, file.Songs[1].hasAboutness())
	assert.True(t, file.Songs[2].Placeholder)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "unknown field", yaml: "songs:\n  - id: 1\n    title: A\n    mood: happy\n"},
		{name: "missing title", yaml: "songs:\n  - id: 1\n"},
		{name: "missing id", yaml: "songs:\n  - title: A\n"},
		{name: "popularity out of range", yaml: "songs:\n  - id: 1\n    title: A\n    popularity: 120\n"},
		{name: "bad confidence", yaml: "songs:\n  - id: 1\n    title: A\n    aboutness:\n      emotion: x\n      confidence: certain\n"},
		{name: "duplicate id", yaml: "songs:\n  - id: 1\n    title: A\n  - id: 1\n    title: B\n"},
		{name: "not yaml", yaml: "songs: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.yaml))
			assert.ErrorIs(t, err, ErrInvalidCatalog)
		})
	}
}

func TestParse_Empty(t *testing.T) {
	file, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, file.Songs)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o600))

	file, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, file.Songs, 3)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSongRecord_MetaText(t *testing.T) {
	tests := []struct {
		name string
		rec  SongRecord
		want string
	}{
		{name: "title only", rec: SongRecord{Title: "Intro"}, want: "Intro"},
		{name: "artist", rec: SongRecord{Title: "Hello", Artist: "Adele"}, want: "Hello by Adele"},
		{name: "tags", rec: SongRecord{Title: "Happy", Artist: "Pharrell", Tags: []string{"happy", "pop"}}, want: "Happy by Pharrell. happy, pop"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rec.MetaText())
		})
	}
}

func TestSongRecord_Song(t *testing.T) {
	song := SongRecord{ID: 7, Title: "T", Popularity: 40, Explicit: true, Placeholder: true}.Song()
	assert.Equal(t, int64(7), song.ID)
	assert.True(t, song.Explicit)
	assert.True(t, song.IsPlaceholder)
	assert.NotNil(t, song.Phrases)
	assert.Nil(t, song.MetaEmbedding)
}
