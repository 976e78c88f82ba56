package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/dshills/songmatch/internal/catalog"
)

// ErrInvalidCatalog is returned for catalog files that fail validation
var ErrInvalidCatalog = errors.New("invalid catalog file")

// File is the on-disk catalog format
//
//	songs:
//	  - id: 1
//	    title: Happy
//	    artist: Pharrell Williams
//	    tags: [happy, pop, upbeat]
//	    year: 2013
//	    popularity: 90
//	    phrases: [clap along]
//	    aboutness:
//	      emotion: pure uncomplicated joy
//	      moment: a sunny morning with nowhere to be
//	      confidence: high
type File struct {
	Songs []SongRecord `yaml:"songs" validate:"dive"`
}

// SongRecord is one song entry of a catalog file
type SongRecord struct {
	ID          int64            `yaml:"id" validate:"required,min=1"`
	Title       string           `yaml:"title" validate:"required"`
	Artist      string           `yaml:"artist"`
	Tags        []string         `yaml:"tags"`
	Year        *int             `yaml:"year" validate:"omitempty,min=1000,max=3000"`
	Popularity  int              `yaml:"popularity" validate:"min=0,max=100"`
	Explicit    bool             `yaml:"explicit"`
	Placeholder bool             `yaml:"placeholder"`
	Phrases     []string         `yaml:"phrases"`
	Aboutness   *AboutnessRecord `yaml:"aboutness"`
}

// AboutnessRecord holds the experiential descriptions of a song
type AboutnessRecord struct {
	Emotion    string `yaml:"emotion"`
	Moment     string `yaml:"moment"`
	Confidence string `yaml:"confidence" validate:"omitempty,oneof=low medium high"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadFile reads and validates a YAML catalog file
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

// Parse decodes and validates a YAML catalog. Unknown fields and duplicate
// song ids are rejected.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file File
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return &File{Songs: []SongRecord{}}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if err := validate.Struct(file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	seen := make(map[int64]struct{}, len(file.Songs))
	for _, s := range file.Songs {
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate song id %d", ErrInvalidCatalog, s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return &file, nil
}

// Song converts the record to a catalog row without its embedding
func (r SongRecord) Song() *catalog.Song {
	phrases := r.Phrases
	if phrases == nil {
		phrases = []string{}
	}
	return &catalog.Song{
		ID:            r.ID,
		Title:         r.Title,
		Artist:        r.Artist,
		Tags:          r.Tags,
		Year:          r.Year,
		Popularity:    r.Popularity,
		Explicit:      r.Explicit,
		IsPlaceholder: r.Placeholder,
		Phrases:       phrases,
	}
}

// MetaText is the text embedded into a song's metadata vector
func (r SongRecord) MetaText() string {
	text := r.Title
	if r.Artist != "" {
		text += " by " + r.Artist
	}
	for i, t := range r.Tags {
		if i == 0 {
			text += ". "
		} else {
			text += ", "
		}
		text += t
	}
	return text
}

// hasAboutness reports whether the record carries any text to embed
func (r SongRecord) hasAboutness() bool {
	return r.Aboutness != nil && (r.Aboutness.Emotion != "" || r.Aboutness.Moment != "")
}
