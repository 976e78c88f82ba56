package entity

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/rs/zerolog"

	"github.com/dshills/songmatch/internal/textnorm"
)

// Category names an entity bucket
type Category string

const (
	Cities        Category = "cities"
	Countries     Category = "countries"
	Temporal      Category = "temporal"
	Weather       Category = "weather"
	Relationships Category = "relationships"
	Activities    Category = "activities"
	Emotions      Category = "emotions"
	Colors        Category = "colors"
	Numbers       Category = "numbers"
)

// AllCategories lists every bucket in display order
var AllCategories = []Category{
	Cities, Countries, Temporal, Weather, Relationships, Activities, Emotions, Colors, Numbers,
}

// Entities holds the extracted terms per category. Every bucket is sorted
// and free of duplicates.
type Entities struct {
	Cities        []string `json:"cities"`
	Countries     []string `json:"countries"`
	Temporal      []string `json:"temporal"`
	Weather       []string `json:"weather"`
	Relationships []string `json:"relationships"`
	Activities    []string `json:"activities"`
	Emotions      []string `json:"emotions"`
	Colors        []string `json:"colors"`
	Numbers       []string `json:"numbers"`
}

// NewEntities returns entities with every bucket empty but non-nil
func NewEntities() Entities {
	var e Entities
	for _, c := range AllCategories {
		*e.bucket(c) = []string{}
	}
	return e
}

func (e *Entities) bucket(c Category) *[]string {
	switch c {
	case Cities:
		return &e.Cities
	case Countries:
		return &e.Countries
	case Temporal:
		return &e.Temporal
	case Weather:
		return &e.Weather
	case Relationships:
		return &e.Relationships
	case Activities:
		return &e.Activities
	case Emotions:
		return &e.Emotions
	case Colors:
		return &e.Colors
	case Numbers:
		return &e.Numbers
	}
	panic(fmt.Sprintf("entity: unknown category %q", c))
}

// Get returns the terms found for c
func (e Entities) Get(c Category) []string {
	return *e.bucket(c)
}

// Empty reports whether no entity was found
func (e Entities) Empty() bool {
	for _, c := range AllCategories {
		if len(e.Get(c)) > 0 {
			return false
		}
	}
	return true
}

// Categories returns the non-empty categories in display order
func (e Entities) Categories() []Category {
	var out []Category
	for _, c := range AllCategories {
		if len(e.Get(c)) > 0 {
			out = append(out, c)
		}
	}
	return out
}

type termPattern struct {
	term string
	re   *regexp.Regexp
}

// Extractor finds entities in messages. Patterns are compiled once at
// construction; Extract is safe for concurrent use.
type Extractor struct {
	patterns map[Category][]termPattern
	numbers  *regexp.Regexp
	logger   zerolog.Logger
}

var numberPattern = `(?i)\b(\d+|zero|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|` +
	`thirteen|fourteen|fifteen|sixteen|seventeen|eighteen|nineteen|twenty|thirty|forty|fifty|` +
	`sixty|seventy|eighty|ninety|hundred|thousand|million|first|second|third)\b`

// NewExtractor compiles the built-in wordlists
func NewExtractor(logger zerolog.Logger) *Extractor {
	ex := &Extractor{
		patterns: make(map[Category][]termPattern, len(wordlists)),
		numbers:  regexp.MustCompile(numberPattern),
		logger:   logger,
	}
	for c, terms := range wordlists {
		pats := make([]termPattern, 0, len(terms))
		for _, term := range terms {
			pats = append(pats, termPattern{
				term: term,
				re:   regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`),
			})
		}
		ex.patterns[c] = pats
	}
	return ex
}

// Extract returns the entities found in message. It never panics; any
// internal failure yields empty buckets.
func (x *Extractor) Extract(message string) (out Entities) {
	defer func() {
		if r := recover(); r != nil {
			x.logger.Warn().Interface("panic", r).Msg("entity extraction failed, returning no entities")
			out = NewEntities()
		}
	}()

	out = NewEntities()
	text := textnorm.Normalize(message)
	if text == "" {
		return out
	}

	for _, c := range AllCategories {
		if c == Numbers {
			continue
		}
		set := make(map[string]struct{})
		for _, p := range x.patterns[c] {
			if p.re.MatchString(text) {
				set[p.term] = struct{}{}
			}
		}
		*out.bucket(c) = textnorm.SortedSet(set)
	}

	nums := make(map[string]struct{})
	for _, m := range x.numbers.FindAllString(text, -1) {
		nums[m] = struct{}{}
	}
	out.Numbers = textnorm.SortedSet(nums)

	return out
}

// Terms returns the wordlist of c, sorted
func (x *Extractor) Terms(c Category) []string {
	pats := x.patterns[c]
	out := make([]string, 0, len(pats))
	for _, p := range pats {
		out = append(out, p.term)
	}
	sort.Strings(out)
	return out
}
