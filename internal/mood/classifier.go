package mood

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/dshills/songmatch/internal/textnorm"
)

// Mood is one of the fixed moods a message can express
type Mood string

const (
	Joy        Mood = "joy"
	Anger      Mood = "anger"
	Sadness    Mood = "sadness"
	Confidence Mood = "confidence"
	Chill      Mood = "chill"
)

// Moods lists every mood in tie-break order
var Moods = []Mood{Joy, Anger, Sadness, Confidence, Chill}

// Result is the outcome of classifying one message
type Result struct {
	Dominant   Mood             `json:"dominant"`
	Confidence float64          `json:"confidence"`
	Scores     map[Mood]float64 `json:"scores"`
	Polarity   float64          `json:"polarity"`
	Magnitude  float64          `json:"magnitude"`
}

// Neutral is the result used when nothing can be inferred
func Neutral() Result {
	scores := make(map[Mood]float64, len(Moods))
	for _, m := range Moods {
		scores[m] = 0
	}
	return Result{Dominant: Chill, Scores: scores}
}

// Minimum keyword length for a prefix (partial) hit
const minPartialLen = 4

var defaultBuckets = map[Mood][]string{
	Joy: {
		"happy", "joy", "joyful", "upbeat", "cheerful", "fun", "party", "dance",
		"celebrate", "excited", "glad", "sunshine", "smile", "bright", "good",
		"great", "awesome", "yay", "delighted", "wonderful",
	},
	Anger: {
		"angry", "mad", "furious", "rage", "hate", "pissed", "annoyed", "frustrated",
		"livid", "fight", "scream", "revenge", "irritated", "outraged",
	},
	Sadness: {
		"sad", "cry", "crying", "tears", "lonely", "heartbroken", "heartbreak",
		"miss", "depressed", "down", "blue", "grief", "lost", "hurt", "sorrow",
		"breakup", "alone", "gloomy",
	},
	Confidence: {
		"confident", "strong", "power", "powerful", "boss", "unstoppable", "win",
		"winning", "motivated", "pumped", "fierce", "brave", "proud", "ready",
		"hype", "champion",
	},
	Chill: {
		"chill", "relax", "calm", "mellow", "peaceful", "lazy", "sleepy", "quiet",
		"slow", "easy", "cozy", "soft", "study", "focus", "unwind", "rain",
	},
}

// Classifier assigns a dominant mood to a message. It is safe for concurrent
// use.
type Classifier struct {
	buckets  map[Mood]map[string]struct{}
	analyzer SentimentAnalyzer
	logger   zerolog.Logger
}

// Option configures a Classifier
type Option func(*Classifier)

// WithAnalyzer replaces the built-in lexicon analyzer
func WithAnalyzer(a SentimentAnalyzer) Option {
	return func(c *Classifier) {
		c.analyzer = a
	}
}

// NewClassifier creates a classifier with the built-in keyword buckets
func NewClassifier(logger zerolog.Logger, opts ...Option) *Classifier {
	c := &Classifier{
		buckets:  make(map[Mood]map[string]struct{}, len(defaultBuckets)),
		analyzer: NewLexiconAnalyzer(),
		logger:   logger,
	}
	for m, words := range defaultBuckets {
		set := make(map[string]struct{}, len(words))
		for _, w := range words {
			set[w] = struct{}{}
		}
		c.buckets[m] = set
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify scores message against every mood. It never panics.
func (c *Classifier) Classify(message string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn().Interface("panic", r).Msg("mood analysis failed, using neutral mood")
			res = Neutral()
		}
	}()

	tokens := textnorm.Tokens(message)
	if len(tokens) == 0 {
		return Neutral()
	}

	scores := make(map[Mood]float64, len(Moods))
	for _, m := range Moods {
		scores[m] = c.bucketScore(m, tokens)
	}

	s := c.analyzer.PolarityScores(message)
	applySentiment(scores, s)

	res = Result{
		Scores:    scores,
		Polarity:  s.Compound,
		Magnitude: s.Pos + s.Neg,
	}
	res.Dominant, res.Confidence = dominant(scores)
	return res
}

// bucketScore is (exact + 0.5*partial) / bucket size
func (c *Classifier) bucketScore(m Mood, tokens []string) float64 {
	bucket := c.buckets[m]
	if len(bucket) == 0 {
		return 0
	}

	var exact, partial float64
	for _, tok := range tokens {
		if _, ok := bucket[tok]; ok {
			exact++
			continue
		}
		for kw := range bucket {
			if len(kw) >= minPartialLen && strings.HasPrefix(tok, kw) {
				partial++
				break
			}
		}
	}
	return (exact + 0.5*partial) / float64(len(bucket))
}

func applySentiment(scores map[Mood]float64, s Sentiment) {
	if s.Compound > 0.1 {
		scores[Joy] += 0.5 * s.Compound
	}
	if s.Compound > 0.3 && s.Pos > 0.2 {
		scores[Confidence] += 0.3 * s.Pos
	}
	if s.Compound < -0.5 && s.Neg > 0.3 {
		scores[Anger] += 0.5 * s.Neg
	}
	if s.Compound < -0.1 {
		scores[Sadness] += 0.5 * -s.Compound
	}
	if s.Neu > 0.7 {
		scores[Chill] += 0.2 * s.Neu
	}
}

// dominant returns the argmax mood and its share of the total. A tie for
// the top score, or no signal at all, resolves to chill.
func dominant(scores map[Mood]float64) (Mood, float64) {
	var (
		best  Mood
		top   float64
		sum   float64
		ties  int
		found bool
	)
	for _, m := range Moods {
		v := scores[m]
		sum += v
		switch {
		case !found || v > top:
			best, top, ties, found = m, v, 1, true
		case v == top:
			ties++
		}
	}

	if sum <= 0 {
		return Chill, 0
	}
	if ties > 1 {
		return Chill, scores[Chill] / sum
	}
	return best, top / sum
}

// tagAliases maps each mood to the catalog tags that express it
var tagAliases = map[Mood][]string{
	Joy:        {"happy", "joy", "joyful", "upbeat", "feel-good", "feelgood", "fun", "party", "cheerful", "dance"},
	Anger:      {"angry", "anger", "aggressive", "rage", "intense", "heavy"},
	Sadness:    {"sad", "sadness", "melancholy", "heartbreak", "breakup", "emotional", "blue"},
	Confidence: {"confident", "confidence", "empowering", "anthem", "motivational", "hype", "workout"},
	Chill:      {"chill", "relaxed", "calm", "mellow", "lofi", "lo-fi", "acoustic", "ambient"},
}

// TagAliases returns the catalog tags that count as expressing m
func TagAliases(m Mood) []string {
	return tagAliases[m]
}
