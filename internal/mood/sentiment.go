package mood

import (
	"math"
	"strings"

	"github.com/dshills/songmatch/internal/textnorm"
)

// Sentiment holds lexicon sentiment scores. Pos, Neg and Neu are proportions
// summing to 1; Compound is the normalized overall valence in [-1, 1].
type Sentiment struct {
	Compound float64
	Pos      float64
	Neg      float64
	Neu      float64
}

// SentimentAnalyzer scores the overall sentiment of a text
type SentimentAnalyzer interface {
	PolarityScores(text string) Sentiment
}

const (
	// compound = x / sqrt(x^2 + alpha)
	normAlpha = 15.0

	boosterIncr      = 0.293
	negationScalar   = -0.74
	exclaimIncr      = 0.292
	maxExclaims      = 4
	negationLookback = 3

	butBefore = 0.5
	butAfter  = 1.5
)

// LexiconAnalyzer is a rule-based sentiment analyzer over a valence lexicon.
// It handles negation, degree modifiers, contrastive "but" and exclamation
// emphasis.
type LexiconAnalyzer struct {
	lexicon   map[string]float64
	boosters  map[string]float64
	negations map[string]struct{}
}

// NewLexiconAnalyzer creates an analyzer with the built-in lexicon
func NewLexiconAnalyzer() *LexiconAnalyzer {
	negs := make(map[string]struct{}, len(negationWords))
	for _, w := range negationWords {
		negs[w] = struct{}{}
	}
	return &LexiconAnalyzer{
		lexicon:   valenceLexicon,
		boosters:  boosterWords,
		negations: negs,
	}
}

// PolarityScores returns the sentiment of text
func (a *LexiconAnalyzer) PolarityScores(text string) Sentiment {
	tokens := textnorm.Tokens(text)
	if len(tokens) == 0 {
		return Sentiment{Neu: 1}
	}

	valences := make([]float64, len(tokens))
	for i, tok := range tokens {
		v, ok := a.lexicon[tok]
		if !ok {
			continue
		}
		v = a.applyBoosters(tokens, i, v)
		if a.negated(tokens, i) {
			v *= negationScalar
		}
		valences[i] = v
	}
	applyBut(tokens, valences)

	var sum float64
	for _, v := range valences {
		sum += v
	}

	// Exclamation marks push in the direction of the existing sentiment
	emphasis := math.Min(float64(strings.Count(text, "!")), maxExclaims) * exclaimIncr
	switch {
	case sum > 0:
		sum += emphasis
	case sum < 0:
		sum -= emphasis
	}

	posSum, negSum, neuCount := sift(valences)
	if posSum > math.Abs(negSum) {
		posSum += emphasis
	} else if posSum < math.Abs(negSum) {
		negSum -= emphasis
	}

	total := posSum + math.Abs(negSum) + neuCount
	if total == 0 {
		return Sentiment{Neu: 1}
	}
	return Sentiment{
		Compound: normalize(sum),
		Pos:      math.Abs(posSum / total),
		Neg:      math.Abs(negSum / total),
		Neu:      math.Abs(neuCount / total),
	}
}

// applyBoosters scales v by degree modifiers in the three preceding tokens,
// damped with distance
func (a *LexiconAnalyzer) applyBoosters(tokens []string, i int, v float64) float64 {
	damp := []float64{1, 0.95, 0.9}
	for d := 1; d <= 3 && i-d >= 0; d++ {
		b, ok := a.boosters[tokens[i-d]]
		if !ok {
			continue
		}
		if v < 0 {
			b = -b
		}
		v += b * damp[d-1]
	}
	return v
}

func (a *LexiconAnalyzer) negated(tokens []string, i int) bool {
	for d := 1; d <= negationLookback && i-d >= 0; d++ {
		if _, ok := a.negations[tokens[i-d]]; ok {
			return true
		}
	}
	return false
}

// applyBut dampens sentiment before the first "but" and amplifies it after
func applyBut(tokens []string, valences []float64) {
	idx := -1
	for i, t := range tokens {
		if t == "but" {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	for i := range valences {
		switch {
		case i < idx:
			valences[i] *= butBefore
		case i > idx:
			valences[i] *= butAfter
		}
	}
}

// sift splits valences into positive mass, negative mass and neutral count.
// Each sentiment-bearing word adds one to its mass so that weak words still
// outweigh neutral ones.
func sift(valences []float64) (pos, neg, neu float64) {
	for _, v := range valences {
		switch {
		case v > 0:
			pos += v + 1
		case v < 0:
			neg += v - 1
		default:
			neu++
		}
	}
	return pos, neg, neu
}

func normalize(x float64) float64 {
	n := x / math.Sqrt(x*x+normAlpha)
	return math.Max(-1, math.Min(1, n))
}

var negationWords = []string{
	"not", "no", "never", "nothing", "nowhere", "neither", "nor", "none", "without",
	"dont", "doesnt", "didnt", "cant", "cannot", "wont", "wouldnt", "shouldnt",
	"isnt", "arent", "wasnt", "werent", "aint", "hardly", "rarely",
}

var boosterWords = map[string]float64{
	"very": boosterIncr, "really": boosterIncr, "so": boosterIncr, "extremely": boosterIncr,
	"super": boosterIncr, "incredibly": boosterIncr, "totally": boosterIncr, "absolutely": boosterIncr,
	"completely": boosterIncr, "deeply": boosterIncr, "truly": boosterIncr, "most": boosterIncr,
	"slightly": -boosterIncr, "somewhat": -boosterIncr, "kinda": -boosterIncr, "sorta": -boosterIncr,
	"barely": -boosterIncr, "little": -boosterIncr, "marginally": -boosterIncr,
}

// Valence on a -4..4 scale
var valenceLexicon = map[string]float64{
	// positive
	"happy": 2.7, "happiness": 2.6, "joy": 2.8, "joyful": 2.9, "glad": 2.0, "cheerful": 2.5,
	"upbeat": 1.6, "fun": 2.3, "love": 3.2, "loving": 2.9, "lovely": 2.8, "like": 1.5,
	"good": 1.9, "great": 3.1, "awesome": 3.1, "amazing": 2.8, "wonderful": 2.7, "excellent": 3.2,
	"best": 3.2, "nice": 1.8, "cool": 1.3, "beautiful": 2.9, "sweet": 2.0, "excited": 2.2,
	"exciting": 2.2, "celebrate": 2.7, "party": 1.7, "smile": 1.5, "laugh": 2.6, "yay": 2.4,
	"delighted": 3.0, "proud": 2.1, "confident": 2.2, "strong": 2.3, "brave": 2.4, "win": 2.8,
	"winning": 2.4, "hope": 1.9, "hopeful": 2.3, "free": 2.3, "peaceful": 2.2, "calm": 1.3,
	"relaxed": 2.2, "relax": 1.9, "chill": 0.8, "cozy": 1.8, "bright": 1.9, "sunshine": 2.0,
	"sunny": 1.6, "dance": 1.4, "dancing": 1.6, "energetic": 1.9, "motivated": 1.8,
	"grateful": 2.7, "thankful": 2.2, "blessed": 2.9, "perfect": 2.7, "fantastic": 2.6,
	"favorite": 2.0, "enjoy": 2.2, "pumped": 1.8, "fierce": 0.6, "unstoppable": 1.8,
	// negative
	"sad": -2.1, "sadness": -1.9, "unhappy": -1.8, "cry": -2.1, "crying": -2.1, "tears": -1.6,
	"lonely": -1.5, "alone": -1.0, "heartbroken": -3.3, "heartbreak": -2.7, "broken": -1.9,
	"miss": -0.6, "depressed": -2.3, "depressing": -1.6, "down": -0.7, "grief": -2.2,
	"lost": -1.3, "hurt": -2.4, "pain": -2.3, "sorrow": -2.4, "gloomy": -1.9, "miserable": -2.4,
	"angry": -2.3, "anger": -2.7, "mad": -2.2, "furious": -2.7, "rage": -2.6, "hate": -2.7,
	"annoyed": -1.6, "annoying": -1.8, "frustrated": -2.2, "frustrating": -1.9, "pissed": -3.2,
	"livid": -2.8, "outraged": -2.5, "irritated": -1.9, "fight": -1.6, "scream": -1.6,
	"revenge": -2.4, "bad": -2.5, "terrible": -2.1, "awful": -2.0, "horrible": -2.5,
	"worst": -3.1, "tired": -1.9, "bored": -1.1, "boring": -1.3, "stressed": -1.4,
	"stress": -1.8, "anxious": -1.0, "scared": -1.9, "afraid": -2.0, "worried": -1.2,
	"breakup": -1.8, "sick": -2.3, "ugh": -1.8, "blue": -0.4,
}
