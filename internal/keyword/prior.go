package keyword

import (
	"strings"
)

// ClarityPrior adjusts a phrase's clarity by how plainly it reads. Results
// outside [-0.2, 0.2] are clamped by the matcher.
type ClarityPrior interface {
	Adjust(phrase string) float64
}

// NoPrior leaves clarity unchanged
type NoPrior struct{}

func (NoPrior) Adjust(string) float64 { return 0 }

// PriorFunc adapts a function to ClarityPrior
type PriorFunc func(phrase string) float64

func (f PriorFunc) Adjust(phrase string) float64 { return f(phrase) }

// IdiomPrior rewards well-known idioms and penalizes phrases built only
// from vague filler words
type IdiomPrior struct {
	idioms map[string]struct{}
	filler map[string]struct{}
}

const idiomBonus, fillerPenalty = 0.2, -0.2

// Phrases arrive stop-word free, so idioms are listed in that form
var defaultIdioms = []string{
	"cloud nine", "heart gold", "broken heart", "heartbreak", "walking sunshine",
	"dancing queen", "party rock", "good vibes", "bad blood", "high hopes",
	"feel good", "hit road", "road trip", "tears eyes", "stay alive", "born run",
	"lose yourself", "sunny day", "rainy day", "summer nights",
}

var defaultFiller = []string{
	"thing", "things", "stuff", "kind", "sort", "way", "vibe", "feeling", "whatever",
	"maybe", "somehow", "somewhere", "anything", "everything", "nothing", "lot",
	"kinda", "sorta", "okay", "ok", "yeah", "well", "much", "many", "one",
}

// NewIdiomPrior builds the default prior. Extra idioms may be supplied in
// normalized, stop-word free form.
func NewIdiomPrior(extraIdioms ...string) *IdiomPrior {
	p := &IdiomPrior{
		idioms: make(map[string]struct{}, len(defaultIdioms)+len(extraIdioms)),
		filler: make(map[string]struct{}, len(defaultFiller)),
	}
	for _, s := range append(defaultIdioms, extraIdioms...) {
		p.idioms[s] = struct{}{}
	}
	for _, s := range defaultFiller {
		p.filler[s] = struct{}{}
	}
	return p
}

func (p *IdiomPrior) Adjust(phrase string) float64 {
	if _, ok := p.idioms[phrase]; ok {
		return idiomBonus
	}
	words := strings.Fields(phrase)
	if len(words) == 0 {
		return 0
	}
	for _, w := range words {
		if _, ok := p.filler[w]; !ok {
			return 0
		}
	}
	return fillerPenalty
}
