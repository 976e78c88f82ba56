// Package textnorm provides the message normalization shared by the keyword
// matcher, mood classifier, entity extractor and catalog phrase index.
package textnorm

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize applies NFKC, lowercases, replaces punctuation with spaces and
// collapses runs of whitespace. Apostrophes are dropped so contractions stay
// one token ("don't" -> "dont").
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range s {
		switch {
		case r == '\'' || r == '’':
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		default:
			if !space {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// Tokens returns the normalized words of s
func Tokens(s string) []string {
	return strings.Fields(Normalize(s))
}

// ContentTokens returns the normalized words of s with stop-words removed
func ContentTokens(s string) []string {
	return RemoveStopwords(Tokens(s))
}

// RemoveStopwords filters stop-words out of tokens, preserving order
func RemoveStopwords(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !IsStopword(t) {
			out = append(out, t)
		}
	}
	return out
}

// IsStopword reports whether w is in the fixed English stop-word list
func IsStopword(w string) bool {
	_, ok := stopwords[w]
	return ok
}

// lemmaSuffixes is ordered longest first so "-iest" wins over "-est" and "-s".
var lemmaSuffixes = []struct {
	suffix string
	repl   string
}{
	{"iest", "y"},
	{"ies", "y"},
	{"ied", "y"},
	{"ier", "y"},
	{"ing", ""},
	{"est", ""},
	{"es", ""},
	{"ed", ""},
	{"er", ""},
	{"ly", ""},
	{"s", ""},
}

// minStem is the shortest stem a suffix strip may leave behind
const minStem = 3

// Lemmatize strips one inflectional suffix from word. Words of three
// characters or fewer are returned unchanged.
func Lemmatize(word string) string {
	if len([]rune(word)) <= 3 {
		return word
	}
	for _, s := range lemmaSuffixes {
		if !strings.HasSuffix(word, s.suffix) {
			continue
		}
		stem := strings.TrimSuffix(word, s.suffix) + s.repl
		if len([]rune(stem)) < minStem {
			continue
		}
		return stem
	}
	return word
}

// LemmatizePhrase lemmatizes every word of an already normalized phrase
func LemmatizePhrase(phrase string) string {
	words := strings.Fields(phrase)
	for i, w := range words {
		words[i] = Lemmatize(w)
	}
	return strings.Join(words, " ")
}

// PhraseKey is the lookup form of a phrase: normalized, stop-words removed.
// A phrase made only of stop-words keys on its normalized form.
func PhraseKey(s string) string {
	if words := ContentTokens(s); len(words) > 0 {
		return strings.Join(words, " ")
	}
	return Normalize(s)
}

// SortedSet returns the keys of set in ascending order
func SortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var stopwords = toSet([]string{
	"a", "about", "above", "after", "again", "against", "all", "am", "an", "and",
	"any", "are", "as", "at", "be", "because", "been", "before", "being", "below",
	"between", "both", "but", "by", "can", "could", "did", "do", "does", "doing",
	"down", "during", "each", "few", "for", "from", "further", "had", "has", "have",
	"having", "he", "her", "here", "hers", "herself", "him", "himself", "his", "how",
	"i", "if", "in", "into", "is", "it", "its", "itself", "just", "me", "more",
	"most", "my", "myself", "no", "nor", "not", "now", "of", "off", "on", "once",
	"only", "or", "other", "our", "ours", "ourselves", "out", "over", "own", "same",
	"she", "should", "so", "some", "such", "than", "that", "the", "their", "theirs",
	"them", "themselves", "then", "there", "these", "they", "this", "those",
	"through", "to", "too", "under", "until", "up", "very", "was", "we", "were",
	"what", "when", "where", "which", "while", "who", "whom", "why", "will", "with",
	"would", "you", "your", "yours", "yourself", "yourselves", "im", "ive", "id",
	"youre", "its", "thats", "dont", "cant", "wont", "gonna", "wanna", "really",
	"need", "want", "something", "some", "like", "get", "got", "lol",
})

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
