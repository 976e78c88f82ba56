package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello,   World!", "hello world"},
		{"  don't stop   believin' ", "dont stop believin"},
		{"ＦＵＬＬ width", "full width"},
		{"rock-n-roll", "rock n roll"},
		{"   ", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestContentTokens(t *testing.T) {
	got := ContentTokens("I need something happy and upbeat")
	assert.Equal(t, []string{"happy", "upbeat"}, got)
}

func TestLemmatize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"dancing", "danc"},
		{"danced", "danc"},
		{"happiest", "happy"},
		{"parties", "party"},
		{"cried", "cry"},
		{"happier", "happy"},
		{"quickly", "quick"},
		{"songs", "song"},
		{"kisses", "kiss"},
		{"bigger", "bigg"},
		{"run", "run"},   // three characters or fewer
		{"sing", "sing"}, // stem would be too short
		{"rain", "rain"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Lemmatize(tt.in))
		})
	}
}

func TestLemmatizePhrase(t *testing.T) {
	assert.Equal(t, "danc queen", LemmatizePhrase("dancing queen"))
	assert.Equal(t, "walk sunshine", LemmatizePhrase("walking sunshine"))
}

func TestIsStopword(t *testing.T) {
	assert.True(t, IsStopword("the"))
	assert.False(t, IsStopword("sunshine"))
}

func TestPhraseKey(t *testing.T) {
	assert.Equal(t, "walking sunshine", PhraseKey("Walking on Sunshine!"))
	assert.Equal(t, "clap along", PhraseKey("clap along"))
	assert.Equal(t, "over the", PhraseKey("Over the"), "stop-word only phrases keep their words")
}
