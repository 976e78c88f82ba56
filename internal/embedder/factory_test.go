package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/songmatch/internal/logging"
)

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		url      string
		openai   string
		want     string
	}{
		{"default local", "", "", "", ProviderLocal},
		{"explicit wins", "LOCAL", "http://x", "key", ProviderLocal},
		{"url selects http", "", "http://x", "key", ProviderHTTP},
		{"openai key", "", "", "key", ProviderOpenAI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvProvider, tt.provider)
			t.Setenv(EnvURL, tt.url)
			t.Setenv(EnvOpenAIAPIKey, tt.openai)
			assert.Equal(t, tt.want, DetectProvider())
		})
	}
}

func TestNew(t *testing.T) {
	log := logging.Nop()

	emb, err := New(DefaultConfig(), log, nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, emb.Provider())
	assert.Equal(t, LocalDimension, emb.Dimension())

	emb, err = New(Config{Provider: "http", URL: "http://localhost:8080/embed", Dimension: 384}, log, nil)
	require.NoError(t, err)
	_, wrapped := emb.(*BreakerEmbedder)
	assert.True(t, wrapped, "remote providers are wrapped in a breaker")
	assert.Equal(t, DefaultHTTPModel, emb.Model())

	emb, err = New(Config{Provider: "openai", APIKey: "k"}, log, nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, emb.Provider())

	_, err = New(Config{Provider: "http"}, log, nil)
	assert.ErrorIs(t, err, ErrNoProviderEnabled)

	_, err = New(Config{Provider: "jina"}, log, nil)
	assert.ErrorIs(t, err, ErrUnsupportedModel)
}

func TestNewFromEnv(t *testing.T) {
	t.Setenv(EnvProvider, "")
	t.Setenv(EnvURL, "")
	t.Setenv(EnvOpenAIAPIKey, "")

	emb, err := NewFromEnv(logging.Nop())
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, emb.Provider())
}
