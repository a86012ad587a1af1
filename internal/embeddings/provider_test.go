package embeddings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderConfig_ApplyDefaults(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ProviderConfig
		wantURL string
		model   string
		dim     int
	}{
		{"empty is ollama", ProviderConfig{}, DefaultOllamaURL, DefaultOllamaModel, 768},
		{"tei", ProviderConfig{Provider: "tei"}, DefaultTEIURL, DefaultFastEmbedModel, 384},
		{"fastembed", ProviderConfig{Provider: "fastembed"}, "", DefaultFastEmbedModel, 384},
		{"explicit dimension wins", ProviderConfig{Provider: "ollama", Dimension: 1536}, DefaultOllamaURL, DefaultOllamaModel, 1536},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.ApplyDefaults()
			assert.Equal(t, tt.wantURL, cfg.BaseURL)
			assert.Equal(t, tt.model, cfg.Model)
			assert.Equal(t, tt.dim, cfg.Dimension)
			assert.Equal(t, 8000, cfg.MaxInputChars)
			assert.Equal(t, 30*time.Second, cfg.Timeout)
			assert.Equal(t, 1, cfg.Burst)
			assert.NoError(t, cfg.Validate())
		})
	}
}

func TestProviderConfig_Validate(t *testing.T) {
	valid := func() ProviderConfig {
		c := ProviderConfig{}
		c.ApplyDefaults()
		return c
	}

	tests := []struct {
		name   string
		mutate func(*ProviderConfig)
	}{
		{"unknown provider", func(c *ProviderConfig) { c.Provider = "openai" }},
		{"missing url", func(c *ProviderConfig) { c.BaseURL = "" }},
		{"missing model", func(c *ProviderConfig) { c.Model = "" }},
		{"zero dimension", func(c *ProviderConfig) { c.Dimension = 0 }},
		{"zero max chars", func(c *ProviderConfig) { c.MaxInputChars = 0 }},
		{"negative rate", func(c *ProviderConfig) { c.RateLimit = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
		})
	}
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(ProviderConfig{Provider: "ollama", BaseURL: "http://localhost:1"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &OllamaProvider{}, p)

	p, err = NewProvider(ProviderConfig{Provider: "tei", BaseURL: "http://localhost:1"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &TEIProvider{}, p)

	_, err = NewProvider(ProviderConfig{Provider: "bogus"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDetectDimensionFromModel(t *testing.T) {
	tests := map[string]int{
		"nomic-embed-text":                       768,
		"mxbai-embed-large":                      1024,
		"BAAI/bge-small-en-v1.5":                 384,
		"BAAI/bge-base-en-v1.5":                  768,
		"sentence-transformers/all-MiniLM-L6-v2": 384,
		"some-custom-model":                      768,
	}
	for model, want := range tests {
		assert.Equal(t, want, detectDimensionFromModel(model), model)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "ab", truncate("abc", 2))
	assert.Equal(t, "日本", truncate("日本語", 2))
	assert.Equal(t, "abc", truncate("abc", 0))
}

func TestCheckDimension(t *testing.T) {
	assert.NoError(t, checkDimension([]float32{1, 2}, 2))
	assert.NoError(t, checkDimension([]float32{1, 2}, 0))
	assert.ErrorIs(t, checkDimension(nil, 2), ErrEmbeddingFailed)
	assert.ErrorIs(t, checkDimension([]float32{1}, 2), ErrDimensionMismatch)
}
