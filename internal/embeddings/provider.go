package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrEmptyInput indicates empty input text.
	ErrEmptyInput = errors.New("empty input text")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrDimensionMismatch indicates the model returned an unexpected vector size.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Provider generates embeddings for documents and queries.
type Provider interface {
	// EmbedDocument embeds text that will be stored in the index.
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
	// EmbedQuery embeds a search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// ModelName returns the configured model.
	ModelName() string
	// Ping checks that the provider is reachable.
	Ping(ctx context.Context) error
	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is the provider type: "ollama" (default), "tei" or "fastembed".
	Provider string
	// Model is the embedding model name.
	Model string
	// BaseURL is the HTTP endpoint (ollama and tei only).
	BaseURL string
	// APIKey is sent as a bearer token when set (tei only).
	APIKey string
	// Dimension overrides the dimension derived from the model name.
	Dimension int
	// MaxInputChars truncates input text before embedding (default: 8000).
	MaxInputChars int
	// Timeout bounds a single HTTP request (default: 30s).
	Timeout time.Duration
	// RateLimit caps requests per second; 0 disables limiting.
	RateLimit float64
	// Burst is the rate limiter burst size (default: 1).
	Burst int
	// CacheDir is the model cache directory (fastembed only).
	CacheDir string
}

// ApplyDefaults sets provider-specific defaults for unset fields.
func (c *ProviderConfig) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = "ollama"
	}
	switch c.Provider {
	case "ollama":
		if c.BaseURL == "" {
			c.BaseURL = DefaultOllamaURL
		}
		if c.Model == "" {
			c.Model = DefaultOllamaModel
		}
	case "tei":
		if c.BaseURL == "" {
			c.BaseURL = DefaultTEIURL
		}
		if c.Model == "" {
			c.Model = DefaultFastEmbedModel
		}
	case "fastembed":
		if c.Model == "" {
			c.Model = DefaultFastEmbedModel
		}
	}
	if c.Dimension == 0 {
		c.Dimension = detectDimensionFromModel(c.Model)
	}
	if c.MaxInputChars == 0 {
		c.MaxInputChars = 8000
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Burst == 0 {
		c.Burst = 1
	}
}

// Validate checks the configuration.
func (c *ProviderConfig) Validate() error {
	switch c.Provider {
	case "ollama", "tei":
		if c.BaseURL == "" {
			return fmt.Errorf("%w: base URL required for %s", ErrInvalidConfig, c.Provider)
		}
	case "fastembed":
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	if c.MaxInputChars <= 0 {
		return fmt.Errorf("%w: max input chars must be positive", ErrInvalidConfig)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%w: rate limit must not be negative", ErrInvalidConfig)
	}
	return nil
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg ProviderConfig, logger *zap.Logger) (Provider, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case "tei":
		p, err = NewTEIProvider(cfg, logger)
	case "fastembed":
		p, err = NewFastEmbedProvider(FastEmbedConfig{
			Model:         cfg.Model,
			CacheDir:      cfg.CacheDir,
			MaxInputChars: cfg.MaxInputChars,
		})
	default:
		p, err = NewOllamaProvider(cfg, logger)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("embedding provider initialized",
		zap.String("provider", cfg.Provider),
		zap.String("model", p.ModelName()),
		zap.Int("dimension", p.Dimension()))
	return p, nil
}

// detectDimensionFromModel returns the embedding dimension for a model name.
// Falls back to 768, the size of nomic-embed-text.
func detectDimensionFromModel(model string) int {
	if dim, ok := fastEmbedModelDimension(model); ok {
		return dim
	}
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "nomic-embed"):
		return 768
	case strings.Contains(m, "mxbai-embed-large"), strings.Contains(m, "large"):
		return 1024
	case strings.Contains(m, "base"):
		return 768
	case strings.Contains(m, "small"), strings.Contains(m, "mini"):
		return 384
	default:
		return 768
	}
}

// truncate cuts text to at most max runes.
func truncate(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	return string([]rune(text)[:max])
}

// checkInput trims and truncates text, rejecting empty input.
func checkInput(text string, max int) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	return truncate(text, max), nil
}

func checkDimension(vec []float32, want int) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty vector", ErrEmbeddingFailed)
	}
	if want > 0 && len(vec) != want {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), want)
	}
	return nil
}

func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func wait(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	if err := l.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %v", ErrEmbeddingFailed, err)
	}
	return nil
}
