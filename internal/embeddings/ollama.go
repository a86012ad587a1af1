package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Ollama defaults.
const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "nomic-embed-text"
)

// OllamaProvider generates embeddings with an Ollama server.
type OllamaProvider struct {
	baseURL   string
	model     string
	dimension int
	maxChars  int
	client    *http.Client
	limiter   *rate.Limiter
	metrics   *embedMetrics
}

var _ Provider = (*OllamaProvider)(nil)

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// NewOllamaProvider creates an Ollama embedding provider.
func NewOllamaProvider(cfg ProviderConfig, logger *zap.Logger) (*OllamaProvider, error) {
	cfg.Provider = "ollama"
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OllamaProvider{
		baseURL:   cfg.BaseURL,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		maxChars:  cfg.MaxInputChars,
		client:    &http.Client{Timeout: cfg.Timeout},
		limiter:   newLimiter(cfg.RateLimit, cfg.Burst),
		metrics:   newEmbedMetrics(logger),
	}, nil
}

// EmbedDocument embeds a log's text.
func (p *OllamaProvider) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return p.embed(ctx, "embed_document", text)
}

// EmbedQuery embeds a search query.
func (p *OllamaProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return p.embed(ctx, "embed_query", text)
}

func (p *OllamaProvider) embed(ctx context.Context, operation, text string) (vec []float32, err error) {
	defer p.metrics.observe(ctx, p.model, operation)(&err)

	text, err = checkInput(text, p.maxChars)
	if err != nil {
		return nil, err
	}
	if err = wait(ctx, p.limiter); err != nil {
		return nil, err
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: p.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: ollama status %d: %s", ErrEmbeddingFailed, resp.StatusCode, string(respBody))
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrEmbeddingFailed, err)
	}

	vec = make([]float32, len(out.Embedding))
	for i, v := range out.Embedding {
		vec[i] = float32(v)
	}
	if err = checkDimension(vec, p.dimension); err != nil {
		return nil, err
	}
	return vec, nil
}

// Ping checks connectivity via the /api/tags endpoint without running inference.
func (p *OllamaProvider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return fmt.Errorf("ollama: creating ping request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: ping failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama: ping returned status %d", resp.StatusCode)
	}
	return nil
}

// Dimension returns the embedding vector size.
func (p *OllamaProvider) Dimension() int { return p.dimension }

// ModelName returns the configured model.
func (p *OllamaProvider) ModelName() string { return p.model }

// Close is a no-op; the HTTP client needs no cleanup.
func (p *OllamaProvider) Close() error { return nil }
