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

// DefaultTEIURL is the default text-embeddings-inference endpoint.
const DefaultTEIURL = "http://localhost:8080"

// TEIProvider generates embeddings with a text-embeddings-inference server.
type TEIProvider struct {
	baseURL   string
	model     string
	apiKey    string
	dimension int
	maxChars  int
	client    *http.Client
	limiter   *rate.Limiter
	metrics   *embedMetrics
}

var _ Provider = (*TEIProvider)(nil)

// teiRequest is the request body for the TEI embed endpoint.
type teiRequest struct {
	Inputs   string `json:"inputs"`
	Truncate bool   `json:"truncate"`
}

// NewTEIProvider creates a TEI embedding provider.
func NewTEIProvider(cfg ProviderConfig, logger *zap.Logger) (*TEIProvider, error) {
	cfg.Provider = "tei"
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TEIProvider{
		baseURL:   cfg.BaseURL,
		model:     cfg.Model,
		apiKey:    cfg.APIKey,
		dimension: cfg.Dimension,
		maxChars:  cfg.MaxInputChars,
		client:    &http.Client{Timeout: cfg.Timeout},
		limiter:   newLimiter(cfg.RateLimit, cfg.Burst),
		metrics:   newEmbedMetrics(logger),
	}, nil
}

// EmbedDocument embeds a log's text.
func (p *TEIProvider) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return p.embed(ctx, "embed_document", text)
}

// EmbedQuery embeds a search query.
func (p *TEIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return p.embed(ctx, "embed_query", text)
}

func (p *TEIProvider) embed(ctx context.Context, operation, text string) (vec []float32, err error) {
	defer p.metrics.observe(ctx, p.model, operation)(&err)

	text, err = checkInput(text, p.maxChars)
	if err != nil {
		return nil, err
	}
	if err = wait(ctx, p.limiter); err != nil {
		return nil, err
	}

	body, err := json.Marshal(teiRequest{Inputs: text, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, string(respBody))
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrEmbeddingFailed, err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrEmbeddingFailed)
	}

	vec = vectors[0]
	if err = checkDimension(vec, p.dimension); err != nil {
		return nil, err
	}
	return vec, nil
}

// Ping checks the TEI /health endpoint.
func (p *TEIProvider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/health", http.NoBody)
	if err != nil {
		return fmt.Errorf("tei: creating ping request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("tei: ping failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tei: ping returned status %d", resp.StatusCode)
	}
	return nil
}

// Dimension returns the embedding dimension based on the configured model.
func (p *TEIProvider) Dimension() int { return p.dimension }

// ModelName returns the configured model.
func (p *TEIProvider) ModelName() string { return p.model }

// Close is a no-op for TEI since it uses HTTP.
func (p *TEIProvider) Close() error { return nil }
