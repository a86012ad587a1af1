//go:build cgo

package embeddings

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
)

// FastEmbedConfig holds configuration for the FastEmbed provider.
type FastEmbedConfig struct {
	// Model is the embedding model to use.
	// Supported: BAAI/bge-small-en-v1.5 (default), BAAI/bge-base-en-v1.5,
	// sentence-transformers/all-MiniLM-L6-v2, etc.
	Model string

	// CacheDir is the directory to cache model files.
	// Defaults to ./local_cache
	CacheDir string

	// MaxInputChars truncates input text before tokenization.
	MaxInputChars int
}

// FastEmbedProvider provides embedding generation using local ONNX models.
type FastEmbedProvider struct {
	model     *fastembed.FlagEmbedding
	modelName string
	dimension int
	maxChars  int
	metrics   *embedMetrics
	mu        sync.RWMutex
}

var _ Provider = (*FastEmbedProvider)(nil)

// modelMapping maps friendly model names to fastembed model constants.
var modelMapping = map[string]fastembed.EmbeddingModel{
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-small-en":                      fastembed.BGESmallEN,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"BAAI/bge-base-en":                       fastembed.BGEBaseEN,
	"BAAI/bge-small-zh-v1.5":                 fastembed.BGESmallZH,
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
}

// NewFastEmbedProvider creates a new FastEmbed embedding provider.
func NewFastEmbedProvider(cfg FastEmbedConfig) (*FastEmbedProvider, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultFastEmbedModel
	}
	model, ok := modelMapping[cfg.Model]
	if !ok {
		model = fastembed.EmbeddingModel(cfg.Model)
	}
	dimension, known := fastEmbedModelDimension(string(model))
	if !known {
		dimension, known = fastEmbedModelDimension(cfg.Model)
	}
	if !known {
		return nil, fmt.Errorf("%w: unsupported model %q", ErrInvalidConfig, cfg.Model)
	}

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(".", "local_cache")
	}
	maxChars := cfg.MaxInputChars
	if maxChars == 0 {
		maxChars = 8000
	}

	showProgress := false
	flagEmbed, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                model,
		CacheDir:             cacheDir,
		MaxLength:            512,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing FastEmbed: %w", err)
	}

	return &FastEmbedProvider{
		model:     flagEmbed,
		modelName: cfg.Model,
		dimension: dimension,
		maxChars:  maxChars,
		metrics:   newEmbedMetrics(nil),
	}, nil
}

// EmbedDocument uses the "passage: " prefix recommended by BGE models.
func (p *FastEmbedProvider) EmbedDocument(ctx context.Context, text string) (vec []float32, err error) {
	defer p.metrics.observe(ctx, p.modelName, "embed_document")(&err)

	if text, err = checkInput(text, p.maxChars); err != nil {
		return nil, err
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	vectors, err := p.model.PassageEmbed([]string{text}, 1)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrEmbeddingFailed)
	}
	return vectors[0], checkDimension(vectors[0], p.dimension)
}

// EmbedQuery uses the "query: " prefix recommended by BGE models.
func (p *FastEmbedProvider) EmbedQuery(ctx context.Context, text string) (vec []float32, err error) {
	defer p.metrics.observe(ctx, p.modelName, "embed_query")(&err)

	if text, err = checkInput(text, p.maxChars); err != nil {
		return nil, err
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	vec, err = p.model.QueryEmbed(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vec, checkDimension(vec, p.dimension)
}

// Ping reports whether the model is loaded.
func (p *FastEmbedProvider) Ping(context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.model == nil {
		return fmt.Errorf("%w: model closed", ErrEmbeddingFailed)
	}
	return nil
}

// Dimension returns the embedding dimension for the current model.
func (p *FastEmbedProvider) Dimension() int { return p.dimension }

// ModelName returns the configured model.
func (p *FastEmbedProvider) ModelName() string { return p.modelName }

// Close releases resources held by the FastEmbed provider.
func (p *FastEmbedProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.model != nil {
		err := p.model.Destroy()
		p.model = nil
		return err
	}
	return nil
}
