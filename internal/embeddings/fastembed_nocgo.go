//go:build !cgo

package embeddings

import (
	"context"
	"errors"
)

// ErrFastEmbedNotAvailable is returned when FastEmbed is not available (requires CGO).
var ErrFastEmbedNotAvailable = errors.New("fastembed: not available (binary built without CGO support, use the ollama or tei provider instead)")

// FastEmbedConfig holds configuration for the FastEmbed provider.
type FastEmbedConfig struct {
	Model         string
	CacheDir      string
	MaxInputChars int
}

// FastEmbedProvider is a stub for non-CGO builds.
type FastEmbedProvider struct{}

var _ Provider = (*FastEmbedProvider)(nil)

// NewFastEmbedProvider returns an error when CGO is not available.
func NewFastEmbedProvider(_ FastEmbedConfig) (*FastEmbedProvider, error) {
	return nil, ErrFastEmbedNotAvailable
}

func (p *FastEmbedProvider) EmbedDocument(context.Context, string) ([]float32, error) {
	return nil, ErrFastEmbedNotAvailable
}

func (p *FastEmbedProvider) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, ErrFastEmbedNotAvailable
}

func (p *FastEmbedProvider) Ping(context.Context) error { return ErrFastEmbedNotAvailable }
func (p *FastEmbedProvider) Dimension() int { return 0 }
func (p *FastEmbedProvider) ModelName() string { return "" }
func (p *FastEmbedProvider) Close() error { return nil }
