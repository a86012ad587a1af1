package vectorstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Config selects and configures a vector index backend.
type Config struct {
	// Provider is "chromem" (default) or "qdrant".
	Provider string
	Chromem  ChromemConfig
	Qdrant   QdrantConfig
}

// NewIndex creates the configured index. dimension is the embedder's output
// size and fills in the backend's vector size when it is not set explicitly;
// an explicit size that disagrees is rejected.
//
// The chromem provider needs no external service:
//
//	idx, err := vectorstore.NewIndex(ctx, vectorstore.Config{}, 768, logger)
func NewIndex(ctx context.Context, cfg Config, dimension int, logger *zap.Logger) (Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}

	switch cfg.Provider {
	case "chromem", "":
		c := cfg.Chromem
		if c.VectorSize == 0 {
			c.VectorSize = dimension
		}
		if c.VectorSize != dimension {
			return nil, fmt.Errorf("%w: chromem vector size %d does not match embedder dimension %d",
				ErrDimensionMismatch, c.VectorSize, dimension)
		}
		return NewChromemIndex(c, logger)

	case "qdrant":
		q := cfg.Qdrant
		if q.VectorSize == 0 {
			q.VectorSize = uint64(dimension)
		}
		if int(q.VectorSize) != dimension {
			return nil, fmt.Errorf("%w: qdrant vector size %d does not match embedder dimension %d",
				ErrDimensionMismatch, q.VectorSize, dimension)
		}
		return NewQdrantIndex(ctx, q, logger)

	default:
		return nil, fmt.Errorf("%w: unsupported vectorstore provider %q (supported: chromem, qdrant)",
			ErrInvalidConfig, cfg.Provider)
	}
}
