package devlog

import (
	"errors"
	"fmt"
)

// Error kinds. Callers match them with errors.Is.
var (
	// ErrValidation is bad caller input. No state was changed.
	ErrValidation = errors.New("validation error")

	// ErrNotFound is returned for an unknown log id.
	ErrNotFound = errors.New("log not found")

	// ErrIndexingDeferred marks a log that was saved but is not searchable yet.
	ErrIndexingDeferred = errors.New("indexing deferred")

	// ErrEmbeddingProvider is a transient failure of the embedding provider.
	ErrEmbeddingProvider = errors.New("embedding provider error")

	// ErrVectorIndex is a transient failure of the vector index.
	ErrVectorIndex = errors.New("vector index error")

	// ErrStorage is a failure of the log store.
	ErrStorage = errors.New("storage error")
)

// Indexing stages reported by IndexingDeferred.
const (
	StageEmbed       = "embed"
	StageUpsert      = "upsert"
	StageMarkIndexed = "mark_indexed"
)

// IndexingDeferred describes why a saved log is not yet searchable.
type IndexingDeferred struct {
	LogID string
	Stage string
	Cause error
}

func (d *IndexingDeferred) Error() string {
	return fmt.Sprintf("indexing deferred for log %s at %s: %v", d.LogID, d.Stage, d.Cause)
}

func (d *IndexingDeferred) Unwrap() error { return d.Cause }

// Is matches ErrIndexingDeferred.
func (d *IndexingDeferred) Is(target error) bool {
	return target == ErrIndexingDeferred
}

// Kind returns the taxonomy name of err, or "internal" when unknown.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrIndexingDeferred):
		return "indexing_deferred"
	case errors.Is(err, ErrEmbeddingProvider):
		return "embedding_provider"
	case errors.Is(err, ErrVectorIndex):
		return "vector_index"
	case errors.Is(err, ErrStorage):
		return "storage"
	default:
		return "internal"
	}
}

func storageErr(op string, err error) error {
	if errors.Is(err, ErrStorage) || errors.Is(err, ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

func embeddingErr(err error) error {
	if errors.Is(err, ErrEmbeddingProvider) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrEmbeddingProvider, err)
}

func vectorErr(op string, err error) error {
	if errors.Is(err, ErrVectorIndex) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrVectorIndex, op, err)
}
