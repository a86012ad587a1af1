// Package vectorstore provides vector index implementations for dev-log search.
//
// Two backends are available: Qdrant over native gRPC for shared deployments,
// and chromem-go for embedded, single-process use. Both store one vector per
// log id with a payload carrying tags, module, type and timestamp, and both
// push as much of a devlog.Filter down to the backend as it supports.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/fyrsmithlabs/contextcore/internal/devlog"
)

var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates the backend could not be reached.
	ErrConnectionFailed = errors.New("failed to connect to vector backend")

	// ErrInvalidCollectionName indicates collection name validation failed.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrInvalidID indicates a point id the backend cannot store.
	ErrInvalidID = errors.New("invalid vector id")

	// ErrDimensionMismatch indicates a vector of the wrong size.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrCircuitOpen indicates calls are short-circuited after repeated failures.
	ErrCircuitOpen = errors.New("circuit breaker open")
)

// Index is a devlog.VectorIndex with lifecycle and health hooks.
type Index interface {
	devlog.VectorIndex

	// Dimension returns the configured vector size.
	Dimension() int

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// collectionNamePattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName validates a collection name against security rules.
// Rejects: uppercase, special chars, path traversal, spaces.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

func checkVector(vec []float32, want int) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}
	if want > 0 && len(vec) != want {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), want)
	}
	return nil
}
