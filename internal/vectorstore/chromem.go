package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contextcore/internal/devlog"
)

const (
	backendChromem = "chromem"

	// tagKeyPrefix marks one metadata key per tag, since chromem metadata
	// is a flat string map and where clauses only test equality.
	tagKeyPrefix = "tag:"
)

// errQueryNotEmbedded is returned if chromem ever asks us to embed text;
// every document and query arrives with its vector.
var errQueryNotEmbedded = errors.New("chromem: text embedding is not supported, pass vectors")

// ChromemConfig holds configuration for the chromem-go embedded index.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty keeps the index in
	// memory only.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// Collection is the collection name.
	// Default: "contextcore_logs"
	Collection string

	// VectorSize is the expected embedding dimension.
	VectorSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "contextcore_logs"
	}
}

// Validate validates the configuration.
func (c ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.Collection)
}

// ChromemIndex stores log vectors in an embedded chromem-go collection.
//
// chromem always searches exhaustively, so constraints it cannot express as
// an equality where clause (several tags, date ranges) are applied here
// against the full candidate set before truncating to the limit.
type ChromemIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	config     ChromemConfig
	logger     *zap.Logger

	// mu serializes writes. Search holds it for reading so the document
	// count it sizes nResults from cannot shrink before the query runs.
	mu sync.RWMutex
}

var _ Index = (*ChromemIndex)(nil)

// NewChromemIndex opens or creates the index.
func NewChromemIndex(config ChromemConfig, logger *zap.Logger) (*ChromemIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	var db *chromem.DB
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		path, err := expandPath(config.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
		config.Path = path
	}

	// Must pass an embedding function; chromem substitutes OpenAI for nil.
	collection, err := db.GetOrCreateCollection(config.Collection, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", config.Collection, err)
	}

	logger.Info("chromem index initialized",
		zap.String("path", config.Path),
		zap.Bool("compress", config.Compress),
		zap.String("collection", config.Collection),
		zap.Int("vector_size", config.VectorSize),
		zap.Int("vectors", collection.Count()))

	return &ChromemIndex{
		db:         db,
		collection: collection,
		config:     config,
		logger:     logger,
	}, nil
}

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errQueryNotEmbedded
}

// expandPath expands ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// Upsert stores or replaces the vector for id.
func (s *ChromemIndex) Upsert(ctx context.Context, id string, vector []float32, payload devlog.Payload) (err error) {
	ctx, span := tracer.Start(ctx, "ChromemIndex.Upsert")
	defer span.End()
	defer func(start time.Time) { observe(backendChromem, "upsert", start, err) }(time.Now())
	span.SetAttributes(attribute.String("log_id", id))

	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidID)
	}
	if err = checkVector(vector, s.config.VectorSize); err != nil {
		return err
	}

	// chromem normalizes in place; keep the caller's slice intact.
	vec := make([]float32, len(vector))
	copy(vec, vector)

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.collection.AddDocument(ctx, chromem.Document{
		ID:        id,
		Metadata:  chromemMetadata(payload),
		Embedding: vec,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding document: %w", err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Delete removes the vector for id. Deleting an absent id is not an error.
func (s *ChromemIndex) Delete(ctx context.Context, id string) (err error) {
	ctx, span := tracer.Start(ctx, "ChromemIndex.Delete")
	defer span.End()
	defer func(start time.Time) { observe(backendChromem, "delete", start, err) }(time.Now())
	span.SetAttributes(attribute.String("log_id", id))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, getErr := s.collection.GetByID(ctx, id); getErr != nil {
		return nil
	}
	if err = s.collection.Delete(ctx, nil, nil, id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search returns up to limit ids ordered by cosine similarity.
func (s *ChromemIndex) Search(ctx context.Context, vector []float32, limit int, filter devlog.Filter) (hits []devlog.ScoredID, err error) {
	ctx, span := tracer.Start(ctx, "ChromemIndex.Search")
	defer span.End()
	defer func(start time.Time) { observe(backendChromem, "search", start, err) }(time.Now())
	span.SetAttributes(
		attribute.Int("limit", limit),
		attribute.Bool("filtered", !filter.IsEmpty()),
	)

	if limit <= 0 {
		return []devlog.ScoredID{}, nil
	}
	if err = checkVector(vector, s.config.VectorSize); err != nil {
		return nil, err
	}

	where, exact := chromemWhere(filter)

	s.mu.RLock()
	defer s.mu.RUnlock()

	// chromem requires nResults <= document count.
	total := s.collection.Count()
	if total == 0 {
		return []devlog.ScoredID{}, nil
	}
	n := limit
	if !exact || n > total {
		n = total
	}

	results, err := s.queryEmbedding(ctx, vector, n, where)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	hits = make([]devlog.ScoredID, 0, min(limit, len(results)))
	for _, r := range results {
		if !exact && !metadataMatches(r.Metadata, filter) {
			continue
		}
		hits = append(hits, devlog.ScoredID{ID: r.ID, Score: r.Similarity})
		if len(hits) == limit {
			break
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(hits)))
	span.SetStatus(codes.Ok, "success")
	return hits, nil
}

// queryEmbedding copies vector because chromem normalizes it in place.
// chromem caps n at the number of documents left after the where clause.
func (s *ChromemIndex) queryEmbedding(ctx context.Context, vector []float32, n int, where map[string]string) ([]chromem.Result, error) {
	vec := make([]float32, len(vector))
	copy(vec, vector)
	return s.collection.QueryEmbedding(ctx, vec, n, where, nil)
}

// Count returns the number of stored vectors.
func (s *ChromemIndex) Count(context.Context) (int, error) {
	n := s.collection.Count()
	Vectors.WithLabelValues(backendChromem).Set(float64(n))
	return n, nil
}

// Ping always succeeds for the embedded index.
func (s *ChromemIndex) Ping(context.Context) error { return nil }

// Dimension returns the configured vector size.
func (s *ChromemIndex) Dimension() int { return s.config.VectorSize }

// Close is a no-op: chromem persists on every write.
func (s *ChromemIndex) Close() error {
	s.logger.Info("chromem index closed")
	return nil
}

// chromemMetadata flattens a payload into chromem's string map.
func chromemMetadata(p devlog.Payload) map[string]string {
	md := map[string]string{
		payloadModule:    p.Module,
		payloadType:      string(p.Type),
		payloadTimestamp: strconv.FormatInt(p.Timestamp.UnixMilli(), 10),
	}
	for _, t := range p.Tags {
		md[tagKeyPrefix+t] = "1"
	}
	return md
}

// chromemWhere builds the equality where clause for filter. exact reports
// whether the clause expresses the whole filter.
func chromemWhere(f devlog.Filter) (where map[string]string, exact bool) {
	where = make(map[string]string, 3)
	exact = true
	if f.Module != "" {
		where[payloadModule] = f.Module
	}
	if f.Type != "" {
		where[payloadType] = string(f.Type)
	}
	switch len(f.Tags) {
	case 0:
	case 1:
		where[tagKeyPrefix+f.Tags[0]] = "1"
	default:
		exact = false
	}
	if f.DateRange != nil {
		exact = false
	}
	if len(where) == 0 {
		where = nil
	}
	return where, exact
}

// metadataMatches applies the parts of filter a where clause cannot express.
func metadataMatches(md map[string]string, f devlog.Filter) bool {
	if len(f.Tags) > 1 {
		found := false
		for _, t := range f.Tags {
			if _, ok := md[tagKeyPrefix+t]; ok {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.DateRange != nil {
		ms, err := strconv.ParseInt(md[payloadTimestamp], 10, 64)
		if err != nil {
			return false
		}
		if !f.DateRange.Contains(time.UnixMilli(ms)) {
			return false
		}
	}
	return true
}
