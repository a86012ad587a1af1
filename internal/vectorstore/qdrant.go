package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/fyrsmithlabs/contextcore/internal/devlog"
)

const backendQdrant = "qdrant"

var tracer = otel.Tracer("github.com/fyrsmithlabs/contextcore/internal/vectorstore")

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	Host   string // default localhost
	Port   int    // gRPC port, default 6334
	APIKey string
	UseTLS bool

	CollectionName string // default contextcore_logs
	VectorSize     uint64 // embedder dimension
	Distance       qdrant.Distance

	MaxRetries     int           // transient gRPC failures, default 3
	RetryBackoff   time.Duration // first backoff, doubled per attempt
	RequestTimeout time.Duration // per call, default 10s
	MaxMessageSize int           // gRPC send/recv limit, default 50MB

	// CircuitBreakerThreshold consecutive failures open the breaker.
	CircuitBreakerThreshold int
}

// ApplyDefaults fills zero fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.CollectionName == "" {
		c.CollectionName = "contextcore_logs"
	}
	if c.Distance == 0 {
		c.Distance = qdrant.Distance_Cosine
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	if c.CircuitBreakerThreshold == 0 {
		c.CircuitBreakerThreshold = 5
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if err := ValidateCollectionName(c.CollectionName); err != nil {
		return err
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative", ErrInvalidConfig)
	}
	return nil
}

// QdrantIndex stores log vectors in a Qdrant collection over native gRPC.
//
// Point ids are the log UUIDs, so an upsert for an existing log replaces its
// vector and payload in place.
type QdrantIndex struct {
	client  *qdrant.Client
	config  QdrantConfig
	logger  *zap.Logger
	retrier *retrier
}

var _ Index = (*QdrantIndex)(nil)

// NewQdrantIndex connects to Qdrant, performs a health check and ensures the
// collection exists with keyword and integer payload indexes.
func NewQdrantIndex(ctx context.Context, config QdrantConfig, logger *zap.Logger) (*QdrantIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	qdrantConfig := &qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	}
	if !config.UseTLS {
		logger.Warn("qdrant gRPC using plaintext (TLS disabled)")
		qdrantConfig.GrpcOptions = append(qdrantConfig.GrpcOptions,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
	}

	client, err := qdrant.NewClient(qdrantConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	idx := &QdrantIndex{
		client:  client,
		config:  config,
		logger:  logger,
		retrier: newRetrier(config.MaxRetries, config.RetryBackoff, config.CircuitBreakerThreshold, logger),
	}

	if err := idx.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	if err := idx.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("qdrant index ready",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("collection", config.CollectionName),
		zap.Uint64("vector_size", config.VectorSize))
	return idx, nil
}

func (s *QdrantIndex) ensureCollection(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "QdrantIndex.EnsureCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", s.config.CollectionName))

	var exists bool
	err := s.call(ctx, "collection_exists", func(ctx context.Context) error {
		var err error
		exists, err = s.client.CollectionExists(ctx, s.config.CollectionName)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("checking collection %s: %w", s.config.CollectionName, err)
	}
	if exists {
		return nil
	}

	err = s.call(ctx, "create_collection", func(ctx context.Context) error {
		return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.config.CollectionName,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     s.config.VectorSize,
				Distance: s.config.Distance,
			}),
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", s.config.CollectionName, err)
	}

	indexes := map[string]qdrant.FieldType{
		payloadTags:      qdrant.FieldType_FieldTypeKeyword,
		payloadModule:    qdrant.FieldType_FieldTypeKeyword,
		payloadType:      qdrant.FieldType_FieldTypeKeyword,
		payloadTimestamp: qdrant.FieldType_FieldTypeInteger,
	}
	for field, fieldType := range indexes {
		err := s.call(ctx, "create_field_index", func(ctx context.Context) error {
			_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
				CollectionName: s.config.CollectionName,
				FieldName:      field,
				FieldType:      fieldType.Enum(),
				Wait:           qdrant.PtrOf(true),
			})
			return err
		})
		if err != nil {
			// Filtering still works without the index, only slower.
			s.logger.Warn("failed to create payload index",
				zap.String("field", field),
				zap.Error(err))
		}
	}

	s.logger.Info("created qdrant collection",
		zap.String("collection", s.config.CollectionName),
		zap.Uint64("vector_size", s.config.VectorSize))
	span.SetStatus(codes.Ok, "created")
	return nil
}

// call wraps one gRPC call with the request timeout, retries and metrics.
func (s *QdrantIndex) call(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := s.retrier.do(ctx, operation, func() error {
		callCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
		return fn(callCtx)
	})
	observe(backendQdrant, operation, start, err)
	return err
}

// Upsert stores or replaces the vector for id.
func (s *QdrantIndex) Upsert(ctx context.Context, id string, vector []float32, payload devlog.Payload) error {
	ctx, span := tracer.Start(ctx, "QdrantIndex.Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("log_id", id))

	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %q is not a UUID", ErrInvalidID, id)
	}
	if err := checkVector(vector, int(s.config.VectorSize)); err != nil {
		return err
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(id),
		Vectors: qdrant.NewVectors(vector...),
		Payload: buildQdrantPayload(payload),
	}
	err := s.call(ctx, "upsert", func(ctx context.Context) error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.config.CollectionName,
			Wait:           qdrant.PtrOf(true),
			Points:         []*qdrant.PointStruct{point},
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting point to collection %s: %w", s.config.CollectionName, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Delete removes the vector for id. Deleting an absent id is not an error.
func (s *QdrantIndex) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "QdrantIndex.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("log_id", id))

	if _, err := uuid.Parse(id); err != nil {
		// Nothing with a non-UUID id can have been stored.
		return nil
	}

	err := s.call(ctx, "delete", func(ctx context.Context) error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.config.CollectionName,
			Wait:           qdrant.PtrOf(true),
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Points{
					Points: &qdrant.PointsIdsList{
						Ids: []*qdrant.PointId{qdrant.NewIDUUID(id)},
					},
				},
			},
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting point from collection %s: %w", s.config.CollectionName, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search returns up to limit ids ordered by cosine similarity, with the
// filter applied natively.
func (s *QdrantIndex) Search(ctx context.Context, vector []float32, limit int, filter devlog.Filter) ([]devlog.ScoredID, error) {
	ctx, span := tracer.Start(ctx, "QdrantIndex.Search")
	defer span.End()
	span.SetAttributes(
		attribute.Int("limit", limit),
		attribute.Bool("filtered", !filter.IsEmpty()),
	)

	if limit <= 0 {
		return []devlog.ScoredID{}, nil
	}
	if err := checkVector(vector, int(s.config.VectorSize)); err != nil {
		return nil, err
	}

	var points []*qdrant.ScoredPoint
	err := s.call(ctx, "search", func(ctx context.Context) error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.CollectionName,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(limit)),
			Filter:         buildQdrantFilter(filter),
			WithPayload:    qdrant.NewWithPayload(false),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching collection %s: %w", s.config.CollectionName, err)
	}

	hits := make([]devlog.ScoredID, 0, len(points))
	for _, p := range points {
		if id := extractPointID(p.Id); id != "" {
			hits = append(hits, devlog.ScoredID{ID: id, Score: p.Score})
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(hits)))
	span.SetStatus(codes.Ok, "success")
	return hits, nil
}

// Count returns the exact number of points in the collection.
func (s *QdrantIndex) Count(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "QdrantIndex.Count")
	defer span.End()

	var n uint64
	err := s.call(ctx, "count", func(ctx context.Context) error {
		var err error
		n, err = s.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: s.config.CollectionName,
			Exact:          qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("counting collection %s: %w", s.config.CollectionName, err)
	}

	Vectors.WithLabelValues(backendQdrant).Set(float64(n))
	return int(n), nil
}

// Ping performs a health check on the Qdrant connection.
func (s *QdrantIndex) Ping(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "QdrantIndex.Ping")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	if _, err := s.client.HealthCheck(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("health check failed: %w", err)
	}
	span.SetStatus(codes.Ok, "healthy")
	return nil
}

// Dimension returns the configured vector size.
func (s *QdrantIndex) Dimension() int { return int(s.config.VectorSize) }

// Close closes the Qdrant gRPC connection.
func (s *QdrantIndex) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
