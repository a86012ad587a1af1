package devlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/contextcore/internal/devlog"

// Service stores development logs and serves hybrid semantic/metadata search.
type Service interface {
	// AddLog saves a new log and indexes it. Indexing failures do not fail
	// the call; they are reported through AddLogResult.Deferred.
	AddLog(ctx context.Context, in AddLogInput) (*AddLogResult, error)

	// DeleteLog removes the vector first, then the log.
	DeleteLog(ctx context.Context, id string) error

	// GetLog returns a single log by id.
	GetLog(ctx context.Context, id string) (*Log, error)

	// SearchLogs ranks logs by semantic similarity to a query.
	SearchLogs(ctx context.Context, in SearchInput) ([]LogSearchResult, error)

	// ListLogSummaries lists logs newest first without touching the vector index.
	ListLogSummaries(ctx context.Context, in ListInput) ([]LogSummary, error)

	// GetProjectContext computes aggregate statistics over all logs.
	GetProjectContext(ctx context.Context) (*ProjectContext, error)

	// IndexLog (re)indexes an existing log and marks it INDEXED.
	IndexLog(ctx context.Context, id string) error

	// PendingLogs returns logs still waiting for a vector.
	PendingLogs(ctx context.Context, limit int) ([]*Log, error)

	// MarkDegraded records that indexing of a log was given up.
	MarkDegraded(ctx context.Context, id string) error

	// Health probes the log store, embedder and vector index.
	Health(ctx context.Context) *HealthReport
}

// Config configures the service.
type Config struct {
	// OverfetchFactor multiplies the search limit for the vector query (default: 3, min: 2).
	OverfetchFactor int

	// DefaultSearchLimit is used when SearchInput.Limit is zero (default: 10).
	DefaultSearchLimit int

	// MaxSearchLimit caps SearchInput.Limit (default: 100).
	MaxSearchLimit int

	// DefaultListLimit is used when ListInput.Limit is zero (default: 50).
	DefaultListLimit int

	// MaxListLimit caps ListInput.Limit (default: 500).
	MaxListLimit int

	// IndexTimeout bounds embedding plus upsert during AddLog (default: 15s).
	IndexTimeout time.Duration
}

// DefaultServiceConfig returns sensible defaults.
func DefaultServiceConfig() *Config {
	return &Config{
		OverfetchFactor:    3,
		DefaultSearchLimit: 10,
		MaxSearchLimit:     100,
		DefaultListLimit:   50,
		MaxListLimit:       500,
		IndexTimeout:       15 * time.Second,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.OverfetchFactor < 2 {
		return fmt.Errorf("overfetch factor must be at least 2, got %d", c.OverfetchFactor)
	}
	if c.DefaultSearchLimit <= 0 || c.MaxSearchLimit < c.DefaultSearchLimit {
		return fmt.Errorf("invalid search limits: default=%d max=%d", c.DefaultSearchLimit, c.MaxSearchLimit)
	}
	if c.DefaultListLimit <= 0 || c.MaxListLimit < c.DefaultListLimit {
		return fmt.Errorf("invalid list limits: default=%d max=%d", c.DefaultListLimit, c.MaxListLimit)
	}
	if c.IndexTimeout <= 0 {
		return fmt.Errorf("index timeout must be positive")
	}
	return nil
}

// Deps are the collaborators of the service.
type Deps struct {
	Store     LogStore
	Embedder  Embedder
	Index     VectorIndex
	Publisher EventPublisher // optional
	Logger    *zap.Logger    // optional
}

// service implements the Service interface.
type service struct {
	config    *Config
	store     LogStore
	embedder  Embedder
	index     VectorIndex
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time

	tracer         trace.Tracer
	meter          metric.Meter
	addCounter     metric.Int64Counter
	deferCounter   metric.Int64Counter
	searchCounter  metric.Int64Counter
	orphanCounter  metric.Int64Counter
	searchDuration metric.Float64Histogram
}

// NewService creates a new devlog service.
func NewService(cfg *Config, deps Deps) (Service, error) {
	if cfg == nil {
		cfg = DefaultServiceConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid service config: %w", err)
	}
	if deps.Store == nil {
		return nil, errors.New("log store is required")
	}
	if deps.Embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if deps.Index == nil {
		return nil, errors.New("vector index is required")
	}
	if d, ok := deps.Index.(interface{ Dimension() int }); ok {
		if d.Dimension() != deps.Embedder.Dimension() {
			return nil, fmt.Errorf("embedder dimension %d does not match vector index dimension %d",
				deps.Embedder.Dimension(), d.Dimension())
		}
	}
	if deps.Publisher == nil {
		deps.Publisher = nopPublisher{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	s := &service{
		config:    cfg,
		store:     deps.Store,
		embedder:  deps.Embedder,
		index:     deps.Index,
		publisher: deps.Publisher,
		logger:    deps.Logger,
		now:       time.Now,
		tracer:    otel.Tracer(instrumentationName),
		meter:     otel.Meter(instrumentationName),
	}
	s.initMetrics()

	return s, nil
}

func (s *service) initMetrics() {
	var err error

	s.addCounter, err = s.meter.Int64Counter(
		"contextcore.logs.added_total",
		metric.WithDescription("Total number of logs added"),
		metric.WithUnit("{log}"),
	)
	if err != nil {
		s.logger.Warn("failed to create add counter", zap.Error(err))
	}

	s.deferCounter, err = s.meter.Int64Counter(
		"contextcore.logs.indexing_deferred_total",
		metric.WithDescription("Logs saved without a vector, labeled by failing stage"),
		metric.WithUnit("{log}"),
	)
	if err != nil {
		s.logger.Warn("failed to create deferred counter", zap.Error(err))
	}

	s.searchCounter, err = s.meter.Int64Counter(
		"contextcore.search.requests_total",
		metric.WithDescription("Total number of semantic searches"),
		metric.WithUnit("{search}"),
	)
	if err != nil {
		s.logger.Warn("failed to create search counter", zap.Error(err))
	}

	s.orphanCounter, err = s.meter.Int64Counter(
		"contextcore.search.orphans_total",
		metric.WithDescription("Vector hits dropped because no matching log exists"),
		metric.WithUnit("{vector}"),
	)
	if err != nil {
		s.logger.Warn("failed to create orphan counter", zap.Error(err))
	}

	s.searchDuration, err = s.meter.Float64Histogram(
		"contextcore.search.duration_seconds",
		metric.WithDescription("Semantic search latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		s.logger.Warn("failed to create search histogram", zap.Error(err))
	}
}

func (s *service) publish(ctx context.Context, ev Event) {
	ev.OccurredAt = s.now().UTC()
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("failed to publish log event",
			zap.String("event", string(ev.Type)),
			zap.String("log_id", ev.LogID),
			zap.Error(err),
		)
	}
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// GetLog returns a single log by id.
func (s *service) GetLog(ctx context.Context, id string) (*Log, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrValidation)
	}
	log, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, storageErr("find log", err)
	}
	return log, nil
}

// PendingLogs returns logs still waiting for a vector.
func (s *service) PendingLogs(ctx context.Context, limit int) ([]*Log, error) {
	logs, err := s.store.FindByStatus(ctx, StatusPending, limit)
	if err != nil {
		return nil, storageErr("find pending logs", err)
	}
	return logs, nil
}

// MarkDegraded records that indexing of a log was given up.
func (s *service) MarkDegraded(ctx context.Context, id string) error {
	if err := s.store.UpdateIndexStatus(ctx, id, StatusDegraded); err != nil {
		return storageErr("mark degraded", err)
	}
	s.logger.Warn("log indexing degraded", zap.String("log_id", id))
	s.publish(ctx, Event{Type: EventIndexDegraded, LogID: id})
	return nil
}
