package devlog

import (
	"context"
	"time"
)

// LogStore is durable keyed storage for logs and the source of truth.
//
// FindByID returns an error wrapping ErrNotFound when the id is unknown.
// FindByIDs silently skips unknown ids. FindAll applies the filter before
// the limit and orders by timestamp descending; limit <= 0 means no limit.
type LogStore interface {
	Save(ctx context.Context, log *Log) error
	FindByID(ctx context.Context, id string) (*Log, error)
	FindByIDs(ctx context.Context, ids []string) ([]*Log, error)
	FindAll(ctx context.Context, filter Filter, limit int) ([]*Log, error)
	FindByStatus(ctx context.Context, status IndexStatus, limit int) ([]*Log, error)
	UpdateIndexStatus(ctx context.Context, id string, status IndexStatus) error
	DeleteByID(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int, error)
}

// Embedder turns text into a fixed-dimension vector.
//
// Documents and queries are embedded separately because some models use
// different prefixes for each.
type Embedder interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// VectorIndex stores one vector per log id with a filterable payload.
//
// Upsert is idempotent: the last write for an id wins. Search returns ids
// ordered by score descending. Implementations apply as much of the filter
// natively as they can; the caller re-checks every constraint.
type VectorIndex interface {
	Upsert(ctx context.Context, id string, vector []float32, payload Payload) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, vector []float32, limit int, filter Filter) ([]ScoredID, error)
	Count(ctx context.Context) (int, error)
}

// Pinger is implemented by collaborators that support a health probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Payload is the metadata stored next to a vector.
type Payload struct {
	Tags      []string
	Module    string
	Type      LogType
	Timestamp time.Time
}

// PayloadFor builds the vector payload of a log.
func PayloadFor(l *Log) Payload {
	return Payload{
		Tags:      l.Tags,
		Module:    l.Module,
		Type:      l.Type,
		Timestamp: l.Timestamp,
	}
}

// ScoredID is a single vector search hit.
type ScoredID struct {
	ID    string
	Score float32
}

// EventType names a log lifecycle event.
type EventType string

const (
	EventAdded         EventType = "added"
	EventDeleted       EventType = "deleted"
	EventIndexDeferred EventType = "index_deferred"
	EventIndexed       EventType = "indexed"
	EventIndexDegraded EventType = "index_degraded"
)

// Event is published after a write-path state change.
type Event struct {
	Type       EventType `json:"type"`
	LogID      string    `json:"log_id"`
	Module     string    `json:"module,omitempty"`
	LogType    LogType   `json:"log_type,omitempty"`
	Stage      string    `json:"stage,omitempty"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher delivers lifecycle events. Delivery is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }
