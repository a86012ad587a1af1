// Package events publishes dev-log lifecycle events over NATS.
//
// Events are published to subjects of the form:
//
//	<prefix>.logs.added
//	<prefix>.logs.deleted
//	<prefix>.logs.index_deferred
//	<prefix>.logs.indexed
//	<prefix>.logs.index_degraded
//
// with the JSON-encoded devlog.Event as payload. Delivery is core NATS, at
// most once; consumers that need every event must reconcile against the
// log store.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contextcore/internal/devlog"
)

// DefaultSubjectPrefix is the subject prefix used when none is configured.
const DefaultSubjectPrefix = "contextcore"

// ErrClosed is returned when publishing on a closed publisher.
var ErrClosed = errors.New("events: publisher closed")

// Config configures the NATS connection.
type Config struct {
	// URL is the NATS server URL, e.g. nats://localhost:4222.
	URL string
	// SubjectPrefix namespaces all subjects.
	SubjectPrefix string
	// MaxReconnects bounds reconnect attempts (default: 5).
	MaxReconnects int
	// ReconnectWait is the delay between reconnect attempts (default: 1s).
	ReconnectWait time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = DefaultSubjectPrefix
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = 5
	}
	if c.ReconnectWait == 0 {
		c.ReconnectWait = time.Second
	}
}

// Subject returns the subject an event type is published on.
func Subject(prefix string, t devlog.EventType) string {
	return fmt.Sprintf("%s.logs.%s", prefix, t)
}

// Publisher publishes devlog events to NATS.
type Publisher struct {
	conn   *nats.Conn
	prefix string
	logger *zap.Logger
	owned  bool
}

var _ devlog.EventPublisher = (*Publisher)(nil)

// Connect dials NATS and returns a Publisher that owns the connection.
func Connect(cfg Config, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.URL == "" {
		return nil, errors.New("events: NATS URL is required")
	}
	cfg.ApplyDefaults()

	nc, err := nats.Connect(cfg.URL,
		nats.Name("contextcore"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}

	logger.Info("connected to NATS",
		zap.String("url", cfg.URL),
		zap.String("subject_prefix", cfg.SubjectPrefix))

	p := NewPublisher(nc, cfg.SubjectPrefix, logger)
	p.owned = true
	return p, nil
}

// NewPublisher wraps an existing connection. The caller keeps ownership of nc.
func NewPublisher(nc *nats.Conn, prefix string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Publisher{conn: nc, prefix: prefix, logger: logger}
}

// Publish sends event on its subject.
func (p *Publisher) Publish(ctx context.Context, event devlog.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.conn == nil || p.conn.IsClosed() {
		return ErrClosed
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	msg := nats.NewMsg(Subject(p.prefix, event.Type))
	msg.Header.Set("Content-Type", "application/json")
	msg.Header.Set("Log-Id", event.LogID)
	msg.Data = data

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publishing %s event: %w", event.Type, err)
	}

	p.logger.Debug("published event",
		zap.String("subject", msg.Subject),
		zap.String("log_id", event.LogID))
	return nil
}

// Subscribe delivers events of type t to handler until the subscription is
// drained. Messages that fail to decode are logged and dropped.
func (p *Publisher) Subscribe(t devlog.EventType, handler func(devlog.Event)) (*nats.Subscription, error) {
	subject := Subject(p.prefix, t)
	sub, err := p.conn.Subscribe(subject, func(msg *nats.Msg) {
		var event devlog.Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			p.logger.Warn("dropping malformed event",
				zap.String("subject", msg.Subject),
				zap.Error(err))
			return
		}
		handler(event)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", subject, err)
	}
	return sub, nil
}

// Flush waits until all published messages have been processed by the server.
func (p *Publisher) Flush(ctx context.Context) error {
	return p.conn.FlushWithContext(ctx)
}

// Ping reports whether the connection is up.
func (p *Publisher) Ping(context.Context) error {
	if p.conn == nil || !p.conn.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

// Close drains the connection if the publisher owns it.
func (p *Publisher) Close() error {
	if !p.owned || p.conn == nil || p.conn.IsClosed() {
		return nil
	}
	return p.conn.Drain()
}
