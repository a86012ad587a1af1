// Package reconcile retries indexing of logs that were saved without a vector.
//
// AddLog treats the log store write as its durability boundary, so a failed
// embed or upsert leaves the log PENDING. The Reconciler sweeps PENDING logs
// on a fixed interval and whenever an index_deferred event arrives, and marks
// a log DEGRADED once it has failed MaxAttempts sweeps in a row.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contextcore/internal/devlog"
)

// Config configures the reconciler.
type Config struct {
	// Interval between periodic sweeps (default: 30s).
	Interval time.Duration
	// BatchSize caps the logs processed per sweep (default: 50).
	BatchSize int
	// MaxAttempts before a log is marked DEGRADED (default: 5).
	MaxAttempts int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Interval == 0 {
		c.Interval = 30 * time.Second
	}
	if c.BatchSize == 0 {
		c.BatchSize = 50
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 5
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return errors.New("reconcile: interval must be positive")
	}
	if c.BatchSize <= 0 {
		return errors.New("reconcile: batch size must be positive")
	}
	if c.MaxAttempts <= 0 {
		return errors.New("reconcile: max attempts must be positive")
	}
	return nil
}

// Indexer is the slice of devlog.Service the reconciler needs.
type Indexer interface {
	PendingLogs(ctx context.Context, limit int) ([]*devlog.Log, error)
	IndexLog(ctx context.Context, id string) error
	MarkDegraded(ctx context.Context, id string) error
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Scanned  int
	Indexed  int
	Failed   int
	Degraded int
}

// Reconciler re-indexes PENDING logs.
type Reconciler struct {
	svc    Indexer
	config Config
	logger *zap.Logger

	trigger chan struct{}

	mu       sync.Mutex
	attempts map[string]int
	running  sync.Mutex
}

// New creates a Reconciler.
func New(svc Indexer, cfg Config, logger *zap.Logger) (*Reconciler, error) {
	if svc == nil {
		return nil, errors.New("reconcile: indexer is required")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		svc:      svc,
		config:   cfg,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
		attempts: make(map[string]int),
	}, nil
}

// Sweep tries once to index every PENDING log in the next batch.
// Sweeps never overlap; a concurrent call waits for the running one.
func (r *Reconciler) Sweep(ctx context.Context) (SweepResult, error) {
	r.running.Lock()
	defer r.running.Unlock()

	var res SweepResult
	logs, err := r.svc.PendingLogs(ctx, r.config.BatchSize)
	if err != nil {
		return res, fmt.Errorf("listing pending logs: %w", err)
	}
	res.Scanned = len(logs)

	for _, l := range logs {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		err := r.svc.IndexLog(ctx, l.ID)
		if err == nil {
			res.Indexed++
			r.forget(l.ID)
			continue
		}
		if errors.Is(err, devlog.ErrNotFound) {
			// Deleted since it was listed.
			r.forget(l.ID)
			continue
		}

		res.Failed++
		n := r.recordAttempt(l.ID)
		r.logger.Warn("reindex attempt failed",
			zap.String("log_id", l.ID),
			zap.Int("attempt", n),
			zap.Int("max_attempts", r.config.MaxAttempts),
			zap.Error(err))

		if n >= r.config.MaxAttempts {
			if err := r.svc.MarkDegraded(ctx, l.ID); err != nil {
				r.logger.Error("failed to mark log degraded",
					zap.String("log_id", l.ID),
					zap.Error(err))
				continue
			}
			res.Degraded++
			r.forget(l.ID)
		}
	}

	if res.Scanned > 0 {
		r.logger.Info("reconcile sweep finished",
			zap.Int("scanned", res.Scanned),
			zap.Int("indexed", res.Indexed),
			zap.Int("failed", res.Failed),
			zap.Int("degraded", res.Degraded))
	}
	return res, nil
}

// Trigger requests a sweep as soon as Run is idle. Never blocks.
func (r *Reconciler) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// HandleEvent triggers a sweep for index_deferred events.
func (r *Reconciler) HandleEvent(e devlog.Event) {
	if e.Type == devlog.EventIndexDeferred {
		r.Trigger()
	}
}

// Run sweeps on every tick and trigger until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.logger.Info("reconciler started",
		zap.Duration("interval", r.config.Interval),
		zap.Int("batch_size", r.config.BatchSize),
		zap.Int("max_attempts", r.config.MaxAttempts))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return ctx.Err()
		case <-ticker.C:
		case <-r.trigger:
		}
		if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("reconcile sweep failed", zap.Error(err))
		}
	}
}

// Attempts returns the failed attempt count recorded for id.
func (r *Reconciler) Attempts(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[id]
}

func (r *Reconciler) recordAttempt(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[id]++
	return r.attempts[id]
}

func (r *Reconciler) forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attempts, id)
}
