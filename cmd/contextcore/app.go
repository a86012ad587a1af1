package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contextcore/internal/config"
	"github.com/fyrsmithlabs/contextcore/internal/devlog"
	"github.com/fyrsmithlabs/contextcore/internal/embeddings"
	"github.com/fyrsmithlabs/contextcore/internal/events"
	httpserver "github.com/fyrsmithlabs/contextcore/internal/http"
	"github.com/fyrsmithlabs/contextcore/internal/logging"
	"github.com/fyrsmithlabs/contextcore/internal/logstore"
	"github.com/fyrsmithlabs/contextcore/internal/mcp"
	"github.com/fyrsmithlabs/contextcore/internal/reconcile"
	"github.com/fyrsmithlabs/contextcore/internal/telemetry"
	"github.com/fyrsmithlabs/contextcore/internal/vectorstore"
)

// app holds every wired component. Fields are nil when the component is
// disabled or was not reached before a construction error.
type app struct {
	cfg    *config.Config
	tel    *telemetry.Telemetry
	logger *logging.Logger

	store      *logstore.SQLiteStore
	embedder   embeddings.Provider
	index      vectorstore.Index
	publisher  *events.Publisher
	svc        devlog.Service
	reconciler *reconcile.Reconciler

	wg sync.WaitGroup
}

// newApp wires the application:
//  1. Telemetry, then the logger on top of it
//  2. SQLite log store
//  3. Embedding provider and a vector index sized to it
//  4. NATS publisher (when enabled)
//  5. devlog service
//  6. Reconciler (when enabled), triggered by index_deferred events
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.tel, err = telemetry.New(ctx, &cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	a.logger, err = logging.NewLogger(&cfg.Logging, a.tel.LoggerProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	zl := a.logger.Underlying()
	if hs := a.tel.Health(); hs.Degraded {
		a.logger.Warn(ctx, "telemetry degraded", zap.String("reason", hs.Reason))
	}

	storeCfg, err := cfg.LogStoreConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid storage config: %w", err)
	}
	a.store, err = logstore.NewSQLiteStore(storeCfg, zl)
	if err != nil {
		return nil, fmt.Errorf("failed to open log store: %w", err)
	}

	a.embedder, err = embeddings.NewProvider(cfg.EmbeddingsProviderConfig(), zl)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}

	a.index, err = vectorstore.NewIndex(ctx, cfg.VectorIndexConfig(), a.embedder.Dimension(), zl)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector index: %w", err)
	}

	var publisher devlog.EventPublisher
	if cfg.Events.Enabled {
		a.publisher, err = events.Connect(cfg.NATSConfig(), zl)
		if err != nil {
			return nil, err
		}
		publisher = a.publisher
	}

	a.svc, err = devlog.NewService(cfg.DevlogConfig(), devlog.Deps{
		Store:     a.store,
		Embedder:  a.embedder,
		Index:     a.index,
		Publisher: publisher,
		Logger:    zl,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create devlog service: %w", err)
	}

	if cfg.Reconcile.Enabled {
		a.reconciler, err = reconcile.New(a.svc, cfg.ReconcilerConfig(), zl)
		if err != nil {
			return nil, fmt.Errorf("failed to create reconciler: %w", err)
		}
		if a.publisher != nil {
			if _, err = a.publisher.Subscribe(devlog.EventIndexDeferred, a.reconciler.HandleEvent); err != nil {
				return nil, fmt.Errorf("failed to subscribe reconciler: %w", err)
			}
		}
	}

	fields := []zap.Field{
		zap.String("version", version),
		zap.String("log_store", a.store.Path()),
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.String("model", a.embedder.ModelName()),
		zap.Int("dimension", a.embedder.Dimension()),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.Bool("events", a.publisher != nil),
		zap.Bool("reconciler", a.reconciler != nil),
	}
	if key := cfg.VectorStore.Qdrant.APIKey; key.IsSet() && cfg.VectorStore.Provider == "qdrant" {
		fields = append(fields, logging.Secret("qdrant_api_key", key))
	}
	if key := cfg.Embeddings.APIKey; key.IsSet() {
		fields = append(fields, logging.Secret("embeddings_api_key", key))
	}
	a.logger.Info(ctx, "contextcore initialized", fields...)

	return a, nil
}

// startBackground runs the reconciler until ctx is done.
func (a *app) startBackground(ctx context.Context) {
	if a.reconciler == nil {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.reconciler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error(ctx, "reconciler stopped", zap.Error(err))
		}
	}()
}

func (a *app) newHTTPServer() (*httpserver.Server, error) {
	sc := a.cfg.Server
	var metrics http.Handler
	if sc.MetricsEnabled {
		metrics = promhttp.Handler()
	}
	return httpserver.NewServer(a.svc, a.logger, &httpserver.Config{
		Host:           sc.Host,
		Port:           sc.Port,
		ReadTimeout:    sc.ReadTimeout.Duration(),
		WriteTimeout:   sc.WriteTimeout.Duration(),
		MetricsHandler: metrics,
	})
}

// serveHTTP serves the HTTP API until ctx is cancelled, then shuts down
// within the configured timeout.
func (a *app) serveHTTP(ctx context.Context) error {
	srv, err := a.newHTTPServer()
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	a.startBackground(bgCtx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// serveMCP serves MCP tools over stdio until ctx is cancelled or the client
// disconnects.
func (a *app) serveMCP(ctx context.Context) error {
	srv, err := mcp.NewServer(&mcp.Config{
		Name:    "contextcore",
		Version: version,
		Logger:  a.logger,
	}, a.svc)
	if err != nil {
		return fmt.Errorf("failed to create mcp server: %w", err)
	}

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	a.startBackground(bgCtx)
	return srv.Run(ctx)
}

// Close waits for background work and releases resources in reverse order
// of construction.
func (a *app) Close() {
	a.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	closeWith := func(name string, fn func() error) {
		if err := fn(); err != nil && a.logger != nil {
			a.logger.Warn(ctx, "close failed", zap.String("component", name), zap.Error(err))
		}
	}

	if a.publisher != nil {
		closeWith("events", a.publisher.Close)
	}
	if a.index != nil {
		closeWith("vectorstore", a.index.Close)
	}
	if a.embedder != nil {
		closeWith("embeddings", a.embedder.Close)
	}
	if a.store != nil {
		closeWith("logstore", a.store.Close)
	}
	if a.tel != nil {
		closeWith("telemetry", func() error { return a.tel.Shutdown(ctx) })
	}
	if a.logger != nil {
		_ = a.logger.Sync() // Best-effort sync on shutdown
	}
}
