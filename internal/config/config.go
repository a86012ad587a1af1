// Package config provides configuration loading for contextcore.
//
// Configuration is loaded from an optional YAML file and overridden by
// CONTEXTCORE_* environment variables. Every section has defaults, so an
// empty environment yields a runnable local setup: SQLite plus the embedded
// chromem index and a local Ollama embedder.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fyrsmithlabs/contextcore/internal/devlog"
	"github.com/fyrsmithlabs/contextcore/internal/embeddings"
	"github.com/fyrsmithlabs/contextcore/internal/events"
	"github.com/fyrsmithlabs/contextcore/internal/logging"
	"github.com/fyrsmithlabs/contextcore/internal/logstore"
	"github.com/fyrsmithlabs/contextcore/internal/reconcile"
	"github.com/fyrsmithlabs/contextcore/internal/telemetry"
	"github.com/fyrsmithlabs/contextcore/internal/vectorstore"
)

// Config holds the complete contextcore configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Storage     StorageConfig     `koanf:"storage"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Search      SearchConfig      `koanf:"search"`
	Events      EventsConfig      `koanf:"events"`
	Reconcile   ReconcileConfig   `koanf:"reconcile"`
	Logging     logging.Config    `koanf:"logging"`
	Telemetry   telemetry.Config  `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"http_port"`
	ReadTimeout     Duration `koanf:"read_timeout"`
	WriteTimeout    Duration `koanf:"write_timeout"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	// MetricsEnabled serves Prometheus metrics on /metrics.
	MetricsEnabled bool `koanf:"metrics_enabled"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig holds the SQLite log store configuration.
type StorageConfig struct {
	Path         string   `koanf:"path"`
	BusyTimeout  Duration `koanf:"busy_timeout"`
	MaxOpenConns int      `koanf:"max_open_conns"`
}

// EmbeddingsConfig holds embedding provider configuration.
type EmbeddingsConfig struct {
	Provider      string   `koanf:"provider"` // ollama, tei or fastembed
	Model         string   `koanf:"model"`
	BaseURL       string   `koanf:"base_url"`
	APIKey        Secret   `koanf:"api_key"`
	Dimension     int      `koanf:"dimension"`
	MaxInputChars int      `koanf:"max_input_chars"`
	Timeout       Duration `koanf:"timeout"`
	RateLimit     float64  `koanf:"rate_limit"`
	Burst         int      `koanf:"burst"`
	CacheDir      string   `koanf:"cache_dir"`
}

// VectorStoreConfig selects the vector index backend.
type VectorStoreConfig struct {
	Provider string        `koanf:"provider"` // chromem or qdrant
	Chromem  ChromemConfig `koanf:"chromem"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig holds embedded chromem-go configuration.
type ChromemConfig struct {
	Path       string `koanf:"path"`
	Compress   bool   `koanf:"compress"`
	Collection string `koanf:"collection"`
}

// QdrantConfig holds Qdrant gRPC client configuration.
type QdrantConfig struct {
	Host           string   `koanf:"host"`
	Port           int      `koanf:"port"`
	APIKey         Secret   `koanf:"api_key"`
	Collection     string   `koanf:"collection"`
	UseTLS         bool     `koanf:"use_tls"`
	MaxRetries     int      `koanf:"max_retries"`
	RetryBackoff   Duration `koanf:"retry_backoff"`
	RequestTimeout Duration `koanf:"request_timeout"`
}

// SearchConfig holds read and write path limits.
type SearchConfig struct {
	OverfetchFactor  int      `koanf:"overfetch_factor"`
	DefaultLimit     int      `koanf:"default_limit"`
	MaxLimit         int      `koanf:"max_limit"`
	DefaultListLimit int      `koanf:"default_list_limit"`
	MaxListLimit     int      `koanf:"max_list_limit"`
	IndexTimeout     Duration `koanf:"index_timeout"`
}

// EventsConfig holds NATS event publishing configuration.
type EventsConfig struct {
	Enabled       bool     `koanf:"enabled"`
	URL           string   `koanf:"url"`
	SubjectPrefix string   `koanf:"subject_prefix"`
	MaxReconnects int      `koanf:"max_reconnects"`
	ReconnectWait Duration `koanf:"reconnect_wait"`
}

// ReconcileConfig holds background re-indexing configuration.
type ReconcileConfig struct {
	Enabled     bool     `koanf:"enabled"`
	Interval    Duration `koanf:"interval"`
	BatchSize   int      `koanf:"batch_size"`
	MaxAttempts int      `koanf:"max_attempts"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	search := devlog.DefaultServiceConfig()
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            9090,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
			MetricsEnabled:  true,
		},
		Storage: StorageConfig{
			Path:         "~/.config/contextcore/logs.db",
			BusyTimeout:  Duration(5 * time.Second),
			MaxOpenConns: 4,
		},
		Embeddings: EmbeddingsConfig{
			Provider:      "ollama",
			BaseURL:       embeddings.DefaultOllamaURL,
			Model:         embeddings.DefaultOllamaModel,
			MaxInputChars: 8000,
			Timeout:       Duration(30 * time.Second),
			Burst:         1,
		},
		VectorStore: VectorStoreConfig{
			Provider: "chromem",
			Chromem: ChromemConfig{
				Path:       "~/.config/contextcore/vectorstore",
				Compress:   true,
				Collection: "contextcore_logs",
			},
			Qdrant: QdrantConfig{
				Host:           "localhost",
				Port:           6334,
				Collection:     "contextcore_logs",
				MaxRetries:     3,
				RetryBackoff:   Duration(time.Second),
				RequestTimeout: Duration(10 * time.Second),
			},
		},
		Search: SearchConfig{
			OverfetchFactor:  search.OverfetchFactor,
			DefaultLimit:     search.DefaultSearchLimit,
			MaxLimit:         search.MaxSearchLimit,
			DefaultListLimit: search.DefaultListLimit,
			MaxListLimit:     search.MaxListLimit,
			IndexTimeout:     Duration(search.IndexTimeout),
		},
		Events: EventsConfig{
			Enabled:       false,
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: events.DefaultSubjectPrefix,
			MaxReconnects: 5,
			ReconnectWait: Duration(time.Second),
		},
		Reconcile: ReconcileConfig{
			Enabled:     true,
			Interval:    Duration(30 * time.Second),
			BatchSize:   50,
			MaxAttempts: 5,
		},
		Logging:   *logging.NewDefaultConfig(),
		Telemetry: *telemetry.NewDefaultConfig(),
	}
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.http_port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}

	if strings.TrimSpace(c.Storage.Path) == "" {
		errs = append(errs, errors.New("storage.path is required"))
	}
	if c.Storage.MaxOpenConns < 0 {
		errs = append(errs, fmt.Errorf("storage.max_open_conns must not be negative, got %d", c.Storage.MaxOpenConns))
	}

	switch c.Embeddings.Provider {
	case "ollama", "tei":
		if c.Embeddings.BaseURL == "" {
			errs = append(errs, fmt.Errorf("embeddings.base_url is required for provider %q", c.Embeddings.Provider))
		}
	case "fastembed":
	default:
		errs = append(errs, fmt.Errorf("embeddings.provider must be ollama, tei or fastembed, got %q", c.Embeddings.Provider))
	}
	if c.Embeddings.Dimension < 0 {
		errs = append(errs, fmt.Errorf("embeddings.dimension must not be negative, got %d", c.Embeddings.Dimension))
	}
	if c.Embeddings.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("embeddings.rate_limit must not be negative, got %v", c.Embeddings.RateLimit))
	}

	switch c.VectorStore.Provider {
	case "chromem":
	case "qdrant":
		q := c.VectorStore.Qdrant
		if q.Host == "" {
			errs = append(errs, errors.New("vectorstore.qdrant.host is required"))
		}
		if q.Port <= 0 || q.Port > 65535 {
			errs = append(errs, fmt.Errorf("vectorstore.qdrant.port must be between 1 and 65535, got %d", q.Port))
		}
		if q.Collection == "" {
			errs = append(errs, errors.New("vectorstore.qdrant.collection is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("vectorstore.provider must be chromem or qdrant, got %q", c.VectorStore.Provider))
	}

	if err := c.DevlogConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("search: %w", err))
	}

	if c.Events.Enabled && c.Events.URL == "" {
		errs = append(errs, errors.New("events.url is required when events are enabled"))
	}

	if c.Reconcile.Enabled {
		if err := c.ReconcilerConfig().Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	return errors.Join(errs...)
}

// LogStoreConfig converts the storage section.
func (c *Config) LogStoreConfig() (logstore.Config, error) {
	path, err := expandHome(c.Storage.Path)
	if err != nil {
		return logstore.Config{}, err
	}
	return logstore.Config{
		Path:         path,
		BusyTimeout:  c.Storage.BusyTimeout.Duration(),
		MaxOpenConns: c.Storage.MaxOpenConns,
	}, nil
}

// EmbeddingsProviderConfig converts the embeddings section.
func (c *Config) EmbeddingsProviderConfig() embeddings.ProviderConfig {
	e := c.Embeddings
	return embeddings.ProviderConfig{
		Provider:      e.Provider,
		Model:         e.Model,
		BaseURL:       e.BaseURL,
		APIKey:        e.APIKey.Value(),
		Dimension:     e.Dimension,
		MaxInputChars: e.MaxInputChars,
		Timeout:       e.Timeout.Duration(),
		RateLimit:     e.RateLimit,
		Burst:         e.Burst,
		CacheDir:      e.CacheDir,
	}
}

// VectorIndexConfig converts the vectorstore section. Vector sizes are left
// unset so the index adopts the embedder's dimension.
func (c *Config) VectorIndexConfig() vectorstore.Config {
	v := c.VectorStore
	return vectorstore.Config{
		Provider: v.Provider,
		Chromem: vectorstore.ChromemConfig{
			Path:       v.Chromem.Path,
			Compress:   v.Chromem.Compress,
			Collection: v.Chromem.Collection,
		},
		Qdrant: vectorstore.QdrantConfig{
			Host:           v.Qdrant.Host,
			Port:           v.Qdrant.Port,
			APIKey:         v.Qdrant.APIKey.Value(),
			CollectionName: v.Qdrant.Collection,
			UseTLS:         v.Qdrant.UseTLS,
			MaxRetries:     v.Qdrant.MaxRetries,
			RetryBackoff:   v.Qdrant.RetryBackoff.Duration(),
			RequestTimeout: v.Qdrant.RequestTimeout.Duration(),
		},
	}
}

// DevlogConfig converts the search section.
func (c *Config) DevlogConfig() *devlog.Config {
	s := c.Search
	return &devlog.Config{
		OverfetchFactor:    s.OverfetchFactor,
		DefaultSearchLimit: s.DefaultLimit,
		MaxSearchLimit:     s.MaxLimit,
		DefaultListLimit:   s.DefaultListLimit,
		MaxListLimit:       s.MaxListLimit,
		IndexTimeout:       s.IndexTimeout.Duration(),
	}
}

// NATSConfig converts the events section.
func (c *Config) NATSConfig() events.Config {
	return events.Config{
		URL:           c.Events.URL,
		SubjectPrefix: c.Events.SubjectPrefix,
		MaxReconnects: c.Events.MaxReconnects,
		ReconnectWait: c.Events.ReconnectWait.Duration(),
	}
}

// ReconcilerConfig converts the reconcile section.
func (c *Config) ReconcilerConfig() reconcile.Config {
	return reconcile.Config{
		Interval:    c.Reconcile.Interval.Duration(),
		BatchSize:   c.Reconcile.BatchSize,
		MaxAttempts: c.Reconcile.MaxAttempts,
	}
}

// expandHome expands a leading ~ to the user's home directory.
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
