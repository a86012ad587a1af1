package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/contextcore/internal/logging"
)

// setupTestHome points HOME at a temp dir and returns the config dir inside it.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".config", "contextcore")
	require.NoError(t, os.MkdirAll(dir, 0700))
	return dir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	setupTestHome(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAML(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `
server:
  http_port: 8181
  shutdown_timeout: 3s
storage:
  path: /tmp/contextcore/logs.db
embeddings:
  provider: tei
  base_url: http://tei:8080
  api_key: tei-secret
  dimension: 384
vectorstore:
  provider: qdrant
  qdrant:
    host: qdrant
    port: 6334
    collection: devlogs
    use_tls: true
search:
  overfetch_factor: 5
  index_timeout: 2s
logging:
  level: trace
  format: console
telemetry:
  service_name: contextcore-test
  sampling:
    rate: 0.5
`, 0600)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "/tmp/contextcore/logs.db", cfg.Storage.Path)
	assert.Equal(t, "tei", cfg.Embeddings.Provider)
	assert.Equal(t, "tei-secret", cfg.Embeddings.APIKey.Value())
	assert.Equal(t, 384, cfg.Embeddings.Dimension)
	assert.Equal(t, "qdrant", cfg.VectorStore.Provider)
	assert.Equal(t, "qdrant", cfg.VectorStore.Qdrant.Host)
	assert.Equal(t, "devlogs", cfg.VectorStore.Qdrant.Collection)
	assert.True(t, cfg.VectorStore.Qdrant.UseTLS)
	assert.Equal(t, 5, cfg.Search.OverfetchFactor)
	assert.Equal(t, 2*time.Second, cfg.Search.IndexTimeout.Duration())
	assert.Equal(t, logging.Level(logging.TraceLevel), cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "contextcore-test", cfg.Telemetry.ServiceName)
	assert.Equal(t, 0.5, cfg.Telemetry.Sampling.Rate)

	// Untouched keys keep their defaults.
	assert.Equal(t, 100, cfg.Search.MaxLimit)
	assert.Equal(t, 3, cfg.VectorStore.Qdrant.MaxRetries)
	assert.Equal(t, "contextcore", cfg.Logging.Fields["service"])
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server:\n  http_port: 8181\n", 0600)

	t.Setenv("CONTEXTCORE_SERVER_HTTP_PORT", "7070")
	t.Setenv("CONTEXTCORE_SEARCH_OVERFETCH_FACTOR", "4")
	t.Setenv("CONTEXTCORE_SEARCH_INDEX_TIMEOUT", "750ms")
	t.Setenv("CONTEXTCORE_VECTORSTORE_PROVIDER", "qdrant")
	t.Setenv("CONTEXTCORE_VECTORSTORE_QDRANT_API_KEY", "qdrant-secret")
	t.Setenv("CONTEXTCORE_VECTORSTORE_QDRANT_USE_TLS", "true")
	t.Setenv("CONTEXTCORE_EVENTS_ENABLED", "true")
	t.Setenv("CONTEXTCORE_EVENTS_URL", "nats://nats:4222")
	t.Setenv("CONTEXTCORE_LOGGING_LEVEL", "debug")
	t.Setenv("CONTEXTCORE_LOGGING_OUTPUT_STDERR", "true")
	t.Setenv("CONTEXTCORE_TELEMETRY_SHUTDOWN_TIMEOUT", "2s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Search.OverfetchFactor)
	assert.Equal(t, 750*time.Millisecond, cfg.Search.IndexTimeout.Duration())
	assert.Equal(t, "qdrant", cfg.VectorStore.Provider)
	assert.Equal(t, "qdrant-secret", cfg.VectorStore.Qdrant.APIKey.Value())
	assert.True(t, cfg.VectorStore.Qdrant.UseTLS)
	assert.True(t, cfg.Events.Enabled)
	assert.Equal(t, "nats://nats:4222", cfg.Events.URL)
	assert.Equal(t, logging.Level(zapcore.DebugLevel), cfg.Logging.Level)
	assert.True(t, cfg.Logging.Output.Stderr)
	assert.Equal(t, 2*time.Second, cfg.Telemetry.Shutdown.Timeout)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		perm    os.FileMode
		env     map[string]string
		wantErr string
	}{
		{name: "invalid yaml", content: "server: [", perm: 0600, wantErr: "failed to load config file"},
		{name: "world readable", content: "server: {}\n", perm: 0644, wantErr: "insecure config file permissions"},
		{name: "negative duration", content: "search:\n  index_timeout: -1s\n", perm: 0600, wantErr: "unmarshal"},
		{name: "invalid value", content: "vectorstore:\n  provider: faiss\n", perm: 0600, wantErr: "vectorstore.provider"},
		{name: "invalid env", content: "server: {}\n", perm: 0600,
			env: map[string]string{"CONTEXTCORE_SEARCH_OVERFETCH_FACTOR": "1"}, wantErr: "overfetch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.perm != 0600 && runtime.GOOS == "windows" {
				t.Skip("permission model differs on windows")
			}
			dir := setupTestHome(t)
			path := writeConfig(t, dir, tt.content, tt.perm)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_ReadOnlyFileAllowed(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server:\n  http_port: 9191\n", 0400)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
}

func TestLoad_FileTooLarge(t *testing.T) {
	dir := setupTestHome(t)
	big := "# " + strings.Repeat("x", maxConfigFileSize) + "\n"
	path := writeConfig(t, dir, big, 0600)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestValidateConfigPath(t *testing.T) {
	dir := setupTestHome(t)
	home := filepath.Dir(filepath.Dir(dir))

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"user config dir", filepath.Join(dir, "config.yaml"), false},
		{"nested in user dir", filepath.Join(dir, "envs", "dev.yaml"), false},
		{"system dir", "/etc/contextcore/config.yaml", false},
		{"outside allowed dirs", "/tmp/config.yaml", true},
		{"sibling with shared prefix", "/etc/contextcore-evil/config.yaml", true},
		{"traversal", filepath.Join(dir, "..", "..", "config.yaml"), true},
		{"home root", filepath.Join(home, "config.yaml"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfigPath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateConfigPath_Symlink(t *testing.T) {
	dir := setupTestHome(t)

	outside := filepath.Join(t.TempDir(), "evil.yaml")
	require.NoError(t, os.WriteFile(outside, []byte("server: {}\n"), 0600))
	link := filepath.Join(dir, "linked.yaml")
	require.NoError(t, os.Symlink(outside, link))

	assert.Error(t, validateConfigPath(link))
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		env, want string
	}{
		{"CONTEXTCORE_SERVER_HTTP_PORT", "server.http_port"},
		{"CONTEXTCORE_SEARCH_OVERFETCH_FACTOR", "search.overfetch_factor"},
		{"CONTEXTCORE_STORAGE_PATH", "storage.path"},
		{"CONTEXTCORE_VECTORSTORE_PROVIDER", "vectorstore.provider"},
		{"CONTEXTCORE_VECTORSTORE_QDRANT_USE_TLS", "vectorstore.qdrant.use_tls"},
		{"CONTEXTCORE_VECTORSTORE_CHROMEM_PATH", "vectorstore.chromem.path"},
		{"CONTEXTCORE_LOGGING_SAMPLING_ENABLED", "logging.sampling.enabled"},
		{"CONTEXTCORE_TELEMETRY_SERVICE_NAME", "telemetry.service_name"},
		{"CONTEXTCORE_TELEMETRY_METRICS_EXPORT_INTERVAL", "telemetry.metrics.export_interval"},
		{"CONTEXTCORE_DEBUG", "debug"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, envKey(tt.env), tt.env)
	}
}

func TestEnsureConfigDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	require.NoError(t, EnsureConfigDir())

	info, err := os.Stat(filepath.Join(home, ".config", "contextcore"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	if runtime.GOOS != "windows" {
		assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
	}

	path, err := DefaultConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "contextcore", "config.yaml"), path)
}
