package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/contextcore/internal/devlog"
	"github.com/fyrsmithlabs/contextcore/internal/devlog/devlogtest"
	"github.com/fyrsmithlabs/contextcore/internal/logging"
	"github.com/fyrsmithlabs/contextcore/internal/telemetry"
)

type testServer struct {
	*Server
	env    *devlogtest.Env
	logger *logging.TestLogger
}

func newTestServer(t *testing.T, cfg *Config) *testServer {
	t.Helper()
	env := devlogtest.NewEnv(t, nil)
	logger := logging.NewTestLogger()

	srv, err := NewServer(env.Service, logger.Logger, cfg)
	require.NoError(t, err)
	return &testServer{Server: srv, env: env, logger: logger}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, kind string) {
	t.Helper()
	assert.Equal(t, status, rec.Code, rec.Body.String())
	body := decode[ErrorResponse](t, rec)
	assert.Equal(t, kind, body.Error)
	assert.NotEmpty(t, body.Message)
}

func TestNewServer(t *testing.T) {
	env := devlogtest.NewEnv(t, nil)

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		srv, err := NewServer(env.Service, logging.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", srv.config.Host)
		assert.Equal(t, 9090, srv.config.Port)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(env.Service, nil, nil)
		assert.ErrorContains(t, err, "logger is required")
	})

	t.Run("returns error when service is nil", func(t *testing.T) {
		_, err := NewServer(nil, logging.NewNop(), nil)
		assert.ErrorContains(t, err, "service cannot be nil")
	})
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[devlog.HealthReport](t, rec)
	assert.Equal(t, "ok", report.Components["log_store"].Status)

	require.NoError(t, ts.env.Store.Close())
	rec = ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	report = decode[devlog.HealthReport](t, rec)
	assert.Equal(t, devlog.HealthUnavailable, report.Status)
}

func TestLogLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/v1/logs", AddLogRequest{
		Title:   "JWT refresh",
		Content: "refresh tokens rotate on every login",
		Tags:    []string{"auth", "security"},
		Module:  "auth",
		Type:    "feature",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	added := decode[AddLogResponse](t, rec)
	require.NotNil(t, added.Log)
	assert.False(t, added.IndexingDeferred)
	assert.Equal(t, devlog.TypeFeature, added.Log.Type)
	assert.Equal(t, devlog.StatusIndexed, added.Log.IndexStatus)
	id := added.Log.ID

	rec = ts.do(t, http.MethodGet, "/api/v1/logs/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[devlog.Log](t, rec)
	assert.Equal(t, "JWT refresh", got.Title)
	assert.Equal(t, []string{"auth", "security"}, got.Tags)

	rec = ts.do(t, http.MethodPost, "/api/v1/search", SearchRequest{Query: "refresh tokens rotate on every login"})
	require.Equal(t, http.StatusOK, rec.Code)
	found := decode[SearchResponse](t, rec)
	require.Equal(t, 1, found.Count)
	assert.Equal(t, id, found.Results[0].Log.ID)

	rec = ts.do(t, http.MethodGet, "/api/v1/context", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pc := decode[devlog.ProjectContext](t, rec)
	assert.Equal(t, 1, pc.TotalLogs)
	assert.Equal(t, 1, pc.FeatureCount)
	assert.Equal(t, []string{id}, pc.LogsByModule["auth"])

	rec = ts.do(t, http.MethodDelete, "/api/v1/logs/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	assertError(t, ts.do(t, http.MethodGet, "/api/v1/logs/"+id, nil), http.StatusNotFound, "not_found")
	assertError(t, ts.do(t, http.MethodDelete, "/api/v1/logs/"+id, nil), http.StatusNotFound, "not_found")

	rec = ts.do(t, http.MethodPost, "/api/v1/search", SearchRequest{Query: "refresh tokens"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[SearchResponse](t, rec).Count)
}

func TestAddLogValidation(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name string
		body any
	}{
		{"missing title", AddLogRequest{Content: "c"}},
		{"missing content", AddLogRequest{Title: "t"}},
		{"unknown type", AddLogRequest{Title: "t", Content: "c", Type: "epic"}},
		{"malformed json", `{"title": `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertError(t, ts.do(t, http.MethodPost, "/api/v1/logs", tt.body), http.StatusBadRequest, "validation")
		})
	}

	rec := ts.do(t, http.MethodGet, "/api/v1/logs", nil)
	assert.Zero(t, decode[ListLogsResponse](t, rec).Count)
}

func TestAddLogDeferredAndReindex(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.env.Embedder.FailWith(errors.New("model loading"))

	rec := ts.do(t, http.MethodPost, "/api/v1/logs", AddLogRequest{Title: "cache", Content: "lru eviction"})
	require.Equal(t, http.StatusCreated, rec.Code)
	added := decode[AddLogResponse](t, rec)
	assert.True(t, added.IndexingDeferred)
	assert.Equal(t, devlog.StageEmbed, added.DeferredStage)
	assert.Contains(t, added.DeferredReason, "model loading")
	assert.Equal(t, devlog.StatusPending, added.Log.IndexStatus)

	assertError(t, ts.do(t, http.MethodPost, "/api/v1/logs/"+added.Log.ID+"/reindex", nil),
		http.StatusServiceUnavailable, "embedding_provider")

	ts.env.Embedder.FailWith(nil)
	rec = ts.do(t, http.MethodPost, "/api/v1/logs/"+added.Log.ID+"/reindex", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ReindexResponse{ID: added.Log.ID, IndexStatus: devlog.StatusIndexed}, decode[ReindexResponse](t, rec))

	assertError(t, ts.do(t, http.MethodPost, "/api/v1/logs/missing/reindex", nil), http.StatusNotFound, "not_found")
}

func TestSearchErrors(t *testing.T) {
	ts := newTestServer(t, nil)

	assertError(t, ts.do(t, http.MethodPost, "/api/v1/search", SearchRequest{}), http.StatusBadRequest, "validation")
	assertError(t, ts.do(t, http.MethodPost, "/api/v1/search", SearchRequest{Query: "q", Type: "nope"}),
		http.StatusBadRequest, "validation")

	from := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)
	assertError(t, ts.do(t, http.MethodPost, "/api/v1/search", SearchRequest{Query: "q", From: &from, To: &to}),
		http.StatusBadRequest, "validation")

	ts.env.Embedder.FailWith(errors.New("down"))
	assertError(t, ts.do(t, http.MethodPost, "/api/v1/search", SearchRequest{Query: "q"}),
		http.StatusServiceUnavailable, "embedding_provider")

	ts.env.Embedder.FailWith(nil)
	ts.env.Index.FailSearch(errors.New("qdrant unreachable"))
	assertError(t, ts.do(t, http.MethodPost, "/api/v1/search", SearchRequest{Query: "q"}),
		http.StatusServiceUnavailable, "vector_index")
}

func TestSearchFilters(t *testing.T) {
	ts := newTestServer(t, nil)
	bug := ts.env.MustAdd(t, devlog.AddLogInput{Title: "null deref", Content: "crash in session handler", Type: devlog.TypeBug, Tags: []string{"crash"}})
	ts.env.MustAdd(t, devlog.AddLogInput{Title: "session store", Content: "crash in session handler redesign", Type: devlog.TypeDecision})

	rec := ts.do(t, http.MethodPost, "/api/v1/search", SearchRequest{Query: "crash in session handler", Type: "bug"})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[SearchResponse](t, rec)
	require.Equal(t, 1, res.Count)
	assert.Equal(t, bug.ID, res.Results[0].Log.ID)

	rec = ts.do(t, http.MethodPost, "/api/v1/search", SearchRequest{Query: "crash in session handler", Tags: []string{"crash"}, Limit: 5})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[SearchResponse](t, rec).Count)
}

func TestListLogs(t *testing.T) {
	ts := newTestServer(t, nil)
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	a := ts.env.MustAdd(t, devlog.AddLogInput{Title: "a", Content: "a", Tags: []string{"db"}, Module: "store", Timestamp: day.Add(2 * time.Hour)})
	b := ts.env.MustAdd(t, devlog.AddLogInput{Title: "b", Content: "b", Tags: []string{"api"}, Type: devlog.TypeBug, Timestamp: day.Add(20 * time.Hour)})
	c := ts.env.MustAdd(t, devlog.AddLogInput{Title: "c", Content: "c", Timestamp: day.Add(30 * time.Hour)})

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"all newest first", "", []string{c.ID, b.ID, a.ID}},
		{"limit", "?limit=2", []string{c.ID, b.ID}},
		{"comma tags", "?tags=db,api", []string{b.ID, a.ID}},
		{"repeated tags", "?tags=db&tags=api", []string{b.ID, a.ID}},
		{"module", "?module=store", []string{a.ID}},
		{"type", "?type=bug", []string{b.ID}},
		{"date only covers whole day", "?from=2025-03-10&to=2025-03-10", []string{b.ID, a.ID}},
		{"rfc3339", "?from=2025-03-10T12:00:00Z", []string{c.ID, b.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodGet, "/api/v1/logs"+tt.query, nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			resp := decode[ListLogsResponse](t, rec)
			got := make([]string, len(resp.Logs))
			for i, s := range resp.Logs {
				got[i] = s.ID
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len(tt.want), resp.Count)
		})
	}

	for _, q := range []string{"?limit=ten", "?limit=-1", "?from=yesterday", "?type=epic"} {
		t.Run("invalid "+q, func(t *testing.T) {
			assertError(t, ts.do(t, http.MethodGet, "/api/v1/logs"+q, nil), http.StatusBadRequest, "validation")
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, nil)

	assertError(t, ts.do(t, http.MethodGet, "/api/v2/logs", nil), http.StatusNotFound, "not_found")
	assertError(t, ts.do(t, http.MethodPut, "/api/v1/logs", nil), http.StatusMethodNotAllowed, "method_not_allowed")
}

func TestStorageErrorHidesDetails(t *testing.T) {
	ts := newTestServer(t, nil)
	require.NoError(t, ts.env.Store.Close())

	rec := ts.do(t, http.MethodGet, "/api/v1/context", nil)
	assertError(t, rec, http.StatusInternalServerError, "storage")
	assert.Equal(t, "internal server error", decode[ErrorResponse](t, rec).Message)
	ts.logger.AssertLogged(t, zapcore.ErrorLevel, "request failed")
}

func TestRequestLogging(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/v1/logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	requestID := rec.Header().Get(echo.HeaderXRequestID)
	require.NotEmpty(t, requestID)

	ts.logger.AssertField(t, "http request", "request.id", requestID)
	ts.logger.AssertField(t, "http request", "transport", "http")
	ts.logger.AssertField(t, "http request", "uri", "/api/v1/logs")

	entries := ts.logger.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, http.StatusOK, entries[0].ContextMap()["status"])
}

func TestRequestLoggingRecordsErrorStatus(t *testing.T) {
	ts := newTestServer(t, nil)

	ts.do(t, http.MethodGet, "/api/v1/logs/nope", nil)

	entries := ts.logger.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, http.StatusNotFound, entries[0].ContextMap()["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	probe := prometheus.NewCounter(prometheus.CounterOpts{Name: "contextcore_probe_total", Help: "probe"})
	reg.MustRegister(probe)
	probe.Inc()

	ts := newTestServer(t, &Config{Host: "127.0.0.1", Port: 0, MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})})

	rec := ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "contextcore_probe_total 1"), rec.Body.String())

	withoutMetrics := newTestServer(t, nil)
	assert.Equal(t, http.StatusNotFound, withoutMetrics.do(t, http.MethodGet, "/metrics", nil).Code)
}

func TestHTTPMetrics(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	restore := tel.InstallGlobal()
	defer restore()

	ts := newTestServer(t, nil)
	ts.do(t, http.MethodGet, "/health", nil)
	ts.do(t, http.MethodGet, "/api/v1/logs/abc", nil)

	assert.EqualValues(t, 2, tel.CounterValue(t, "contextcore.http.requests_total"))
	assert.EqualValues(t, 2, tel.HistogramCount(t, "contextcore.http.request_duration_seconds"))
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "unmatched", normalizePath(""))
	assert.Equal(t, "unmatched", normalizePath("/*"))
	assert.Equal(t, "/api/v1/logs/:id", normalizePath("/api/v1/logs/:id"))
}

func TestStatusForKind(t *testing.T) {
	tests := map[string]int{
		"validation":         http.StatusBadRequest,
		"not_found":          http.StatusNotFound,
		"embedding_provider": http.StatusServiceUnavailable,
		"vector_index":       http.StatusServiceUnavailable,
		"storage":            http.StatusInternalServerError,
		"internal":           http.StatusInternalServerError,
	}
	for kind, want := range tests {
		assert.Equal(t, want, statusForKind(kind), kind)
	}
}
