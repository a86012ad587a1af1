package mcp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/contextcore/internal/devlog"
)

func TestAddLogAndGetLog(t *testing.T) {
	h := newHarness(t)

	added := callOK[addLogOutput](t, h, "add_log", map[string]any{
		"title":     "Switch cache to LRU",
		"content":   "Replaced the FIFO cache with an LRU to fix eviction churn.",
		"tags":      []string{"cache, perf", "perf", "storage"},
		"module":    "cache",
		"type":      "decision",
		"timestamp": "2026-03-01T10:00:00Z",
	})

	assert.False(t, added.IndexingDeferred)
	assert.Empty(t, added.DeferredStage)
	assert.NotEmpty(t, added.Log.ID)
	assert.Equal(t, "Switch cache to LRU", added.Log.Title)
	assert.Equal(t, []string{"cache", "perf", "storage"}, added.Log.Tags)
	assert.Equal(t, "cache", added.Log.Module)
	assert.Equal(t, "DECISION", added.Log.Type)
	assert.Equal(t, "2026-03-01T10:00:00.000Z", added.Log.Timestamp)
	assert.Equal(t, string(devlog.StatusIndexed), added.Log.IndexStatus)

	got := callOK[logView](t, h, "get_log", map[string]any{"id": added.Log.ID})
	assert.Equal(t, added.Log, got)

	res := h.call(t, "get_log", map[string]any{"id": added.Log.ID})
	assert.Contains(t, resultText(res), "Switch cache to LRU")
}

func TestAddLog_DefaultsTypeAndTimestamp(t *testing.T) {
	h := newHarness(t)

	added := callOK[addLogOutput](t, h, "add_log", map[string]any{
		"title":   "Note",
		"content": "Something worth remembering.",
	})
	assert.Equal(t, "NOTE", added.Log.Type)
	assert.Equal(t, []string{}, added.Log.Tags)
	assert.Equal(t, added.Log.CreatedAt, added.Log.Timestamp)
}

func TestAddLog_Errors(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{
			name: "empty title",
			args: map[string]any{"title": " ", "content": "body"},
			want: "title is required",
		},
		{
			name: "empty content",
			args: map[string]any{"title": "t", "content": ""},
			want: "content is required",
		},
		{
			name: "unknown type",
			args: map[string]any{"title": "t", "content": "c", "type": "chore"},
			want: "unknown log type",
		},
		{
			name: "bad timestamp",
			args: map[string]any{"title": "t", "content": "c", "timestamp": "yesterday"},
			want: "timestamp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			text := callErr(t, h, "add_log", tt.args)
			assert.Contains(t, text, tt.want)

			out := callOK[listLogsOutput](t, h, "list_logs", nil)
			assert.Zero(t, out.Count, "failed add must not store anything")
		})
	}
}

func TestAddLog_DeferredThenReindex(t *testing.T) {
	h := newHarness(t)
	h.env.Embedder.FailWith(errors.New("embedding backend down"))

	added := callOK[addLogOutput](t, h, "add_log", map[string]any{
		"title":   "Flaky embedder",
		"content": "This log is saved without a vector.",
	})
	assert.True(t, added.IndexingDeferred)
	assert.Equal(t, devlog.StageEmbed, added.DeferredStage)
	assert.Contains(t, added.DeferredReason, "embedding backend down")
	assert.Equal(t, string(devlog.StatusPending), added.Log.IndexStatus)

	res := h.call(t, "add_log", map[string]any{"title": "again", "content": "still down"})
	require.False(t, res.IsError)
	assert.Contains(t, resultText(res), "indexing deferred")

	h.env.Embedder.FailWith(nil)

	reindexed := callOK[reindexLogOutput](t, h, "reindex_log", map[string]any{"id": added.Log.ID})
	assert.Equal(t, added.Log.ID, reindexed.ID)
	assert.Equal(t, string(devlog.StatusIndexed), reindexed.IndexStatus)

	got := callOK[logView](t, h, "get_log", map[string]any{"id": added.Log.ID})
	assert.Equal(t, string(devlog.StatusIndexed), got.IndexStatus)
}

func TestReindexLog_NotFound(t *testing.T) {
	h := newHarness(t)
	text := callErr(t, h, "reindex_log", map[string]any{"id": "missing"})
	assert.Contains(t, text, "log not found")
}

func TestGetLog_Errors(t *testing.T) {
	h := newHarness(t)

	assert.Contains(t, callErr(t, h, "get_log", map[string]any{"id": "missing"}), "log not found")
	assert.Contains(t, callErr(t, h, "get_log", map[string]any{"id": ""}), "id is required")
}

func seedLogs(t *testing.T, h *testHarness) (feature, bug, note *devlog.Log) {
	t.Helper()
	feature = h.env.MustAdd(t, devlog.AddLogInput{
		Title:   "Add export command",
		Content: "Export writes every log as JSON lines.",
		Tags:    []string{"cli", "export"},
		Module:  "cli",
		Type:    devlog.TypeFeature,
	})
	bug = h.env.MustAdd(t, devlog.AddLogInput{
		Title:   "Fix database migration ordering",
		Content: "Migrations ran out of order on a fresh database.",
		Tags:    []string{"db"},
		Module:  "storage",
		Type:    devlog.TypeBug,
	})
	note = h.env.MustAdd(t, devlog.AddLogInput{
		Title:   "Release checklist",
		Content: "Remember to tag the release and update the changelog.",
		Tags:    []string{"release"},
		Type:    devlog.TypeNote,
	})
	return feature, bug, note
}

func TestListLogs(t *testing.T) {
	h := newHarness(t)
	feature, bug, note := seedLogs(t, h)

	all := callOK[listLogsOutput](t, h, "list_logs", nil)
	require.Equal(t, 3, all.Count)
	ids := []string{all.Logs[0].ID, all.Logs[1].ID, all.Logs[2].ID}
	assert.ElementsMatch(t, []string{feature.ID, bug.ID, note.ID}, ids)
	for _, l := range all.Logs {
		assert.NotEmpty(t, l.Preview)
		assert.NotEmpty(t, l.Timestamp)
	}

	tests := []struct {
		name string
		args map[string]any
		want []string
	}{
		{name: "by module", args: map[string]any{"module": "storage"}, want: []string{bug.ID}},
		{name: "by type", args: map[string]any{"type": "feature"}, want: []string{feature.ID}},
		{name: "by any tag", args: map[string]any{"tags": []string{"db,release"}}, want: []string{bug.ID, note.ID}},
		{name: "no match", args: map[string]any{"module": "nope"}, want: nil},
		{name: "future range", args: map[string]any{"from": "2999-01-01"}, want: nil},
		{name: "limit", args: map[string]any{"limit": 1}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := callOK[listLogsOutput](t, h, "list_logs", tt.args)
			if tt.name == "limit" {
				assert.Equal(t, 1, out.Count)
				return
			}
			got := make([]string, 0, len(out.Logs))
			for _, l := range out.Logs {
				got = append(got, l.ID)
			}
			assert.ElementsMatch(t, tt.want, got)
			assert.Equal(t, len(tt.want), out.Count)
		})
	}
}

func TestListLogs_Errors(t *testing.T) {
	h := newHarness(t)

	assert.Contains(t, callErr(t, h, "list_logs", map[string]any{"limit": -1}), "limit")
	assert.Contains(t, callErr(t, h, "list_logs", map[string]any{"type": "epic"}), "unknown log type")
	assert.Contains(t, callErr(t, h, "list_logs", map[string]any{"from": "last week"}), "from")
	assert.Contains(t, callErr(t, h, "list_logs", map[string]any{
		"from": "2026-05-02",
		"to":   "2026-05-01",
	}), "date range")
}

func TestSearchLogs(t *testing.T) {
	h := newHarness(t)
	_, bug, _ := seedLogs(t, h)

	out := callOK[searchLogsOutput](t, h, "search_logs", map[string]any{
		"query": "database migration ordering",
	})
	require.NotZero(t, out.Count)
	assert.Equal(t, len(out.Results), out.Count)
	assert.Equal(t, bug.ID, out.Results[0].Log.ID)
	for i := 1; i < len(out.Results); i++ {
		assert.GreaterOrEqual(t, out.Results[i-1].Score, out.Results[i].Score)
	}

	filtered := callOK[searchLogsOutput](t, h, "search_logs", map[string]any{
		"query":  "database migration ordering",
		"module": "cli",
	})
	for _, r := range filtered.Results {
		assert.Equal(t, "cli", r.Log.Module)
	}

	limited := callOK[searchLogsOutput](t, h, "search_logs", map[string]any{
		"query": "log",
		"limit": 1,
	})
	assert.LessOrEqual(t, limited.Count, 1)
}

func TestSearchLogs_Errors(t *testing.T) {
	h := newHarness(t)

	assert.Contains(t, callErr(t, h, "search_logs", map[string]any{"query": ""}), "query is required")
	assert.Contains(t, callErr(t, h, "search_logs", map[string]any{"query": "x", "limit": -5}), "limit")
	assert.Contains(t, callErr(t, h, "search_logs", map[string]any{"query": "x", "to": "soon"}), "to")
}

func TestSearchLogs_VectorIndexDown(t *testing.T) {
	h := newHarness(t)
	seedLogs(t, h)
	h.env.Index.FailSearch(errors.New("connection refused"))

	text := callErr(t, h, "search_logs", map[string]any{"query": "release"})
	assert.Contains(t, text, "vector index error")
}

func TestDeleteLog(t *testing.T) {
	h := newHarness(t)
	_, bug, _ := seedLogs(t, h)

	out := callOK[deleteLogOutput](t, h, "delete_log", map[string]any{"id": bug.ID})
	assert.Equal(t, deleteLogOutput{ID: bug.ID, Deleted: true}, out)

	assert.Contains(t, callErr(t, h, "get_log", map[string]any{"id": bug.ID}), "log not found")
	assert.Contains(t, callErr(t, h, "delete_log", map[string]any{"id": bug.ID}), "log not found")

	search := callOK[searchLogsOutput](t, h, "search_logs", map[string]any{"query": "database migration ordering"})
	for _, r := range search.Results {
		assert.NotEqual(t, bug.ID, r.Log.ID)
	}
}

func TestGetProjectContext(t *testing.T) {
	h := newHarness(t)

	empty := callOK[projectContextOutput](t, h, "get_project_context", nil)
	assert.Zero(t, empty.TotalLogs)
	assert.Empty(t, empty.LogsByModule)

	feature, bug, _ := seedLogs(t, h)
	pc := callOK[projectContextOutput](t, h, "get_project_context", nil)

	assert.Equal(t, 3, pc.TotalLogs)
	assert.Equal(t, 1, pc.FeatureCount)
	assert.Equal(t, 1, pc.BugCount)
	assert.Equal(t, 0, pc.DecisionCount)
	assert.Equal(t, 1, pc.NoteCount)
	assert.Equal(t, map[string][]string{
		"cli":     {feature.ID},
		"storage": {bug.ID},
	}, pc.LogsByModule)

	res := h.call(t, "get_project_context", nil)
	assert.Contains(t, resultText(res), "3 logs")
}
