package logstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/contextcore/internal/devlog"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "logs.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, store.Close()) })
	return store
}

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testLog(id string, offset time.Duration, typ devlog.LogType, module string, tags ...string) *devlog.Log {
	ts := baseTime.Add(offset)
	return &devlog.Log{
		ID:          id,
		Title:       "title " + id,
		Content:     "content " + id,
		Tags:        tags,
		Module:      module,
		Type:        typ,
		Timestamp:   ts,
		CreatedAt:   ts,
		UpdatedAt:   ts,
		IndexStatus: devlog.StatusPending,
	}
}

func ids(logs []*devlog.Log) []string {
	out := make([]string, len(logs))
	for i, l := range logs {
		out[i] = l.ID
	}
	return out
}

func TestSQLiteStore_SaveAndFindByID(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	log := testLog("a", 0, devlog.TypeFeature, "authentication", "auth", "security")
	require.NoError(t, store.Save(ctx, log))

	got, err := store.FindByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, log.Title, got.Title)
	assert.Equal(t, log.Content, got.Content)
	assert.Equal(t, []string{"auth", "security"}, got.Tags)
	assert.Equal(t, "authentication", got.Module)
	assert.Equal(t, devlog.TypeFeature, got.Type)
	assert.True(t, log.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, devlog.StatusPending, got.IndexStatus)
}

func TestSQLiteStore_FindByID_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, devlog.ErrNotFound)
}

func TestSQLiteStore_SaveWithoutTags(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testLog("a", 0, devlog.TypeNote, "")))

	got, err := store.FindByID(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, got.Tags)
	assert.Empty(t, got.Module)
}

func TestSQLiteStore_SaveReplacesTags(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	log := testLog("a", 0, devlog.TypeNote, "", "old")
	require.NoError(t, store.Save(ctx, log))
	log.Tags = []string{"new"}
	require.NoError(t, store.Save(ctx, log))

	found, err := store.FindAll(ctx, devlog.Filter{Tags: []string{"old"}}, 0)
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = store.FindAll(ctx, devlog.Filter{Tags: []string{"new"}}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(found))
}

func TestSQLiteStore_FindByIDs_SkipsUnknown(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testLog("a", 0, devlog.TypeNote, "")))
	require.NoError(t, store.Save(ctx, testLog("b", time.Minute, devlog.TypeNote, "")))

	found, err := store.FindByIDs(ctx, []string{"a", "ghost", "b"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids(found))

	found, err = store.FindByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestSQLiteStore_FindAll_Filters(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	logs := []*devlog.Log{
		testLog("f1", 1*time.Hour, devlog.TypeFeature, "authentication", "auth", "security"),
		testLog("b1", 2*time.Hour, devlog.TypeBug, "authentication", "auth"),
		testLog("b2", 3*time.Hour, devlog.TypeBug, "authentication", "login"),
		testLog("b3", 4*time.Hour, devlog.TypeBug, "billing", "auth"),
		testLog("n1", 5*time.Hour, devlog.TypeNote, "", "css"),
	}
	for _, l := range logs {
		require.NoError(t, store.Save(ctx, l))
	}

	tests := []struct {
		name   string
		filter devlog.Filter
		limit  int
		want   []string
	}{
		{
			name: "no filter newest first",
			want: []string{"n1", "b3", "b2", "b1", "f1"},
		},
		{
			name:   "module and type",
			filter: devlog.Filter{Module: "authentication", Type: devlog.TypeBug},
			want:   []string{"b2", "b1"},
		},
		{
			name:   "tags any match",
			filter: devlog.Filter{Tags: []string{"security", "css"}},
			want:   []string{"n1", "f1"},
		},
		{
			name:   "tags no match",
			filter: devlog.Filter{Tags: []string{"x", "y"}},
			want:   []string{},
		},
		{
			name:   "tag filter applied before limit",
			filter: devlog.Filter{Tags: []string{"auth"}},
			limit:  2,
			want:   []string{"b3", "b1"},
		},
		{
			name: "date range inclusive",
			filter: devlog.Filter{DateRange: &devlog.DateRange{
				From: baseTime.Add(2 * time.Hour),
				To:   baseTime.Add(3 * time.Hour),
			}},
			want: []string{"b2", "b1"},
		},
		{
			name:  "limit",
			limit: 1,
			want:  []string{"n1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := store.FindAll(ctx, tt.filter, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(found))
		})
	}
}

func TestSQLiteStore_IndexStatus(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testLog("a", 0, devlog.TypeNote, "")))
	require.NoError(t, store.Save(ctx, testLog("b", time.Minute, devlog.TypeNote, "")))
	require.NoError(t, store.UpdateIndexStatus(ctx, "a", devlog.StatusIndexed))

	pending, err := store.FindByStatus(ctx, devlog.StatusPending, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(pending))

	got, err := store.FindByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, devlog.StatusIndexed, got.IndexStatus)

	err = store.UpdateIndexStatus(ctx, "missing", devlog.StatusIndexed)
	assert.ErrorIs(t, err, devlog.ErrNotFound)
}

func TestSQLiteStore_DeleteAndCount(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testLog("a", 0, devlog.TypeNote, "", "t1")))
	require.NoError(t, store.Save(ctx, testLog("b", time.Minute, devlog.TypeNote, "")))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	deleted, err := store.DeleteByID(ctx, "a")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.DeleteByID(ctx, "a")
	require.NoError(t, err)
	assert.False(t, deleted)

	n, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	found, err := store.FindAll(ctx, devlog.Filter{Tags: []string{"t1"}}, 0)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(Config{Path: path}, nil)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, testLog("a", 0, devlog.TypeNote, "")))
	require.NoError(t, store.Close())

	store, err = NewSQLiteStore(Config{Path: path}, nil)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.FindByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
	assert.NoError(t, store.Ping(ctx))
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	assert.NoError(t, cfg.Validate())

	cfg.MaxOpenConns = -1
	assert.Error(t, cfg.Validate())
}
