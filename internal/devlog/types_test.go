package devlog

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogType(t *testing.T) {
	tests := []struct {
		in      string
		want    LogType
		wantErr bool
	}{
		{"", TypeNote, false},
		{"feature", TypeFeature, false},
		{" Bug ", TypeBug, false},
		{"DECISION", TypeDecision, false},
		{"note", TypeNote, false},
		{"epic", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLogType(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeTags(t *testing.T) {
	assert.Equal(t, []string{"Auth", "auth", "db"}, NormalizeTags([]string{"db", "auth", "Auth", "auth", "", "  "}))
	assert.Equal(t, []string{}, NormalizeTags(nil))
}

func TestParseTagList(t *testing.T) {
	assert.Nil(t, ParseTagList(""))
	assert.Nil(t, ParseTagList("  "))
	assert.Equal(t, []string{"a", "b c", "d"}, ParseTagList(" a, b c ,,d"))
}

func TestFilterMatches(t *testing.T) {
	ts := time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC)
	log := &Log{Tags: []string{"a", "b"}, Module: "auth", Type: TypeBug, Timestamp: ts}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", Filter{}, true},
		{"any tag", Filter{Tags: []string{"b", "c"}}, true},
		{"no shared tag", Filter{Tags: []string{"x", "y"}}, false},
		{"tag case differs", Filter{Tags: []string{"A"}}, false},
		{"module", Filter{Module: "auth"}, true},
		{"other module", Filter{Module: "web"}, false},
		{"type", Filter{Type: TypeBug}, true},
		{"other type", Filter{Type: TypeFeature}, false},
		{"range inclusive", Filter{DateRange: &DateRange{From: ts, To: ts}}, true},
		{"open end", Filter{DateRange: &DateRange{From: ts.Add(-time.Hour)}}, true},
		{"before range", Filter{DateRange: &DateRange{From: ts.Add(time.Second)}}, false},
		{"after range", Filter{DateRange: &DateRange{To: ts.Add(-time.Second)}}, false},
		{"all constraints", Filter{Tags: []string{"a"}, Module: "auth", Type: TypeBug}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(log))
		})
	}

	assert.False(t, Filter{}.Matches(nil))
}

func TestFilterValidate(t *testing.T) {
	now := time.Now()
	assert.NoError(t, Filter{}.Validate())
	assert.NoError(t, Filter{DateRange: &DateRange{From: now}}.Validate())
	assert.ErrorIs(t, Filter{Type: "nope"}.Validate(), ErrValidation)
	assert.ErrorIs(t, Filter{DateRange: &DateRange{From: now, To: now.Add(-time.Minute)}}.Validate(), ErrValidation)

	assert.True(t, Filter{}.IsEmpty())
	assert.False(t, Filter{Module: "m"}.IsEmpty())
}

func TestSummaryPreview(t *testing.T) {
	short := &Log{ID: "1", Content: "short"}
	assert.Equal(t, "short", short.Summary().Preview)

	long := &Log{ID: "2", Content: strings.Repeat("é", previewLength+10)}
	p := long.Summary().Preview
	assert.True(t, strings.HasSuffix(p, "..."))
	assert.Equal(t, previewLength+3, len([]rune(p)))
}

func TestKind(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("%w: bad", ErrValidation), "validation"},
		{fmt.Errorf("wrapped: %w", ErrNotFound), "not_found"},
		{&IndexingDeferred{LogID: "x", Stage: StageEmbed, Cause: embeddingErr(cause)}, "indexing_deferred"},
		{embeddingErr(cause), "embedding_provider"},
		{vectorErr("search", cause), "vector_index"},
		{storageErr("save", cause), "storage"},
		{cause, "internal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Kind(tt.err))
	}
}

func TestStorageErrKeepsNotFound(t *testing.T) {
	err := storageErr("find", fmt.Errorf("%w: abc", ErrNotFound))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrStorage)
}

func TestNewLog(t *testing.T) {
	now := time.Date(2025, 1, 1, 10, 0, 0, 123456789, time.UTC)
	log, err := newLog("id-1", AddLogInput{Title: "t", Content: "c", Module: " api "}, now)
	require.NoError(t, err)
	assert.Equal(t, " api ", log.Module)
	assert.Equal(t, StatusPending, log.IndexStatus)
	assert.Equal(t, now.Truncate(time.Millisecond), log.Timestamp)
	assert.Equal(t, "t\n\nc", log.EmbeddingText())

	blank, err := newLog("id-2", AddLogInput{Title: "t", Content: "c", Module: "  "}, now)
	require.NoError(t, err)
	assert.Empty(t, blank.Module)

	long := strings.Repeat("x", MaxTitleLength)
	_, err = newLog("id-3", AddLogInput{Title: "  " + long + "\n", Content: "c"}, now)
	assert.NoError(t, err, "padding does not count toward the title limit")
}

func TestBuildFilter(t *testing.T) {
	f, err := BuildFilter([]string{"a, b", "c"}, "core ", "Bug", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, f.Tags)
	assert.Equal(t, "core ", f.Module)
	assert.Equal(t, TypeBug, f.Type)
	assert.Nil(t, f.DateRange)

	f, err = BuildFilter(nil, "   ", "", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.True(t, f.IsEmpty())

	_, err = BuildFilter(nil, "", "unknown", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, ErrValidation)
}
