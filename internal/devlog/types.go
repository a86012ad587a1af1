package devlog

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxTitleLength is the maximum number of characters allowed in a log title.
const MaxTitleLength = 500

// previewLength is the number of runes kept in LogSummary.Preview.
const previewLength = 200

// LogType classifies a log entry.
type LogType string

const (
	// TypeFeature records work on a new capability.
	TypeFeature LogType = "FEATURE"
	// TypeBug records a defect and its fix.
	TypeBug LogType = "BUG"
	// TypeDecision records an architectural or product decision.
	TypeDecision LogType = "DECISION"
	// TypeNote is the default type for anything else.
	TypeNote LogType = "NOTE"
)

// ParseLogType parses a type name case-insensitively.
// An empty string yields TypeNote.
func ParseLogType(s string) (LogType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return TypeNote, nil
	case "FEATURE":
		return TypeFeature, nil
	case "BUG":
		return TypeBug, nil
	case "DECISION":
		return TypeDecision, nil
	case "NOTE":
		return TypeNote, nil
	default:
		return "", fmt.Errorf("%w: unknown log type %q (want FEATURE, BUG, DECISION or NOTE)", ErrValidation, s)
	}
}

// Valid reports whether t is one of the known log types.
func (t LogType) Valid() bool {
	switch t {
	case TypeFeature, TypeBug, TypeDecision, TypeNote:
		return true
	}
	return false
}

// IndexStatus tracks whether a log has a live vector in the index.
type IndexStatus string

const (
	// StatusPending means the log is stored but has no vector yet.
	StatusPending IndexStatus = "PENDING"
	// StatusIndexed means the log has exactly one vector under its id.
	StatusIndexed IndexStatus = "INDEXED"
	// StatusDegraded means indexing was given up after repeated failures.
	StatusDegraded IndexStatus = "DEGRADED"
)

// Log is a development-log entry. The Log Store is its source of truth.
type Log struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Content     string      `json:"content"`
	Tags        []string    `json:"tags"`
	Module      string      `json:"module,omitempty"`
	Type        LogType     `json:"type"`
	Timestamp   time.Time   `json:"timestamp"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	IndexStatus IndexStatus `json:"index_status"`
}

// EmbeddingText returns the text submitted to the embedding provider.
func (l *Log) EmbeddingText() string {
	return l.Title + "\n\n" + l.Content
}

// HasAnyTag reports whether the log shares at least one tag with tags.
func (l *Log) HasAnyTag(tags []string) bool {
	for _, want := range tags {
		for _, have := range l.Tags {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Summary returns a compact view of the log for listings.
func (l *Log) Summary() LogSummary {
	return LogSummary{
		ID:          l.ID,
		Title:       l.Title,
		Preview:     preview(l.Content),
		Tags:        l.Tags,
		Module:      l.Module,
		Type:        l.Type,
		Timestamp:   l.Timestamp,
		IndexStatus: l.IndexStatus,
	}
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= previewLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:previewLength]) + "..."
}

// LogSummary is the listing view of a Log.
type LogSummary struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Preview     string      `json:"preview"`
	Tags        []string    `json:"tags"`
	Module      string      `json:"module,omitempty"`
	Type        LogType     `json:"type"`
	Timestamp   time.Time   `json:"timestamp"`
	IndexStatus IndexStatus `json:"index_status"`
}

// LogSearchResult pairs a log with its similarity score. Higher is better.
type LogSearchResult struct {
	Log   *Log    `json:"log"`
	Score float32 `json:"score"`
}

// ProjectContext holds aggregate statistics over all logs.
type ProjectContext struct {
	TotalLogs     int                 `json:"total_logs"`
	LogsByModule  map[string][]string `json:"logs_by_module"`
	FeatureCount  int                 `json:"feature_count"`
	BugCount      int                 `json:"bug_count"`
	DecisionCount int                 `json:"decision_count"`
	NoteCount     int                 `json:"note_count"`
}

// AddLogInput carries the caller-supplied fields of a new log.
type AddLogInput struct {
	Title   string
	Content string
	Tags    []string
	Module  string
	// Type defaults to TypeNote when empty.
	Type LogType
	// Timestamp defaults to the creation time when zero.
	Timestamp time.Time
}

// AddLogResult is returned by a successful AddLog.
// Deferred is non-nil when the log was saved but could not be indexed yet.
type AddLogResult struct {
	Log      *Log
	Deferred *IndexingDeferred
}

// SearchInput configures SearchLogs.
type SearchInput struct {
	Query  string
	Limit  int
	Filter Filter
}

// ListInput configures ListLogSummaries.
type ListInput struct {
	Filter Filter
	Limit  int
}

// newLog validates in and builds a PENDING log stamped with now. Title,
// content and module are stored exactly as given; surrounding whitespace
// only matters for the blank and length checks.
func newLog(id string, in AddLogInput, now time.Time) (*Log, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, fmt.Errorf("%w: content is required", ErrValidation)
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return nil, fmt.Errorf("%w: title exceeds %d characters", ErrValidation, MaxTitleLength)
	}

	module := in.Module
	if strings.TrimSpace(module) == "" {
		module = ""
	}

	logType := in.Type
	if logType == "" {
		logType = TypeNote
	}
	if !logType.Valid() {
		return nil, fmt.Errorf("%w: unknown log type %q", ErrValidation, in.Type)
	}

	// Stores keep millisecond precision.
	now = now.UTC().Truncate(time.Millisecond)
	ts := in.Timestamp
	if ts.IsZero() {
		ts = now
	}

	return &Log{
		ID:          id,
		Title:       in.Title,
		Content:     in.Content,
		Tags:        NormalizeTags(in.Tags),
		Module:      module,
		Type:        logType,
		Timestamp:   ts.UTC().Truncate(time.Millisecond),
		CreatedAt:   now,
		UpdatedAt:   now,
		IndexStatus: StatusPending,
	}, nil
}

// NormalizeTags collapses duplicates and drops blank entries.
// Tags are compared exactly; case is preserved.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if strings.TrimSpace(t) == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ParseTagList splits a comma-separated tag list, trimming each entry.
func ParseTagList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
