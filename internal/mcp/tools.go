package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/contextcore/internal/devlog"
)

// timeLayout renders timestamps with the millisecond precision the store keeps.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

// logView is the tool representation of a devlog.Log.
type logView struct {
	ID          string   `json:"id" jsonschema:"Log ID"`
	Title       string   `json:"title" jsonschema:"Log title"`
	Content     string   `json:"content" jsonschema:"Full log content"`
	Tags        []string `json:"tags" jsonschema:"Tags attached to the log"`
	Module      string   `json:"module,omitempty" jsonschema:"Module the log belongs to"`
	Type        string   `json:"type" jsonschema:"Log type (FEATURE BUG DECISION or NOTE)"`
	Timestamp   string   `json:"timestamp" jsonschema:"When the logged event happened (RFC 3339)"`
	CreatedAt   string   `json:"created_at" jsonschema:"When the log was stored (RFC 3339)"`
	UpdatedAt   string   `json:"updated_at" jsonschema:"When the log was last updated (RFC 3339)"`
	IndexStatus string   `json:"index_status" jsonschema:"PENDING INDEXED or DEGRADED"`
}

func newLogView(l *devlog.Log) logView {
	tags := l.Tags
	if tags == nil {
		tags = []string{}
	}
	return logView{
		ID:          l.ID,
		Title:       l.Title,
		Content:     l.Content,
		Tags:        tags,
		Module:      l.Module,
		Type:        string(l.Type),
		Timestamp:   formatTime(l.Timestamp),
		CreatedAt:   formatTime(l.CreatedAt),
		UpdatedAt:   formatTime(l.UpdatedAt),
		IndexStatus: string(l.IndexStatus),
	}
}

type summaryView struct {
	ID          string   `json:"id" jsonschema:"Log ID"`
	Title       string   `json:"title" jsonschema:"Log title"`
	Preview     string   `json:"preview" jsonschema:"First characters of the content"`
	Tags        []string `json:"tags" jsonschema:"Tags attached to the log"`
	Module      string   `json:"module,omitempty" jsonschema:"Module the log belongs to"`
	Type        string   `json:"type" jsonschema:"Log type"`
	Timestamp   string   `json:"timestamp" jsonschema:"When the logged event happened (RFC 3339)"`
	IndexStatus string   `json:"index_status" jsonschema:"PENDING INDEXED or DEGRADED"`
}

func newSummaryView(s devlog.LogSummary) summaryView {
	tags := s.Tags
	if tags == nil {
		tags = []string{}
	}
	return summaryView{
		ID:          s.ID,
		Title:       s.Title,
		Preview:     s.Preview,
		Tags:        tags,
		Module:      s.Module,
		Type:        string(s.Type),
		Timestamp:   formatTime(s.Timestamp),
		IndexStatus: string(s.IndexStatus),
	}
}

type searchResultView struct {
	Log   logView `json:"log" jsonschema:"Matching log"`
	Score float64 `json:"score" jsonschema:"Similarity score, higher is better"`
}

// buildFilter parses the filter arguments shared by list_logs and search_logs.
func buildFilter(tags []string, module, logType, from, to string) (devlog.Filter, error) {
	fromT, err := devlog.ParseTimeBound(from, false)
	if err != nil {
		return devlog.Filter{}, fmt.Errorf("from: %w", err)
	}
	toT, err := devlog.ParseTimeBound(to, true)
	if err != nil {
		return devlog.Filter{}, fmt.Errorf("to: %w", err)
	}
	return devlog.BuildFilter(tags, module, logType, fromT, toT)
}

// add_log

type addLogInput struct {
	Title     string   `json:"title" jsonschema:"Short title of the log entry"`
	Content   string   `json:"content" jsonschema:"Full text of the log entry"`
	Tags      []string `json:"tags,omitempty" jsonschema:"Tags to attach"`
	Module    string   `json:"module,omitempty" jsonschema:"Module or component the entry concerns"`
	Type      string   `json:"type,omitempty" jsonschema:"FEATURE BUG DECISION or NOTE (default: NOTE)"`
	Timestamp string   `json:"timestamp,omitempty" jsonschema:"When the event happened, RFC 3339 (default: now)"`
}

type addLogOutput struct {
	Log              logView `json:"log" jsonschema:"The stored log"`
	IndexingDeferred bool    `json:"indexing_deferred" jsonschema:"True when the log is saved but not searchable yet"`
	DeferredStage    string  `json:"deferred_stage,omitempty" jsonschema:"Stage that failed (embed or index)"`
	DeferredReason   string  `json:"deferred_reason,omitempty" jsonschema:"Why indexing was deferred"`
}

// get_log, delete_log and reindex_log

type logIDInput struct {
	ID string `json:"id" jsonschema:"Log ID"`
}

type deleteLogOutput struct {
	ID      string `json:"id" jsonschema:"Deleted log ID"`
	Deleted bool   `json:"deleted" jsonschema:"True when the log was removed"`
}

type reindexLogOutput struct {
	ID          string `json:"id" jsonschema:"Log ID"`
	IndexStatus string `json:"index_status" jsonschema:"Index status after reindexing"`
}

// list_logs

type listLogsInput struct {
	Tags   []string `json:"tags,omitempty" jsonschema:"Match logs carrying any of these tags (entries may be comma-separated)"`
	Module string   `json:"module,omitempty" jsonschema:"Only logs of this module"`
	Type   string   `json:"type,omitempty" jsonschema:"Only logs of this type (FEATURE BUG DECISION or NOTE)"`
	From   string   `json:"from,omitempty" jsonschema:"Earliest timestamp, RFC 3339 or YYYY-MM-DD"`
	To     string   `json:"to,omitempty" jsonschema:"Latest timestamp, RFC 3339 or YYYY-MM-DD (a bare date includes the whole day)"`
	Limit  int      `json:"limit,omitempty" jsonschema:"Maximum logs to return (default: 50, max: 500)"`
}

type listLogsOutput struct {
	Logs  []summaryView `json:"logs" jsonschema:"Log summaries, newest first"`
	Count int           `json:"count" jsonschema:"Number of logs returned"`
}

// search_logs

type searchLogsInput struct {
	Query  string   `json:"query" jsonschema:"Natural language query"`
	Tags   []string `json:"tags,omitempty" jsonschema:"Match logs carrying any of these tags (entries may be comma-separated)"`
	Module string   `json:"module,omitempty" jsonschema:"Only logs of this module"`
	Type   string   `json:"type,omitempty" jsonschema:"Only logs of this type (FEATURE BUG DECISION or NOTE)"`
	From   string   `json:"from,omitempty" jsonschema:"Earliest timestamp, RFC 3339 or YYYY-MM-DD"`
	To     string   `json:"to,omitempty" jsonschema:"Latest timestamp, RFC 3339 or YYYY-MM-DD (a bare date includes the whole day)"`
	Limit  int      `json:"limit,omitempty" jsonschema:"Maximum results (default: 10, max: 100)"`
}

type searchLogsOutput struct {
	Results []searchResultView `json:"results" jsonschema:"Matches ordered by score"`
	Count   int                `json:"count" jsonschema:"Number of results"`
}

// get_project_context

type projectContextInput struct{}

type projectContextOutput struct {
	TotalLogs     int                 `json:"total_logs" jsonschema:"Number of stored logs"`
	LogsByModule  map[string][]string `json:"logs_by_module" jsonschema:"Log IDs grouped by module"`
	FeatureCount  int                 `json:"feature_count" jsonschema:"Number of FEATURE logs"`
	BugCount      int                 `json:"bug_count" jsonschema:"Number of BUG logs"`
	DecisionCount int                 `json:"decision_count" jsonschema:"Number of DECISION logs"`
	NoteCount     int                 `json:"note_count" jsonschema:"Number of NOTE logs"`
}

func textResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "add_log",
		Description: "Record a development log entry and index it for semantic search",
	}, instrument(s, "add_log", s.addLog))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_log",
		Description: "Fetch a single log entry by ID",
	}, instrument(s, "get_log", s.getLog))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_logs",
		Description: "List log summaries newest first, filtered by tags, module, type or date range",
	}, instrument(s, "list_logs", s.listLogs))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_logs",
		Description: "Search logs by meaning, optionally filtered by tags, module, type or date range",
	}, instrument(s, "search_logs", s.searchLogs))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "delete_log",
		Description: "Delete a log entry and its vector",
	}, instrument(s, "delete_log", s.deleteLog))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_project_context",
		Description: "Summarize all logs: totals per type and log IDs per module",
	}, instrument(s, "get_project_context", s.projectContext))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "reindex_log",
		Description: "Re-embed and re-index a log whose indexing was deferred or degraded",
	}, instrument(s, "reindex_log", s.reindexLog))
}

func (s *Server) addLog(ctx context.Context, _ *mcp.CallToolRequest, args addLogInput) (*mcp.CallToolResult, addLogOutput, error) {
	logType, err := devlog.ParseLogType(args.Type)
	if err != nil {
		return nil, addLogOutput{}, err
	}
	ts, err := devlog.ParseTimeBound(args.Timestamp, false)
	if err != nil {
		return nil, addLogOutput{}, fmt.Errorf("timestamp: %w", err)
	}

	var tags []string
	for _, t := range args.Tags {
		tags = append(tags, devlog.ParseTagList(t)...)
	}

	res, err := s.svc.AddLog(ctx, devlog.AddLogInput{
		Title:     args.Title,
		Content:   args.Content,
		Tags:      tags,
		Module:    args.Module,
		Type:      logType,
		Timestamp: ts,
	})
	if err != nil {
		return nil, addLogOutput{}, err
	}

	out := addLogOutput{Log: newLogView(res.Log)}
	if d := res.Deferred; d != nil {
		out.IndexingDeferred = true
		out.DeferredStage = d.Stage
		out.DeferredReason = d.Cause.Error()
		return textResult("Log saved: %s (indexing deferred at %s stage)", res.Log.ID, d.Stage), out, nil
	}
	return textResult("Log saved: %s", res.Log.ID), out, nil
}

func (s *Server) getLog(ctx context.Context, _ *mcp.CallToolRequest, args logIDInput) (*mcp.CallToolResult, logView, error) {
	l, err := s.svc.GetLog(ctx, args.ID)
	if err != nil {
		return nil, logView{}, err
	}
	return textResult("%s\n\n%s", l.Title, l.Content), newLogView(l), nil
}

func (s *Server) listLogs(ctx context.Context, _ *mcp.CallToolRequest, args listLogsInput) (*mcp.CallToolResult, listLogsOutput, error) {
	filter, err := buildFilter(args.Tags, args.Module, args.Type, args.From, args.To)
	if err != nil {
		return nil, listLogsOutput{}, err
	}
	summaries, err := s.svc.ListLogSummaries(ctx, devlog.ListInput{Filter: filter, Limit: args.Limit})
	if err != nil {
		return nil, listLogsOutput{}, err
	}

	out := listLogsOutput{Logs: make([]summaryView, 0, len(summaries))}
	for _, sum := range summaries {
		out.Logs = append(out.Logs, newSummaryView(sum))
	}
	out.Count = len(out.Logs)
	return textResult("Found %d logs", out.Count), out, nil
}

func (s *Server) searchLogs(ctx context.Context, _ *mcp.CallToolRequest, args searchLogsInput) (*mcp.CallToolResult, searchLogsOutput, error) {
	filter, err := buildFilter(args.Tags, args.Module, args.Type, args.From, args.To)
	if err != nil {
		return nil, searchLogsOutput{}, err
	}
	results, err := s.svc.SearchLogs(ctx, devlog.SearchInput{
		Query:  args.Query,
		Limit:  args.Limit,
		Filter: filter,
	})
	if err != nil {
		return nil, searchLogsOutput{}, err
	}

	out := searchLogsOutput{Results: make([]searchResultView, 0, len(results))}
	for _, r := range results {
		out.Results = append(out.Results, searchResultView{
			Log:   newLogView(r.Log),
			Score: float64(r.Score),
		})
	}
	out.Count = len(out.Results)
	return textResult("Found %d matching logs", out.Count), out, nil
}

func (s *Server) deleteLog(ctx context.Context, _ *mcp.CallToolRequest, args logIDInput) (*mcp.CallToolResult, deleteLogOutput, error) {
	if err := s.svc.DeleteLog(ctx, args.ID); err != nil {
		return nil, deleteLogOutput{}, err
	}
	return textResult("Log deleted: %s", args.ID), deleteLogOutput{ID: args.ID, Deleted: true}, nil
}

func (s *Server) projectContext(ctx context.Context, _ *mcp.CallToolRequest, _ projectContextInput) (*mcp.CallToolResult, projectContextOutput, error) {
	pc, err := s.svc.GetProjectContext(ctx)
	if err != nil {
		return nil, projectContextOutput{}, err
	}
	byModule := pc.LogsByModule
	if byModule == nil {
		byModule = map[string][]string{}
	}
	out := projectContextOutput{
		TotalLogs:     pc.TotalLogs,
		LogsByModule:  byModule,
		FeatureCount:  pc.FeatureCount,
		BugCount:      pc.BugCount,
		DecisionCount: pc.DecisionCount,
		NoteCount:     pc.NoteCount,
	}
	return textResult("%d logs: %d features, %d bugs, %d decisions, %d notes",
		out.TotalLogs, out.FeatureCount, out.BugCount, out.DecisionCount, out.NoteCount), out, nil
}

func (s *Server) reindexLog(ctx context.Context, _ *mcp.CallToolRequest, args logIDInput) (*mcp.CallToolResult, reindexLogOutput, error) {
	if err := s.svc.IndexLog(ctx, args.ID); err != nil {
		return nil, reindexLogOutput{}, err
	}
	return textResult("Log reindexed: %s", args.ID), reindexLogOutput{ID: args.ID, IndexStatus: string(devlog.StatusIndexed)}, nil
}
