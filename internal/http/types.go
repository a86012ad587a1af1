package http

import (
	"time"

	"github.com/fyrsmithlabs/contextcore/internal/devlog"
)

// AddLogRequest is the request body for POST /api/v1/logs.
type AddLogRequest struct {
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Tags      []string   `json:"tags,omitempty"`
	Module    string     `json:"module,omitempty"`
	Type      string     `json:"type,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// AddLogResponse is the response body for POST /api/v1/logs.
//
// IndexingDeferred is true when the log was saved but is not searchable yet;
// the background reconciler retries indexing.
type AddLogResponse struct {
	Log              *devlog.Log `json:"log"`
	IndexingDeferred bool        `json:"indexing_deferred"`
	DeferredStage    string      `json:"deferred_stage,omitempty"`
	DeferredReason   string      `json:"deferred_reason,omitempty"`
}

// SearchRequest is the request body for POST /api/v1/search.
type SearchRequest struct {
	Query  string     `json:"query"`
	Limit  int        `json:"limit,omitempty"`
	Tags   []string   `json:"tags,omitempty"`
	Module string     `json:"module,omitempty"`
	Type   string     `json:"type,omitempty"`
	From   *time.Time `json:"from,omitempty"`
	To     *time.Time `json:"to,omitempty"`
}

// SearchResponse is the response body for POST /api/v1/search.
type SearchResponse struct {
	Results []devlog.LogSearchResult `json:"results"`
	Count   int                      `json:"count"`
}

// ListLogsResponse is the response body for GET /api/v1/logs.
type ListLogsResponse struct {
	Logs  []devlog.LogSummary `json:"logs"`
	Count int                 `json:"count"`
}

// ReindexResponse is the response body for POST /api/v1/logs/:id/reindex.
type ReindexResponse struct {
	ID          string             `json:"id"`
	IndexStatus devlog.IndexStatus `json:"index_status"`
}
