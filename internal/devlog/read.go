package devlog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SearchLogs embeds the query, over-fetches from the vector index, hydrates
// hits from the log store and re-applies every filter before ranking.
func (s *service) SearchLogs(ctx context.Context, in SearchInput) ([]LogSearchResult, error) {
	ctx, span := s.tracer.Start(ctx, "devlog.SearchLogs")
	defer span.End()
	start := time.Now()

	query := strings.TrimSpace(in.Query)
	if query == "" {
		err := fmt.Errorf("%w: query is required", ErrValidation)
		recordSpanError(span, err)
		return nil, err
	}
	limit, err := s.searchLimit(in.Limit)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	if err := in.Filter.Validate(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	fetch := limit * s.config.OverfetchFactor
	span.SetAttributes(
		attribute.Int("limit", limit),
		attribute.Int("fetch", fetch),
		attribute.Bool("filtered", !in.Filter.IsEmpty()),
	)

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		err = embeddingErr(err)
		recordSpanError(span, err)
		return nil, err
	}

	hits, err := s.index.Search(ctx, vector, fetch, in.Filter)
	if err != nil {
		err = vectorErr("search", err)
		recordSpanError(span, err)
		return nil, err
	}

	results, err := s.hydrate(ctx, hits, in.Filter)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	sortResults(results)
	if len(results) > limit {
		results = results[:limit]
	}

	if s.searchCounter != nil {
		s.searchCounter.Add(ctx, 1)
	}
	if s.searchDuration != nil {
		s.searchDuration.Record(ctx, time.Since(start).Seconds())
	}
	span.SetAttributes(attribute.Int("hits", len(hits)), attribute.Int("results", len(results)))

	return results, nil
}

// hydrate loads the logs behind hits, dropping orphans and filter misses.
func (s *service) hydrate(ctx context.Context, hits []ScoredID, filter Filter) ([]LogSearchResult, error) {
	if len(hits) == 0 {
		return []LogSearchResult{}, nil
	}

	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ID)
	}

	logs, err := s.store.FindByIDs(ctx, ids)
	if err != nil {
		return nil, storageErr("hydrate search hits", err)
	}
	byID := make(map[string]*Log, len(logs))
	for _, l := range logs {
		byID[l.ID] = l
	}

	results := make([]LogSearchResult, 0, len(hits))
	seen := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		if _, dup := seen[h.ID]; dup {
			continue
		}
		seen[h.ID] = struct{}{}

		log, ok := byID[h.ID]
		if !ok {
			if s.orphanCounter != nil {
				s.orphanCounter.Add(ctx, 1)
			}
			s.logger.Warn("dropping orphan vector from search results",
				zap.String("log_id", h.ID),
				zap.Float32("score", h.Score),
			)
			continue
		}
		if !filter.Matches(log) {
			continue
		}
		results = append(results, LogSearchResult{Log: log, Score: h.Score})
	}
	return results, nil
}

// sortResults orders by score descending, then timestamp descending.
func sortResults(results []LogSearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Log.Timestamp.After(results[j].Log.Timestamp)
	})
}

func (s *service) searchLimit(limit int) (int, error) {
	switch {
	case limit < 0:
		return 0, fmt.Errorf("%w: limit must be positive, got %d", ErrValidation, limit)
	case limit == 0:
		return s.config.DefaultSearchLimit, nil
	case limit > s.config.MaxSearchLimit:
		return s.config.MaxSearchLimit, nil
	}
	return limit, nil
}

// ListLogSummaries lists logs newest first. Only the log store is consulted.
func (s *service) ListLogSummaries(ctx context.Context, in ListInput) ([]LogSummary, error) {
	ctx, span := s.tracer.Start(ctx, "devlog.ListLogSummaries")
	defer span.End()

	limit := in.Limit
	switch {
	case limit < 0:
		err := fmt.Errorf("%w: limit must be positive, got %d", ErrValidation, limit)
		recordSpanError(span, err)
		return nil, err
	case limit == 0:
		limit = s.config.DefaultListLimit
	case limit > s.config.MaxListLimit:
		limit = s.config.MaxListLimit
	}
	if err := in.Filter.Validate(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("limit", limit))

	logs, err := s.store.FindAll(ctx, in.Filter, limit)
	if err != nil {
		err = storageErr("list logs", err)
		recordSpanError(span, err)
		return nil, err
	}

	summaries := make([]LogSummary, 0, len(logs))
	for _, l := range logs {
		if len(summaries) == limit {
			break
		}
		summaries = append(summaries, l.Summary())
	}
	span.SetAttributes(attribute.Int("results", len(summaries)))
	return summaries, nil
}

// GetProjectContext scans all logs and aggregates counts by module and type.
func (s *service) GetProjectContext(ctx context.Context) (*ProjectContext, error) {
	ctx, span := s.tracer.Start(ctx, "devlog.GetProjectContext")
	defer span.End()

	logs, err := s.store.FindAll(ctx, Filter{}, 0)
	if err != nil {
		err = storageErr("scan logs", err)
		recordSpanError(span, err)
		return nil, err
	}

	pc := &ProjectContext{
		TotalLogs:    len(logs),
		LogsByModule: make(map[string][]string),
	}
	for _, l := range logs {
		if l.Module != "" {
			pc.LogsByModule[l.Module] = append(pc.LogsByModule[l.Module], l.ID)
		}
		switch l.Type {
		case TypeFeature:
			pc.FeatureCount++
		case TypeBug:
			pc.BugCount++
		case TypeDecision:
			pc.DecisionCount++
		case TypeNote:
			pc.NoteCount++
		}
	}
	for _, ids := range pc.LogsByModule {
		sort.Strings(ids)
	}

	span.SetAttributes(attribute.Int("total_logs", pc.TotalLogs))
	return pc, nil
}
