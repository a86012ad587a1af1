package devlog

import (
	"context"
	"time"
)

// Component health states.
const (
	HealthOK          = "ok"
	HealthUnavailable = "unavailable"
	HealthUnknown     = "unknown"
)

// ComponentHealth is the probe result of one collaborator.
type ComponentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthReport aggregates collaborator health.
//
// Status is "ok" when every component is healthy, "degraded" when only the
// embedder or vector index is down (logs can still be added and listed),
// and "unavailable" when the log store is down.
type HealthReport struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Logs       int                        `json:"logs"`
	Vectors    int                        `json:"vectors"`
	CheckedAt  time.Time                  `json:"checked_at"`
}

// Health probes the log store, embedder and vector index.
func (s *service) Health(ctx context.Context) *HealthReport {
	report := &HealthReport{
		Status:     "ok",
		Components: make(map[string]ComponentHealth, 3),
		CheckedAt:  s.now().UTC(),
	}

	store := probe(ctx, s.store)
	if store.Status != HealthUnavailable {
		if n, err := s.store.Count(ctx); err != nil {
			store = ComponentHealth{Status: HealthUnavailable, Error: err.Error()}
		} else {
			report.Logs = n
			store.Status = HealthOK
		}
	}
	report.Components["log_store"] = store
	if store.Status == HealthUnavailable {
		report.Status = "unavailable"
	}

	report.Components["embedder"] = probe(ctx, s.embedder)

	if n, err := s.index.Count(ctx); err != nil {
		report.Components["vector_index"] = ComponentHealth{Status: HealthUnavailable, Error: err.Error()}
	} else {
		report.Vectors = n
		report.Components["vector_index"] = probe(ctx, s.index)
	}

	if report.Status == "ok" {
		for _, c := range report.Components {
			if c.Status == HealthUnavailable {
				report.Status = "degraded"
				break
			}
		}
	}
	return report
}

func probe(ctx context.Context, v any) ComponentHealth {
	p, ok := v.(Pinger)
	if !ok {
		return ComponentHealth{Status: HealthUnknown}
	}
	if err := p.Ping(ctx); err != nil {
		return ComponentHealth{Status: HealthUnavailable, Error: err.Error()}
	}
	return ComponentHealth{Status: HealthOK}
}
