package vectorstore

import (
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/fyrsmithlabs/contextcore/internal/devlog"
)

// Payload keys shared by both backends.
const (
	payloadTags      = "tags"
	payloadModule    = "module"
	payloadType      = "type"
	payloadTimestamp = "timestamp"
)

// buildQdrantPayload converts a log payload to Qdrant values.
// The timestamp is stored as unix milliseconds so it can be range-filtered.
func buildQdrantPayload(p devlog.Payload) map[string]*qdrant.Value {
	tags := make([]*qdrant.Value, len(p.Tags))
	for i, t := range p.Tags {
		tags[i] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: t}}
	}
	return map[string]*qdrant.Value{
		payloadTags:      {Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: tags}}},
		payloadModule:    {Kind: &qdrant.Value_StringValue{StringValue: p.Module}},
		payloadType:      {Kind: &qdrant.Value_StringValue{StringValue: string(p.Type)}},
		payloadTimestamp: {Kind: &qdrant.Value_IntegerValue{IntegerValue: p.Timestamp.UnixMilli()}},
	}
}

// buildQdrantFilter translates a devlog filter into native Qdrant conditions.
// Every constraint in the vocabulary is expressible, so nothing is left for
// the caller beyond its own re-check. Returns nil for an empty filter.
func buildQdrantFilter(f devlog.Filter) *qdrant.Filter {
	if f.IsEmpty() {
		return nil
	}

	var must []*qdrant.Condition
	if len(f.Tags) > 0 {
		must = append(must, fieldCondition(&qdrant.FieldCondition{
			Key: payloadTags,
			Match: &qdrant.Match{
				MatchValue: &qdrant.Match_Keywords{
					Keywords: &qdrant.RepeatedStrings{Strings: f.Tags},
				},
			},
		}))
	}
	if f.Module != "" {
		must = append(must, keywordCondition(payloadModule, f.Module))
	}
	if f.Type != "" {
		must = append(must, keywordCondition(payloadType, string(f.Type)))
	}
	if f.DateRange != nil {
		r := &qdrant.Range{}
		if !f.DateRange.From.IsZero() {
			r.Gte = qdrant.PtrOf(millis(f.DateRange.From))
		}
		if !f.DateRange.To.IsZero() {
			r.Lte = qdrant.PtrOf(millis(f.DateRange.To))
		}
		if r.Gte != nil || r.Lte != nil {
			must = append(must, fieldCondition(&qdrant.FieldCondition{Key: payloadTimestamp, Range: r}))
		}
	}

	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

func keywordCondition(key, value string) *qdrant.Condition {
	return fieldCondition(&qdrant.FieldCondition{
		Key: key,
		Match: &qdrant.Match{
			MatchValue: &qdrant.Match_Keyword{Keyword: value},
		},
	})
}

func fieldCondition(fc *qdrant.FieldCondition) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{Field: fc},
	}
}

func millis(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func extractPointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	if num := id.GetNum(); num != 0 {
		return fmt.Sprintf("%d", num)
	}
	return ""
}
