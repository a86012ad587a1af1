package devlog

import (
	"fmt"
	"strings"
	"time"
)

// DateRange bounds Log.Timestamp. Both ends are inclusive; a zero end is open.
type DateRange struct {
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// Filter is the fixed filter vocabulary shared by search and listing.
// Zero-valued fields do not constrain results.
type Filter struct {
	// Tags match with ANY semantics.
	Tags      []string   `json:"tags,omitempty"`
	Module    string     `json:"module,omitempty"`
	Type      LogType    `json:"type,omitempty"`
	DateRange *DateRange `json:"date_range,omitempty"`
}

// IsEmpty reports whether the filter constrains nothing.
func (f Filter) IsEmpty() bool {
	return len(f.Tags) == 0 && f.Module == "" && f.Type == "" && f.DateRange == nil
}

// Validate rejects unknown types and inverted date ranges.
func (f Filter) Validate() error {
	if f.Type != "" && !f.Type.Valid() {
		return fmt.Errorf("%w: unknown log type %q", ErrValidation, f.Type)
	}
	if f.DateRange != nil && !f.DateRange.From.IsZero() && !f.DateRange.To.IsZero() &&
		f.DateRange.From.After(f.DateRange.To) {
		return fmt.Errorf("%w: date range start is after its end", ErrValidation)
	}
	return nil
}

// Matches reports whether log satisfies every constraint of the filter.
func (f Filter) Matches(log *Log) bool {
	if log == nil {
		return false
	}
	if len(f.Tags) > 0 && !log.HasAnyTag(f.Tags) {
		return false
	}
	if f.Module != "" && log.Module != f.Module {
		return false
	}
	if f.Type != "" && log.Type != f.Type {
		return false
	}
	if f.DateRange != nil && !f.DateRange.Contains(log.Timestamp) {
		return false
	}
	return true
}

// BuildFilter assembles a Filter from transport fields. The type is parsed
// case-insensitively and tags may be comma-separated lists. The module is
// matched as stored; a blank one means any. Zero times leave that end of
// the range open.
func BuildFilter(tags []string, module, logType string, from, to time.Time) (Filter, error) {
	var f Filter
	for _, t := range tags {
		f.Tags = append(f.Tags, ParseTagList(t)...)
	}
	if strings.TrimSpace(module) != "" {
		f.Module = module
	}
	if strings.TrimSpace(logType) != "" {
		t, err := ParseLogType(logType)
		if err != nil {
			return Filter{}, err
		}
		f.Type = t
	}
	if !from.IsZero() || !to.IsZero() {
		f.DateRange = &DateRange{From: from, To: to}
	}
	return f, nil
}

// ParseTimeBound parses an RFC 3339 timestamp or a YYYY-MM-DD date. With
// endOfDay a bare date covers the whole day. An empty string is the zero time.
func ParseTimeBound(raw string, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: time must be RFC 3339 or YYYY-MM-DD, got %q", ErrValidation, raw)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Millisecond)
	}
	return t, nil
}
