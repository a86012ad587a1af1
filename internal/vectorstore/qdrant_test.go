package vectorstore

import (
	"context"
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/contextcore/internal/devlog"
)

func TestValidateCollectionName(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantError bool
	}{
		{"default collection", "contextcore_logs", false},
		{"digits", "logs_2026", false},
		{"empty name", "", true},
		{"uppercase letters", "Contextcore_Logs", true},
		{"special characters", "contextcore-logs", true},
		{"too long", "a123456789012345678901234567890123456789012345678901234567890123456789", true},
		{"path traversal attempt", "../logs", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCollectionName(tt.input)
			if tt.wantError {
				assert.ErrorIs(t, err, ErrInvalidCollectionName)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestQdrantConfig_Defaults(t *testing.T) {
	cfg := QdrantConfig{VectorSize: 768}
	cfg.ApplyDefaults()

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 6334, cfg.Port)
	assert.Equal(t, "contextcore_logs", cfg.CollectionName)
	assert.Equal(t, qdrant.Distance_Cosine, cfg.Distance)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryBackoff)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 5, cfg.CircuitBreakerThreshold)
	assert.NoError(t, cfg.Validate())
}

func TestQdrantConfig_Validate(t *testing.T) {
	valid := func() QdrantConfig {
		c := QdrantConfig{VectorSize: 384}
		c.ApplyDefaults()
		return c
	}
	tests := []struct {
		name   string
		mutate func(*QdrantConfig)
	}{
		{"missing host", func(c *QdrantConfig) { c.Host = "" }},
		{"bad port", func(c *QdrantConfig) { c.Port = 70000 }},
		{"missing vector size", func(c *QdrantConfig) { c.VectorSize = 0 }},
		{"negative retries", func(c *QdrantConfig) { c.MaxRetries = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
		})
	}

	c := valid()
	c.CollectionName = "Bad Name"
	assert.ErrorIs(t, c.Validate(), ErrInvalidCollectionName)
}

func TestBuildQdrantPayload(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 6_000_000, time.UTC)
	payload := buildQdrantPayload(devlog.Payload{
		Tags:      []string{"auth", "perf"},
		Module:    "api",
		Type:      devlog.TypeBug,
		Timestamp: ts,
	})

	tags := payload[payloadTags].GetListValue().GetValues()
	require.Len(t, tags, 2)
	assert.Equal(t, "auth", tags[0].GetStringValue())
	assert.Equal(t, "perf", tags[1].GetStringValue())
	assert.Equal(t, "api", payload[payloadModule].GetStringValue())
	assert.Equal(t, "BUG", payload[payloadType].GetStringValue())
	assert.Equal(t, ts.UnixMilli(), payload[payloadTimestamp].GetIntegerValue())
}

func TestBuildQdrantFilter(t *testing.T) {
	assert.Nil(t, buildQdrantFilter(devlog.Filter{}))
	assert.Nil(t, buildQdrantFilter(devlog.Filter{DateRange: &devlog.DateRange{}}))

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(48 * time.Hour)
	f := buildQdrantFilter(devlog.Filter{
		Tags:      []string{"auth", "db"},
		Module:    "api",
		Type:      devlog.TypeFeature,
		DateRange: &devlog.DateRange{From: from, To: to},
	})
	require.NotNil(t, f)
	require.Len(t, f.Must, 4)

	byKey := map[string]*qdrant.FieldCondition{}
	for _, c := range f.Must {
		fc := c.GetField()
		require.NotNil(t, fc)
		byKey[fc.Key] = fc
	}

	assert.Equal(t, []string{"auth", "db"}, byKey[payloadTags].GetMatch().GetKeywords().GetStrings())
	assert.Equal(t, "api", byKey[payloadModule].GetMatch().GetKeyword())
	assert.Equal(t, "FEATURE", byKey[payloadType].GetMatch().GetKeyword())

	r := byKey[payloadTimestamp].GetRange()
	require.NotNil(t, r)
	require.NotNil(t, r.Gte)
	require.NotNil(t, r.Lte)
	assert.Equal(t, float64(from.UnixMilli()), *r.Gte)
	assert.Equal(t, float64(to.UnixMilli()), *r.Lte)
}

func TestBuildQdrantFilter_OpenRange(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := buildQdrantFilter(devlog.Filter{DateRange: &devlog.DateRange{From: from}})
	require.NotNil(t, f)
	require.Len(t, f.Must, 1)
	r := f.Must[0].GetField().GetRange()
	require.NotNil(t, r.Gte)
	assert.Nil(t, r.Lte)
}

func TestExtractPointID(t *testing.T) {
	assert.Equal(t, "", extractPointID(nil))
	assert.Equal(t, "6f1c2a7e-3d3b-4b7e-9a55-2b1e0c9d8f00", extractPointID(qdrant.NewIDUUID("6f1c2a7e-3d3b-4b7e-9a55-2b1e0c9d8f00")))
	assert.Equal(t, "42", extractPointID(qdrant.NewIDNum(42)))
}

func TestNewIndex(t *testing.T) {
	ctx := context.Background()

	idx, err := NewIndex(ctx, Config{}, 8, nil)
	require.NoError(t, err)
	assert.IsType(t, &ChromemIndex{}, idx)
	assert.Equal(t, 8, idx.Dimension())
	assert.NoError(t, idx.Ping(ctx))

	_, err = NewIndex(ctx, Config{Chromem: ChromemConfig{VectorSize: 4}}, 8, nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = NewIndex(ctx, Config{Provider: "qdrant", Qdrant: QdrantConfig{VectorSize: 4}}, 8, nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = NewIndex(ctx, Config{Provider: "pinecone"}, 8, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewIndex(ctx, Config{}, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
