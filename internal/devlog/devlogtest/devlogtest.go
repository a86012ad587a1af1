// Package devlogtest provides test doubles and a ready-wired devlog service
// backed by a temporary SQLite store and an in-memory chromem index.
package devlogtest

import (
	"context"
	"hash/fnv"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"unicode"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/contextcore/internal/devlog"
	"github.com/fyrsmithlabs/contextcore/internal/logstore"
	"github.com/fyrsmithlabs/contextcore/internal/vectorstore"
)

// Dimension is the vector size used by NewEnv.
const Dimension = 64

// HashEmbedder is a deterministic bag-of-words embedder. Texts that share
// words get similar vectors, which is enough to exercise ranking.
type HashEmbedder struct {
	dim int

	mu     sync.Mutex
	err    error
	before func()
	calls  int
}

var _ devlog.Embedder = (*HashEmbedder)(nil)

// NewHashEmbedder creates an embedder producing vectors of size dim.
func NewHashEmbedder(dim int) *HashEmbedder {
	return &HashEmbedder{dim: dim}
}

// FailWith makes every following call return err. Pass nil to recover.
func (e *HashEmbedder) FailWith(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// BeforeEmbed runs fn at the start of every following call, outside the
// embedder's lock. Pass nil to remove it.
func (e *HashEmbedder) BeforeEmbed(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.before = fn
}

// Calls returns the number of embed calls so far.
func (e *HashEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *HashEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, text)
}

func (e *HashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, text)
}

func (e *HashEmbedder) Dimension() int { return e.dim }

func (e *HashEmbedder) embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	err, before := e.err, e.before
	e.mu.Unlock()
	if before != nil {
		before()
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return HashVector(text, e.dim), nil
}

// HashVector returns the normalized bag-of-words vector of text.
func HashVector(text string, dim int) []float32 {
	vec := make([]float32, dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%uint32(dim)]++
	}
	if len(words) == 0 {
		vec[0] = 1
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// FlakyIndex wraps a vector index and fails selected operations on demand.
type FlakyIndex struct {
	devlog.VectorIndex

	mu        sync.Mutex
	upsertErr error
	deleteErr error
	searchErr error
}

// NewFlakyIndex wraps inner.
func NewFlakyIndex(inner devlog.VectorIndex) *FlakyIndex {
	return &FlakyIndex{VectorIndex: inner}
}

// FailUpsert makes Upsert return err until called again with nil.
func (f *FlakyIndex) FailUpsert(err error) { f.set(&f.upsertErr, err) }

// FailDelete makes Delete return err until called again with nil.
func (f *FlakyIndex) FailDelete(err error) { f.set(&f.deleteErr, err) }

// FailSearch makes Search return err until called again with nil.
func (f *FlakyIndex) FailSearch(err error) { f.set(&f.searchErr, err) }

func (f *FlakyIndex) set(dst *error, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*dst = err
}

func (f *FlakyIndex) get(src *error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *src
}

func (f *FlakyIndex) Upsert(ctx context.Context, id string, vector []float32, payload devlog.Payload) error {
	if err := f.get(&f.upsertErr); err != nil {
		return err
	}
	return f.VectorIndex.Upsert(ctx, id, vector, payload)
}

func (f *FlakyIndex) Delete(ctx context.Context, id string) error {
	if err := f.get(&f.deleteErr); err != nil {
		return err
	}
	return f.VectorIndex.Delete(ctx, id)
}

func (f *FlakyIndex) Search(ctx context.Context, vector []float32, limit int, filter devlog.Filter) ([]devlog.ScoredID, error) {
	if err := f.get(&f.searchErr); err != nil {
		return nil, err
	}
	return f.VectorIndex.Search(ctx, vector, limit, filter)
}

// RecordingPublisher keeps every published event in memory.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []devlog.Event
}

func (p *RecordingPublisher) Publish(_ context.Context, e devlog.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

// Events returns a copy of the published events.
func (p *RecordingPublisher) Events() []devlog.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]devlog.Event(nil), p.events...)
}

// Types returns the published event types in order.
func (p *RecordingPublisher) Types() []devlog.EventType {
	events := p.Events()
	out := make([]devlog.EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

// Env is a fully wired service with handles on every collaborator.
type Env struct {
	Service   devlog.Service
	Store     *logstore.SQLiteStore
	Index     *FlakyIndex
	Chromem   *vectorstore.ChromemIndex
	Embedder  *HashEmbedder
	Publisher *RecordingPublisher
	Logs      *observer.ObservedLogs
}

// NewEnv builds an Env. A nil cfg uses devlog.DefaultServiceConfig.
func NewEnv(t testing.TB, cfg *devlog.Config) *Env {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	store, err := logstore.NewSQLiteStore(logstore.Config{Path: filepath.Join(t.TempDir(), "logs.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	chromemIdx, err := vectorstore.NewChromemIndex(vectorstore.ChromemConfig{VectorSize: Dimension}, logger)
	require.NoError(t, err)

	env := &Env{
		Store:     store,
		Index:     NewFlakyIndex(chromemIdx),
		Chromem:   chromemIdx,
		Embedder:  NewHashEmbedder(Dimension),
		Publisher: &RecordingPublisher{},
		Logs:      logs,
	}

	svc, err := devlog.NewService(cfg, devlog.Deps{
		Store:     env.Store,
		Embedder:  env.Embedder,
		Index:     env.Index,
		Publisher: env.Publisher,
		Logger:    logger,
	})
	require.NoError(t, err)
	env.Service = svc
	return env
}

// MustAdd adds a log and fails the test on error.
func (e *Env) MustAdd(t testing.TB, in devlog.AddLogInput) *devlog.Log {
	t.Helper()
	res, err := e.Service.AddLog(context.Background(), in)
	require.NoError(t, err)
	return res.Log
}
