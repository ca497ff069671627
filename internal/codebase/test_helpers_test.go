package codebase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	errors "github.com/Laisky/errors/v2"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/JxTIN21/Codebase/internal/codebase/embedding"
	"github.com/JxTIN21/Codebase/internal/library/llm"
)

// stubGenerator returns a fixed text or error and records requests.
type stubGenerator struct {
	mu       sync.Mutex
	text     string
	err      error
	requests []llm.Request
}

// Generate implements Generator.
func (g *stubGenerator) Generate(_ context.Context, req llm.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return "", g.err
	}
	return g.text, nil
}

// flakyEmbedder fails for inputs containing marker and delegates the rest.
type flakyEmbedder struct {
	inner  embedding.Embedder
	marker string
}

// EmbedTexts implements embedding.Embedder.
func (e flakyEmbedder) EmbedTexts(ctx context.Context, inputs []string) ([]pgvector.Vector, error) {
	for _, input := range inputs {
		if strings.Contains(input, e.marker) {
			return nil, errors.New("embedder unavailable")
		}
	}
	return e.inner.EmbedTexts(ctx, inputs)
}

// Model implements embedding.Embedder.
func (e flakyEmbedder) Model() string {
	return e.inner.Model()
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestDB creates an in-memory sqlite database.
func newTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s-%d?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"), time.Now().UTC().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// testSettings returns defaults tuned for deterministic single-connection tests.
func testSettings() Settings {
	settings := LoadSettingsFromConfig()
	settings.Index.Concurrency = 1
	settings.Index.RetryMax = 0
	settings.Index.BatchSize = 100
	settings.Embedding.Provider = embedding.ProviderHashing
	return settings
}

// newTestService constructs a service with deterministic dependencies.
func newTestService(t *testing.T, settings Settings, embedder embedding.Embedder, generator Generator, clock *testClock) *Service {
	if embedder == nil {
		embedder = embedding.NewHashingEmbedder(128)
	}
	if clock == nil {
		clock = newTestClock()
	}
	svc, err := NewService(newTestDB(t), settings, embedder, generator, nil, nil, nil, nil, nil, clock.Now)
	require.NoError(t, err)
	return svc
}

// indexAll runs the worker until no job is left.
func indexAll(t *testing.T, svc *Service) {
	worker := svc.NewIndexWorker()
	for i := 0; i < 10; i++ {
		require.NoError(t, worker.RunOnce(context.Background()))
		var open int64
		require.NoError(t, svc.db.Model(&IndexJob{}).
			Where("status IN ?", []string{jobStatusPending, jobStatusProcessing}).
			Count(&open).Error)
		if open == 0 {
			return
		}
	}
	t.Fatal("index jobs did not drain")
}

func files(pairs ...string) []FileInput {
	out := make([]FileInput, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, FileInput{Path: pairs[i], Content: []byte(pairs[i+1])})
	}
	return out
}
