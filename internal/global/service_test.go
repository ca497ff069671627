package global

import (
	"context"
	"path/filepath"
	"testing"

	gconfig "github.com/Laisky/go-config/v2"
	"github.com/stretchr/testify/require"

	"github.com/JxTIN21/Codebase/internal/codebase"
)

func setConfig(t *testing.T, kv map[string]any) {
	t.Helper()
	for k, v := range kv {
		gconfig.S.Set(k, v)
	}
	t.Cleanup(func() {
		for k := range kv {
			gconfig.S.Set(k, nil)
		}
	})
}

func TestOpenDBSQLiteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "codebase.db")
	setConfig(t, map[string]any{"settings.db.sqlite.path": path})

	db, err := OpenDB(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sqlite", db.Dialector.Name())

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
	require.FileExists(t, path)
}

func TestOpenDBUnknownDriver(t *testing.T) {
	setConfig(t, map[string]any{"settings.db.driver": "oracle"})

	_, err := OpenDB(context.Background())
	require.ErrorContains(t, err, "unknown db driver")
}

func TestOpenRedisDisabled(t *testing.T) {
	db, err := OpenRedis(context.Background())
	require.NoError(t, err)
	require.Nil(t, db)
}

func TestNewGenerator(t *testing.T) {
	gen, err := newGenerator(codebase.LLMSettings{Provider: LLMProviderNone, APIKey: "k"})
	require.NoError(t, err)
	require.Nil(t, gen)

	gen, err = newGenerator(codebase.LLMSettings{Provider: "responses"})
	require.NoError(t, err)
	require.Nil(t, gen, "no api key disables generation")

	gen, err = newGenerator(codebase.LLMSettings{Provider: "ollama", BaseURL: "http://localhost:11434"})
	require.NoError(t, err)
	require.NotNil(t, gen)

	_, err = newGenerator(codebase.LLMSettings{Provider: "bard", APIKey: "k"})
	require.Error(t, err)
}

func TestSetupServiceLocal(t *testing.T) {
	setConfig(t, map[string]any{
		"settings.db.sqlite.path":     filepath.Join(t.TempDir(), "codebase.db"),
		"settings.llm.provider":       LLMProviderNone,
		"settings.embedding.provider": "hashing",
	})

	rt, err := SetupService(context.Background())
	require.NoError(t, err)
	defer rt.Close()

	ctx := context.Background()
	upload, err := rt.Service.Upload(ctx, "demo", []codebase.FileInput{
		{Path: "main.go", Content: []byte("package main\n\nfunc main() {}\n")},
	})
	require.NoError(t, err)

	list, err := rt.Service.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, upload.CodebaseID, list[0].ID)
}
