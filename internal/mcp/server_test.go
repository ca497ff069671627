package mcp

import (
	"context"
	"encoding/json"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	glog "github.com/Laisky/go-utils/v6/log"

	"github.com/JxTIN21/Codebase/internal/codebase"
)

type fakeCodebases struct {
	err     error
	lastReq codebase.SearchRequest
}

func (f *fakeCodebases) Search(_ context.Context, req codebase.SearchRequest) (*codebase.SearchResult, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &codebase.SearchResult{
		Query:         req.Query,
		Explanation:   "login lives in auth.py",
		RelevantFiles: []codebase.RelevantFile{{FilePath: "auth.py", RelevanceScore: 0.8}},
	}, nil
}

func (f *fakeCodebases) GetStatus(_ context.Context, id string) (*codebase.StatusResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &codebase.StatusResult{CodebaseID: id, Status: codebase.StatusReady, ChunkCount: 3}, nil
}

func (f *fakeCodebases) List(context.Context) ([]codebase.CodebaseSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []codebase.CodebaseSummary{{ID: "cb-1", Status: codebase.StatusReady}}, nil
}

func callRequest(args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{Params: mcpgo.CallToolParams{Arguments: args}}
}

func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	textContent, ok := result.Content[0].(mcpgo.TextContent)
	require.True(t, ok)
	return textContent.Text
}

func TestNewServerRequiresService(t *testing.T) {
	srv, err := NewServer(nil, "", glog.Shared)
	require.Nil(t, srv)
	require.Error(t, err)
}

func TestHandleSearchReturnsConfigurationError(t *testing.T) {
	srv := &Server{}

	result, err := srv.handleSearchCodebase(context.Background(), mcpgo.CallToolRequest{})
	require.NoError(t, err)
	require.True(t, result.IsError)
	require.Equal(t, "codebase search is not configured", resultText(t, result))
}

func TestHandleSearchCodebase(t *testing.T) {
	fake := &fakeCodebases{}
	srv, err := NewServer(fake, "test", glog.Shared)
	require.NoError(t, err)
	require.NotNil(t, srv.Handler())

	result, err := srv.handleSearchCodebase(context.Background(), callRequest(map[string]any{
		"codebase_id": " cb-1 ",
		"query":       "where is login?",
		"max_results": float64(4),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Equal(t, codebase.SearchRequest{CodebaseID: "cb-1", Query: "where is login?", Limit: 4}, fake.lastReq)

	var decoded codebase.SearchResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &decoded))
	require.Equal(t, "auth.py", decoded.RelevantFiles[0].FilePath)
}

func TestHandleSearchRejectsMissingArguments(t *testing.T) {
	srv, err := NewServer(&fakeCodebases{}, "test", glog.Shared)
	require.NoError(t, err)

	result, err := srv.handleSearchCodebase(context.Background(), callRequest(map[string]any{"codebase_id": "cb"}))
	require.NoError(t, err)
	require.True(t, result.IsError)

	result, err = srv.handleSearchCodebase(context.Background(), callRequest(map[string]any{"codebase_id": "cb", "query": "  "}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	require.Equal(t, "query cannot be empty", resultText(t, result))
}

func TestTypedErrorsAreSurfaced(t *testing.T) {
	srv, err := NewServer(&fakeCodebases{
		err: codebase.NewError(codebase.ErrCodeNotReady, `codebase "cb" is processing, not ready for queries`, true),
	}, "test", glog.Shared)
	require.NoError(t, err)

	result, err := srv.handleCodebaseStatus(context.Background(), callRequest(map[string]any{"codebase_id": "cb"}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	require.Contains(t, resultText(t, result), "NOT_READY")
}

func TestHandleListCodebases(t *testing.T) {
	srv, err := NewServer(&fakeCodebases{}, "test", glog.Shared)
	require.NoError(t, err)

	result, err := srv.handleListCodebases(context.Background(), mcpgo.CallToolRequest{})
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Contains(t, resultText(t, result), "cb-1")
}
