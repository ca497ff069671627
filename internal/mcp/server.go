// Package mcp exposes codebase search to MCP clients over streamable HTTP.
package mcp

import (
	"context"
	"net/http"
	"strings"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	mcp "github.com/mark3labs/mcp-go/mcp"
	srv "github.com/mark3labs/mcp-go/server"

	"github.com/JxTIN21/Codebase/internal/codebase"
	"github.com/JxTIN21/Codebase/library/log"
)

// Codebases is the part of the codebase service the tools call.
type Codebases interface {
	Search(ctx context.Context, req codebase.SearchRequest) (*codebase.SearchResult, error)
	GetStatus(ctx context.Context, codebaseID string) (*codebase.StatusResult, error)
	List(ctx context.Context) ([]codebase.CodebaseSummary, error)
}

// Server wraps the MCP server state for the HTTP transport.
type Server struct {
	handler http.Handler
	logger  logSDK.Logger
	svc     Codebases
}

// NewServer constructs a remote MCP server exposing the codebase tools.
func NewServer(svc Codebases, version string, logger logSDK.Logger) (*Server, error) {
	if svc == nil {
		return nil, errors.New("codebase service is required")
	}
	if logger == nil {
		logger = log.Logger
	}
	if version == "" {
		version = "dev"
	}

	mcpServer := srv.NewMCPServer(
		"codebase",
		version,
		srv.WithToolCapabilities(true),
		srv.WithInstructions("Call list_codebases to find an indexed codebase, check it with codebase_status, "+
			"then ask natural-language questions with search_codebase."),
		srv.WithRecovery(),
		srv.WithHooks(newMCPHooks(logger.Named("mcp_hooks"))),
	)

	s := &Server{
		handler: srv.NewStreamableHTTPServer(mcpServer),
		logger:  logger.Named("mcp"),
		svc:     svc,
	}

	mcpServer.AddTool(mcp.NewTool(
		"search_codebase",
		mcp.WithDescription("Search an indexed codebase with a natural-language question. "+
			"Returns ranked files with snippets and a generated explanation."),
		mcp.WithString("codebase_id", mcp.Required(), mcp.Description("Identifier returned by the upload.")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural-language question about the code.")),
		mcp.WithNumber("max_results", mcp.Description("Maximum number of chunks to retrieve.")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	), s.handleSearchCodebase)

	mcpServer.AddTool(mcp.NewTool(
		"codebase_status",
		mcp.WithDescription("Report the indexing status of a codebase."),
		mcp.WithString("codebase_id", mcp.Required(), mcp.Description("Identifier returned by the upload.")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	), s.handleCodebaseStatus)

	mcpServer.AddTool(mcp.NewTool(
		"list_codebases",
		mcp.WithDescription("List the codebases known to this server, newest first."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	), s.handleListCodebases)

	return s, nil
}

// Handler returns the HTTP handler that should be mounted to serve MCP traffic.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) handleSearchCodebase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s == nil || s.svc == nil {
		return mcp.NewToolResultError("codebase search is not configured"), nil
	}

	codebaseID, err := req.RequireString("codebase_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return mcp.NewToolResultError("query cannot be empty"), nil
	}

	result, err := s.svc.Search(ctx, codebase.SearchRequest{
		CodebaseID: strings.TrimSpace(codebaseID),
		Query:      query,
		Limit:      req.GetInt("max_results", 0),
	})
	if err != nil {
		return s.toolError(ctx, "search_codebase", err), nil
	}

	return s.jsonResult(result), nil
}

func (s *Server) handleCodebaseStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s == nil || s.svc == nil {
		return mcp.NewToolResultError("codebase search is not configured"), nil
	}

	codebaseID, err := req.RequireString("codebase_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	status, err := s.svc.GetStatus(ctx, strings.TrimSpace(codebaseID))
	if err != nil {
		return s.toolError(ctx, "codebase_status", err), nil
	}
	return s.jsonResult(status), nil
}

func (s *Server) handleListCodebases(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s == nil || s.svc == nil {
		return mcp.NewToolResultError("codebase search is not configured"), nil
	}

	items, err := s.svc.List(ctx)
	if err != nil {
		return s.toolError(ctx, "list_codebases", err), nil
	}
	if items == nil {
		items = []codebase.CodebaseSummary{}
	}
	return s.jsonResult(map[string]any{"codebases": items, "total": len(items)}), nil
}

// toolError reports typed errors verbatim and hides everything else.
func (s *Server) toolError(_ context.Context, tool string, err error) *mcp.CallToolResult {
	if typed, ok := codebase.AsError(err); ok {
		s.logger.Debug("tool rejected", zap.String("tool", tool), zap.Error(err))
		return mcp.NewToolResultError(string(typed.Code) + ": " + typed.Message)
	}
	s.logger.Error("tool failed", zap.String("tool", tool), zap.Error(err))
	return mcp.NewToolResultError(tool + " failed")
}

func (s *Server) jsonResult(v any) *mcp.CallToolResult {
	result, err := mcp.NewToolResultJSON(v)
	if err != nil {
		s.logger.Error("encode tool result", zap.Error(err))
		return mcp.NewToolResultError("failed to encode result")
	}
	return result
}
