// Package web serves the codebase HTTP API.
package web

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/JxTIN21/Codebase/internal/codebase"
	"github.com/JxTIN21/Codebase/library/log"
)

// DefaultAllowedOrigin is the development frontend.
const DefaultAllowedOrigin = "http://localhost:3000"

// Codebases is the codebase service surface used by the handlers.
type Codebases interface {
	Upload(ctx context.Context, name string, files []codebase.FileInput) (*codebase.UploadResult, error)
	AddFiles(ctx context.Context, codebaseID string, files []codebase.FileInput) (*codebase.UploadResult, error)
	RemoveFile(ctx context.Context, codebaseID, path string) (*codebase.StatusResult, error)
	GetStatus(ctx context.Context, codebaseID string) (*codebase.StatusResult, error)
	Get(ctx context.Context, codebaseID string) (*codebase.CodebaseDetail, error)
	List(ctx context.Context) ([]codebase.CodebaseSummary, error)
	Delete(ctx context.Context, codebaseID string) error
	Search(ctx context.Context, req codebase.SearchRequest) (*codebase.SearchResult, error)
}

// Limiter admits or rejects one request for a key.
type Limiter interface {
	Allow(key string) bool
}

// Options configures the HTTP server.
type Options struct {
	// AllowedOrigins lists origins allowed by CORS. Empty means DefaultAllowedOrigin.
	AllowedOrigins []string
	// MaxUploadBytes bounds a request body. Zero disables the bound.
	MaxUploadBytes int64
	EnableMetrics  bool
	// MCPHandler is mounted at /mcp when set.
	MCPHandler http.Handler
	// SearchLimiter throttles searches per codebase id when set.
	SearchLimiter Limiter
	// FrontendDir is a built frontend served for every unmatched GET.
	FrontendDir string
}

// Server is the gin HTTP server.
type Server struct {
	engine  *gin.Engine
	svc     Codebases
	logger  logSDK.Logger
	opts    Options
	origins map[string]bool
}

// NewServer builds the router.
func NewServer(svc Codebases, opts Options, logger logSDK.Logger) (*Server, error) {
	if svc == nil {
		return nil, errors.New("codebase service is required")
	}
	if logger == nil {
		logger = log.Logger.Named("web")
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{DefaultAllowedOrigin}
	}

	s := &Server{
		engine:  gin.New(),
		svc:     svc,
		logger:  logger,
		opts:    opts,
		origins: make(map[string]bool, len(opts.AllowedOrigins)),
	}
	for _, origin := range opts.AllowedOrigins {
		if origin = normalizeOrigin(origin); origin != "" {
			s.origins[origin] = true
		}
	}

	s.engine.Use(
		gin.Recovery(),
		gmw.NewLoggerMiddleware(
			gmw.WithLogger(logger.Named("gin")),
		),
		s.allowCORS,
	)
	if opts.EnableMetrics {
		if err := gmw.EnableMetric(s.engine); err != nil {
			return nil, errors.Wrap(err, "enable metric server")
		}
	}

	s.routes()

	spa, err := newFrontendSPAHandler(opts.FrontendDir, logger.Named("spa"))
	if err != nil {
		return nil, errors.Wrap(err, "frontend")
	}
	if spa != nil {
		s.engine.NoRoute(gin.WrapH(spa))
	}
	return s, nil
}

func (s *Server) routes() {
	health := func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "healthy"})
	}
	s.engine.GET("/health", health)

	api := s.engine.Group("/api")
	api.GET("/health", health)
	api.POST("/upload-codebase", s.uploadCodebase)
	api.GET("/codebase/:id", s.getCodebase)
	api.DELETE("/codebase/:id", s.deleteCodebase)
	api.GET("/codebase/:id/status", s.getStatus)
	api.POST("/codebase/:id/files", s.addFiles)
	api.DELETE("/codebase/:id/files", s.removeFile)
	api.POST("/search", s.search)
	api.GET("/debug/codebases", s.listCodebases)

	if s.opts.MCPHandler != nil {
		s.engine.Any("/mcp", gin.WrapH(s.opts.MCPHandler))
		s.engine.Any("/mcp/*path", gin.WrapH(s.opts.MCPHandler))
	}
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening on http", zap.String("addr", addr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "http server exit")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown http server")
	}
	return nil
}

func normalizeOrigin(origin string) string {
	origin = strings.TrimSpace(origin)
	if origin == "*" {
		return origin
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return strings.ToLower(parsed.Scheme + "://" + parsed.Host)
}

func (s *Server) allowCORS(ctx *gin.Context) {
	origin := ctx.Request.Header.Get("Origin")
	allowed := origin != "" && (s.origins["*"] || s.origins[normalizeOrigin(origin)])

	if allowed {
		ctx.Header("Access-Control-Allow-Origin", origin)
		ctx.Header("Access-Control-Allow-Credentials", "true")
		ctx.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		ctx.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept, Origin, X-Requested-With, Mcp-Session-Id")
		ctx.Header("Access-Control-Max-Age", "86400")
		ctx.Header("Vary", "Origin")

		if ctx.Request.Method == http.MethodOptions {
			ctx.AbortWithStatus(http.StatusNoContent)
			return
		}
	} else if origin != "" && ctx.Request.Method == http.MethodOptions {
		// preflight from a disallowed origin
		ctx.AbortWithStatus(http.StatusForbidden)
		return
	}

	ctx.Next()
}
