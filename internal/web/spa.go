package web

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
)

// spaHandler serves a built single-page frontend and falls back to index.html
// for client-side routes.
type spaHandler struct {
	root   string
	index  []byte
	logger logSDK.Logger
}

func newFrontendSPAHandler(distDir string, logger logSDK.Logger) (*spaHandler, error) {
	distDir = strings.TrimSpace(distDir)
	if distDir == "" {
		return nil, nil
	}

	info, err := os.Stat(distDir)
	if err != nil {
		return nil, errors.Wrapf(err, "stat frontend dir %s", distDir)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("frontend dir %s is not a directory", distDir)
	}

	indexPath := filepath.Join(distDir, "index.html")
	indexBytes, err := os.ReadFile(indexPath)
	if err != nil {
		return nil, errors.Wrapf(err, "read frontend index %s", indexPath)
	}

	logger.Info("serving frontend", zap.String("path", distDir))
	return &spaHandler{
		root:   distDir,
		index:  indexBytes,
		logger: logger,
	}, nil
}

func (h *spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// unknown API paths must not turn into the frontend page
	if strings.HasPrefix(r.URL.Path, "/api/") {
		http.NotFound(w, r)
		return
	}

	clean := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if clean == "" {
		h.serveIndex(w, r)
		return
	}

	fsPath := filepath.Join(h.root, filepath.FromSlash(clean))
	if info, err := os.Stat(fsPath); err == nil && !info.IsDir() {
		http.ServeFile(w, r, fsPath)
		return
	}

	// missing assets are 404, extensionless paths are client routes
	if path.Ext(clean) != "" {
		h.logger.Debug("frontend asset not found", zap.String("path", r.URL.Path))
		http.NotFound(w, r)
		return
	}

	h.serveIndex(w, r)
}

func (h *spaHandler) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(h.index); err != nil {
		h.logger.Warn("write frontend index", zap.Error(err))
	}
}
