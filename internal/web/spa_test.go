package web

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFrontend(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "app.js"), []byte("console.log(1)"), 0o644))
	return dir
}

func TestFrontendServing(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeCodebases{}, Options{FrontendDir: writeFrontend(t)})

	tests := []struct {
		path   string
		status int
		body   string
	}{
		{"/", http.StatusOK, "<html>app</html>"},
		{"/codebase/cb-1", http.StatusOK, "<html>app</html>"},
		{"/assets/app.js", http.StatusOK, "console.log(1)"},
		{"/assets/missing.css", http.StatusNotFound, ""},
		{"/api/unknown", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		w := doJSON(t, s.Handler(), http.MethodGet, tt.path, nil)
		require.Equal(t, tt.status, w.Code, tt.path)
		if tt.body != "" {
			require.Equal(t, tt.body, w.Body.String(), tt.path)
		}
	}

	w := doJSON(t, s.Handler(), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "healthy")
}

func TestFrontendDirMissing(t *testing.T) {
	t.Parallel()
	setupGinTestMode()

	_, err := NewServer(&fakeCodebases{}, Options{FrontendDir: filepath.Join(t.TempDir(), "nope")}, nil)
	require.Error(t, err)

	s := newTestServer(t, &fakeCodebases{}, Options{})
	w := doJSON(t, s.Handler(), http.MethodGet, "/", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}
