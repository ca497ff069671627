package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/JxTIN21/Codebase/internal/codebase"
	"github.com/JxTIN21/Codebase/internal/codebase/embedding"
	"github.com/JxTIN21/Codebase/library/throttle"
)

var (
	ginModeOnce sync.Once
)

func setupGinTestMode() {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.TestMode)
	})
}

// fakeCodebases returns canned results or a fixed error.
type fakeCodebases struct {
	err        error
	search     *codebase.SearchResult
	lastSearch codebase.SearchRequest
	lastFiles  []codebase.FileInput
	lastName   string
}

func (f *fakeCodebases) Upload(_ context.Context, name string, files []codebase.FileInput) (*codebase.UploadResult, error) {
	f.lastName, f.lastFiles = name, files
	if f.err != nil {
		return nil, f.err
	}
	return &codebase.UploadResult{CodebaseID: "cb-1", Status: codebase.StatusProcessing, FilesProcessed: len(files), TotalFiles: len(files)}, nil
}

func (f *fakeCodebases) AddFiles(_ context.Context, id string, files []codebase.FileInput) (*codebase.UploadResult, error) {
	f.lastFiles = files
	if f.err != nil {
		return nil, f.err
	}
	return &codebase.UploadResult{CodebaseID: id, Status: codebase.StatusProcessing, FilesProcessed: len(files)}, nil
}

func (f *fakeCodebases) RemoveFile(_ context.Context, id, _ string) (*codebase.StatusResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &codebase.StatusResult{CodebaseID: id, Status: codebase.StatusProcessing}, nil
}

func (f *fakeCodebases) GetStatus(_ context.Context, id string) (*codebase.StatusResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &codebase.StatusResult{CodebaseID: id, Status: codebase.StatusReady}, nil
}

func (f *fakeCodebases) Get(_ context.Context, id string) (*codebase.CodebaseDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &codebase.CodebaseDetail{StatusResult: codebase.StatusResult{CodebaseID: id}}, nil
}

func (f *fakeCodebases) List(context.Context) ([]codebase.CodebaseSummary, error) {
	return nil, f.err
}

func (f *fakeCodebases) Delete(context.Context, string) error {
	return f.err
}

func (f *fakeCodebases) Search(_ context.Context, req codebase.SearchRequest) (*codebase.SearchResult, error) {
	f.lastSearch = req
	if f.err != nil {
		return nil, f.err
	}
	return f.search, nil
}

func newTestServer(t *testing.T, svc Codebases, opts Options) *Server {
	t.Helper()
	setupGinTestMode()
	s, err := NewServer(svc, opts, nil)
	require.NoError(t, err)
	return s
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func multipartBody(t *testing.T, name string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if name != "" {
		require.NoError(t, mw.WriteField("name", name))
	}
	for path, content := range files {
		part, err := mw.CreateFormFile("files", path)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err    error
		status int
		code   string
	}{
		{codebase.NewError(codebase.ErrCodeValidation, "bad", false), http.StatusBadRequest, "VALIDATION_ERROR"},
		{codebase.NewError(codebase.ErrCodeNotFound, "missing", false), http.StatusNotFound, "NOT_FOUND"},
		{codebase.NewError(codebase.ErrCodeNotReady, "busy", true), http.StatusConflict, "NOT_READY"},
		{codebase.NewError(codebase.ErrCodePayloadTooLarge, "big", false), http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE"},
		{codebase.NewError(codebase.ErrCodeSearchBackend, "down", true), http.StatusInternalServerError, "SEARCH_BACKEND_ERROR"},
		{codebase.NewError(codebase.ErrCodeRateLimited, "slow down", true), http.StatusTooManyRequests, "RATE_LIMITED"},
		{fmt.Errorf("boom"), http.StatusInternalServerError, errCodeInternal},
	}
	for _, tt := range tests {
		s := newTestServer(t, &fakeCodebases{err: tt.err}, Options{})
		w := doJSON(t, s.Handler(), http.MethodGet, "/api/codebase/x/status", nil)
		assert.Equal(t, tt.status, w.Code, tt.code)
		assert.Equal(t, tt.code, decodeError(t, w).Code)
	}
}

func TestNotReadyIsRetryable(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeCodebases{err: codebase.NewError(codebase.ErrCodeNotReady, "indexing", true)}, Options{})
	w := doJSON(t, s.Handler(), http.MethodPost, "/api/search", map[string]any{"codebase_id": "x", "query": "q"})
	require.Equal(t, http.StatusConflict, w.Code)
	body := decodeError(t, w)
	require.True(t, body.Retryable)
	require.Equal(t, "indexing", body.Message)
}

func TestUploadJSON(t *testing.T) {
	t.Parallel()

	fake := &fakeCodebases{}
	s := newTestServer(t, fake, Options{})
	w := doJSON(t, s.Handler(), http.MethodPost, "/api/upload-codebase", map[string]any{
		"name":  "pasted",
		"files": []map[string]string{{"path": "main.py", "content": "print(1)\n"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "pasted", fake.lastName)
	require.Len(t, fake.lastFiles, 1)
	require.Equal(t, "main.py", fake.lastFiles[0].Path)

	var result codebase.UploadResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Equal(t, "cb-1", result.CodebaseID)
}

func TestUploadMultipart(t *testing.T) {
	t.Parallel()

	fake := &fakeCodebases{}
	s := newTestServer(t, fake, Options{})
	body, contentType := multipartBody(t, "repo", map[string]string{"a.go": "package a\n"})
	req := httptest.NewRequest(http.MethodPost, "/api/upload-codebase", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "repo", fake.lastName)
	require.Len(t, fake.lastFiles, 1)
	require.Equal(t, "package a\n", string(fake.lastFiles[0].Content))
}

func TestUploadBodyTooLarge(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeCodebases{}, Options{MaxUploadBytes: 16})
	w := doJSON(t, s.Handler(), http.MethodPost, "/api/upload-codebase", map[string]any{
		"files": []map[string]string{{"path": "big.py", "content": strings.Repeat("x", 5<<20)}},
	})
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestUploadUnsupportedContentType(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeCodebases{}, Options{})
	req := httptest.NewRequest(http.MethodPost, "/api/upload-codebase", strings.NewReader("x"))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRemoveFileRequiresPath(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeCodebases{}, Options{})
	w := doJSON(t, s.Handler(), http.MethodDelete, "/api/codebase/x/files", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, s.Handler(), http.MethodDelete, "/api/codebase/x/files?path=a.py", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestSearchRendersHTML(t *testing.T) {
	t.Parallel()

	fake := &fakeCodebases{search: &codebase.SearchResult{
		Query:       "q",
		Explanation: "The **login** function lives in `auth.py`.",
	}}
	s := newTestServer(t, fake, Options{})
	w := doJSON(t, s.Handler(), http.MethodPost, "/api/search", map[string]any{
		"codebase_id": "cb", "query": "q", "max_results": 7, "render_html": true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, 7, fake.lastSearch.Limit)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Contains(t, resp["explanation_html"], "<strong>login</strong>")
	require.Equal(t, []any{}, resp["relevant_files"])
	require.Equal(t, []any{}, resp["code_examples"])
}

func TestSearchRateLimited(t *testing.T) {
	t.Parallel()

	limiter, err := throttle.New(throttle.Config{
		TotalNPerSec: 100, TotalBurst: 100,
		EachKeyNPerSec: 1, EachKeyBurst: 1,
	})
	require.NoError(t, err)

	fake := &fakeCodebases{search: &codebase.SearchResult{Query: "q", Explanation: "x"}}
	s := newTestServer(t, fake, Options{SearchLimiter: limiter})
	body := map[string]any{"codebase_id": "cb", "query": "q"}

	w := doJSON(t, s.Handler(), http.MethodPost, "/api/search", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, s.Handler(), http.MethodPost, "/api/search", body)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	errBody := decodeError(t, w)
	require.Equal(t, "RATE_LIMITED", errBody.Code)
	require.True(t, errBody.Retryable)

	w = doJSON(t, s.Handler(), http.MethodPost, "/api/search",
		map[string]any{"codebase_id": "other", "query": "q"})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRenderMarkdownDropsRawHTML(t *testing.T) {
	t.Parallel()

	out := RenderMarkdown("hello <script>alert(1)</script>")
	require.NotContains(t, out, "<script>")
	require.Empty(t, RenderMarkdown(""))
}

func TestHealthAndDebugListing(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeCodebases{}, Options{})
	for _, path := range []string{"/health", "/api/health"} {
		w := doJSON(t, s.Handler(), http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := doJSON(t, s.Handler(), http.MethodGet, "/api/debug/codebases", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"codebases":[],"total":0}`, w.Body.String())
}

func TestAllowCORS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		method         string
		origin         string
		expectedStatus int
		expectedOrigin string
	}{
		{"no origin passes through", http.MethodGet, "", http.StatusOK, ""},
		{"default origin GET", http.MethodGet, "http://localhost:3000", http.StatusOK, "http://localhost:3000"},
		{"default origin preflight", http.MethodOptions, "http://localhost:3000", http.StatusNoContent, "http://localhost:3000"},
		{"other origin GET", http.MethodGet, "https://evil.com", http.StatusOK, ""},
		{"other origin preflight", http.MethodOptions, "https://evil.com", http.StatusForbidden, ""},
	}

	s := newTestServer(t, &fakeCodebases{}, Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/health", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedOrigin, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestAllowCORSConfiguredOrigins(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeCodebases{}, Options{AllowedOrigins: []string{"https://App.example.com/"}})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestUploadAndSearchEndToEnd(t *testing.T) {
	setupGinTestMode()

	dsn := fmt.Sprintf("file:web-e2e-%d?mode=memory&cache=shared", time.Now().UTC().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	settings := codebase.LoadSettingsFromConfig()
	settings.Index.Concurrency = 1
	svc, err := codebase.NewService(db, settings, embedding.NewHashingEmbedder(128), nil, nil, nil, nil, nil, nil, nil)
	require.NoError(t, err)
	s := newTestServer(t, svc, Options{})

	body, contentType := multipartBody(t, "", map[string]string{
		"auth.py": "def login(user, password):\n    return check_password(user, password)\n",
		"util.py": "def add(a, b):\n    return a + b\n",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/upload-codebase", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var upload codebase.UploadResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &upload))
	require.Equal(t, codebase.StatusProcessing, upload.Status)
	require.Equal(t, 2, upload.FilesProcessed)

	w = doJSON(t, s.Handler(), http.MethodPost, "/api/search", map[string]any{
		"codebase_id": upload.CodebaseID, "query": "Where is user authentication implemented?",
	})
	require.Equal(t, http.StatusConflict, w.Code)

	worker := svc.NewIndexWorker()
	for i := 0; i < 5; i++ {
		require.NoError(t, worker.RunOnce(context.Background()))
		status, err := svc.GetStatus(context.Background(), upload.CodebaseID)
		require.NoError(t, err)
		if status.Status.Terminal() {
			break
		}
	}

	w = doJSON(t, s.Handler(), http.MethodGet, "/api/codebase/"+upload.CodebaseID+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status codebase.StatusResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	require.Equal(t, codebase.StatusReady, status.Status)

	w = doJSON(t, s.Handler(), http.MethodPost, "/api/search", map[string]any{
		"codebase_id": upload.CodebaseID, "query": "Where is user authentication implemented?",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result searchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.NotEmpty(t, result.RelevantFiles)
	require.Equal(t, "auth.py", result.RelevantFiles[0].FilePath)
	require.True(t, result.Degraded)

	w = doJSON(t, s.Handler(), http.MethodDelete, "/api/codebase/"+upload.CodebaseID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, s.Handler(), http.MethodGet, "/api/codebase/"+upload.CodebaseID, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}
