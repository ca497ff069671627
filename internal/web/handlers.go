package web

import (
	"io"
	"mime"
	"net/http"
	"strings"

	errors "github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	"github.com/jinzhu/copier"

	"github.com/JxTIN21/Codebase/internal/codebase"
)

// multipartMemory is the in-memory part of a parsed multipart form; the rest spills to disk.
const multipartMemory = 32 << 20

type uploadFileRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type uploadRequest struct {
	Name  string              `json:"name"`
	Files []uploadFileRequest `json:"files"`
}

type searchRequest struct {
	CodebaseID string `json:"codebase_id"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
	RenderHTML bool   `json:"render_html"`
}

type searchResponse struct {
	Query           string                  `json:"query"`
	Explanation     string                  `json:"explanation"`
	ExplanationHTML string                  `json:"explanation_html,omitempty"`
	Degraded        bool                    `json:"degraded"`
	DegradedReason  string                  `json:"degraded_reason,omitempty"`
	RelevantFiles   []codebase.RelevantFile `json:"relevant_files"`
	CodeExamples    []codebase.CodeExample  `json:"code_examples"`
}

type codebaseListResponse struct {
	Codebases []codebase.CodebaseSummary `json:"codebases"`
	Total     int                        `json:"total"`
}

func (s *Server) uploadCodebase(ctx *gin.Context) {
	name, files, err := s.readUpload(ctx)
	if err != nil {
		s.writeError(ctx, err)
		return
	}

	result, err := s.svc.Upload(ctx, name, files)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, result)
}

func (s *Server) addFiles(ctx *gin.Context) {
	_, files, err := s.readUpload(ctx)
	if err != nil {
		s.writeError(ctx, err)
		return
	}

	result, err := s.svc.AddFiles(ctx, ctx.Param("id"), files)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, result)
}

func (s *Server) removeFile(ctx *gin.Context) {
	path := strings.TrimSpace(ctx.Query("path"))
	if path == "" {
		s.writeError(ctx, codebase.NewError(codebase.ErrCodeValidation, "path query parameter is required", false))
		return
	}

	status, err := s.svc.RemoveFile(ctx, ctx.Param("id"), path)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, status)
}

func (s *Server) getStatus(ctx *gin.Context) {
	status, err := s.svc.GetStatus(ctx, ctx.Param("id"))
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, status)
}

func (s *Server) getCodebase(ctx *gin.Context) {
	detail, err := s.svc.Get(ctx, ctx.Param("id"))
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, detail)
}

func (s *Server) deleteCodebase(ctx *gin.Context) {
	id := ctx.Param("id")
	if err := s.svc.Delete(ctx, id); err != nil {
		s.writeError(ctx, err)
		return
	}
	if f, ok := s.opts.SearchLimiter.(interface{ Forget(string) }); ok {
		f.Forget(id)
	}
	ctx.JSON(http.StatusOK, gin.H{"codebase_id": id, "deleted": true})
}

func (s *Server) listCodebases(ctx *gin.Context) {
	items, err := s.svc.List(ctx)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	if items == nil {
		items = []codebase.CodebaseSummary{}
	}
	ctx.JSON(http.StatusOK, codebaseListResponse{Codebases: items, Total: len(items)})
}

func (s *Server) search(ctx *gin.Context) {
	var req searchRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		s.writeError(ctx, codebase.NewError(codebase.ErrCodeValidation, "invalid search request: "+err.Error(), false))
		return
	}
	if s.opts.SearchLimiter != nil && !s.opts.SearchLimiter.Allow(req.CodebaseID) {
		s.writeError(ctx, codebase.NewError(codebase.ErrCodeRateLimited, "too many searches, retry later", true))
		return
	}

	result, err := s.svc.Search(ctx, codebase.SearchRequest{
		CodebaseID: req.CodebaseID,
		Query:      req.Query,
		Limit:      req.MaxResults,
	})
	if err != nil {
		s.writeError(ctx, err)
		return
	}

	resp := searchResponse{}
	if err := copier.Copy(&resp, result); err != nil {
		s.writeError(ctx, errors.Wrap(err, "copy search result"))
		return
	}
	if resp.RelevantFiles == nil {
		resp.RelevantFiles = []codebase.RelevantFile{}
	}
	if resp.CodeExamples == nil {
		resp.CodeExamples = []codebase.CodeExample{}
	}
	if req.RenderHTML {
		resp.ExplanationHTML = RenderMarkdown(resp.Explanation)
	}

	ctx.JSON(http.StatusOK, resp)
}

// readUpload accepts multipart `files` parts, whose filenames are the paths,
// or a JSON body of pasted files.
func (s *Server) readUpload(ctx *gin.Context) (name string, files []codebase.FileInput, err error) {
	if s.opts.MaxUploadBytes > 0 {
		// leave room for multipart framing
		ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, s.opts.MaxUploadBytes+multipartMemory/8)
	}

	mediaType, _, _ := mime.ParseMediaType(ctx.GetHeader("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		return readMultipartUpload(ctx)
	case "application/json", "":
		var req uploadRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			return "", nil, bodyError(err)
		}
		for _, f := range req.Files {
			files = append(files, codebase.FileInput{Path: f.Path, Content: []byte(f.Content)})
		}
		return strings.TrimSpace(req.Name), files, nil
	default:
		return "", nil, codebase.NewError(codebase.ErrCodeValidation,
			"unsupported content type "+mediaType, false)
	}
}

func readMultipartUpload(ctx *gin.Context) (string, []codebase.FileInput, error) {
	if err := ctx.Request.ParseMultipartForm(multipartMemory); err != nil {
		return "", nil, bodyError(err)
	}
	form := ctx.Request.MultipartForm
	defer func() {
		if err := form.RemoveAll(); err != nil {
			gmw.GetLogger(ctx).Warn("remove multipart temp files", zap.Error(err))
		}
	}()

	var files []codebase.FileInput
	for _, header := range form.File["files"] {
		f, err := header.Open()
		if err != nil {
			return "", nil, codebase.NewError(codebase.ErrCodeValidation,
				"unreadable file "+header.Filename, false)
		}
		content, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return "", nil, bodyError(err)
		}
		files = append(files, codebase.FileInput{Path: header.Filename, Content: content})
	}

	return strings.TrimSpace(ctx.Request.FormValue("name")), files, nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return codebase.NewError(codebase.ErrCodePayloadTooLarge, "request body is too large", false)
	}
	return codebase.NewError(codebase.ErrCodeValidation, "unreadable upload: "+err.Error(), false)
}
