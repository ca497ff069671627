package codebase

import (
	"context"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
)

// Search answers a natural-language query against one ready codebase.
//
// Retrieval errors fail the call. Generation errors only mark the result degraded.
func (s *Service) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, validationError("query must not be empty")
	}
	if strings.TrimSpace(req.CodebaseID) == "" {
		return nil, validationError("codebase_id is required")
	}

	logger := s.LoggerFromContext(ctx).With(zap.String("codebase_id", req.CodebaseID))
	start := time.Now()

	qctx, cancel := context.WithTimeout(ctx, s.settings.Search.QueryTimeout)
	defer cancel()

	hits, err := s.Retrieve(qctx, req.CodebaseID, req.Query, req.Limit)
	if err != nil {
		return nil, err
	}

	contents, err := s.inlineContents(qctx, req.CodebaseID, hits)
	if err != nil {
		return nil, err
	}
	files := AggregateFiles(hits, RankOptions{
		SnippetChars:       s.settings.Search.SnippetChars,
		InlineContentBytes: s.settings.Search.InlineContentBytes,
		Contents: func(path string) (string, bool) {
			content, ok := contents[path]
			return content, ok
		},
	})

	synthesis := s.synthesizer.Synthesize(qctx, req.Query, hits)
	s.touch(ctx, req.CodebaseID)

	logger.Info("codebase searched",
		zap.Int("hits", len(hits)),
		zap.Int("files", len(files)),
		zap.Bool("degraded", synthesis.Degraded),
		zap.Duration("cost", time.Since(start)))

	return &SearchResult{
		Query:          req.Query,
		Explanation:    synthesis.Explanation,
		Degraded:       synthesis.Degraded,
		DegradedReason: synthesis.DegradedReason,
		RelevantFiles:  files,
		CodeExamples:   synthesis.Examples,
	}, nil
}

// inlineContents loads the full text of hit files small enough to be returned inline.
func (s *Service) inlineContents(ctx context.Context, codebaseID string, hits []ChunkHit) (map[string]string, error) {
	limit := s.settings.Search.InlineContentBytes
	if limit <= 0 || len(hits) == 0 {
		return nil, nil
	}

	paths := make([]string, 0, len(hits))
	seen := make(map[string]bool, len(hits))
	for _, hit := range hits {
		if !seen[hit.FilePath] {
			seen[hit.FilePath] = true
			paths = append(paths, hit.FilePath)
		}
	}

	var files []CodebaseFile
	if err := s.db.WithContext(ctx).
		Select("path", "content").
		Where("codebase_id = ? AND path IN ? AND size <= ?", codebaseID, paths, limit).
		Find(&files).Error; err != nil {
		return nil, errors.Wrap(err, "load file contents")
	}

	contents := make(map[string]string, len(files))
	for _, f := range files {
		contents[f.Path] = f.Content
	}
	return contents, nil
}
