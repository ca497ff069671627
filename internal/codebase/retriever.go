package codebase

import (
	"context"
	"strings"

	errors "github.com/Laisky/errors/v2"
)

// Retrieve embeds query and returns the k nearest chunks of a ready codebase,
// best first, with scores normalized into [0, 1].
func (s *Service) Retrieve(ctx context.Context, codebaseID, query string, k int) ([]ChunkHit, error) {
	row, err := s.loadCodebase(ctx, codebaseID)
	if err != nil {
		return nil, err
	}
	if row.Status != StatusReady {
		return nil, notReadyError(codebaseID, row.Status)
	}
	if row.EmbeddingModel != "" && row.EmbeddingModel != s.embedder.Model() {
		return nil, validationError("codebase %q was indexed with %s, current embedding model is %s",
			codebaseID, row.EmbeddingModel, s.embedder.Model())
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, validationError("query must not be empty")
	}
	k = s.clampTopK(k)

	rctx, cancel := context.WithTimeout(ctx, s.settings.Search.RetrievalTimeout)
	defer cancel()

	vectors, err := s.embedder.EmbedTexts(rctx, []string{query})
	if err != nil {
		return nil, NewError(ErrCodeSearchBackend, errors.Wrap(err, "embed query").Error(), true)
	}
	if len(vectors) != 1 {
		return nil, NewError(ErrCodeSearchBackend, "embed query: unexpected vector count", true)
	}

	matches, err := s.index.Search(rctx, s.db, codebaseID, vectors[0], k)
	if err != nil {
		return nil, NewError(ErrCodeSearchBackend, errors.Wrapf(err, "search %s index", s.index.Name()).Error(), true)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	return s.loadHits(rctx, codebaseID, matches)
}

// clampTopK applies the configured default and maximum.
func (s *Service) clampTopK(k int) int {
	if k <= 0 {
		return s.settings.Search.TopKDefault
	}
	if k > s.settings.Search.TopKMax {
		return s.settings.Search.TopKMax
	}
	return k
}

// loadHits joins index matches with their chunk rows, keeping match order.
// Matches whose chunk no longer exists or whose score is below
// Search.MinScore are dropped.
func (s *Service) loadHits(ctx context.Context, codebaseID string, matches []VectorHit) ([]ChunkHit, error) {
	ids := make([]int64, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ChunkID)
	}

	var chunks []CodebaseChunk
	if err := s.db.WithContext(ctx).
		Where("codebase_id = ? AND id IN ?", codebaseID, ids).
		Find(&chunks).Error; err != nil {
		return nil, errors.Wrap(err, "load chunks")
	}
	byID := make(map[int64]CodebaseChunk, len(chunks))
	paths := make([]string, 0, len(chunks))
	seen := make(map[string]bool, len(chunks))
	for _, ch := range chunks {
		byID[ch.ID] = ch
		if !seen[ch.FilePath] {
			seen[ch.FilePath] = true
			paths = append(paths, ch.FilePath)
		}
	}

	var files []CodebaseFile
	if len(paths) > 0 {
		if err := s.db.WithContext(ctx).
			Select("path", "language").
			Where("codebase_id = ? AND path IN ?", codebaseID, paths).
			Find(&files).Error; err != nil {
			return nil, errors.Wrap(err, "load file languages")
		}
	}
	languages := make(map[string]string, len(files))
	for _, f := range files {
		languages[f.Path] = f.Language
	}

	hits := make([]ChunkHit, 0, len(matches))
	for _, m := range matches {
		ch, ok := byID[m.ChunkID]
		if !ok {
			continue
		}
		score := normalizeScore(m.Similarity)
		if score < s.settings.Search.MinScore {
			continue
		}
		hits = append(hits, ChunkHit{
			ChunkID:   ch.ID,
			FilePath:  ch.FilePath,
			Language:  languages[ch.FilePath],
			Kind:      ch.Kind,
			Name:      ch.Name,
			StartLine: ch.StartLine,
			EndLine:   ch.EndLine,
			Content:   ch.Content,
			Score:     score,
		})
	}
	return hits, nil
}
