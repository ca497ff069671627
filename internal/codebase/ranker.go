package codebase

import (
	"sort"
)

// RankOptions controls file-level aggregation.
type RankOptions struct {
	// SnippetChars truncates the representative snippet; "..." marks a cut.
	SnippetChars int
	// InlineContentBytes is the largest file whose full content is returned.
	InlineContentBytes int64
	// Contents looks up the full text of a file. Nil disables inlining.
	Contents func(path string) (string, bool)
}

// AggregateFiles groups chunk hits by file. A file scores as its best chunk and
// uses that chunk as snippet. Files are ordered by score, then by path.
func AggregateFiles(hits []ChunkHit, opts RankOptions) []RelevantFile {
	best := make(map[string]ChunkHit, len(hits))
	for _, hit := range hits {
		cur, ok := best[hit.FilePath]
		if !ok || hit.Score > cur.Score || (hit.Score == cur.Score && hit.StartLine < cur.StartLine) {
			best[hit.FilePath] = hit
		}
	}

	files := make([]RelevantFile, 0, len(best))
	for path, hit := range best {
		file := RelevantFile{
			FilePath:       path,
			Language:       hit.Language,
			RelevanceScore: hit.Score,
			Snippet:        truncateText(hit.Content, opts.SnippetChars, "..."),
			StartLine:      hit.StartLine,
			EndLine:        hit.EndLine,
		}
		if opts.Contents != nil {
			if content, ok := opts.Contents(path); ok && int64(len(content)) <= opts.InlineContentBytes {
				file.Content = content
			}
		}
		files = append(files, file)
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].RelevanceScore != files[j].RelevanceScore {
			return files[i].RelevanceScore > files[j].RelevanceScore
		}
		return files[i].FilePath < files[j].FilePath
	})
	return files
}

// truncateText cuts s to at most n runes and appends suffix when something was cut.
func truncateText(s string, n int, suffix string) string {
	if n <= 0 {
		return s
	}

	var count int
	for i := range s {
		if count == n {
			return s[:i] + suffix
		}
		count++
	}

	return s
}
