package codebase

import (
	"time"
)

// FileInput is one uploaded file.
type FileInput struct {
	Path    string
	Content []byte
}

// SkippedFile explains why an uploaded file was not accepted.
type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// UploadResult is the synchronous answer to an upload.
type UploadResult struct {
	CodebaseID     string        `json:"codebase_id"`
	Status         Status        `json:"status"`
	FilesProcessed int           `json:"files_processed"`
	TotalFiles     int           `json:"total_files"`
	SkippedFiles   []SkippedFile `json:"skipped_files,omitempty"`
	Message        string        `json:"message"`
}

// StatusResult is the polling view of a codebase.
type StatusResult struct {
	CodebaseID     string    `json:"codebase_id"`
	Status         Status    `json:"status"`
	TotalFiles     int       `json:"total_files"`
	ProcessedFiles int       `json:"processed_files"`
	IndexedFiles   int       `json:"indexed_files"`
	FailedFiles    int       `json:"failed_files"`
	ChunkCount     int       `json:"chunk_count"`
	Message        string    `json:"message"`
	Error          string    `json:"error,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// FileSummary describes one stored file.
type FileSummary struct {
	Path       string     `json:"path"`
	Language   string     `json:"language"`
	Size       int64      `json:"size"`
	Status     FileStatus `json:"status"`
	ChunkCount int        `json:"chunk_count"`
	Error      string     `json:"error,omitempty"`
}

// CodebaseDetail is the full record of a codebase including its files.
type CodebaseDetail struct {
	StatusResult
	Name           string        `json:"name"`
	EmbeddingModel string        `json:"embedding_model"`
	CreatedAt      time.Time     `json:"created_at"`
	ExpiresAt      *time.Time    `json:"expires_at,omitempty"`
	Files          []FileSummary `json:"files"`
}

// CodebaseSummary is one row of the codebase listing.
type CodebaseSummary struct {
	ID         string    `json:"codebase_id"`
	Name       string    `json:"name"`
	Status     Status    `json:"status"`
	TotalFiles int       `json:"total_files"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SearchRequest is one natural-language query against one codebase.
type SearchRequest struct {
	CodebaseID string
	Query      string
	// Limit caps the number of retrieved chunks; zero uses the configured default.
	Limit int
}

// SearchResult is the structured answer to a query.
type SearchResult struct {
	Query          string         `json:"query"`
	Explanation    string         `json:"explanation"`
	Degraded       bool           `json:"degraded"`
	DegradedReason string         `json:"degraded_reason,omitempty"`
	RelevantFiles  []RelevantFile `json:"relevant_files"`
	CodeExamples   []CodeExample  `json:"code_examples"`
}

// RelevantFile is one ranked file of a search result.
type RelevantFile struct {
	FilePath       string  `json:"file_path"`
	Language       string  `json:"language"`
	RelevanceScore float64 `json:"relevance_score"`
	Snippet        string  `json:"snippet"`
	Content        string  `json:"content,omitempty"`
	StartLine      int     `json:"start_line"`
	EndLine        int     `json:"end_line"`
}

// CodeExample is an illustrative excerpt with an optional explanation.
type CodeExample struct {
	Title       string `json:"title"`
	Code        string `json:"code"`
	Explanation string `json:"explanation,omitempty"`
	FilePath    string `json:"file_path,omitempty"`
}

// ChunkHit is one retrieved chunk with its normalized similarity in [0, 1].
type ChunkHit struct {
	ChunkID   int64
	FilePath  string
	Language  string
	Kind      string
	Name      string
	StartLine int
	EndLine   int
	Content   string
	Score     float64
}
