package redis

import "time"

// CodebaseStatus is the cached projection of a codebase lifecycle record
type CodebaseStatus struct {
	CodebaseID     string    `json:"codebase_id"`
	Status         string    `json:"status"`
	TotalFiles     int       `json:"total_files"`
	ProcessedFiles int       `json:"processed_files"`
	IndexedFiles   int       `json:"indexed_files"`
	FailedFiles    int       `json:"failed_files"`
	ChunkCount     int       `json:"chunk_count"`
	Message        string    `json:"message"`
	Error          string    `json:"error,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}
