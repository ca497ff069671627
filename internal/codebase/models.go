package codebase

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// Status is the lifecycle state of a codebase.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// Terminal reports whether indexing has settled.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

// FileStatus is the indexing state of one file.
type FileStatus string

const (
	FileStatusPending FileStatus = "pending"
	FileStatusIndexed FileStatus = "indexed"
	FileStatusSkipped FileStatus = "skipped"
	FileStatusFailed  FileStatus = "failed"
)

// Index job states and operations.
const (
	jobStatusPending    = "pending"
	jobStatusProcessing = "processing"
	jobStatusDone       = "done"
	jobStatusFailed     = "failed"

	jobOperationUpsert = "UPSERT"
	jobOperationDelete = "DELETE"
)

// Codebase is one uploaded collection of files and its lifecycle record.
type Codebase struct {
	ID             string `gorm:"primaryKey;size:36"`
	Name           string `gorm:"size:255"`
	Status         Status `gorm:"size:16;index"`
	TotalFiles     int
	ProcessedFiles int
	IndexedFiles   int
	FailedFiles    int
	SkippedFiles   int
	ChunkCount     int
	EmbeddingModel string `gorm:"size:128"`
	Message        string `gorm:"size:1024"`
	ErrorDetail    string `gorm:"type:text"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ExpiresAt      *time.Time `gorm:"index"`
}

// TableName returns the database table name.
func (Codebase) TableName() string {
	return "codebases"
}

// CodebaseFile is the cleaned text of one file of a codebase. Paths are unique per codebase.
type CodebaseFile struct {
	ID          int64      `gorm:"primaryKey;autoIncrement"`
	CodebaseID  string     `gorm:"column:codebase_id;size:36;uniqueIndex:uq_codebase_files_path,priority:1"`
	Path        string     `gorm:"column:path;size:1024;uniqueIndex:uq_codebase_files_path,priority:2"`
	Language    string     `gorm:"size:32"`
	Content     string     `gorm:"type:text"`
	Size        int64
	ContentHash string     `gorm:"size:64"`
	Status      FileStatus `gorm:"size:16"`
	Error       string     `gorm:"type:text"`
	ChunkCount  int
	Functions   datatypes.JSON
	Classes     datatypes.JSON
	Imports     datatypes.JSON
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName returns the database table name.
func (CodebaseFile) TableName() string {
	return "codebase_files"
}

// CodebaseChunk is one retrievable region of a file.
type CodebaseChunk struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	CodebaseID  string `gorm:"column:codebase_id;size:36;index:idx_codebase_chunks_path,priority:1"`
	FilePath    string `gorm:"column:file_path;size:1024;index:idx_codebase_chunks_path,priority:2"`
	ChunkIndex  int
	Kind        string `gorm:"size:16"`
	Name        string `gorm:"size:255"`
	StartLine   int
	EndLine     int
	StartByte   int
	EndByte     int
	Content     string `gorm:"type:text"`
	ContentHash string `gorm:"size:64"`
	CreatedAt   time.Time
}

// TableName returns the database table name.
func (CodebaseChunk) TableName() string {
	return "codebase_chunks"
}

// CodebaseChunkEmbedding is the index entry of one chunk in the SQL vector index.
type CodebaseChunkEmbedding struct {
	ChunkID    int64           `gorm:"primaryKey;autoIncrement:false"`
	CodebaseID string          `gorm:"column:codebase_id;size:36;index"`
	Embedding  pgvector.Vector `gorm:"type:vector"`
	Model      string          `gorm:"size:128"`
	CreatedAt  time.Time
}

// TableName returns the database table name.
func (CodebaseChunkEmbedding) TableName() string {
	return "codebase_chunk_embeddings"
}

// IndexJob is one queued unit of indexing work for a file path.
type IndexJob struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	CodebaseID  string `gorm:"column:codebase_id;size:36;index"`
	FilePath    string `gorm:"column:file_path;size:1024"`
	Operation   string `gorm:"size:16"`
	Status      string `gorm:"size:16"`
	RetryCount  int
	LastError   string `gorm:"type:text"`
	AvailableAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName returns the database table name.
func (IndexJob) TableName() string {
	return "codebase_index_jobs"
}
