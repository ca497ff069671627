package codebase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	errors "github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JxTIN21/Codebase/internal/codebase/chunker"
)

var filenameReplacer = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", `"`, "_", "|", "_", "?", "_", "*", "_",
	`\`, "/",
)

// preparedFile is an accepted upload after validation and cleaning.
type preparedFile struct {
	Path     string
	Raw      []byte
	Content  string
	Hash     string
	Metadata chunker.Metadata
}

// cleanFilename replaces characters that are unsafe in paths and normalizes separators.
func cleanFilename(name string) string {
	name = filenameReplacer.Replace(strings.TrimSpace(name))
	name = strings.TrimLeft(name, "/")
	for strings.Contains(name, "//") {
		name = strings.ReplaceAll(name, "//", "/")
	}
	return name
}

// prepareFiles validates an upload and returns the accepted files in
// submission order. A path submitted twice keeps its last content.
func (s *Service) prepareFiles(files []FileInput) (accepted []preparedFile, skipped []SkippedFile, err error) {
	if len(files) == 0 {
		return nil, nil, validationError("No files provided")
	}
	limits := s.settings.Upload
	if len(files) > limits.MaxFiles {
		return nil, nil, NewError(ErrCodePayloadTooLarge,
			fmt.Sprintf("upload has %d files, limit is %d", len(files), limits.MaxFiles), false)
	}
	var total int64
	for _, file := range files {
		total += int64(len(file.Content))
	}
	if total > limits.MaxUploadBytes {
		return nil, nil, NewError(ErrCodePayloadTooLarge,
			fmt.Sprintf("upload is %d bytes, limit is %d", total, limits.MaxUploadBytes), false)
	}

	position := make(map[string]int, len(files))
	for _, file := range files {
		path := cleanFilename(file.Path)
		switch {
		case path == "":
			skipped = append(skipped, SkippedFile{Path: file.Path, Reason: "empty file name"})
			continue
		case !s.extensions[strings.ToLower(filepath.Ext(path))]:
			skipped = append(skipped, SkippedFile{Path: path, Reason: "unsupported file extension"})
			continue
		case int64(len(file.Content)) > limits.MaxFileBytes:
			skipped = append(skipped, SkippedFile{
				Path:   path,
				Reason: fmt.Sprintf("file exceeds %d bytes", limits.MaxFileBytes),
			})
			continue
		case chunker.IsBinary(file.Content):
			skipped = append(skipped, SkippedFile{Path: path, Reason: "binary content"})
			continue
		}

		text, _ := chunker.DecodeContent(file.Content)
		content := chunker.CleanCode(text)
		hash := sha256.Sum256([]byte(content))
		prepared := preparedFile{
			Path:     path,
			Raw:      file.Content,
			Content:  content,
			Hash:     hex.EncodeToString(hash[:]),
			Metadata: chunker.ExtractMetadata(path, content),
		}

		if i, ok := position[path]; ok {
			accepted[i] = prepared
			continue
		}
		position[path] = len(accepted)
		accepted = append(accepted, prepared)
	}

	if len(accepted) == 0 {
		return nil, skipped, validationError("No valid files found. Supported extensions: %s",
			strings.Join(chunker.SortedExtensions(s.extensions), ", "))
	}
	return accepted, skipped, nil
}

// storeFiles upserts file rows and queues one index job per path. Must run under the codebase lock.
func (s *Service) storeFiles(ctx context.Context, tx *gorm.DB, codebaseID string, files []preparedFile) error {
	now := s.clock()
	for _, file := range files {
		row := CodebaseFile{
			CodebaseID:  codebaseID,
			Path:        file.Path,
			Language:    file.Metadata.Language,
			Content:     file.Content,
			Size:        int64(len(file.Content)),
			ContentHash: file.Hash,
			Status:      FileStatusPending,
			Functions:   jsonList(file.Metadata.Functions),
			Classes:     jsonList(file.Metadata.Classes),
			Imports:     jsonList(file.Metadata.Imports),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "codebase_id"}, {Name: "path"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"language", "content", "size", "content_hash", "status", "error",
				"chunk_count", "functions", "classes", "imports", "updated_at",
			}),
		}).Create(&row).Error; err != nil {
			return errors.Wrapf(err, "store file %s", file.Path)
		}

		if err := tx.WithContext(ctx).
			Where("codebase_id = ? AND file_path = ? AND status = ?", codebaseID, file.Path, jobStatusPending).
			Delete(&IndexJob{}).Error; err != nil {
			return errors.Wrap(err, "drop superseded jobs")
		}
		job := IndexJob{
			CodebaseID:  codebaseID,
			FilePath:    file.Path,
			Operation:   jobOperationUpsert,
			Status:      jobStatusPending,
			AvailableAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.WithContext(ctx).Create(&job).Error; err != nil {
			return errors.Wrapf(err, "enqueue %s", file.Path)
		}
	}
	return nil
}

// archiveFiles copies the raw upload to the object store. Failures are logged only.
func (s *Service) archiveFiles(ctx context.Context, codebaseID string, files []preparedFile) {
	if s.archive == nil {
		return
	}
	inputs := make([]FileInput, 0, len(files))
	for _, file := range files {
		inputs = append(inputs, FileInput{Path: file.Path, Content: file.Raw})
	}
	s.warnOnError(ctx, s.archive.PutFiles(ctx, codebaseID, inputs), "archive upload",
		zap.String("codebase_id", codebaseID),
		zap.Int("files", len(inputs)))
}

func jsonList(items []string) datatypes.JSON {
	if items == nil {
		items = []string{}
	}
	payload, _ := json.Marshal(items)
	return datatypes.JSON(payload)
}
