package codebase

import (
	"context"
	"fmt"
	"strings"

	errors "github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Create registers an empty codebase in status pending.
func (s *Service) Create(ctx context.Context, name string) (*Codebase, error) {
	row, err := s.newCodebase(name)
	if err != nil {
		return nil, err
	}
	if err = s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, errors.Wrap(err, "create codebase")
	}

	s.cacheStatus(ctx, row)
	return row, nil
}

func (s *Service) newCodebase(name string) (*Codebase, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Wrap(err, "generate codebase id")
	}
	now := s.clock()
	name = strings.TrimSpace(name)
	if name == "" {
		name = "codebase-" + now.Format("20060102-150405")
	}
	row := &Codebase{
		ID:             id.String(),
		Name:           name,
		Status:         StatusPending,
		EmbeddingModel: s.embedder.Model(),
		Message:        "Waiting for files",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if s.settings.Retention.TTL > 0 {
		expires := now.Add(s.settings.Retention.TTL)
		row.ExpiresAt = &expires
	}
	return row, nil
}

// Upload validates files, creates a codebase for them and queues indexing.
// Nothing is created when validation fails.
func (s *Service) Upload(ctx context.Context, name string, files []FileInput) (*UploadResult, error) {
	accepted, skipped, err := s.prepareFiles(files)
	if err != nil {
		return nil, err
	}

	row, err := s.newCodebase(name)
	if err != nil {
		return nil, err
	}
	if err = s.lockProvider.WithCodebaseLock(ctx, s.db, row.ID, s.settings.LockTimeout, func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Create(row).Error; err != nil {
			return errors.Wrap(err, "create codebase")
		}
		if err := s.attachFiles(ctx, tx, row, accepted); err != nil {
			return err
		}
		s.cacheStatus(ctx, row)
		return nil
	}); err != nil {
		s.forgetStatus(ctx, row.ID)
		return nil, err
	}

	s.archiveFiles(ctx, row.ID, accepted)
	s.LoggerFromContext(ctx).Info("codebase uploaded",
		zap.String("codebase_id", row.ID),
		zap.Int("accepted", len(accepted)),
		zap.Int("skipped", len(skipped)))

	return &UploadResult{
		CodebaseID:     row.ID,
		Status:         row.Status,
		FilesProcessed: len(accepted),
		TotalFiles:     len(files),
		SkippedFiles:   skipped,
		Message:        "Codebase upload started. Processing in background.",
	}, nil
}

// AddFiles stores more files in an existing codebase and queues them for indexing.
// A path that already exists is replaced.
func (s *Service) AddFiles(ctx context.Context, codebaseID string, files []FileInput) (*UploadResult, error) {
	accepted, skipped, err := s.prepareFiles(files)
	if err != nil {
		return nil, err
	}

	var row Codebase
	if err = s.lockProvider.WithCodebaseLock(ctx, s.db, codebaseID, s.settings.LockTimeout, func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Where("id = ?", codebaseID).Take(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundError(codebaseID)
			}
			return errors.Wrap(err, "load codebase")
		}
		if row.EmbeddingModel != "" && row.EmbeddingModel != s.embedder.Model() {
			return validationError("codebase %q was indexed with %s, current embedding model is %s",
				codebaseID, row.EmbeddingModel, s.embedder.Model())
		}
		if err := s.attachFiles(ctx, tx, &row, accepted); err != nil {
			return err
		}
		s.cacheStatus(ctx, &row)
		return nil
	}); err != nil {
		if row.ID != "" {
			s.forgetStatus(ctx, codebaseID)
		}
		return nil, err
	}

	s.archiveFiles(ctx, codebaseID, accepted)

	return &UploadResult{
		CodebaseID:     codebaseID,
		Status:         row.Status,
		FilesProcessed: len(accepted),
		TotalFiles:     len(files),
		SkippedFiles:   skipped,
		Message:        fmt.Sprintf("Queued %d files for indexing", len(accepted)),
	}, nil
}

// attachFiles stores files, enqueues their jobs and moves the codebase to processing.
func (s *Service) attachFiles(ctx context.Context, tx *gorm.DB, row *Codebase, files []preparedFile) error {
	if err := s.storeFiles(ctx, tx, row.ID, files); err != nil {
		return err
	}

	var total int64
	if err := tx.WithContext(ctx).Model(&CodebaseFile{}).Where("codebase_id = ?", row.ID).Count(&total).Error; err != nil {
		return errors.Wrap(err, "count files")
	}

	now := s.clock()
	row.Status = StatusProcessing
	row.TotalFiles = int(total)
	row.EmbeddingModel = s.embedder.Model()
	row.Message = "Starting file processing..."
	row.ErrorDetail = ""
	row.UpdatedAt = now
	if s.settings.Retention.TTL > 0 {
		expires := now.Add(s.settings.Retention.TTL)
		row.ExpiresAt = &expires
	}
	return errors.Wrap(tx.WithContext(ctx).Model(&Codebase{}).Where("id = ?", row.ID).Updates(map[string]any{
		"status":          row.Status,
		"total_files":     row.TotalFiles,
		"embedding_model": row.EmbeddingModel,
		"message":         row.Message,
		"error_detail":    row.ErrorDetail,
		"updated_at":      row.UpdatedAt,
		"expires_at":      row.ExpiresAt,
	}).Error, "update codebase")
}

// GetStatus returns the polling view of a codebase.
//
// The cache is only written under the codebase lock by the paths that change
// the status, so a miss reads the database without populating the cache.
func (s *Service) GetStatus(ctx context.Context, codebaseID string) (*StatusResult, error) {
	cached, found, err := s.cache.Get(ctx, codebaseID)
	if err != nil {
		s.warnOnError(ctx, err, "read status cache", zap.String("codebase_id", codebaseID))
	} else if found {
		return cached, nil
	}

	row, err := s.loadCodebase(ctx, codebaseID)
	if err != nil {
		return nil, err
	}
	status := statusFromRow(row)
	return &status, nil
}

// Get returns a codebase with its file list.
func (s *Service) Get(ctx context.Context, codebaseID string) (*CodebaseDetail, error) {
	row, err := s.loadCodebase(ctx, codebaseID)
	if err != nil {
		return nil, err
	}

	var files []CodebaseFile
	if err = s.db.WithContext(ctx).
		Select("path", "language", "size", "status", "chunk_count", "error").
		Where("codebase_id = ?", codebaseID).
		Order("path ASC").
		Find(&files).Error; err != nil {
		return nil, errors.Wrap(err, "list files")
	}

	detail := &CodebaseDetail{
		StatusResult:   statusFromRow(row),
		Name:           row.Name,
		EmbeddingModel: row.EmbeddingModel,
		CreatedAt:      row.CreatedAt,
		ExpiresAt:      row.ExpiresAt,
		Files:          make([]FileSummary, 0, len(files)),
	}
	for _, file := range files {
		detail.Files = append(detail.Files, FileSummary{
			Path:       file.Path,
			Language:   file.Language,
			Size:       file.Size,
			Status:     file.Status,
			ChunkCount: file.ChunkCount,
			Error:      file.Error,
		})
	}
	return detail, nil
}

// List returns every codebase, newest first.
func (s *Service) List(ctx context.Context) ([]CodebaseSummary, error) {
	var rows []Codebase
	if err := s.db.WithContext(ctx).Order("created_at DESC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list codebases")
	}

	out := make([]CodebaseSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, CodebaseSummary{
			ID:         row.ID,
			Name:       row.Name,
			Status:     row.Status,
			TotalFiles: row.TotalFiles,
			ChunkCount: row.ChunkCount,
			CreatedAt:  row.CreatedAt,
			UpdatedAt:  row.UpdatedAt,
		})
	}
	return out, nil
}

// Delete evicts a codebase with its files, chunks, index entries and jobs.
func (s *Service) Delete(ctx context.Context, codebaseID string) error {
	if _, err := s.loadCodebase(ctx, codebaseID); err != nil {
		return err
	}

	if err := s.lockProvider.WithCodebaseLock(ctx, s.db, codebaseID, s.settings.LockTimeout, func(tx *gorm.DB) error {
		if err := s.index.Drop(ctx, tx, codebaseID); err != nil {
			return errors.Wrap(err, "drop vector index")
		}
		for _, model := range []any{&IndexJob{}, &CodebaseChunk{}, &CodebaseFile{}} {
			if err := tx.WithContext(ctx).Where("codebase_id = ?", codebaseID).Delete(model).Error; err != nil {
				return errors.Wrap(err, "delete codebase rows")
			}
		}
		if err := tx.WithContext(ctx).Where("id = ?", codebaseID).Delete(&Codebase{}).Error; err != nil {
			return errors.Wrap(err, "delete codebase")
		}
		s.forgetStatus(ctx, codebaseID)
		return nil
	}); err != nil {
		return err
	}

	if s.archive != nil {
		s.warnOnError(ctx, s.archive.DeleteCodebase(ctx, codebaseID), "delete archived upload",
			zap.String("codebase_id", codebaseID))
	}
	s.LoggerFromContext(ctx).Info("codebase deleted", zap.String("codebase_id", codebaseID))
	return nil
}

// loadCodebase reads the authoritative codebase row.
func (s *Service) loadCodebase(ctx context.Context, codebaseID string) (*Codebase, error) {
	if strings.TrimSpace(codebaseID) == "" {
		return nil, validationError("codebase_id is required")
	}
	row := new(Codebase)
	if err := s.db.WithContext(ctx).Where("id = ?", codebaseID).Take(row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError(codebaseID)
		}
		return nil, errors.Wrap(err, "load codebase")
	}
	return row, nil
}

// touch pushes the retention deadline of a codebase forward.
func (s *Service) touch(ctx context.Context, codebaseID string) {
	if s.settings.Retention.TTL <= 0 {
		return
	}
	expires := s.clock().Add(s.settings.Retention.TTL)
	s.warnOnError(ctx, s.db.WithContext(ctx).Model(&Codebase{}).
		Where("id = ?", codebaseID).
		Update("expires_at", expires).Error, "refresh codebase expiry",
		zap.String("codebase_id", codebaseID))
}

// cacheStatus publishes the status of row. Callers hold the codebase lock,
// so cache writes land in the same order as the row updates.
func (s *Service) cacheStatus(ctx context.Context, row *Codebase) {
	s.warnOnError(ctx, s.cache.Set(ctx, statusFromRow(row)), "cache codebase status",
		zap.String("codebase_id", row.ID))
}

// forgetStatus drops the cached status so polls fall back to the database.
func (s *Service) forgetStatus(ctx context.Context, codebaseID string) {
	s.warnOnError(ctx, s.cache.Delete(ctx, codebaseID), "delete cached status",
		zap.String("codebase_id", codebaseID))
}

func statusFromRow(row *Codebase) StatusResult {
	return StatusResult{
		CodebaseID:     row.ID,
		Status:         row.Status,
		TotalFiles:     row.TotalFiles,
		ProcessedFiles: row.ProcessedFiles,
		IndexedFiles:   row.IndexedFiles,
		FailedFiles:    row.FailedFiles,
		ChunkCount:     row.ChunkCount,
		Message:        row.Message,
		Error:          row.ErrorDetail,
		UpdatedAt:      row.UpdatedAt,
	}
}

// RemoveFile deletes one path from a codebase and queues removal of its index entries.
func (s *Service) RemoveFile(ctx context.Context, codebaseID, path string) (*StatusResult, error) {
	path = cleanFilename(path)
	if path == "" {
		return nil, validationError("path is required")
	}

	var row Codebase
	if err := s.lockProvider.WithCodebaseLock(ctx, s.db, codebaseID, s.settings.LockTimeout, func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Where("id = ?", codebaseID).Take(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundError(codebaseID)
			}
			return errors.Wrap(err, "load codebase")
		}
		res := tx.WithContext(ctx).Where("codebase_id = ? AND path = ?", codebaseID, path).Delete(&CodebaseFile{})
		if res.Error != nil {
			return errors.Wrap(res.Error, "delete file")
		}
		if res.RowsAffected == 0 {
			return NewError(ErrCodeNotFound, fmt.Sprintf("file %q not found in codebase %q", path, codebaseID), false)
		}
		if err := tx.WithContext(ctx).
			Where("codebase_id = ? AND file_path = ? AND status = ?", codebaseID, path, jobStatusPending).
			Delete(&IndexJob{}).Error; err != nil {
			return errors.Wrap(err, "drop superseded jobs")
		}

		now := s.clock()
		if err := tx.WithContext(ctx).Create(&IndexJob{
			CodebaseID:  codebaseID,
			FilePath:    path,
			Operation:   jobOperationDelete,
			Status:      jobStatusPending,
			AvailableAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}).Error; err != nil {
			return errors.Wrap(err, "enqueue delete")
		}

		row.Status = StatusProcessing
		row.TotalFiles--
		row.Message = fmt.Sprintf("Removing %s", path)
		row.UpdatedAt = now
		if err := tx.WithContext(ctx).Model(&Codebase{}).Where("id = ?", codebaseID).Updates(map[string]any{
			"status":      row.Status,
			"total_files": row.TotalFiles,
			"message":     row.Message,
			"updated_at":  row.UpdatedAt,
		}).Error; err != nil {
			return errors.Wrap(err, "update codebase")
		}
		s.cacheStatus(ctx, &row)
		return nil
	}); err != nil {
		if row.ID != "" {
			s.forgetStatus(ctx, codebaseID)
		}
		return nil, err
	}

	status := statusFromRow(&row)
	return &status, nil
}
