package codebase

import (
	"context"
	"fmt"
	"time"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/JxTIN21/Codebase/library/log"
)

const noChunksCause = "no chunks were indexed"

// IndexWorker processes codebase indexing jobs.
type IndexWorker struct {
	svc    *Service
	logger logSDK.Logger
}

// StartIndexWorkers starts the configured number of indexing workers,
// but never fewer than minimum, and returns how many were started.
func (s *Service) StartIndexWorkers(ctx context.Context, minimum int) (int, error) {
	if s == nil {
		return 0, errors.New("codebase service is nil")
	}
	count := s.settings.Index.Workers
	if count < minimum {
		count = minimum
	}
	if count <= 0 {
		return 0, nil
	}
	for i := 0; i < count; i++ {
		worker := s.NewIndexWorker()
		go func() {
			if err := worker.Start(ctx); err != nil {
				worker.logger.Warn("index worker stopped", zap.Error(err))
			}
		}()
	}
	return count, nil
}

// NewIndexWorker constructs a new index worker instance.
func (s *Service) NewIndexWorker() *IndexWorker {
	logger := s.logger
	if logger == nil {
		logger = log.Logger.Named("codebase_index_worker")
	}
	return &IndexWorker{svc: s, logger: logger.Named("worker")}
}

// Start runs the worker loop until the context is cancelled.
func (w *IndexWorker) Start(ctx context.Context) error {
	if w == nil || w.svc == nil {
		return errors.New("worker is not configured")
	}
	interval := w.svc.settings.Index.PollInterval
	for {
		if isContextDone(ctx) {
			return nil
		}
		if err := w.RunOnce(ctx); err != nil {
			w.logger.Warn("index worker run failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// RunOnce claims a batch of jobs and processes them grouped by codebase.
func (w *IndexWorker) RunOnce(ctx context.Context) error {
	jobs, err := w.claimJobs(ctx)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return nil
	}

	var (
		order   []string
		grouped = make(map[string][]IndexJob)
	)
	for _, job := range jobs {
		if _, ok := grouped[job.CodebaseID]; !ok {
			order = append(order, job.CodebaseID)
		}
		grouped[job.CodebaseID] = append(grouped[job.CodebaseID], job)
	}

	for _, codebaseID := range order {
		w.processCodebaseJobs(ctx, codebaseID, grouped[codebaseID])
	}
	return nil
}

// processCodebaseJobs runs the jobs of one codebase concurrently, then refreshes its status.
func (w *IndexWorker) processCodebaseJobs(ctx context.Context, codebaseID string, jobs []IndexJob) {
	var pool errgroup.Group
	pool.SetLimit(w.svc.settings.Index.Concurrency)
	for _, job := range jobs {
		pool.Go(func() error {
			if err := w.processJob(ctx, job); err != nil {
				w.logger.Warn("process index job failed",
					zap.Error(err),
					zap.Int64("job_id", job.ID),
					zap.String("codebase_id", codebaseID),
					zap.String("path", job.FilePath))
			}
			return nil
		})
	}
	_ = pool.Wait()

	if err := w.svc.refreshCodebase(context.WithoutCancel(ctx), codebaseID); err != nil {
		w.logger.Warn("refresh codebase status", zap.Error(err), zap.String("codebase_id", codebaseID))
	}
}

// claimJobs selects pending index jobs, plus processing jobs whose lease ran out,
// and marks them as processing. A reclaimed job counts as one retry.
func (w *IndexWorker) claimJobs(ctx context.Context) ([]IndexJob, error) {
	svc := w.svc
	now := svc.clock()
	batch := svc.settings.Index.BatchSize
	leaseCutoff := now.Add(-svc.settings.Index.ClaimLease)

	var jobs []IndexJob
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := "SELECT * FROM codebase_index_jobs" +
			" WHERE (status = ? AND available_at <= ?) OR (status = ? AND updated_at <= ?)" +
			" ORDER BY id ASC LIMIT ?"
		args := []any{jobStatusPending, now, jobStatusProcessing, leaseCutoff, batch}
		if isPostgresDialect(tx) {
			query += " FOR UPDATE SKIP LOCKED"
		}
		if err := tx.Raw(query, args...).Scan(&jobs).Error; err != nil {
			return errors.Wrap(err, "claim index jobs")
		}
		if len(jobs) == 0 {
			return nil
		}

		ids := make([]int64, 0, len(jobs))
		var expired []int64
		for i := range jobs {
			ids = append(ids, jobs[i].ID)
			if jobs[i].Status == jobStatusProcessing {
				expired = append(expired, jobs[i].ID)
				jobs[i].RetryCount++
			}
			jobs[i].Status = jobStatusProcessing
		}
		if err := tx.Model(&IndexJob{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":     jobStatusProcessing,
				"updated_at": now,
			}).Error; err != nil {
			return errors.Wrap(err, "mark jobs processing")
		}
		if len(expired) > 0 {
			w.logger.Warn("reclaim index jobs with expired lease", zap.Int("count", len(expired)))
			if err := tx.Model(&IndexJob{}).
				Where("id IN ?", expired).
				Updates(map[string]any{
					"retry_count": gorm.Expr("retry_count + 1"),
					"updated_at":  now,
				}).Error; err != nil {
				return errors.Wrap(err, "bump reclaimed jobs")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return jobs, nil
}

// processJob dispatches the job by operation type. Results are recorded even
// when ctx is cancelled, so a stopping worker never strands a claimed job.
func (w *IndexWorker) processJob(ctx context.Context, job IndexJob) error {
	svc := w.svc
	writeCtx := context.WithoutCancel(ctx)
	if job.RetryCount > svc.settings.Index.RetryMax {
		return w.markJobFailed(writeCtx, job,
			errors.Errorf("index job lease expired after %d attempts", job.RetryCount))
	}

	var err error
	switch job.Operation {
	case jobOperationUpsert:
		err = svc.processUpsertJob(ctx, job)
	case jobOperationDelete:
		err = svc.processDeleteJob(ctx, job)
	default:
		return w.markJobFailed(writeCtx, job, errors.Errorf("unknown job operation %q", job.Operation))
	}
	if err != nil {
		if isContextDone(ctx) {
			return w.releaseJob(writeCtx, job)
		}
		return w.handleJobError(writeCtx, job, err)
	}
	return w.markJobDone(writeCtx, job)
}

// releaseJob hands an interrupted job back to the queue without counting a retry.
func (w *IndexWorker) releaseJob(ctx context.Context, job IndexJob) error {
	svc := w.svc
	return errors.Wrap(svc.db.WithContext(ctx).Model(&IndexJob{}).
		Where("id = ? AND status = ?", job.ID, jobStatusProcessing).
		Updates(map[string]any{
			"status":       jobStatusPending,
			"available_at": svc.clock(),
			"updated_at":   svc.clock(),
		}).Error, "release index job")
}

// handleJobError schedules retries or marks a job as failed.
func (w *IndexWorker) handleJobError(ctx context.Context, job IndexJob, err error) error {
	svc := w.svc
	if job.RetryCount >= svc.settings.Index.RetryMax {
		return w.markJobFailed(ctx, job, err)
	}
	next := svc.clock().Add(svc.settings.Index.RetryBackoff * time.Duration(job.RetryCount+1))
	return svc.db.WithContext(ctx).Model(&IndexJob{}).
		Where("id = ?", job.ID).
		Updates(map[string]any{
			"status":       jobStatusPending,
			"retry_count":  job.RetryCount + 1,
			"last_error":   err.Error(),
			"available_at": next,
			"updated_at":   svc.clock(),
		}).Error
}

// markJobFailed records the final failure on the job and on the file it targets.
func (w *IndexWorker) markJobFailed(ctx context.Context, job IndexJob, cause error) error {
	svc := w.svc
	w.logger.Warn("index job failed", zap.Error(cause), zap.Int64("job_id", job.ID), zap.String("path", job.FilePath))
	return svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&IndexJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]any{
				"status":     jobStatusFailed,
				"last_error": cause.Error(),
				"updated_at": svc.clock(),
			}).Error; err != nil {
			return errors.Wrap(err, "mark job failed")
		}
		return errors.Wrap(tx.Model(&CodebaseFile{}).
			Where("codebase_id = ? AND path = ?", job.CodebaseID, job.FilePath).
			Updates(map[string]any{
				"status":      FileStatusFailed,
				"error":       cause.Error(),
				"chunk_count": 0,
				"updated_at":  svc.clock(),
			}).Error, "mark file failed")
	})
}

// markJobDone updates the job status to done.
func (w *IndexWorker) markJobDone(ctx context.Context, job IndexJob) error {
	svc := w.svc
	return svc.db.WithContext(ctx).Model(&IndexJob{}).
		Where("id = ?", job.ID).
		Updates(map[string]any{
			"status":     jobStatusDone,
			"updated_at": svc.clock(),
		}).Error
}

// processUpsertJob chunks and embeds one file, then replaces its index rows under the codebase lock.
func (s *Service) processUpsertJob(ctx context.Context, job IndexJob) error {
	var file CodebaseFile
	if err := s.db.WithContext(ctx).
		Where("codebase_id = ? AND path = ?", job.CodebaseID, job.FilePath).
		Take(&file).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return errors.Wrap(err, "load file for indexing")
	}

	res := s.chunker.Split(ctx, file.Path, file.Content)
	if res.Warning != nil {
		s.logger.Debug("language-aware chunking failed, used line windows",
			zap.String("path", file.Path), zap.Error(res.Warning))
	}

	entries := make([]ChunkEntry, 0, len(res.Chunks))
	if len(res.Chunks) > 0 {
		texts := make([]string, 0, len(res.Chunks))
		for _, ch := range res.Chunks {
			texts = append(texts, ch.EmbeddingText(file.Path, file.Language))
		}
		vectors, err := s.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return NewError(ErrCodeIngestion, errors.Wrapf(err, "embed %s", file.Path).Error(), true)
		}
		if len(vectors) != len(res.Chunks) {
			return NewError(ErrCodeIngestion, fmt.Sprintf("embedding count mismatch for %s", file.Path), true)
		}
		for i, ch := range res.Chunks {
			entries = append(entries, ChunkEntry{FilePath: file.Path, Chunk: ch, Vector: vectors[i]})
		}
	}

	return s.lockProvider.WithCodebaseLock(ctx, s.db, job.CodebaseID, s.settings.LockTimeout, func(tx *gorm.DB) error {
		// a newer upload of the path has its own job
		var current CodebaseFile
		if err := tx.WithContext(ctx).
			Select("id", "content_hash").
			Where("codebase_id = ? AND path = ?", job.CodebaseID, job.FilePath).
			Take(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return errors.Wrap(err, "reload file")
		}
		if current.ContentHash != file.ContentHash {
			return nil
		}

		if err := s.replacePathTx(ctx, tx, job.CodebaseID, file.Path, entries); err != nil {
			return err
		}

		status, reason := FileStatusIndexed, ""
		if len(entries) == 0 {
			status, reason = FileStatusSkipped, "empty file"
		}
		return errors.Wrap(tx.WithContext(ctx).Model(&CodebaseFile{}).
			Where("id = ?", current.ID).
			Updates(map[string]any{
				"status":      status,
				"error":       reason,
				"chunk_count": len(entries),
				"updated_at":  s.clock(),
			}).Error, "mark file indexed")
	})
}

// processDeleteJob removes index rows of a path unless the path was uploaded again.
func (s *Service) processDeleteJob(ctx context.Context, job IndexJob) error {
	return s.lockProvider.WithCodebaseLock(ctx, s.db, job.CodebaseID, s.settings.LockTimeout, func(tx *gorm.DB) error {
		var count int64
		if err := tx.WithContext(ctx).Model(&CodebaseFile{}).
			Where("codebase_id = ? AND path = ?", job.CodebaseID, job.FilePath).
			Count(&count).Error; err != nil {
			return errors.Wrap(err, "check file for delete")
		}
		if count > 0 {
			return nil
		}
		return s.replacePathTx(ctx, tx, job.CodebaseID, job.FilePath, nil)
	})
}

// refreshCodebase recomputes progress counters and settles the lifecycle
// status once no job of the codebase is pending or in flight.
func (s *Service) refreshCodebase(ctx context.Context, codebaseID string) error {
	var row Codebase
	err := s.lockProvider.WithCodebaseLock(ctx, s.db, codebaseID, s.settings.LockTimeout, func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Where("id = ?", codebaseID).Take(&row).Error; err != nil {
			return err
		}

		type fileCount struct {
			Status FileStatus
			N      int
		}
		var counts []fileCount
		if err := tx.WithContext(ctx).Model(&CodebaseFile{}).
			Select("status, COUNT(*) AS n").
			Where("codebase_id = ?", codebaseID).
			Group("status").
			Scan(&counts).Error; err != nil {
			return errors.Wrap(err, "count files")
		}
		var chunks, openJobs int64
		if err := tx.WithContext(ctx).Model(&CodebaseChunk{}).
			Where("codebase_id = ?", codebaseID).
			Count(&chunks).Error; err != nil {
			return errors.Wrap(err, "count chunks")
		}
		if err := tx.WithContext(ctx).Model(&IndexJob{}).
			Where("codebase_id = ? AND status IN ?", codebaseID, []string{jobStatusPending, jobStatusProcessing}).
			Count(&openJobs).Error; err != nil {
			return errors.Wrap(err, "count open jobs")
		}

		row.TotalFiles, row.IndexedFiles, row.FailedFiles, row.SkippedFiles = 0, 0, 0, 0
		for _, c := range counts {
			row.TotalFiles += c.N
			switch c.Status {
			case FileStatusIndexed:
				row.IndexedFiles = c.N
			case FileStatusFailed:
				row.FailedFiles = c.N
			case FileStatusSkipped:
				row.SkippedFiles = c.N
			}
		}
		row.ProcessedFiles = row.IndexedFiles + row.FailedFiles + row.SkippedFiles
		row.ChunkCount = int(chunks)
		row.UpdatedAt = s.clock()

		switch {
		case openJobs > 0:
			row.Status = StatusProcessing
			row.Message = fmt.Sprintf("Processed %d/%d files...", row.ProcessedFiles, row.TotalFiles)
		case row.ChunkCount > 0:
			row.Status = StatusReady
			row.Message = fmt.Sprintf("Successfully processed %d files", row.IndexedFiles)
			row.ErrorDetail = ""
		default:
			row.Status = StatusFailed
			row.Message = "No documents could be processed"
			row.ErrorDetail = noChunksCause
			if cause := firstFileError(ctx, tx, codebaseID); cause != "" {
				row.ErrorDetail += ": " + cause
			}
		}

		if err := tx.WithContext(ctx).Model(&Codebase{}).Where("id = ?", codebaseID).Updates(map[string]any{
			"status":          row.Status,
			"total_files":     row.TotalFiles,
			"processed_files": row.ProcessedFiles,
			"indexed_files":   row.IndexedFiles,
			"failed_files":    row.FailedFiles,
			"skipped_files":   row.SkippedFiles,
			"chunk_count":     row.ChunkCount,
			"message":         row.Message,
			"error_detail":    row.ErrorDetail,
			"updated_at":      row.UpdatedAt,
		}).Error; err != nil {
			return errors.Wrap(err, "update codebase status")
		}
		s.cacheStatus(ctx, &row)
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if row.ID != "" {
			s.forgetStatus(ctx, codebaseID)
		}
		return err
	}

	if row.Status == StatusReady || row.Status == StatusFailed {
		s.LoggerFromContext(ctx).Info("codebase indexing finished",
			zap.String("codebase_id", codebaseID),
			zap.String("status", string(row.Status)),
			zap.Int("indexed_files", row.IndexedFiles),
			zap.Int("failed_files", row.FailedFiles),
			zap.Int("chunks", row.ChunkCount))
	}
	return nil
}

func firstFileError(ctx context.Context, tx *gorm.DB, codebaseID string) string {
	var file CodebaseFile
	if err := tx.WithContext(ctx).
		Select("path", "error").
		Where("codebase_id = ? AND status = ?", codebaseID, FileStatusFailed).
		Order("path ASC").
		Take(&file).Error; err != nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", file.Path, file.Error)
}
