package codebase

import (
	"context"
	"time"

	errors "github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
)

// StartRetentionSweeper evicts expired codebases every sweep interval until ctx is done.
// It does nothing when no TTL is configured.
func (s *Service) StartRetentionSweeper(ctx context.Context) {
	if s.settings.Retention.TTL <= 0 {
		return
	}
	logger := s.logger.Named("retention")
	go func() {
		ticker := time.NewTicker(s.settings.Retention.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if n, err := s.EvictExpired(ctx); err != nil {
				logger.Warn("evict expired codebases", zap.Error(err))
			} else if n > 0 {
				logger.Info("evicted expired codebases", zap.Int("count", n))
			}
		}
	}()
}

// EvictExpired deletes codebases whose retention deadline has passed.
func (s *Service) EvictExpired(ctx context.Context) (int, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&Codebase{}).
		Where("expires_at IS NOT NULL AND expires_at < ?", s.clock()).
		Pluck("id", &ids).Error; err != nil {
		return 0, errors.Wrap(err, "find expired codebases")
	}

	evicted := 0
	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			if IsCode(err, ErrCodeNotFound) {
				continue
			}
			return evicted, errors.Wrapf(err, "evict %s", id)
		}
		evicted++
	}
	return evicted, nil
}
