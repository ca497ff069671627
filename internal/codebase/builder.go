package codebase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	errors "github.com/Laisky/errors/v2"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/JxTIN21/Codebase/internal/codebase/chunker"
)

// ChunkEntry is one chunk of a file with its embedding.
type ChunkEntry struct {
	FilePath string
	Chunk    chunker.Chunk
	Vector   pgvector.Vector
}

// BuildOrUpdate writes entries into the codebase index. Every path present in
// entries has its previous chunks and index entries replaced; paths not present
// are left untouched, so calls for different paths accumulate.
func (s *Service) BuildOrUpdate(ctx context.Context, codebaseID string, entries []ChunkEntry) error {
	var (
		order  []string
		byPath = make(map[string][]ChunkEntry)
	)
	for _, entry := range entries {
		if _, ok := byPath[entry.FilePath]; !ok {
			order = append(order, entry.FilePath)
		}
		byPath[entry.FilePath] = append(byPath[entry.FilePath], entry)
	}

	return s.lockProvider.WithCodebaseLock(ctx, s.db, codebaseID, s.settings.LockTimeout, func(tx *gorm.DB) error {
		for _, path := range order {
			if err := s.replacePathTx(ctx, tx, codebaseID, path, byPath[path]); err != nil {
				return err
			}
		}
		return nil
	})
}

// replacePathTx prunes the chunks and index entries of one path and inserts the new ones.
func (s *Service) replacePathTx(ctx context.Context, tx *gorm.DB, codebaseID, path string, entries []ChunkEntry) error {
	if err := tx.WithContext(ctx).
		Where("codebase_id = ? AND file_path = ?", codebaseID, path).
		Delete(&CodebaseChunk{}).Error; err != nil {
		return errors.Wrap(err, "delete chunks")
	}

	now := s.clock()
	indexEntries := make([]IndexEntry, 0, len(entries))
	for _, entry := range entries {
		hash := sha256.Sum256([]byte(entry.Chunk.Content))
		row := CodebaseChunk{
			CodebaseID:  codebaseID,
			FilePath:    path,
			ChunkIndex:  entry.Chunk.Index,
			Kind:        entry.Chunk.Kind,
			Name:        entry.Chunk.Name,
			StartLine:   entry.Chunk.StartLine,
			EndLine:     entry.Chunk.EndLine,
			StartByte:   entry.Chunk.StartByte,
			EndByte:     entry.Chunk.EndByte,
			Content:     entry.Chunk.Content,
			ContentHash: hex.EncodeToString(hash[:]),
			CreatedAt:   now,
		}
		if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
			return errors.Wrap(err, "insert chunk")
		}
		indexEntries = append(indexEntries, IndexEntry{
			ChunkID:  row.ID,
			FilePath: path,
			Vector:   entry.Vector,
		})
	}

	if err := s.index.Replace(ctx, tx, codebaseID, path, indexEntries); err != nil {
		return NewError(ErrCodeSearchBackend, errors.Wrapf(err, "index %s", path).Error(), true)
	}
	return nil
}
