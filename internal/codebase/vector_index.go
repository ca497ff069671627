package codebase

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"time"

	errors "github.com/Laisky/errors/v2"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// IndexEntry is one chunk vector to store in a vector index.
type IndexEntry struct {
	ChunkID  int64
	FilePath string
	Vector   pgvector.Vector
}

// VectorHit is one nearest-neighbour match. Similarity is raw cosine in [-1, 1].
type VectorHit struct {
	ChunkID    int64   `gorm:"column:chunk_id"`
	Similarity float64 `gorm:"column:similarity"`
}

// VectorIndex stores chunk vectors per codebase and answers nearest-neighbour queries.
type VectorIndex interface {
	// Replace swaps the entries of one file path. tx is the open write transaction.
	Replace(ctx context.Context, tx *gorm.DB, codebaseID, path string, entries []IndexEntry) error
	Search(ctx context.Context, db *gorm.DB, codebaseID string, vector pgvector.Vector, k int) ([]VectorHit, error)
	// Drop removes every entry of a codebase.
	Drop(ctx context.Context, tx *gorm.DB, codebaseID string) error
	Name() string
}

// SQLVectorIndex keeps vectors in codebase_chunk_embeddings. Postgres uses the
// pgvector cosine operator; other dialects score in process.
type SQLVectorIndex struct {
	model string
}

// NewSQLVectorIndex creates an index that tags rows with the embedding model.
func NewSQLVectorIndex(model string) *SQLVectorIndex {
	return &SQLVectorIndex{model: model}
}

// Name implements VectorIndex.
func (idx *SQLVectorIndex) Name() string {
	return BackendSQL
}

// Replace implements VectorIndex. Chunk rows of the path must already be replaced in tx.
func (idx *SQLVectorIndex) Replace(ctx context.Context, tx *gorm.DB, codebaseID, _ string, entries []IndexEntry) error {
	if err := tx.WithContext(ctx).
		Where("codebase_id = ? AND chunk_id NOT IN (SELECT id FROM codebase_chunks WHERE codebase_id = ?)", codebaseID, codebaseID).
		Delete(&CodebaseChunkEmbedding{}).Error; err != nil {
		return errors.Wrap(err, "cleanup embeddings")
	}

	now := time.Now().UTC()
	for _, entry := range entries {
		if err := idx.insertEmbedding(ctx, tx, codebaseID, entry, now); err != nil {
			return err
		}
	}
	return nil
}

// insertEmbedding stores a chunk embedding, using pgvector when available.
func (idx *SQLVectorIndex) insertEmbedding(ctx context.Context, tx *gorm.DB, codebaseID string, entry IndexEntry, now time.Time) error {
	if isPostgresDialect(tx) {
		row := CodebaseChunkEmbedding{
			ChunkID:    entry.ChunkID,
			CodebaseID: codebaseID,
			Embedding:  entry.Vector,
			Model:      idx.model,
			CreatedAt:  now,
		}
		return errors.Wrap(tx.WithContext(ctx).Create(&row).Error, "insert embedding")
	}

	payload, err := json.Marshal(entry.Vector.Slice())
	if err != nil {
		return errors.Wrap(err, "marshal embedding")
	}
	return errors.Wrap(tx.WithContext(ctx).Exec(
		"INSERT INTO codebase_chunk_embeddings (chunk_id, codebase_id, embedding, model, created_at) VALUES (?, ?, ?, ?, ?)",
		entry.ChunkID,
		codebaseID,
		string(payload),
		idx.model,
		now,
	).Error, "insert embedding")
}

// Search implements VectorIndex.
func (idx *SQLVectorIndex) Search(ctx context.Context, db *gorm.DB, codebaseID string, vector pgvector.Vector, k int) ([]VectorHit, error) {
	if k <= 0 {
		return nil, nil
	}
	if isPostgresDialect(db) {
		var hits []VectorHit
		err := db.WithContext(ctx).Raw(
			`SELECT chunk_id, 1 - (embedding <=> ?) AS similarity
			FROM codebase_chunk_embeddings
			WHERE codebase_id = ?
			ORDER BY embedding <=> ?, chunk_id ASC
			LIMIT ?`,
			vector, codebaseID, vector, k,
		).Scan(&hits).Error
		if err != nil {
			return nil, errors.Wrap(err, "query pgvector")
		}
		return hits, nil
	}

	return idx.searchInProcess(ctx, db, codebaseID, vector, k)
}

type storedEmbedding struct {
	ChunkID   int64  `gorm:"column:chunk_id"`
	Embedding string `gorm:"column:embedding"`
}

// searchInProcess scans every embedding of the codebase and ranks by cosine similarity.
// Rows whose dimension differs from the query are skipped.
func (idx *SQLVectorIndex) searchInProcess(ctx context.Context, db *gorm.DB, codebaseID string, vector pgvector.Vector, k int) ([]VectorHit, error) {
	var rows []storedEmbedding
	if err := db.WithContext(ctx).
		Raw("SELECT chunk_id, embedding FROM codebase_chunk_embeddings WHERE codebase_id = ?", codebaseID).
		Scan(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "load embeddings")
	}

	query := vector.Slice()
	hits := make([]VectorHit, 0, len(rows))
	for _, row := range rows {
		var stored []float32
		if err := json.Unmarshal([]byte(row.Embedding), &stored); err != nil {
			return nil, errors.Wrapf(err, "decode embedding of chunk %d", row.ChunkID)
		}
		if len(stored) != len(query) {
			continue
		}
		hits = append(hits, VectorHit{ChunkID: row.ChunkID, Similarity: cosineSimilarity(query, stored)})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Drop implements VectorIndex.
func (idx *SQLVectorIndex) Drop(ctx context.Context, tx *gorm.DB, codebaseID string) error {
	return errors.Wrap(tx.WithContext(ctx).
		Where("codebase_id = ?", codebaseID).
		Delete(&CodebaseChunkEmbedding{}).Error, "delete embeddings")
}

// cosineSimilarity returns the cosine of the angle between a and b, zero when either is empty.
func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// normalizeScore maps cosine similarity into [0, 1].
func normalizeScore(similarity float64) float64 {
	score := (similarity + 1) / 2
	switch {
	case math.IsNaN(score), score < 0:
		return 0
	case score > 1:
		return 1
	}
	return score
}
