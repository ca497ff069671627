package codebase

import (
	"context"
	"sync"

	errors "github.com/Laisky/errors/v2"
	"github.com/pgvector/pgvector-go"
	"github.com/qdrant/go-client/qdrant"
	"gorm.io/gorm"
)

// qdrantClient is the part of *qdrant.Client the index uses.
type qdrantClient interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	DeleteCollection(ctx context.Context, collectionName string) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Close() error
}

// QdrantVectorIndex keeps one qdrant collection per codebase.
// Collections are created on first write with the dimension of that write.
type QdrantVectorIndex struct {
	client qdrantClient
	prefix string

	mu    sync.Mutex
	known map[string]bool
}

// NewQdrantVectorIndex connects to qdrant over gRPC.
func NewQdrantVectorIndex(cfg QdrantSettings) (*QdrantVectorIndex, error) {
	if cfg.Host == "" {
		return nil, errors.New("qdrant host is required")
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, errors.Wrap(err, "new qdrant client")
	}

	return newQdrantVectorIndex(client, cfg.CollectionPrefix), nil
}

func newQdrantVectorIndex(client qdrantClient, prefix string) *QdrantVectorIndex {
	return &QdrantVectorIndex{
		client: client,
		prefix: prefix,
		known:  make(map[string]bool),
	}
}

// Close releases the gRPC connection.
func (idx *QdrantVectorIndex) Close() error {
	return idx.client.Close()
}

// Name implements VectorIndex.
func (idx *QdrantVectorIndex) Name() string {
	return BackendQdrant
}

func (idx *QdrantVectorIndex) collection(codebaseID string) string {
	return idx.prefix + codebaseID
}

func (idx *QdrantVectorIndex) ensureCollection(ctx context.Context, name string, dim int) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.known[name] {
		return nil
	}

	exists, err := idx.client.CollectionExists(ctx, name)
	if err != nil {
		return errors.Wrapf(err, "check collection %s", name)
	}
	if !exists {
		if err = idx.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			}),
		}); err != nil {
			return errors.Wrapf(err, "create collection %s", name)
		}
	}

	idx.known[name] = true
	return nil
}

// Replace implements VectorIndex.
func (idx *QdrantVectorIndex) Replace(ctx context.Context, _ *gorm.DB, codebaseID, path string, entries []IndexEntry) error {
	name := idx.collection(codebaseID)
	if len(entries) == 0 {
		exists, err := idx.client.CollectionExists(ctx, name)
		if err != nil {
			return errors.Wrapf(err, "check collection %s", name)
		}
		if !exists {
			return nil
		}
	} else if err := idx.ensureCollection(ctx, name, len(entries[0].Vector.Slice())); err != nil {
		return err
	}

	wait := true
	if _, err := idx.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: name,
		Wait:           &wait,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("file_path", path)},
		}),
	}); err != nil {
		return errors.Wrapf(err, "delete points of %s", path)
	}
	if len(entries) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(entries))
	for _, entry := range entries {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(uint64(entry.ChunkID)),
			Vectors: qdrant.NewVectors(entry.Vector.Slice()...),
			Payload: qdrant.NewValueMap(map[string]any{
				"file_path": entry.FilePath,
				"chunk_id":  entry.ChunkID,
			}),
		})
	}
	if _, err := idx.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return errors.Wrapf(err, "upsert points of %s", path)
	}
	return nil
}

// Search implements VectorIndex.
func (idx *QdrantVectorIndex) Search(ctx context.Context, _ *gorm.DB, codebaseID string, vector pgvector.Vector, k int) ([]VectorHit, error) {
	if k <= 0 {
		return nil, nil
	}
	name := idx.collection(codebaseID)
	exists, err := idx.client.CollectionExists(ctx, name)
	if err != nil {
		return nil, errors.Wrapf(err, "check collection %s", name)
	}
	if !exists {
		return nil, nil
	}

	limit := uint64(k)
	points, err := idx.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(vector.Slice()...),
		Limit:          &limit,
	})
	if err != nil {
		return nil, errors.Wrap(err, "query qdrant")
	}

	hits := make([]VectorHit, 0, len(points))
	for _, point := range points {
		hits = append(hits, VectorHit{
			ChunkID:    int64(point.GetId().GetNum()),
			Similarity: float64(point.GetScore()),
		})
	}
	return hits, nil
}

// Drop implements VectorIndex.
func (idx *QdrantVectorIndex) Drop(ctx context.Context, _ *gorm.DB, codebaseID string) error {
	name := idx.collection(codebaseID)
	idx.mu.Lock()
	delete(idx.known, name)
	idx.mu.Unlock()

	exists, err := idx.client.CollectionExists(ctx, name)
	if err != nil {
		return errors.Wrapf(err, "check collection %s", name)
	}
	if !exists {
		return nil
	}
	return errors.Wrapf(idx.client.DeleteCollection(ctx, name), "delete collection %s", name)
}
