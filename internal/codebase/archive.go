package codebase

import (
	"bytes"
	"context"
	"path"
	"strings"

	errors "github.com/Laisky/errors/v2"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/sync/errgroup"
)

// Archive keeps a copy of the raw uploaded files outside the database.
type Archive interface {
	PutFiles(ctx context.Context, codebaseID string, files []FileInput) error
	DeleteCodebase(ctx context.Context, codebaseID string) error
}

// MinioArchive stores uploads in an S3 compatible bucket under {prefix}/{codebase_id}/{path}.
type MinioArchive struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioArchive connects to the object store and makes sure the bucket exists.
func NewMinioArchive(ctx context.Context, cfg ArchiveSettings) (*MinioArchive, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("archive endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "new minio client")
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, errors.Wrapf(err, "check bucket %s", cfg.Bucket)
	}
	if !exists {
		if err = client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errors.Wrapf(err, "make bucket %s", cfg.Bucket)
		}
	}

	return NewMinioArchiveFromClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewMinioArchiveFromClient wraps an existing client.
func NewMinioArchiveFromClient(client *minio.Client, bucket, prefix string) *MinioArchive {
	return &MinioArchive{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

func (a *MinioArchive) codebasePrefix(codebaseID string) string {
	return path.Join(a.prefix, codebaseID) + "/"
}

// PutFiles implements Archive.
func (a *MinioArchive) PutFiles(ctx context.Context, codebaseID string, files []FileInput) error {
	pool, gctx := errgroup.WithContext(ctx)
	pool.SetLimit(8)
	for _, file := range files {
		pool.Go(func() error {
			objkey := a.codebasePrefix(codebaseID) + strings.TrimPrefix(file.Path, "/")
			_, err := a.client.PutObject(gctx,
				a.bucket,
				objkey,
				bytes.NewReader(file.Content),
				int64(len(file.Content)),
				minio.PutObjectOptions{
					ContentType: "text/plain; charset=utf-8",
				},
			)
			return errors.Wrapf(err, "put %s", objkey)
		})
	}

	return pool.Wait()
}

// DeleteCodebase implements Archive.
func (a *MinioArchive) DeleteCodebase(ctx context.Context, codebaseID string) error {
	objects := a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{
		Prefix:    a.codebasePrefix(codebaseID),
		Recursive: true,
	})
	for obj := range objects {
		if obj.Err != nil {
			return errors.Wrap(obj.Err, "list archived objects")
		}
		if err := a.client.RemoveObject(ctx, a.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return errors.Wrapf(err, "remove %s", obj.Key)
		}
	}
	return nil
}
