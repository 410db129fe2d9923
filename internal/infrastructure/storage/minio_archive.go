// Package storage destino S3/MinIO para el archivo de movimientos.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var _ inventory.ObjectStore = (*MinioStore)(nil)

// MinioStore implementa inventory.ObjectStore sobre un bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore crea el cliente. No contacta al servidor hasta el primer uso.
func NewMinioStore(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &MinioStore{client: client, bucket: bucket}, nil
}

// EnsureBucket crea el bucket si no existe.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	found, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", s.bucket, err)
	}
	if found {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("make bucket %s: %w", s.bucket, err)
	}
	return nil
}

// PutObject sube el objeto; una clave existente se sobrescribe (re-archivar un día es idempotente).
func (s *MinioStore) PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	return err
}
