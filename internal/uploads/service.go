// Package uploads stores binary assets in S3-compatible object storage and
// their metadata in the relational store.
package uploads

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"tessera/api/internal/store"
	"tessera/api/internal/util"
)

// UploadStore persists upload metadata.
type UploadStore interface {
	InsertUpload(ctx context.Context, upload store.Upload) error
	GetUpload(ctx context.Context, uploadID string) (store.Upload, error)
	ListUploads(ctx context.Context, page store.Page) ([]store.Upload, error)
	DeleteUpload(ctx context.Context, uploadID string) error
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type Service struct {
	client *minio.Client
	bucket string
	store  UploadStore
}

// NewService connects to object storage and makes sure the bucket exists.
func NewService(ctx context.Context, cfg Config, uploadStore UploadStore) (*Service, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &Service{client: client, bucket: cfg.Bucket, store: uploadStore}, nil
}

// Create streams an asset into object storage and records its metadata.
func (s *Service) Create(ctx context.Context, filename, contentType string, size int64, body io.Reader, createdBy string) (store.Upload, error) {
	if filename == "" {
		return store.Upload{}, fmt.Errorf("filename is required")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	id := util.NewID("upl")
	storageKey := path.Join(id, filename)

	info, err := s.client.PutObject(ctx, s.bucket, storageKey, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return store.Upload{}, fmt.Errorf("put object: %w", err)
	}

	upload := store.Upload{
		ID:          id,
		Filename:    filename,
		ContentType: contentType,
		Size:        info.Size,
		StorageKey:  storageKey,
		CreatedBy:   createdBy,
	}
	if err := s.store.InsertUpload(ctx, upload); err != nil {
		// Roll back the stored object so metadata and storage stay in sync.
		_ = s.client.RemoveObject(ctx, s.bucket, storageKey, minio.RemoveObjectOptions{})
		return store.Upload{}, err
	}
	return upload, nil
}

// Get returns upload metadata.
func (s *Service) Get(ctx context.Context, uploadID string) (store.Upload, error) {
	return s.store.GetUpload(ctx, uploadID)
}

// List returns a page of uploads, newest first.
func (s *Service) List(ctx context.Context, page store.Page) ([]store.Upload, error) {
	return s.store.ListUploads(ctx, page)
}

// PresignedURL returns a time-limited download URL for an upload.
func (s *Service) PresignedURL(ctx context.Context, uploadID string, expiry time.Duration) (string, error) {
	upload, err := s.store.GetUpload(ctx, uploadID)
	if err != nil {
		return "", err
	}
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}

	params := make(url.Values)
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", upload.Filename))
	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, upload.StorageKey, expiry, params)
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return presigned.String(), nil
}

// Delete removes the object and its metadata.
func (s *Service) Delete(ctx context.Context, uploadID string) error {
	upload, err := s.store.GetUpload(ctx, uploadID)
	if err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, upload.StorageKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return s.store.DeleteUpload(ctx, uploadID)
}
