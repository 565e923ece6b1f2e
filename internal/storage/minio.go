package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/labstack/gommon/log"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"eventhub/internal/config"
	apperrors "eventhub/internal/errors"
	"eventhub/internal/logging"
)

// MinIO stores files as objects in an S3 compatible bucket.
type MinIO struct {
	client *minio.Client
	bucket string
	log    logging.Logger
}

// NewMinIO creates a client for cfg.MinIOEndpoint. It does not touch the network.
func NewMinIO(cfg config.StorageConfig, log logging.Logger) (*MinIO, error) {
	client, err := minio.New(cfg.MinIOEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinIOAccessKey, cfg.MinIOSecretKey, ""),
		Secure: cfg.MinIOUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &MinIO{client: client, bucket: cfg.MinIOBucket, log: log}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (m *MinIO) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", m.bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", m.bucket, err)
	}
	m.log.Infoj(log.JSON{"action": "minio_bucket_created", "bucket": m.bucket})
	return nil
}

func (m *MinIO) Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) error {
	if err := checkName(name); err != nil {
		return fmt.Errorf("invalid file name %q", name)
	}
	_, err := m.client.PutObject(ctx, m.bucket, name, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		m.log.Errorj(log.JSON{
			"action":       "minio_upload_failed",
			"object_name":  name,
			"size":         size,
			"content_type": contentType,
			"bucket":       m.bucket,
			"error":        err.Error(),
		})
		return err
	}
	m.log.Infoj(log.JSON{
		"action":       "minio_upload_success",
		"object_name":  name,
		"size":         size,
		"content_type": contentType,
		"bucket":       m.bucket,
	})
	return nil
}

func (m *MinIO) Open(ctx context.Context, name string) (io.ReadCloser, *ObjectInfo, error) {
	if err := checkName(name); err != nil {
		return nil, nil, err
	}
	obj, err := m.client.GetObject(ctx, m.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, m.translate(err)
	}
	st, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, nil, m.translate(err)
	}
	return obj, &ObjectInfo{Name: name, Size: st.Size, ContentType: st.ContentType, ModTime: st.LastModified}, nil
}

func (m *MinIO) Remove(ctx context.Context, name string) (bool, error) {
	if !ValidName(name) {
		return false, nil
	}
	if _, err := m.client.StatObject(ctx, m.bucket, name, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, err
	}
	if err := m.client.RemoveObject(ctx, m.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		m.log.Errorj(log.JSON{"action": "minio_delete_failed", "object_name": name, "bucket": m.bucket, "error": err.Error()})
		return false, err
	}
	m.log.Infoj(log.JSON{"action": "minio_delete_success", "object_name": name, "bucket": m.bucket})
	return true, nil
}

func (m *MinIO) translate(err error) error {
	if isNoSuchKey(err) {
		return apperrors.ErrFileNotFound
	}
	return err
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
