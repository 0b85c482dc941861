package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cloudly/backend/internal/config"
	"github.com/cloudly/backend/pkg/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOClient wraps the object store: one bucket for file binaries, one for
// profile pictures.
type MinIOClient struct {
	client        *minio.Client
	filesBucket   string
	profileBucket string
}

func NewMinIOClient(cfg config.MinIOConfig) (*MinIOClient, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	return &MinIOClient{
		client:        client,
		filesBucket:   cfg.FilesBucket,
		profileBucket: cfg.ProfileBucket,
	}, nil
}

func (m *MinIOClient) FilesBucket() string   { return m.filesBucket }
func (m *MinIOClient) ProfileBucket() string { return m.profileBucket }

func (m *MinIOClient) Upload(ctx context.Context, bucket, objectName string, reader io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		logger.Error("minio_upload_failed", err, map[string]interface{}{
			"object_name":  objectName,
			"size":         size,
			"content_type": contentType,
			"bucket":       bucket,
		})
		return err
	}
	logger.Info("minio_upload_success", map[string]interface{}{
		"object_name":  objectName,
		"size":         size,
		"content_type": contentType,
		"bucket":       bucket,
	})
	return nil
}

func (m *MinIOClient) Download(ctx context.Context, bucket, objectName string) (*minio.Object, error) {
	obj, err := m.client.GetObject(ctx, bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		logger.Error("minio_download_failed", err, map[string]interface{}{
			"object_name": objectName,
			"bucket":      bucket,
		})
		return nil, err
	}
	if _, err := obj.Stat(); err != nil {
		logger.Error("minio_download_stat_failed", err, map[string]interface{}{
			"object_name": objectName,
			"bucket":      bucket,
		})
		return nil, err
	}
	return obj, nil
}

func (m *MinIOClient) Delete(ctx context.Context, bucket, objectName string) error {
	err := m.client.RemoveObject(ctx, bucket, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		logger.Error("minio_delete_failed", err, map[string]interface{}{
			"object_name": objectName,
			"bucket":      bucket,
		})
		return err
	}
	logger.Info("minio_delete_success", map[string]interface{}{
		"object_name": objectName,
		"bucket":      bucket,
	})
	return nil
}

func (m *MinIOClient) PresignedGetURL(ctx context.Context, bucket, objectName string, expiry time.Duration) (string, error) {
	urlValue, err := m.client.PresignedGetObject(ctx, bucket, objectName, expiry, nil)
	if err != nil {
		return "", err
	}
	return urlValue.String(), nil
}

func (m *MinIOClient) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{m.filesBucket, m.profileBucket} {
		exists, err := m.client.BucketExists(ctx, bucket)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed creating bucket %s: %w", bucket, err)
		}
	}
	return nil
}
