// Package minio relays stored documents to a MinIO or S3-compatible bucket.
package minio

import (
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

const pdfContentType = "application/pdf"

// Config captures the endpoint and credentials for the object store.
type Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Secure    bool   `mapstructure:"secure"`
	Region    string `mapstructure:"region"`
}

// Enabled reports whether enough settings are present to connect.
func (c Config) Enabled() bool {
	return c.Endpoint != "" && c.AccessKey != "" && c.SecretKey != ""
}

// Uploader implements harvest.Uploader with minio-go.
type Uploader struct {
	client *minio.Client
	region string
	logger *zap.Logger
}

// New builds a client for cfg.Endpoint. The endpoint is host[:port]; a
// leading http:// or https:// is stripped and decides Secure.
func New(cfg Config, logger *zap.Logger) (*Uploader, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	secure := cfg.Secure
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		endpoint, secure = strings.TrimPrefix(endpoint, "https://"), true
	case strings.HasPrefix(endpoint, "http://"):
		endpoint, secure = strings.TrimPrefix(endpoint, "http://"), false
	}
	endpoint = strings.TrimSuffix(endpoint, "/")
	if endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{client: client, region: cfg.Region, logger: logger.Named("minio")}, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (u *Uploader) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := u.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := u.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: u.region}); err != nil {
		code := minio.ToErrorResponse(err).Code
		if code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
			return nil
		}
		return fmt.Errorf("make bucket: %w", err)
	}
	u.logger.Info("created bucket", zap.String("bucket", bucket))
	return nil
}

// Upload copies the local file to bucket/key. Errors are logged and reported
// as false.
func (u *Uploader) Upload(ctx context.Context, bucket, key, localPath string) bool {
	_, err := u.client.FPutObject(ctx, bucket, key, localPath, minio.PutObjectOptions{ContentType: pdfContentType})
	if err != nil {
		u.logger.Warn("upload failed",
			zap.String("bucket", bucket),
			zap.String("key", key),
			zap.Error(err),
		)
		return false
	}
	return true
}

// ObjectURI returns the s3:// URI of an uploaded object.
func (u *Uploader) ObjectURI(bucket, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}
