// Package gcs relays stored documents to a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
)

const pdfContentType = "application/pdf"

// Config captures the parameters required to create buckets and upload.
type Config struct {
	// ProjectID owns buckets created by EnsureBucket.
	ProjectID string
}

// Uploader implements harvest.Uploader on GCS.
type Uploader struct {
	client    *storage.Client
	projectID string
	logger    *zap.Logger
}

// New creates a GCS-backed uploader.
func New(client *storage.Client, cfg Config, logger *zap.Logger) (*Uploader, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{
		client:    client,
		projectID: cfg.ProjectID,
		logger:    logger.Named("gcs"),
	}, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (u *Uploader) EnsureBucket(ctx context.Context, bucket string) error {
	handle := u.client.Bucket(bucket)
	_, err := handle.Attrs(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("bucket attrs: %w", err)
	}
	if u.projectID == "" {
		return fmt.Errorf("bucket %q does not exist and no project id is configured", bucket)
	}
	if err := handle.Create(ctx, u.projectID, nil); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusConflict {
			return nil
		}
		return fmt.Errorf("create bucket: %w", err)
	}
	u.logger.Info("created bucket", zap.String("bucket", bucket))
	return nil
}

// Upload copies the local file to bucket/key. Errors are logged and reported
// as false.
func (u *Uploader) Upload(ctx context.Context, bucket, key, localPath string) bool {
	if err := u.upload(ctx, bucket, key, localPath); err != nil {
		u.logger.Warn("upload failed",
			zap.String("bucket", bucket),
			zap.String("key", key),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (u *Uploader) upload(ctx context.Context, bucket, key, localPath string) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}
	f, err := os.Open(filepath.Clean(localPath))
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	writer := u.client.Bucket(bucket).Object(key).NewWriter(ctx)
	writer.ContentType = pdfContentType
	if _, err := io.Copy(writer, f); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// ObjectURI returns the gs:// URI of an uploaded object.
func (u *Uploader) ObjectURI(bucket, key string) string {
	return fmt.Sprintf("gs://%s/%s", bucket, key)
}
