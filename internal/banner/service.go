// Package banner stores banner images in object storage. Clients upload a
// banner first, then dispatch a change-banner command carrying the returned
// url and storage id; the storage id is what a later permanent delete uses to
// release the object.
package banner

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"quillpad/sync/internal/util"
)

type Service struct {
	client   *minio.Client
	bucket   string
	endpoint string
	useSSL   bool
}

func New(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Service, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &Service{client: client, bucket: bucket, endpoint: endpoint, useSSL: useSSL}, nil
}

// EnsureBucket creates the banner bucket if it does not exist yet.
func (s *Service) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("make bucket: %w", err)
	}
	return nil
}

// Upload stores one banner image and returns its public URL and storage id.
func (s *Service) Upload(ctx context.Context, body io.Reader, size int64, contentType string) (url, storageID string, err error) {
	storageID = util.NewID("banner")
	object := storageID + extensionFor(contentType)

	_, err = s.client.PutObject(ctx, s.bucket, object, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", "", fmt.Errorf("put banner: %w", err)
	}

	scheme := "http"
	if s.useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.endpoint, s.bucket, object), storageID, nil
}

// Remove releases the object behind a storage id. Missing objects are not an
// error; a banner may already have been replaced.
func (s *Service) Remove(ctx context.Context, storageID string) error {
	if storageID == "" {
		return nil
	}
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: storageID}) {
		if object.Err != nil {
			return fmt.Errorf("list banner objects: %w", object.Err)
		}
		if err := s.client.RemoveObject(ctx, s.bucket, object.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("remove banner: %w", err)
		}
	}
	return nil
}

func extensionFor(contentType string) string {
	switch strings.ToLower(contentType) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}
