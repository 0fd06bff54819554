// Package avatars stores user avatar images in S3-compatible object storage.
package avatars

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MaxSize is the largest accepted avatar upload.
const MaxSize = 2 << 20

var extByContentType = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// ErrUnsupportedType is returned for uploads that are not a known image type.
type ErrUnsupportedType struct {
	ContentType string
}

func (e *ErrUnsupportedType) Error() string {
	return fmt.Sprintf("unsupported avatar content type %q", e.ContentType)
}

type Service struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// New connects to the object store and ensures the avatar bucket exists.
func New(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Service, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	exists, err := client.BucketExists(checkCtx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check avatar bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(checkCtx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create avatar bucket: %w", err)
		}
	}

	scheme := "http"
	if useSSL {
		scheme = "https"
	}
	return &Service{
		client:    client,
		bucket:    bucket,
		publicURL: fmt.Sprintf("%s://%s/%s", scheme, endpoint, bucket),
	}, nil
}

// Upload stores an avatar for the user and returns its public URL. The object
// key is derived from the user ID, a new upload replaces the previous one.
func (s *Service) Upload(ctx context.Context, userID string, data []byte, contentType string) (string, error) {
	ext, ok := extByContentType[contentType]
	if !ok {
		return "", &ErrUnsupportedType{ContentType: contentType}
	}
	if len(data) > MaxSize {
		return "", fmt.Errorf("avatar exceeds %d bytes", MaxSize)
	}

	key := fmt.Sprintf("avatars/%s.%s", userID, ext)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("store avatar: %w", err)
	}
	return fmt.Sprintf("%s/%s", s.publicURL, key), nil
}
