package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// presignExpiry is how long a public URL stays fetchable. Inference calls
// run with a wait-for-completion directive, so a few minutes is plenty.
const presignExpiry = 15 * time.Minute

// S3Storage implements Storage on an S3 bucket with presigned GET URLs.
type S3Storage struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
}

var _ Storage = (*S3Storage)(nil)

// NewS3Storage creates an S3Storage for the given bucket.
func NewS3Storage(client *s3.Client, bucket string) *S3Storage {
	return &S3Storage{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        bucket,
	}
}

// Upload writes data under path with the given content type.
func (s *S3Storage) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	log.Debug().
		Str("bucket", s.bucket).
		Str("key", path).
		Int("bytes", len(data)).
		Msg("Uploading to S3")

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &path,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("S3 PutObject %s: %w", path, err)
	}
	return nil
}

// PublicURL creates a presigned GET URL for the object.
func (s *S3Storage) PublicURL(ctx context.Context, path string) (string, error) {
	result, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket, Key: &path,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = presignExpiry
	})
	if err != nil {
		return "", fmt.Errorf("presign GetObject %s: %w", path, err)
	}
	return result.URL, nil
}

// Delete removes the object.
func (s *S3Storage) Delete(ctx context.Context, path string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &path,
	})
	if err != nil {
		return fmt.Errorf("S3 DeleteObject %s: %w", path, err)
	}
	return nil
}
