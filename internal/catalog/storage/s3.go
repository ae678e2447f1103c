package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// s3Backend serves "s3://bucket/key" locations.
type s3Backend struct {
	client *s3.Client
}

// NewS3Backend loads the default AWS config chain and returns a Backend
// for s3:// locations. endpoint, when non-empty, overrides the service
// endpoint (for S3-compatible stores) and enables path-style addressing.
func NewS3Backend(ctx context.Context, endpoint string) (Backend, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.UsePathStyle = true
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &s3Backend{client: client}, nil
}

func splitBucketKey(path string) (bucket, key string, err error) {
	trimmed := strings.TrimPrefix(path, "s3://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid s3 location %q", path)
	}
	return parts[0], parts[1], nil
}

func (b *s3Backend) ReadFile(ctx context.Context, path string) ([]byte, error) {
	bucket, key, err := splitBucketKey(path)
	if err != nil {
		return nil, err
	}
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("object not found: %s", path)
		}
		return nil, fmt.Errorf("getting s3 object %s: %w", path, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (b *s3Backend) WriteFile(ctx context.Context, path string, data []byte) error {
	bucket, key, err := splitBucketKey(path)
	if err != nil {
		return err
	}
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("putting s3 object %s: %w", path, err)
	}
	return nil
}

func (b *s3Backend) Exists(ctx context.Context, path string) (bool, error) {
	bucket, key, err := splitBucketKey(path)
	if err != nil {
		return false, err
	}
	_, err = b.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("heading s3 object %s: %w", path, err)
	}
	return true, nil
}

func (b *s3Backend) Delete(ctx context.Context, path string) error {
	bucket, key, err := splitBucketKey(path)
	if err != nil {
		return err
	}
	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return fmt.Errorf("deleting s3 object %s: %w", path, err)
	}
	return nil
}
