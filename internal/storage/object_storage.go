package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
)

var ErrObjectNotFound = errors.New("object not found")

// ObjectStorage keeps uploaded PDFs in a single bucket.
type ObjectStorage struct {
	client *minio.Client
	bucket string
}

func NewObjectStorage(client *minio.Client, bucket string) *ObjectStorage {
	return &ObjectStorage{client: client, bucket: bucket}
}

func (s *ObjectStorage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s failed: %w", key, err)
	}
	return nil
}

func (s *ObjectStorage) Get(ctx context.Context, key string) ([]byte, error) {
	object, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s failed: %w", key, mapError(err))
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("read object %s failed: %w", key, mapError(err))
	}
	return data, nil
}

func (s *ObjectStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if errors.Is(mapError(err), ErrObjectNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("stat object %s failed: %w", key, err)
}

// Delete treats a missing object as already deleted.
func (s *ObjectStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if errors.Is(mapError(err), ErrObjectNotFound) {
			return nil
		}
		return fmt.Errorf("remove object %s failed: %w", key, err)
	}
	return nil
}

func (s *ObjectStorage) PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign object %s failed: %w", key, err)
	}
	return u.String(), nil
}

// Ping reports whether the bucket is reachable.
func (s *ObjectStorage) Ping(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket failed: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", s.bucket)
	}
	return nil
}

func mapError(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, resp.Message)
	}
	return err
}
