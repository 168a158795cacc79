// Package gcs provides a BlobStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket    string
	Prefix    string
	ChunkSize int
}

// BlobStore writes product images to a configured GCS bucket.
type BlobStore struct {
	client    *storage.Client
	bucket    string
	prefix    string
	chunkSize int
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{
		client:    client,
		bucket:    cfg.Bucket,
		prefix:    strings.Trim(cfg.Prefix, "/"),
		chunkSize: cfg.ChunkSize,
	}, nil
}

func (s *BlobStore) object(name string) (*storage.ObjectHandle, string, error) {
	if strings.TrimSpace(name) == "" {
		return nil, "", fmt.Errorf("path is required")
	}
	key := strings.TrimLeft(name, "/")
	if s.prefix != "" {
		key = path.Join(s.prefix, key)
	}
	return s.client.Bucket(s.bucket).Object(key), key, nil
}

// PutObject uploads data to the configured bucket and returns a gs:// URI.
// The object only becomes visible once the whole stream was copied; a failed
// copy aborts the upload.
func (s *BlobStore) PutObject(ctx context.Context, name string, contentType string, r io.Reader) (string, error) {
	obj, key, err := s.object(name)
	if err != nil {
		return "", err
	}
	uploadCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	writer := obj.NewWriter(uploadCtx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if s.chunkSize > 0 {
		writer.ChunkSize = s.chunkSize
	}
	if _, err := io.Copy(writer, r); err != nil {
		cancel()
		_ = writer.Close()
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, key), nil
}

// OpenObject streams an object. Missing objects wrap fs.ErrNotExist.
func (s *BlobStore) OpenObject(ctx context.Context, name string) (io.ReadCloser, error) {
	obj, key, err := s.object(name)
	if err != nil {
		return nil, err
	}
	reader, err := obj.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("open %s: %w", key, fs.ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return reader, nil
}

// ObjectExists reports whether a non-empty object is stored under name.
func (s *BlobStore) ObjectExists(ctx context.Context, name string) (bool, error) {
	obj, key, err := s.object(name)
	if err != nil {
		return false, err
	}
	attrs, err := obj.Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return attrs.Size > 0, nil
}

// DeleteObject removes an object; missing objects are not an error.
func (s *BlobStore) DeleteObject(ctx context.Context, name string) error {
	obj, key, err := s.object(name)
	if err != nil {
		return err
	}
	if err := obj.Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
