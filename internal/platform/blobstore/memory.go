package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"
)

type storedBlob struct {
	contentType string
	content     []byte
}

// MemoryStore is a thread-safe, in-memory Store for tests and development.
type MemoryStore struct {
	bucket string
	mu     sync.RWMutex
	blobs  map[string]*storedBlob
}

func NewMemoryStore(bucket string) *MemoryStore {
	if bucket == "" {
		bucket = "local"
	}
	return &MemoryStore{bucket: bucket, blobs: make(map[string]*storedBlob)}
}

func (s *MemoryStore) Put(_ context.Context, key string, content io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return fmt.Errorf("reading content: %w", err)
	}
	if len(data) > MaxFileSize {
		return ErrFileTooLarge
	}

	s.mu.Lock()
	s.blobs[key] = &storedBlob{contentType: contentType, content: data}
	s.mu.Unlock()
	return nil
}

// PresignedURL returns a memory:// link carrying the expiry. The link is not
// dereferenceable; it only stands in for a signed URL.
func (s *MemoryStore) PresignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.RLock()
	_, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return "", ErrBlobNotFound
	}
	q := url.Values{"expires": {time.Now().Add(ttl).UTC().Format(time.RFC3339)}}
	return fmt.Sprintf("memory://%s/%s?%s", s.bucket, key, q.Encode()), nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[key]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, key)
	return nil
}

// Get returns the stored bytes.
func (s *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, string, error) {
	s.mu.RLock()
	blob, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, "", ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(blob.content)), blob.contentType, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
