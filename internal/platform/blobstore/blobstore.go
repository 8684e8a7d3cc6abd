// Package blobstore stores uploaded claim documents and hands out
// short-lived download links. Documents only ever carry the storage key;
// the bytes live behind a Store.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/oklog/ulid/v2"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
)

// ---------------------------------------------------------------------------
// Validation constants
// ---------------------------------------------------------------------------

// MaxFileSize is the default upload ceiling (2 MB).
const MaxFileSize = 2 * 1024 * 1024

// KeyPrefix namespaces every uploaded document.
const KeyPrefix = "documents/"

// AllowedContentTypes lists the MIME types accepted for claim documents.
var AllowedContentTypes = map[string]bool{
	"image/jpeg":      true,
	"image/jpg":       true,
	"image/png":       true,
	"image/webp":      true,
	"application/pdf": true,
}

// ---------------------------------------------------------------------------
// Store interface
// ---------------------------------------------------------------------------

// Store is the file storage collaborator.
type Store interface {
	Put(ctx context.Context, key string, content io.Reader, size int64, contentType string) error
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// Presigner is the read-only slice of Store the claim graph needs.
type Presigner interface {
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Config selects and configures a driver.
type Config struct {
	Driver    string
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Open builds the Store named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(cfg.Bucket), nil
	case "minio":
		return NewMinioStore(ctx, cfg)
	case "s3":
		return NewS3Store(ctx, cfg)
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

// NewKey returns a unique, time-sortable storage key that keeps a readable
// version of the original file name.
func NewKey(fileName string) string {
	return KeyPrefix + ulid.Make().String() + "-" + sanitizeName(fileName)
}

func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "file"
	}
	if len(out) > 128 {
		out = out[len(out)-128:]
	}
	return out
}

// ValidKey reports whether key was produced by NewKey. Delete requests are
// restricted to such keys.
func ValidKey(key string) bool {
	return strings.HasPrefix(key, KeyPrefix) && !strings.Contains(key, "..") && len(key) > len(KeyPrefix)
}
