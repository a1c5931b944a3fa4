// Package uploads reads stored report images.
package uploads

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrNotFound    = errors.New("uploads: file not found")
	ErrInvalidName = errors.New("uploads: invalid file name")
)

// Storage returns the bytes of a stored upload by its reference.
type Storage interface {
	ReadBytes(ctx context.Context, name string) ([]byte, error)
}

// LocalStorage serves files below a root directory.
type LocalStorage struct {
	root string
}

func NewLocalStorage(root string) *LocalStorage {
	return &LocalStorage{root: root}
}

func (s *LocalStorage) Root() string {
	return s.root
}

func (s *LocalStorage) ReadBytes(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(rel)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// cleanName turns a stored image reference into a slash-separated path
// relative to the storage root. References are sometimes stored with a
// leading "uploads/" or "/static/uploads/" prefix.
func cleanName(name string) (string, error) {
	n := strings.ReplaceAll(strings.TrimSpace(name), `\`, "/")
	n = strings.TrimLeft(n, "/")
	for _, prefix := range []string{"static/uploads/", "uploads/"} {
		n = strings.TrimPrefix(n, prefix)
	}
	if n == "" || !filepath.IsLocal(filepath.FromSlash(n)) {
		return "", fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	return n, nil
}

// Open returns the storage for backend: "local" reads below root, "s3"
// reads from the configured bucket.
func Open(backend, root string, s3cfg S3Config) (Storage, error) {
	switch backend {
	case "", "local":
		return NewLocalStorage(root), nil
	case "s3":
		if s3cfg.Bucket == "" {
			return nil, errors.New("uploads: s3 bucket is required")
		}
		return NewS3Storage(s3cfg), nil
	}
	return nil, fmt.Errorf("uploads: unknown backend %q", backend)
}
