// Package blob stores uploaded document files.
//
// Documents keep the blob path of their uploaded file in FilePath. The
// deletion cascade removes it on a best-effort basis once the vectors are gone.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidPath indicates a blob path that is empty or escapes the store root.
var ErrInvalidPath = errors.New("invalid blob path")

// Store holds document files by relative path.
type Store interface {
	// Put writes the content of r to path, replacing any existing blob.
	Put(ctx context.Context, path string, r io.Reader) error

	// Open returns a reader for the blob at path.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes the blob at path. Deleting a missing blob is not an error.
	Delete(ctx context.Context, path string) error

	// URL returns a source URL the fetch package can read the blob from.
	URL(path string) (string, error)
}

// FSStore is a Store on the local filesystem.
type FSStore struct {
	root   string
	logger *slog.Logger
}

var _ Store = (*FSStore)(nil)

// NewFSStore creates a filesystem store rooted at root, creating it if needed.
func NewFSStore(root string, logger *slog.Logger) (*FSStore, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: root is empty", ErrInvalidPath)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FSStore{root: abs, logger: logger.With("component", "blob")}, nil
}

// Root returns the absolute store root.
func (s *FSStore) Root() string {
	return s.root
}

func (s *FSStore) resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	full := filepath.Join(s.root, filepath.FromSlash(path))
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}
	return full, nil
}

// Put writes r to path via a temporary file and rename.
func (s *FSStore) Put(ctx context.Context, path string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("writing blob %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), full)
}

// Open returns a reader for the blob at path.
func (s *FSStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

// Delete removes the blob at path.
func (s *FSStore) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	s.logger.Debug("deleted blob", "path", path)
	return nil
}

// URL returns the file:// URL of the blob at path.
func (s *FSStore) URL(path string) (string, error) {
	full, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(full), nil
}
