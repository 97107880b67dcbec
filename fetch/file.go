package fetch

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// FileFetcher reads file sources from the local filesystem.
type FileFetcher struct {
	root     string
	maxBytes int64
}

var _ Fetcher = (*FileFetcher)(nil)

// NewFileFetcher creates a FileFetcher. A non-empty root confines reads to
// that directory tree.
func NewFileFetcher(root string) *FileFetcher {
	if root != "" {
		root = filepath.Clean(root)
	}
	return &FileFetcher{root: root, maxBytes: DefaultMaxBytes}
}

// Fetch reads the file named by a file:// URL.
func (f *FileFetcher) Fetch(ctx context.Context, sourceURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	u, err := url.Parse(sourceURL)
	if err != nil {
		return "", fmt.Errorf("parsing source url: %w", err)
	}
	path := filepath.Clean(filepath.FromSlash(u.Path))

	if f.root != "" {
		rel, err := filepath.Rel(f.root, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > f.maxBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLarge, info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return decode(data, "", path)
}
