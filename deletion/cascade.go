package deletion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/docvec/blob"
	"github.com/poiesic/docvec/core"
	"github.com/poiesic/docvec/storage"
)

var (
	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrVectorStoreRequired is returned when a vector store is not provided.
	ErrVectorStoreRequired = errors.New("vector store required")
)

// Report summarizes a cascade.
type Report struct {
	DocumentID string
	// Found is false when no document row existed.
	Found         bool
	ChunksDeleted int
	// BlobErr is the blob cleanup failure, if any. It does not fail the cascade.
	BlobErr error
}

// Cascade deletes documents together with their vector records.
type Cascade struct {
	docs     storage.DocumentRepository
	vectors  storage.VectorStore
	blobs    blob.Store
	pageSize int
	logger   *slog.Logger
}

// Option configures a Cascade.
type Option func(*Cascade) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cascade) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// WithBlobStore enables cleanup of the document's uploaded file.
func WithBlobStore(store blob.Store) Option {
	return func(c *Cascade) error {
		c.blobs = store
		return nil
	}
}

// WithPageSize sets how many chunk ids are fetched per query.
// Default is storage.DefaultPageSize.
func WithPageSize(size int) Option {
	return func(c *Cascade) error {
		if size < 1 {
			return fmt.Errorf("page size must be positive, got %d", size)
		}
		c.pageSize = size
		return nil
	}
}

// NewCascade creates a Cascade.
func NewCascade(docs storage.DocumentRepository, vectors storage.VectorStore, opts ...Option) (*Cascade, error) {
	if docs == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if vectors == nil {
		return nil, ErrVectorStoreRequired
	}
	c := &Cascade{
		docs:     docs,
		vectors:  vectors,
		pageSize: storage.DefaultPageSize,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "deletion")
	return c, nil
}

// DeleteDocument removes the document id, its vector record and all of its
// chunk records. It is idempotent.
//
// Vector store failures are returned as core.UpstreamError and leave the
// document row in place so the call can be repeated.
func (c *Cascade) DeleteDocument(ctx context.Context, id string) (*Report, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &core.ValidationError{Field: "document id", Reason: "is required"}
	}
	report := &Report{DocumentID: id}

	doc, err := c.docs.GetDocument(ctx, id)
	switch {
	case errors.Is(err, core.ErrNotFound):
		doc = nil
	case err != nil:
		return nil, fmt.Errorf("reading document %s: %w", id, err)
	default:
		report.Found = true
	}

	if err := c.vectors.Delete(ctx, id); err != nil {
		return nil, core.Upstream("delete", fmt.Errorf("deleting document record: %w", err))
	}

	deleted, err := storage.DeleteMatching(ctx, c.vectors, core.ChunkFilter(id), c.pageSize)
	report.ChunksDeleted = deleted
	if err != nil {
		return nil, core.Upstream("delete", err)
	}

	if err := c.docs.DeleteDocument(ctx, id); err != nil {
		return nil, fmt.Errorf("deleting document %s: %w", id, err)
	}

	if doc != nil && doc.FilePath != "" && c.blobs != nil {
		if err := c.blobs.Delete(ctx, doc.FilePath); err != nil {
			report.BlobErr = err
			c.logger.Warn("removing document file", "document_id", id, "path", doc.FilePath, "err", err)
		}
	}

	c.logger.Info("document deleted", "document_id", id, "found", report.Found, "chunks", deleted)
	return report, nil
}
