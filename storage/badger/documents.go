package badger

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docvec/core"
	"github.com/poiesic/docvec/storage"
)

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend *Backend
	now     func() time.Time
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a DocumentRepository on an open backend.
// The backend is owned by the caller.
func NewDocumentRepository(backend *Backend) (storage.DocumentRepository, error) {
	if backend == nil {
		return nil, fmt.Errorf("badger: backend is required")
	}
	return &DocumentRepository{
		backend: backend,
		now:     func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}, nil
}

// Close is a no-op; the backend is closed by its owner.
func (r *DocumentRepository) Close() error {
	return nil
}

// CreateDocument stores a new document.
func (r *DocumentRepository) CreateDocument(ctx context.Context, doc *core.Document) (*core.Document, error) {
	if doc == nil || doc.Id == "" {
		return nil, fmt.Errorf("%w: document id is empty", core.ErrInvalidRecord)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stored := doc.Clone()
	now := r.now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = now
	}
	// Timestamps are persisted at microsecond precision.
	stored.CreatedAt = stored.CreatedAt.UTC().Truncate(time.Microsecond)
	stored.UpdatedAt = stored.UpdatedAt.UTC().Truncate(time.Microsecond)

	err := r.backend.Update(func(tx *badger.Txn) error {
		key := makeDocumentKey(stored.Id)
		existing, err := readDocument(tx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: document %s", storage.ErrDuplicateKey, stored.Id)
		}
		return writeDocument(tx, stored)
	})
	if err != nil {
		return nil, err
	}
	return stored.Clone(), nil
}

// GetDocument retrieves a document by id.
func (r *DocumentRepository) GetDocument(ctx context.Context, id string) (*core.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var result *core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readDocument(tx, makeDocumentKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return fmt.Errorf("%w: document %s", storage.ErrNotFound, id)
		}
		return nil
	}, false)
	return result, err
}

// UpdateDocument atomically applies fn to the stored document.
// Conflicting concurrent updates are retried against the fresh value.
func (r *DocumentRepository) UpdateDocument(ctx context.Context, id string, fn func(doc *core.Document) error) (*core.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var updated *core.Document
	err := r.backend.Update(func(tx *badger.Txn) error {
		key := makeDocumentKey(id)
		old, err := readDocument(tx, key)
		if err != nil {
			return err
		}
		if old == nil {
			return fmt.Errorf("%w: document %s", storage.ErrNotFound, id)
		}

		doc := old.Clone()
		if err := fn(doc); err != nil {
			return err
		}
		doc.Id = old.Id
		doc.CreatedAt = old.CreatedAt
		doc.UpdatedAt = r.now()

		if doc.UserId != old.UserId {
			if err := tx.Delete(makeDocumentUserKey(old.UserId, old.Id)); err != nil {
				return err
			}
		}
		if err := writeDocument(tx, doc); err != nil {
			return err
		}
		updated = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}

// DeleteDocument removes a document. Unknown ids are ignored.
func (r *DocumentRepository) DeleteDocument(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.backend.Update(func(tx *badger.Txn) error {
		key := makeDocumentKey(id)
		doc, err := readDocument(tx, key)
		if err != nil {
			return err
		}
		if doc == nil {
			return nil
		}
		if err := tx.Delete(makeDocumentUserKey(doc.UserId, doc.Id)); err != nil {
			return err
		}
		return tx.Delete(key)
	})
}

// ListDocuments returns documents ordered by creation time, then id.
func (r *DocumentRepository) ListDocuments(ctx context.Context, userID string) ([]*core.Document, error) {
	var docs []*core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		if userID != "" {
			opts.PrefetchValues = false
			opts.Prefix = makePartialDocumentUserKey(userID)
		} else {
			opts.Prefix = []byte(documentRecordPrefix)
		}
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var (
				doc *core.Document
				err error
			)
			if userID != "" {
				id := idFromIndexKey(iter.Item().Key(), opts.Prefix)
				doc, err = readDocument(tx, makeDocumentKey(id))
			} else {
				err = iter.Item().Value(func(val []byte) error {
					var unmarshalErr error
					doc, unmarshalErr = storage.UnmarshalDocument(val)
					return unmarshalErr
				})
			}
			if err != nil {
				return err
			}
			if doc != nil {
				docs = append(docs, doc)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(docs, func(a, b *core.Document) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.Id < b.Id {
			return -1
		}
		if a.Id > b.Id {
			return 1
		}
		return 0
	})
	return docs, nil
}

func writeDocument(tx *badger.Txn, doc *core.Document) error {
	if err := tx.Set(makeDocumentKey(doc.Id), storage.MarshalDocument(doc)); err != nil {
		return err
	}
	return tx.Set(makeDocumentUserKey(doc.UserId, doc.Id), nil)
}

// readDocument returns nil without error if the key doesn't exist.
func readDocument(tx *badger.Txn, key []byte) (*core.Document, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var doc *core.Document
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		doc, unmarshalErr = storage.UnmarshalDocument(val)
		return unmarshalErr
	})
	return doc, err
}
