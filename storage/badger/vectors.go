package badger

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docvec/core"
	"github.com/poiesic/docvec/storage"
)

// upsertGroupSize is the number of records written per transaction.
const upsertGroupSize = 256

// VectorStore implements storage.VectorStore for BadgerDB.
// Similarity queries are exhaustive; records carrying a document_id are
// additionally indexed by document so chunk cascades avoid a full scan.
type VectorStore struct {
	backend *Backend
}

var _ storage.VectorStore = (*VectorStore)(nil)

// NewVectorStore creates a VectorStore on an open backend.
// The backend is owned by the caller.
func NewVectorStore(backend *Backend) (storage.VectorStore, error) {
	if backend == nil {
		return nil, fmt.Errorf("badger: backend is required")
	}
	return &VectorStore{backend: backend}, nil
}

// Close is a no-op; the backend is closed by its owner.
func (s *VectorStore) Close() error {
	return nil
}

// Upsert inserts or replaces records by id.
func (s *VectorStore) Upsert(ctx context.Context, records ...core.Record) error {
	for _, rec := range records {
		if rec.Id == "" {
			return fmt.Errorf("%w: record id is empty", core.ErrInvalidRecord)
		}
	}

	for start := 0; start < len(records); start += upsertGroupSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		group := records[start:min(start+upsertGroupSize, len(records))]
		err := s.backend.Update(func(tx *badger.Txn) error {
			for i := range group {
				if err := s.putRecord(tx, &group[i]); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *VectorStore) putRecord(tx *badger.Txn, rec *core.Record) error {
	key := makeVectorKey(rec.Id)

	old, err := readRecord(tx, key)
	if err != nil {
		return err
	}
	if old != nil {
		if oldDoc := old.Metadata[core.MetaDocumentID]; oldDoc != "" && oldDoc != rec.Metadata[core.MetaDocumentID] {
			if err := tx.Delete(makeVectorDocumentKey(oldDoc, old.Id)); err != nil {
				return err
			}
		}
	}

	if err := tx.Set(key, storage.MarshalRecord(rec)); err != nil {
		return err
	}
	if docID := rec.Metadata[core.MetaDocumentID]; docID != "" {
		return tx.Set(makeVectorDocumentKey(docID, rec.Id), nil)
	}
	return nil
}

// Query returns up to req.TopK records matching req.Filter.
func (s *VectorStore) Query(ctx context.Context, req storage.QueryRequest) ([]core.Match, error) {
	if req.TopK <= 0 {
		return nil, fmt.Errorf("%w: top k must be positive, got %d", storage.ErrInvalidQuery, req.TopK)
	}
	filterOnly := len(req.Vector) == 0

	var matches []core.Match
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		return s.scan(ctx, tx, req.Filter, func(rec *core.Record) bool {
			if !req.Filter.Matches(rec.Metadata) {
				return true
			}
			match := core.Match{Record: core.Record{Id: rec.Id}}
			if req.IncludeMetadata {
				match.Record.Metadata = rec.Metadata
			}
			if filterOnly {
				matches = append(matches, match)
				// Both scan orders are by record id.
				return len(matches) < req.TopK
			}
			if len(rec.Vector) != len(req.Vector) {
				return true
			}
			match.Score = core.CosineSimilarity(req.Vector, rec.Vector)
			matches = append(matches, match)
			return true
		})
	}, false)
	if err != nil {
		return nil, err
	}

	if !filterOnly {
		slices.SortFunc(matches, func(a, b core.Match) int {
			if c := cmp.Compare(b.Score, a.Score); c != 0 {
				return c
			}
			return cmp.Compare(a.Record.Id, b.Record.Id)
		})
		if len(matches) > req.TopK {
			matches = matches[:req.TopK]
		}
	}
	return matches, nil
}

// scan visits candidate records in id order until visit returns false.
// A document_id predicate narrows the scan to that document's index.
func (s *VectorStore) scan(ctx context.Context, tx *badger.Txn, filter core.Filter, visit func(*core.Record) bool) error {
	if docID, ok := filter[core.MetaDocumentID]; ok {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := makePartialVectorDocumentKey(docID)
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			id := idFromIndexKey(iter.Item().Key(), prefix)
			rec, err := readRecord(tx, makeVectorKey(id))
			if err != nil {
				return err
			}
			if rec == nil {
				continue
			}
			if !visit(rec) {
				return nil
			}
		}
		return nil
	}

	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(vectorRecordPrefix)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var rec *core.Record
		err := iter.Item().Value(func(val []byte) error {
			var err error
			rec, err = storage.UnmarshalRecord(val)
			return err
		})
		if err != nil {
			return err
		}
		if !visit(rec) {
			return nil
		}
	}
	return nil
}

// Delete removes records by id. Unknown ids are ignored.
func (s *VectorStore) Delete(ctx context.Context, ids ...string) error {
	for start := 0; start < len(ids); start += upsertGroupSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		group := ids[start:min(start+upsertGroupSize, len(ids))]
		err := s.backend.Update(func(tx *badger.Txn) error {
			for _, id := range group {
				key := makeVectorKey(id)
				rec, err := readRecord(tx, key)
				if err != nil {
					return err
				}
				if rec == nil {
					continue
				}
				if docID := rec.Metadata[core.MetaDocumentID]; docID != "" {
					if err := tx.Delete(makeVectorDocumentKey(docID, id)); err != nil {
						return err
					}
				}
				if err := tx.Delete(key); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// readRecord returns nil without error if the key doesn't exist.
func readRecord(tx *badger.Txn, key []byte) (*core.Record, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var record *core.Record
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		record, unmarshalErr = storage.UnmarshalRecord(val)
		return unmarshalErr
	})
	return record, err
}
