// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"context"

	"github.com/poiesic/docvec/core"
)

// QueryRequest selects records from a VectorStore.
type QueryRequest struct {
	// Vector is the query embedding. When empty the query is filter-only:
	// matches have a zero score and are ordered by record id.
	Vector []float32

	// TopK is the maximum number of matches returned. Must be positive.
	TopK int

	// IncludeMetadata controls whether matches carry record metadata.
	IncludeMetadata bool

	// Filter restricts matches to records whose metadata satisfies every predicate.
	Filter core.Filter
}

// VectorStore stores {id, vector, metadata} records for every record type.
type VectorStore interface {
	// Upsert inserts or replaces records by id.
	Upsert(ctx context.Context, records ...core.Record) error

	// Query returns up to req.TopK records matching req.Filter, ordered by
	// similarity to req.Vector (highest first).
	// Match records never carry vectors.
	Query(ctx context.Context, req QueryRequest) ([]core.Match, error)

	// Delete removes records by id. Unknown ids are ignored.
	Delete(ctx context.Context, ids ...string) error

	// Close releases resources held by the store.
	Close() error
}

// DocumentRepository persists documents and their ingestion state.
type DocumentRepository interface {
	// CreateDocument stores a new document.
	// Sets CreatedAt and UpdatedAt if not already set.
	// Returns ErrDuplicateKey if a document with the same id exists.
	CreateDocument(ctx context.Context, doc *core.Document) (*core.Document, error)

	// GetDocument retrieves a document by id.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id string) (*core.Document, error)

	// UpdateDocument atomically reads the document, applies fn to a copy and
	// writes the result. If fn returns an error nothing is written and that
	// error is returned. Concurrent updates to the same document are
	// serialized; fn may run more than once and must not have side effects.
	// Returns ErrNotFound if the document doesn't exist.
	UpdateDocument(ctx context.Context, id string, fn func(doc *core.Document) error) (*core.Document, error)

	// DeleteDocument removes a document. Deleting an unknown id is not an error.
	DeleteDocument(ctx context.Context, id string) error

	// ListDocuments returns documents ordered by creation time.
	// An empty userID lists every document.
	ListDocuments(ctx context.Context, userID string) ([]*core.Document, error)

	// Close releases resources held by the repository.
	Close() error
}
