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


// Package storage provides the storage abstraction layer for docvec.
//
// Two contracts decouple the ingestion and deletion logic from any backend:
//
//   - DocumentRepository: document records and their ingestion status
//   - VectorStore: {id, vector, metadata} records for chunks, documents,
//     conversations and messages, queried by similarity and metadata filter
//
// # Constructor Return Type Pattern
//
// Public constructors in backend packages return these interfaces:
//
//	store, err := badger.NewVectorStore(backend)     // storage.VectorStore
//	store, err := qdrant.NewVectorStore(cfg)         // storage.VectorStore
//	docs, err := badger.NewDocumentRepository(backend) // storage.DocumentRepository
//
// # Filters
//
// VectorStore filters are exact-match predicates over metadata. The
// chunk-cascade query used when deleting a document is:
//
//	storage.QueryRequest{
//	    TopK:   1000,
//	    Filter: core.ChunkFilter(docID),
//	}
//
// # Thread Safety
//
// All implementations must be safe for concurrent use.
package storage
