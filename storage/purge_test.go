package storage_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/poiesic/docvec/core"
	"github.com/poiesic/docvec/storage"
	"github.com/poiesic/docvec/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedChunks(t *testing.T, store storage.VectorStore, docID string, n int) {
	t.Helper()
	records := make([]core.Record, n)
	for i := range records {
		records[i] = core.NewChunkRecord(&core.Chunk{
			Id:         core.ChunkID(docID, i),
			DocumentId: docID,
			UserId:     "user-1",
			Index:      i,
			Content:    fmt.Sprintf("chunk %d", i),
			Embedding:  []float32{1, float32(i)},
		})
	}
	require.NoError(t, store.Upsert(context.Background(), records...))
}

func TestDeleteMatchingPages(t *testing.T) {
	_, vectors, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	defer backend.Close()
	ctx := context.Background()

	seedChunks(t, vectors, "doc-a", 25)
	seedChunks(t, vectors, "doc-b", 3)

	deleted, err := storage.DeleteMatching(ctx, vectors, core.ChunkFilter("doc-a"), 10)
	require.NoError(t, err)
	assert.Equal(t, 25, deleted)

	left, err := vectors.Query(ctx, storage.QueryRequest{TopK: 100, Filter: core.ChunkFilter("doc-a")})
	require.NoError(t, err)
	assert.Empty(t, left)

	other, err := vectors.Query(ctx, storage.QueryRequest{TopK: 100, Filter: core.ChunkFilter("doc-b")})
	require.NoError(t, err)
	assert.Len(t, other, 3)
}

func TestDeleteMatchingExactPageMultiple(t *testing.T) {
	_, vectors, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	defer backend.Close()

	seedChunks(t, vectors, "doc-a", 20)

	deleted, err := storage.DeleteMatching(context.Background(), vectors, core.ChunkFilter("doc-a"), 10)
	require.NoError(t, err)
	assert.Equal(t, 20, deleted)
}

func TestDeleteMatchingNothing(t *testing.T) {
	_, vectors, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	defer backend.Close()

	deleted, err := storage.DeleteMatching(context.Background(), vectors, core.ChunkFilter("missing"), 0)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestDeleteMatchingRejectsEmptyFilter(t *testing.T) {
	_, vectors, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	defer backend.Close()

	_, err = storage.DeleteMatching(context.Background(), vectors, nil, 10)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}
