package badger

import (
	"context"
	"fmt"
	"testing"

	"github.com/poiesic/docvec/core"
	"github.com/poiesic/docvec/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVectorStore(t *testing.T) storage.VectorStore {
	t.Helper()
	_, vectors, backend, err := NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return vectors
}

func chunkRecord(docID string, index int, vector []float32) core.Record {
	return core.NewChunkRecord(&core.Chunk{
		Id:         core.ChunkID(docID, index),
		DocumentId: docID,
		UserId:     "u1",
		Index:      index,
		Content:    fmt.Sprintf("%s chunk %d", docID, index),
		Embedding:  vector,
	})
}

func TestVectorStore_UpsertAndQueryBySimilarity(t *testing.T) {
	ctx := context.Background()
	store := newTestVectorStore(t)

	require.NoError(t, store.Upsert(ctx,
		chunkRecord("d1", 0, []float32{1, 0, 0}),
		chunkRecord("d1", 1, []float32{0.7, 0.7, 0}),
		chunkRecord("d1", 2, []float32{0, 0, 1}),
	))

	matches, err := store.Query(ctx, storage.QueryRequest{
		Vector:          []float32{1, 0, 0},
		TopK:            2,
		IncludeMetadata: true,
	})
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, core.ChunkID("d1", 0), matches[0].Record.Id)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	assert.Equal(t, core.ChunkID("d1", 1), matches[1].Record.Id)
	assert.Greater(t, matches[0].Score, matches[1].Score)

	assert.Nil(t, matches[0].Record.Vector, "matches never carry vectors")
	chunk, err := matches[0].Record.Chunk()
	require.NoError(t, err)
	assert.Equal(t, "d1 chunk 0", chunk.Content)
}

func TestVectorStore_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	store := newTestVectorStore(t)

	rec := chunkRecord("d1", 0, []float32{1, 0})
	require.NoError(t, store.Upsert(ctx, rec))

	rec.Metadata[core.MetaContent] = "rewritten"
	require.NoError(t, store.Upsert(ctx, rec))

	matches, err := store.Query(ctx, storage.QueryRequest{TopK: 10, IncludeMetadata: true})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "rewritten", matches[0].Record.Metadata[core.MetaContent])
}

func TestVectorStore_UpsertRejectsEmptyID(t *testing.T) {
	store := newTestVectorStore(t)
	err := store.Upsert(context.Background(), core.Record{Vector: []float32{1}})
	assert.ErrorIs(t, err, core.ErrInvalidRecord)
}

func TestVectorStore_FilterOnlyQuery(t *testing.T) {
	ctx := context.Background()
	store := newTestVectorStore(t)

	var records []core.Record
	for i := 0; i < 30; i++ {
		records = append(records, chunkRecord("d1", i, []float32{1, 0}))
	}
	for i := 0; i < 5; i++ {
		records = append(records, chunkRecord("d2", i, []float32{1, 0}))
	}
	doc := &core.Document{Id: "d1", UserId: "u1", ChunkCount: 30}
	records = append(records, core.NewDocumentRecord(doc, []float32{1, 0}))
	records = append(records, core.NewMessageRecord(&core.Message{Id: "m1", UserId: "u1", Content: "hi"}, []float32{1, 0}))
	require.NoError(t, store.Upsert(ctx, records...))

	matches, err := store.Query(ctx, storage.QueryRequest{TopK: 1000, Filter: core.ChunkFilter("d1")})
	require.NoError(t, err)
	assert.Len(t, matches, 30, "document record and other documents excluded")
	for i := 1; i < len(matches); i++ {
		assert.Less(t, matches[i-1].Record.Id, matches[i].Record.Id, "filter-only results ordered by id")
	}
	assert.Nil(t, matches[0].Record.Metadata, "metadata omitted unless requested")

	page, err := store.Query(ctx, storage.QueryRequest{TopK: 10, Filter: core.ChunkFilter("d1")})
	require.NoError(t, err)
	assert.Len(t, page, 10)

	messages, err := store.Query(ctx, storage.QueryRequest{
		TopK:   10,
		Filter: core.Filter{core.MetaRecordType: string(core.RecordTypeMessage)},
	})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "m1", messages[0].Record.Id)
}

func TestVectorStore_QuerySkipsDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	store := newTestVectorStore(t)

	require.NoError(t, store.Upsert(ctx,
		chunkRecord("d1", 0, []float32{1, 0}),
		chunkRecord("d1", 1, []float32{1, 0, 0}),
	))

	matches, err := store.Query(ctx, storage.QueryRequest{Vector: []float32{1, 0}, TopK: 10})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, core.ChunkID("d1", 0), matches[0].Record.Id)
}

func TestVectorStore_InvalidTopK(t *testing.T) {
	store := newTestVectorStore(t)
	_, err := store.Query(context.Background(), storage.QueryRequest{TopK: 0})
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestVectorStore_DeleteIgnoresUnknownIDs(t *testing.T) {
	ctx := context.Background()
	store := newTestVectorStore(t)

	require.NoError(t, store.Upsert(ctx, chunkRecord("d1", 0, []float32{1}), chunkRecord("d1", 1, []float32{1})))
	require.NoError(t, store.Delete(ctx, core.ChunkID("d1", 0), "missing"))

	matches, err := store.Query(ctx, storage.QueryRequest{TopK: 10, Filter: core.ChunkFilter("d1")})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, core.ChunkID("d1", 1), matches[0].Record.Id)

	require.NoError(t, store.Delete(ctx, core.ChunkID("d1", 0)), "deleting twice is fine")
}

func TestVectorStore_ReassignedDocumentIndex(t *testing.T) {
	ctx := context.Background()
	store := newTestVectorStore(t)

	rec := chunkRecord("d1", 0, []float32{1})
	require.NoError(t, store.Upsert(ctx, rec))
	rec.Metadata[core.MetaDocumentID] = "d2"
	require.NoError(t, store.Upsert(ctx, rec))

	old, err := store.Query(ctx, storage.QueryRequest{TopK: 10, Filter: core.ChunkFilter("d1")})
	require.NoError(t, err)
	assert.Empty(t, old)

	moved, err := store.Query(ctx, storage.QueryRequest{TopK: 10, Filter: core.ChunkFilter("d2")})
	require.NoError(t, err)
	assert.Len(t, moved, 1)
}

func TestVectorStore_LargeUpsertSpansTransactions(t *testing.T) {
	ctx := context.Background()
	store := newTestVectorStore(t)

	records := make([]core.Record, upsertGroupSize*2+7)
	ids := make([]string, len(records))
	for i := range records {
		records[i] = chunkRecord("big", i, []float32{float32(i), 1})
		ids[i] = records[i].Id
	}
	require.NoError(t, store.Upsert(ctx, records...))

	matches, err := store.Query(ctx, storage.QueryRequest{TopK: 10000, Filter: core.ChunkFilter("big")})
	require.NoError(t, err)
	assert.Len(t, matches, len(records))

	require.NoError(t, store.Delete(ctx, ids...))
	matches, err = store.Query(ctx, storage.QueryRequest{TopK: 10000, Filter: core.ChunkFilter("big")})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestVectorStore_CanceledContext(t *testing.T) {
	store := newTestVectorStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Upsert(ctx, chunkRecord("d1", 0, []float32{1}))
	assert.ErrorIs(t, err, context.Canceled)
}
