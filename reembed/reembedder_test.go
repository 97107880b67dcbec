package reembed

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/docvec/ai/mock"
	"github.com/poiesic/docvec/chunking"
	"github.com/poiesic/docvec/core"
	"github.com/poiesic/docvec/embedding"
	"github.com/poiesic/docvec/ingestion"
	"github.com/poiesic/docvec/status"
	"github.com/poiesic/docvec/storage"
	"github.com/poiesic/docvec/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePipeline struct {
	mu        sync.Mutex
	reprocess []string
	retry     []string
	fail      map[string]bool
	busy      map[string]bool
	onCall    func()
}

func (f *fakePipeline) Reprocess(ctx context.Context, id string) (*ingestion.Result, error) {
	f.mu.Lock()
	f.reprocess = append(f.reprocess, id)
	f.mu.Unlock()
	return f.result(id)
}

func (f *fakePipeline) Retry(ctx context.Context, id string) (*ingestion.Result, error) {
	f.mu.Lock()
	f.retry = append(f.retry, id)
	f.mu.Unlock()
	return f.result(id)
}

func (f *fakePipeline) result(id string) (*ingestion.Result, error) {
	if f.onCall != nil {
		f.onCall()
	}
	if f.busy[id] {
		return nil, ingestion.ErrAlreadyProcessing
	}
	if f.fail[id] {
		return &ingestion.Result{Err: errors.New("upstream down")}, nil
	}
	return &ingestion.Result{Success: true}, nil
}

func seedDocs(t *testing.T, docs storage.DocumentRepository, statuses map[string]core.DocumentStatus) {
	t.Helper()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	i := 0
	for _, id := range []string{"doc-a", "doc-b", "doc-c", "doc-d"} {
		st, ok := statuses[id]
		if !ok {
			continue
		}
		_, err := docs.CreateDocument(context.Background(), &core.Document{
			Id:        id,
			UserId:    "user-1",
			Name:      id,
			SourceURL: "file:///tmp/" + id,
			Status:    st,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
		i++
	}
}

func newDocs(t *testing.T) storage.DocumentRepository {
	t.Helper()
	docs, _, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return docs
}

func TestNewReembedder(t *testing.T) {
	docs := newDocs(t)

	_, err := NewReembedder(nil, &fakePipeline{}, nil, nil)
	assert.Equal(t, ErrDocumentRepositoryRequired, err)

	_, err = NewReembedder(docs, nil, nil, nil)
	assert.Equal(t, ErrPipelineRequired, err)

	r, err := NewReembedder(docs, &fakePipeline{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), r.config)
}

func TestReembedder_Run(t *testing.T) {
	docs := newDocs(t)
	seedDocs(t, docs, map[string]core.DocumentStatus{
		"doc-a": core.StatusIndexed,
		"doc-b": core.StatusFailed,
		"doc-c": core.StatusIndexed,
		"doc-d": core.StatusProcessing,
	})

	pipeline := &fakePipeline{fail: map[string]bool{"doc-c": true}}
	var buf bytes.Buffer
	r, err := NewReembedder(docs, pipeline, &Config{ReportInterval: 1}, &buf)
	require.NoError(t, err)

	summary, err := r.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, &Summary{Total: 2, Indexed: 1, Failed: 1}, summary)
	assert.Equal(t, []string{"doc-a", "doc-c"}, pipeline.reprocess)
	assert.Empty(t, pipeline.retry)
	assert.Contains(t, buf.String(), "2/2")
	assert.Contains(t, buf.String(), "1 indexed, 1 failed, 0 skipped")
}

func TestReembedder_IncludeFailed(t *testing.T) {
	docs := newDocs(t)
	seedDocs(t, docs, map[string]core.DocumentStatus{
		"doc-a": core.StatusIndexed,
		"doc-b": core.StatusFailed,
		"doc-c": core.StatusIndexed,
	})

	pipeline := &fakePipeline{busy: map[string]bool{"doc-c": true}}
	r, err := NewReembedder(docs, pipeline, &Config{IncludeFailed: true}, nil)
	require.NoError(t, err)

	summary, err := r.Run(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, &Summary{Total: 3, Indexed: 2, Skipped: 1}, summary)
	assert.Equal(t, []string{"doc-b"}, pipeline.retry)
	assert.Equal(t, []string{"doc-a", "doc-c"}, pipeline.reprocess)
}

func TestReembedder_EmptyDatabase(t *testing.T) {
	var buf bytes.Buffer
	r, err := NewReembedder(newDocs(t), &fakePipeline{}, DefaultConfig(), &buf)
	require.NoError(t, err)

	summary, err := r.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, summary.Total)
	assert.Contains(t, buf.String(), "No documents to reindex")
}

func TestReembedder_ContextCancellation(t *testing.T) {
	docs := newDocs(t)
	seedDocs(t, docs, map[string]core.DocumentStatus{
		"doc-a": core.StatusIndexed,
		"doc-b": core.StatusIndexed,
		"doc-c": core.StatusIndexed,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pipeline := &fakePipeline{onCall: cancel}
	r, err := NewReembedder(docs, pipeline, nil, nil)
	require.NoError(t, err)

	summary, err := r.Run(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, summary.Indexed)
	assert.Len(t, pipeline.reprocess, 1)
}

type textFetcher string

func (f textFetcher) Fetch(context.Context, string) (string, error) { return string(f), nil }

func TestReembedder_WithPipeline(t *testing.T) {
	docs, vectors, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	defer backend.Close()
	ctx := context.Background()

	tracker, err := status.NewTracker(docs)
	require.NoError(t, err)
	chunker, err := chunking.New(chunking.WithMaxChunkSize(40), chunking.WithOverlap(0))
	require.NoError(t, err)
	embedder := mock.NewMockEmbedder()
	batcher, err := embedding.NewBatcher(embedder)
	require.NoError(t, err)
	pipeline, err := ingestion.NewPipeline(tracker, vectors,
		textFetcher("The first paragraph talks about invoices. The second one covers payment terms."),
		chunker, batcher)
	require.NoError(t, err)
	defer pipeline.Release()

	result, err := pipeline.Process(ctx, ingestion.Request{
		DocumentID: "doc-1",
		UserID:     "user-1",
		FileName:   "notes.txt",
		SourceURL:  "file:///tmp/notes.txt",
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	calls := embedder.CallCount()

	r, err := NewReembedder(docs, pipeline, nil, nil)
	require.NoError(t, err)
	summary, err := r.Run(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Indexed)
	assert.Greater(t, embedder.CallCount(), calls)

	doc, err := docs.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusIndexed, doc.Status)
	assert.Equal(t, 100, doc.Progress)
}
