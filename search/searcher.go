package search

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/poiesic/docvec/ai"
	"github.com/poiesic/docvec/core"
	"github.com/poiesic/docvec/storage"
)

const (
	// DefaultMaxHits is used when Options.MaxHits is not positive.
	DefaultMaxHits = 10

	// candidateFactor widens the vector query so the verbatim boost can
	// promote chunks ranked just below the cut.
	candidateFactor = 3

	verbatimBoost = 0.3
)

// Options scopes and limits a search.
type Options struct {
	UserID     string
	DocumentID string
	MaxHits    int
	// MinScore drops chunks whose similarity is below it, before boosting.
	MinScore float32
}

// Hit is a ranked chunk.
type Hit struct {
	Chunk      *core.Chunk
	Similarity float32
	Score      float32
	Verbatim   bool
}

// Searcher provides semantic search over document chunks.
type Searcher struct {
	vectors  storage.VectorStore
	embedder ai.Embedder
	logger   *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(vectors storage.VectorStore, embedder ai.Embedder, opts ...Option) (*Searcher, error) {
	if vectors == nil {
		return nil, ErrVectorStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		vectors:  vectors,
		embedder: embedder,
		logger:   slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "search")

	return s, nil
}

// Search returns up to opts.MaxHits chunks ranked by relevance score.
func (s *Searcher) Search(ctx context.Context, query string, opts Options) ([]*Hit, error) {
	return s.SearchWithMonitor(ctx, query, opts, nil)
}

// SearchWithMonitor is Search with callbacks at each stage.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query string, opts Options, monitor SearchMonitor) ([]*Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &core.ValidationError{Field: "query", Reason: "is required"}
	}
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	maxHits := opts.MaxHits
	if maxHits <= 0 {
		maxHits = DefaultMaxHits
	}

	monitor.Start(query)

	vector, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, core.Upstream("embed query", err)
	}
	monitor.AfterQueryEmbedding(len(vector))

	filter := core.Filter{core.MetaRecordType: string(core.RecordTypeChunk)}
	if opts.UserID != "" {
		filter = filter.With(core.MetaUserID, opts.UserID)
	}
	if opts.DocumentID != "" {
		filter = filter.With(core.MetaDocumentID, opts.DocumentID)
	}

	matches, err := s.vectors.Query(ctx, storage.QueryRequest{
		Vector:          vector,
		TopK:            maxHits * candidateFactor,
		IncludeMetadata: true,
		Filter:          filter,
	})
	if err != nil {
		s.logger.Error("error querying for similar chunks", "err", err)
		return nil, core.Upstream("query", err)
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.Record.Id
	}
	monitor.AfterVectorQuery(ids)

	results := make([]*Hit, 0, len(matches))
	for _, match := range matches {
		if match.Score < opts.MinScore {
			continue
		}
		chunk, err := match.Record.Chunk()
		if err != nil {
			s.logger.Warn("skipping malformed chunk record", "id", match.Record.Id, "err", err)
			continue
		}

		hit := &Hit{Chunk: chunk, Similarity: match.Score, Score: match.Score}
		if containsAllQueryWords(chunk.Content, query) {
			hit.Verbatim = true
			hit.Score += verbatimBoost
		}
		monitor.Hit(hit)
		results = append(results, hit)
	}

	slices.SortFunc(results, func(a, b *Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Chunk.DocumentId, b.Chunk.DocumentId); c != 0 {
			return c
		}
		return cmp.Compare(a.Chunk.Index, b.Chunk.Index)
	})
	if len(results) > maxHits {
		results = results[:maxHits]
	}
	monitor.Finish(results)

	return results, nil
}
