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


// Package docvec wires the document store, vector store, embedding provider
// and ingestion pipeline into a single service.
package docvec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/poiesic/docvec/ai"
	"github.com/poiesic/docvec/ai/openai"
	"github.com/poiesic/docvec/blob"
	"github.com/poiesic/docvec/chunking"
	"github.com/poiesic/docvec/config"
	"github.com/poiesic/docvec/core"
	"github.com/poiesic/docvec/deletion"
	"github.com/poiesic/docvec/embedding"
	"github.com/poiesic/docvec/fetch"
	"github.com/poiesic/docvec/ingestion"
	"github.com/poiesic/docvec/lock"
	"github.com/poiesic/docvec/reembed"
	"github.com/poiesic/docvec/search"
	"github.com/poiesic/docvec/status"
	"github.com/poiesic/docvec/storage"
	"github.com/poiesic/docvec/storage/badger"
	"github.com/poiesic/docvec/storage/qdrant"
	"github.com/redis/go-redis/v9"
)

// Service is an open docvec deployment.
type Service struct {
	backend  *badger.Backend
	docs     storage.DocumentRepository
	vectors  storage.VectorStore
	provider ai.Provider
	blobs    *blob.FSStore
	redis    *redis.Client
	tracker  *status.Tracker
	pipeline *ingestion.Pipeline
	cascade  *deletion.Cascade
	searcher *search.Searcher
	logger   *slog.Logger
}

// Option configures Open.
type Option func(*options)

type options struct {
	provider     ai.Provider
	fetchers     map[string]fetch.Fetcher
	listener     status.Listener
	logger       *slog.Logger
	pipelineOpts []ingestion.Option
}

// WithProvider replaces the OpenAI-compatible provider built from the config.
// The service closes it on Close.
func WithProvider(provider ai.Provider) Option {
	return func(o *options) {
		o.provider = provider
	}
}

// WithFetcher routes source URLs with the given scheme to f.
func WithFetcher(scheme string, f fetch.Fetcher) Option {
	return func(o *options) {
		o.fetchers[scheme] = f
	}
}

// WithStatusListener observes every document state change.
func WithStatusListener(fn status.Listener) Option {
	return func(o *options) {
		o.listener = fn
	}
}

// WithLogger sets the logger used by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
	}
}

// WithPipelineOptions appends options applied to the ingestion pipeline
// after those derived from the config.
func WithPipelineOptions(opts ...ingestion.Option) Option {
	return func(o *options) {
		o.pipelineOpts = append(o.pipelineOpts, opts...)
	}
}

// Open validates cfg and opens every component it describes.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (svc *Service, err error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &options{fetchers: map[string]fetch.Fetcher{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	s := &Service{logger: o.logger.With("component", "docvec")}
	defer func() {
		if err != nil {
			s.Close()
			svc = nil
		}
	}()

	if s.backend, err = badger.OpenBackend(cfg.Store.Path, cfg.Store.InMemory); err != nil {
		return nil, fmt.Errorf("opening document store: %w", err)
	}
	if s.docs, err = badger.NewDocumentRepository(s.backend); err != nil {
		return nil, err
	}
	switch cfg.Store.Backend {
	case config.BackendQdrant:
		s.vectors, err = qdrant.NewVectorStore(qdrant.Config{
			URL:        cfg.Store.Qdrant.URL,
			APIKey:     cfg.Store.Qdrant.APIKey,
			Collection: cfg.Store.Qdrant.Collection,
			Timeout:    cfg.Store.Qdrant.Timeout,
		}, qdrant.WithLogger(o.logger))
	default:
		s.vectors, err = badger.NewVectorStore(s.backend)
	}
	if err != nil {
		return nil, fmt.Errorf("opening vector store: %w", err)
	}

	s.provider = o.provider
	if s.provider == nil {
		if s.provider, err = openai.NewProvider(cfg.AI()); err != nil {
			return nil, err
		}
	}

	if s.blobs, err = blob.NewFSStore(cfg.Blob.Root, o.logger); err != nil {
		return nil, err
	}

	trackerOpts := []status.Option{status.WithLogger(o.logger)}
	if o.listener != nil {
		trackerOpts = append(trackerOpts, status.WithListener(o.listener))
	}
	if s.tracker, err = status.NewTracker(s.docs, trackerOpts...); err != nil {
		return nil, err
	}

	fetchOpts := []fetch.Option{
		fetch.WithLogger(o.logger),
		fetch.WithScheme("file", fetch.NewFileFetcher(cfg.Fetch.FileRoot)),
	}
	if cfg.Fetch.MaxBytes > 0 {
		httpFetcher := fetch.NewHTTPFetcher(fetch.WithMaxBytes(cfg.Fetch.MaxBytes))
		fetchOpts = append(fetchOpts, fetch.WithScheme("http", httpFetcher), fetch.WithScheme("https", httpFetcher))
	}
	for scheme, f := range o.fetchers {
		fetchOpts = append(fetchOpts, fetch.WithScheme(scheme, f))
	}
	fetcher, err := fetch.New(fetchOpts...)
	if err != nil {
		return nil, err
	}

	strategy, err := chunking.ParseStrategy(cfg.Chunking.Strategy)
	if err != nil {
		return nil, err
	}
	chunker, err := chunking.New(
		chunking.WithMaxChunkSize(cfg.Chunking.MaxChunkSize),
		chunking.WithOverlap(cfg.Chunking.Overlap),
		chunking.WithStrategy(strategy),
	)
	if err != nil {
		return nil, err
	}

	batcher, err := embedding.NewBatcher(s.provider.Embedder(),
		embedding.WithLogger(o.logger),
		embedding.WithMaxInputBytes(cfg.Embedding.MaxInputBytes),
		embedding.WithDimensions(cfg.Embedding.Dimensions),
		embedding.WithRetry(cfg.Embedding.MaxAttempts, cfg.Embedding.RetryDelay),
		embedding.WithCallTimeout(cfg.Embedding.CallTimeout),
	)
	if err != nil {
		return nil, err
	}

	pipelineOpts := []ingestion.Option{
		ingestion.WithLogger(o.logger),
		ingestion.WithBatchSize(cfg.Pipeline.BatchSize),
		ingestion.WithConcurrencyLimit(cfg.Pipeline.ConcurrencyLimit),
		ingestion.WithUpsertBatchSize(cfg.Pipeline.UpsertBatchSize),
		ingestion.WithTimeouts(ingestion.Timeouts{
			Fetch: cfg.Pipeline.FetchTimeout,
			Embed: cfg.Pipeline.EmbedTimeout,
			Store: cfg.Pipeline.StoreTimeout,
			Run:   cfg.Pipeline.RunTimeout,
		}),
	}
	if cfg.Pipeline.PoolSize > 0 {
		pipelineOpts = append(pipelineOpts, ingestion.WithPoolSize(cfg.Pipeline.PoolSize))
	}
	if cfg.Lock.RedisURL != "" {
		if s.redis, err = lock.NewRedisClient(ctx, cfg.Lock.RedisURL); err != nil {
			return nil, err
		}
		locker, err := lock.NewRedis(s.redis, lock.WithTTL(cfg.Lock.TTL), lock.WithLogger(o.logger))
		if err != nil {
			return nil, err
		}
		pipelineOpts = append(pipelineOpts, ingestion.WithLocker(locker))
	}
	pipelineOpts = append(pipelineOpts, o.pipelineOpts...)
	if s.pipeline, err = ingestion.NewPipeline(s.tracker, s.vectors, fetcher, chunker, batcher, pipelineOpts...); err != nil {
		return nil, err
	}

	if s.cascade, err = deletion.NewCascade(s.docs, s.vectors,
		deletion.WithLogger(o.logger),
		deletion.WithBlobStore(s.blobs),
	); err != nil {
		return nil, err
	}

	if s.searcher, err = search.NewSearcher(s.vectors, s.provider.Embedder(), search.WithLogger(o.logger)); err != nil {
		return nil, err
	}

	s.logger.Info("service opened", "store", cfg.Store.Backend, "model", cfg.Embedding.Model)
	return s, nil
}

// ProcessDocument ingests a document and waits for the run to finish.
func (s *Service) ProcessDocument(ctx context.Context, req ingestion.Request) (*ingestion.Result, error) {
	return s.pipeline.Process(ctx, req)
}

// SubmitDocument starts ingesting a document in the background and returns
// it in the processing state.
func (s *Service) SubmitDocument(ctx context.Context, req ingestion.Request) (*core.Document, error) {
	return s.pipeline.Submit(ctx, req)
}

// UploadDocument stores content in the blob store, points the request at
// it and processes it.
func (s *Service) UploadDocument(ctx context.Context, req ingestion.Request, content io.Reader) (*ingestion.Result, error) {
	if req.UserID == "" || req.DocumentID == "" || req.FileName == "" {
		return nil, &core.ValidationError{Field: "request", Reason: "user id, document id and file name are required"}
	}
	blobPath := path.Join(req.UserID, req.DocumentID, path.Base(req.FileName))
	if err := s.blobs.Put(ctx, blobPath, content); err != nil {
		return nil, fmt.Errorf("storing upload: %w", err)
	}
	sourceURL, err := s.blobs.URL(blobPath)
	if err != nil {
		return nil, err
	}
	req.FilePath = blobPath
	req.SourceURL = sourceURL
	return s.pipeline.Process(ctx, req)
}

// RetryDocument reprocesses a failed document.
func (s *Service) RetryDocument(ctx context.Context, id string) (*ingestion.Result, error) {
	return s.pipeline.Retry(ctx, id)
}

// ReprocessDocument rebuilds the vectors of an indexed document.
func (s *Service) ReprocessDocument(ctx context.Context, id string) (*ingestion.Result, error) {
	return s.pipeline.Reprocess(ctx, id)
}

// CancelDocument stops an in-flight run, reporting whether one was found.
func (s *Service) CancelDocument(id string) bool {
	return s.pipeline.Cancel(id)
}

// DeleteDocument cancels any run for id, waits for it to stop and removes
// the document, its vectors and its file.
func (s *Service) DeleteDocument(ctx context.Context, id string) (*deletion.Report, error) {
	if s.pipeline.Cancel(id) {
		if err := s.awaitStopped(ctx, id); err != nil {
			return nil, err
		}
	}
	return s.cascade.DeleteDocument(ctx, id)
}

func (s *Service) awaitStopped(ctx context.Context, id string) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for s.pipeline.Running(id) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// GetDocument returns a document by id.
func (s *Service) GetDocument(ctx context.Context, id string) (*core.Document, error) {
	return s.tracker.Get(ctx, id)
}

// ListDocuments returns the documents owned by userID, or all documents
// when userID is empty.
func (s *Service) ListDocuments(ctx context.Context, userID string) ([]*core.Document, error) {
	return s.docs.ListDocuments(ctx, userID)
}

// Search returns chunks ranked by relevance to query.
func (s *Service) Search(ctx context.Context, query string, opts search.Options) ([]*search.Hit, error) {
	return s.searcher.Search(ctx, query, opts)
}

// Reindex reprocesses the indexed documents of userID, or of every user
// when userID is empty, writing progress to w.
func (s *Service) Reindex(ctx context.Context, userID string, cfg *reembed.Config, w io.Writer) (*reembed.Summary, error) {
	r, err := reembed.NewReembedder(s.docs, s.pipeline, cfg, w)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, userID)
}

// Close stops in-flight runs and releases every component. Runs still in
// flight end failed.
func (s *Service) Close() error {
	var errs []error
	if s.pipeline != nil {
		s.pipeline.Release()
	}
	if s.provider != nil {
		if err := s.provider.Close(); err != nil {
			s.logger.Error("error closing AI provider", "err", err)
		}
	}
	if s.vectors != nil {
		if err := s.vectors.Close(); err != nil {
			s.logger.Error("error closing vector store", "err", err)
			errs = append(errs, err)
		}
	}
	if s.docs != nil {
		if err := s.docs.Close(); err != nil {
			s.logger.Error("error closing document repository", "err", err)
			errs = append(errs, err)
		}
	}
	if s.backend != nil {
		if err := s.backend.Close(); err != nil {
			s.logger.Error("error closing backend storage", "err", err)
			errs = append(errs, err)
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("error closing redis client", "err", err)
		}
	}
	return errors.Join(errs...)
}
