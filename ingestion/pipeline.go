package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docvec/chunking"
	"github.com/poiesic/docvec/core"
	"github.com/poiesic/docvec/embedding"
	"github.com/poiesic/docvec/fetch"
	"github.com/poiesic/docvec/lock"
	"github.com/poiesic/docvec/status"
	"github.com/poiesic/docvec/storage"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Defaults for batch dispatch and record writes.
const (
	DefaultBatchSize        = 20
	DefaultConcurrencyLimit = 4
	DefaultUpsertBatchSize  = 100
	DefaultStatusTimeout    = 10 * time.Second
)

// Chunker splits document text into ordered chunks.
type Chunker interface {
	Chunk(text string) []string
}

// Embedder turns chunks into vectors aligned with the input.
// The call is all-or-nothing.
type Embedder interface {
	EmbedWithProgress(ctx context.Context, texts []string, batchSize, concurrencyLimit int, progress embedding.ProgressFunc) ([][]float32, error)
}

var (
	_ Chunker  = (*chunking.Chunker)(nil)
	_ Embedder = (*embedding.Batcher)(nil)
)

// Timeouts bound the stages of a run. Zero means no limit.
// Expiry is an ordinary stage failure.
type Timeouts struct {
	Fetch time.Duration
	Embed time.Duration
	Store time.Duration
	// Run bounds a whole run, all stages included.
	Run time.Duration
	// Status bounds the final status write, which runs even after
	// the run context is cancelled. Defaults to DefaultStatusTimeout.
	Status time.Duration
}

// Request describes a document to ingest.
type Request struct {
	DocumentID string
	UserID     string
	FilePath   string
	FileName   string
	FileType   string
	FileSize   int64
	SourceURL  string
}

func (r Request) document() *core.Document {
	return &core.Document{
		Id:        r.DocumentID,
		UserId:    r.UserID,
		Name:      r.FileName,
		FileType:  r.FileType,
		FileSize:  r.FileSize,
		FilePath:  r.FilePath,
		SourceURL: r.SourceURL,
	}
}

// Result is the outcome of a run.
type Result struct {
	Success bool
	// Document is the state the run left the document in. It is nil when
	// the document was deleted while the run was in flight.
	Document *core.Document
	// Err is the failure cause when Success is false.
	Err error
}

// Pipeline orchestrates fetch, chunk, embed and store for documents.
type Pipeline struct {
	tracker  *status.Tracker
	vectors  storage.VectorStore
	fetcher  fetch.Fetcher
	chunker  Chunker
	embedder Embedder
	locker   lock.Locker
	pool     *ants.Pool
	logger   *slog.Logger

	batchSize        int
	concurrencyLimit int
	upsertBatchSize  int
	timeouts         Timeouts

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	telemetry      *telemetry

	mu     sync.Mutex
	runs   map[string]context.CancelCauseFunc
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for submitted runs.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		if p.pool != nil {
			p.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithBatchSize sets how many chunks go into one embedding call.
func WithBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			return fmt.Errorf("batch size must be positive, got %d", size)
		}
		p.batchSize = size
		return nil
	}
}

// WithConcurrencyLimit sets how many embedding calls run at once per document.
func WithConcurrencyLimit(limit int) Option {
	return func(p *Pipeline) error {
		if limit < 1 {
			return fmt.Errorf("concurrency limit must be positive, got %d", limit)
		}
		p.concurrencyLimit = limit
		return nil
	}
}

// WithUpsertBatchSize sets how many records are written per vector store call.
func WithUpsertBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			return fmt.Errorf("upsert batch size must be positive, got %d", size)
		}
		p.upsertBatchSize = size
		return nil
	}
}

// WithTimeouts sets stage and run timeouts.
func WithTimeouts(t Timeouts) Option {
	return func(p *Pipeline) error {
		if t.Fetch < 0 || t.Embed < 0 || t.Store < 0 || t.Run < 0 || t.Status < 0 {
			return errors.New("timeouts cannot be negative")
		}
		if t.Status == 0 {
			t.Status = DefaultStatusTimeout
		}
		p.timeouts = t
		return nil
	}
}

// WithLocker sets the per-document lock taken for the length of a run.
// Default is an in-process lock.
func WithLocker(locker lock.Locker) Option {
	return func(p *Pipeline) error {
		if locker == nil {
			return errors.New("locker cannot be nil")
		}
		p.locker = locker
		return nil
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
// Default is the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Pipeline) error {
		p.tracerProvider = tp
		return nil
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider.
// Default is the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(p *Pipeline) error {
		p.meterProvider = mp
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	tracker *status.Tracker,
	vectors storage.VectorStore,
	fetcher fetch.Fetcher,
	chunker Chunker,
	embedder Embedder,
	opts ...Option,
) (*Pipeline, error) {
	if tracker == nil {
		return nil, ErrTrackerRequired
	}
	if vectors == nil {
		return nil, ErrVectorStoreRequired
	}
	if fetcher == nil {
		return nil, ErrFetcherRequired
	}
	if chunker == nil {
		return nil, ErrChunkerRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		tracker:          tracker,
		vectors:          vectors,
		fetcher:          fetcher,
		chunker:          chunker,
		embedder:         embedder,
		locker:           lock.NewLocal(),
		pool:             pool,
		logger:           slog.Default(),
		batchSize:        DefaultBatchSize,
		concurrencyLimit: DefaultConcurrencyLimit,
		upsertBatchSize:  DefaultUpsertBatchSize,
		timeouts:         Timeouts{Status: DefaultStatusTimeout},
		runs:             make(map[string]context.CancelCauseFunc),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.pool.Release()
			return nil, optErr
		}
	}
	p.logger = p.logger.With("component", "ingestion")

	p.telemetry, err = newTelemetry(p.tracerProvider, p.meterProvider)
	if err != nil {
		p.pool.Release()
		return nil, err
	}
	return p, nil
}

// Process runs the pipeline for a new or created document and waits for it
// to finish. The returned error is non-nil only when the run could not
// start: a *core.ValidationError, ErrAlreadyProcessing, or
// status.ErrInvalidTransition for a document that already finished (use
// Retry or Reprocess). Stage failures are reported in the Result.
//
// A document left processing by a run that no longer holds its lock is
// taken over: it is recorded as failed with ErrInterrupted and rerun. The
// same applies to Retry and Reprocess.
func (p *Pipeline) Process(ctx context.Context, req Request) (*Result, error) {
	doc, release, err := p.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	defer release()
	return p.run(ctx, doc), nil
}

// Submit starts a run like Process but returns as soon as the document is
// processing. The run continues on the pipeline's worker pool and is not
// tied to ctx. Use Cancel to stop it.
func (p *Pipeline) Submit(ctx context.Context, req Request) (*core.Document, error) {
	doc, release, err := p.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	return p.submit(ctx, doc, release)
}

// Retry reruns the whole pipeline for a failed document.
func (p *Pipeline) Retry(ctx context.Context, id string) (*Result, error) {
	return p.restart(ctx, id, core.StatusFailed)
}

// Reprocess reruns the whole pipeline for an indexed document.
func (p *Pipeline) Reprocess(ctx context.Context, id string) (*Result, error) {
	return p.restart(ctx, id, core.StatusIndexed)
}

// SubmitRetry is the asynchronous form of Retry.
func (p *Pipeline) SubmitRetry(ctx context.Context, id string) (*core.Document, error) {
	return p.submitRestart(ctx, id, core.StatusFailed)
}

// SubmitReprocess is the asynchronous form of Reprocess.
func (p *Pipeline) SubmitReprocess(ctx context.Context, id string) (*core.Document, error) {
	return p.submitRestart(ctx, id, core.StatusIndexed)
}

func (p *Pipeline) restart(ctx context.Context, id string, from core.DocumentStatus) (*Result, error) {
	doc, release, err := p.beginRestart(ctx, id, from)
	if err != nil {
		return nil, err
	}
	defer release()
	return p.run(ctx, doc), nil
}

func (p *Pipeline) submitRestart(ctx context.Context, id string, from core.DocumentStatus) (*core.Document, error) {
	doc, release, err := p.beginRestart(ctx, id, from)
	if err != nil {
		return nil, err
	}
	return p.submit(ctx, doc, release)
}

func (p *Pipeline) submit(ctx context.Context, doc *core.Document, release func()) (*core.Document, error) {
	// Registered before the pool picks the run up so Cancel can reach it at once.
	runCtx, done := p.register(context.WithoutCancel(ctx), doc.Id)

	p.wg.Add(1)
	err := p.pool.Submit(func() {
		defer p.wg.Done()
		defer release()
		defer done()
		p.execute(runCtx, doc)
	})
	if err != nil {
		p.wg.Done()
		done()
		failErr := fmt.Errorf("submitting run: %w", err)
		p.finishFailed(context.WithoutCancel(ctx), &runState{doc: doc}, "submit", failErr)
		release()
		return nil, failErr
	}
	return doc, nil
}

// Cancel stops the in-flight run for id, which then ends failed with
// ErrCanceled as its cause. It reports whether a run was found.
func (p *Pipeline) Cancel(id string) bool {
	p.mu.Lock()
	cancel, ok := p.runs[id]
	p.mu.Unlock()
	if ok {
		p.logger.Info("cancelling run", "document_id", id)
		cancel(ErrCanceled)
	}
	return ok
}

// Running reports whether a run for id is in flight in this pipeline.
func (p *Pipeline) Running(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.runs[id]
	return ok
}

// Release cancels in-flight runs, waits for them to record their failure
// and releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, cancel := range p.runs {
		cancel(ErrShutdown)
	}
	p.mu.Unlock()

	p.wg.Wait()
	if p.pool != nil {
		p.pool.Release()
	}
}

// begin validates req, takes the document lock and moves the document to
// processing, creating it first if it does not exist.
func (p *Pipeline) begin(ctx context.Context, req Request) (*core.Document, func(), error) {
	doc := req.document()
	if err := core.ValidateDocument(doc); err != nil {
		return nil, nil, err
	}
	return p.acquire(ctx, doc.Id, func(ctx context.Context) (*core.Document, error) {
		existing, err := p.tracker.Get(ctx, doc.Id)
		switch {
		case errors.Is(err, core.ErrNotFound):
			if _, err := p.tracker.Create(ctx, doc); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
				return nil, err
			}
		case err != nil:
			return nil, err
		case existing.UserId != doc.UserId:
			return nil, &core.ValidationError{Field: "user id", Reason: "does not match the existing document"}
		}
		return p.tracker.Start(ctx, doc.Id)
	})
}

func (p *Pipeline) beginRestart(ctx context.Context, id string, from core.DocumentStatus) (*core.Document, func(), error) {
	if id == "" {
		return nil, nil, &core.ValidationError{Field: "document id", Reason: "is required"}
	}
	return p.acquire(ctx, id, func(ctx context.Context) (*core.Document, error) {
		return p.tracker.Restart(ctx, id, from)
	})
}

// acquire takes the lock for id and applies transition under it. On success
// the lock is held until the returned release func is called.
func (p *Pipeline) acquire(ctx context.Context, id string, transition func(context.Context) (*core.Document, error)) (*core.Document, func(), error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, nil, ErrPipelineClosed
	}

	unlock, err := p.locker.TryAcquire(ctx, id)
	if errors.Is(err, lock.ErrLocked) {
		return nil, nil, fmt.Errorf("%w: %s", ErrAlreadyProcessing, id)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("locking document %s: %w", id, err)
	}
	release := func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			p.logger.Warn("releasing document lock", "document_id", id, "err", err)
		}
	}

	doc, err := transition(ctx)
	var te *status.TransitionError
	if errors.As(err, &te) && te.From == core.StatusProcessing {
		// Live runs hold the lock, so this one has no owner left.
		doc, err = p.reclaim(ctx, id, transition)
	}
	if err != nil {
		release()
		return nil, nil, err
	}
	return doc, release, nil
}

// reclaim records an orphaned processing document as failed with
// ErrInterrupted and then moves it back to processing. The caller must hold
// the document lock.
func (p *Pipeline) reclaim(ctx context.Context, id string, transition func(context.Context) (*core.Document, error)) (*core.Document, error) {
	p.logger.Warn("reclaiming interrupted run", "document_id", id)
	if _, err := p.tracker.Fail(ctx, id, ErrInterrupted.Error()); err != nil {
		return nil, err
	}
	doc, err := transition(ctx)
	var te *status.TransitionError
	if errors.As(err, &te) && te.From == core.StatusFailed {
		return p.tracker.Restart(ctx, id, core.StatusFailed)
	}
	return doc, err
}

// register derives the run context for id and makes it cancellable through
// Cancel. The returned func unregisters the run.
func (p *Pipeline) register(parent context.Context, id string) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	stopTimer := func() {}
	if p.timeouts.Run > 0 {
		timer := time.AfterFunc(p.timeouts.Run, func() { cancel(ErrRunTimeout) })
		stopTimer = func() { timer.Stop() }
	}

	p.mu.Lock()
	p.runs[id] = cancel
	if p.closed {
		cancel(ErrShutdown)
	}
	p.mu.Unlock()

	return ctx, func() {
		stopTimer()
		p.mu.Lock()
		delete(p.runs, id)
		p.mu.Unlock()
		cancel(nil)
	}
}

// run executes a run synchronously for an already started document.
func (p *Pipeline) run(ctx context.Context, doc *core.Document) *Result {
	runCtx, done := p.register(ctx, doc.Id)
	defer done()
	return p.execute(runCtx, doc)
}

func (p *Pipeline) statusContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), p.timeouts.Status)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
