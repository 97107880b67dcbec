package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docvec/ai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultMaxInputBytes approximates the 8192 token input limit of OpenAI embedding models.
	DefaultMaxInputBytes = 32 * 1024
	// DefaultMaxAttempts is how many times a failing batch call is attempted.
	DefaultMaxAttempts = 3
	// DefaultRetryDelay is the base backoff between attempts.
	DefaultRetryDelay = 500 * time.Millisecond
)

// ProgressFunc is called after each batch completes with the number of
// completed batches and the total. Calls are serialized and done is
// strictly increasing. It is never called after the embed call has failed
// or been cancelled.
type ProgressFunc func(done, total int)

// Batcher converts texts into vectors in bounded-concurrency batches.
// Results are reassembled by input position, never by completion order.
type Batcher struct {
	embedder      ai.Embedder
	maxInputBytes int
	dimensions    int
	maxAttempts   int
	retryDelay    time.Duration
	callTimeout   time.Duration
	logger        *slog.Logger
	tracer        trace.Tracer

	dimsMu      sync.Mutex
	learnedDims int
}

// Option configures a Batcher.
type Option func(*Batcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Batcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		b.logger = logger
		return nil
	}
}

// WithMaxInputBytes sets the largest item accepted, in bytes.
// Default is DefaultMaxInputBytes.
func WithMaxInputBytes(n int) Option {
	return func(b *Batcher) error {
		if n <= 0 {
			return fmt.Errorf("%w: max input bytes must be positive", ErrInvalidBatchConfig)
		}
		b.maxInputBytes = n
		return nil
	}
}

// WithDimensions fixes the expected vector length.
// Default is zero: the length of the first vector received is enforced afterwards.
func WithDimensions(dims int) Option {
	return func(b *Batcher) error {
		if dims < 0 {
			return fmt.Errorf("%w: dimensions must not be negative", ErrInvalidBatchConfig)
		}
		b.dimensions = dims
		return nil
	}
}

// WithRetry sets the attempts per batch call and the base backoff delay.
// Default is DefaultMaxAttempts and DefaultRetryDelay.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(b *Batcher) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		b.maxAttempts = maxAttempts
		b.retryDelay = baseDelay
		return nil
	}
}

// WithCallTimeout bounds each provider call. Expiry counts as a failed attempt.
// Default is zero, meaning only the caller's context applies.
func WithCallTimeout(timeout time.Duration) Option {
	return func(b *Batcher) error {
		if timeout < 0 {
			return fmt.Errorf("%w: call timeout must not be negative", ErrInvalidBatchConfig)
		}
		b.callTimeout = timeout
		return nil
	}
}

// NewBatcher creates a Batcher over embedder.
func NewBatcher(embedder ai.Embedder, opts ...Option) (*Batcher, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	b := &Batcher{
		embedder:      embedder,
		maxInputBytes: DefaultMaxInputBytes,
		maxAttempts:   DefaultMaxAttempts,
		retryDelay:    DefaultRetryDelay,
		logger:        slog.Default(),
		tracer:        otel.Tracer("github.com/poiesic/docvec/embedding"),
	}

	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	b.logger = b.logger.With("component", "embedding-batcher")

	return b, nil
}

// Embed returns one vector per text, aligned with the input order.
// See EmbedWithProgress.
func (b *Batcher) Embed(ctx context.Context, texts []string, batchSize, concurrencyLimit int) ([][]float32, error) {
	return b.EmbedWithProgress(ctx, texts, batchSize, concurrencyLimit, nil)
}

// EmbedWithProgress partitions texts into consecutive batches of at most
// batchSize and dispatches up to concurrencyLimit of them at once.
//
// The call is all-or-nothing: if any batch fails, or ctx is cancelled, no
// vectors are returned. Remaining batches are not started after the first
// failure and results of batches still in flight are discarded. Every text
// is validated before the first provider call.
func (b *Batcher) EmbedWithProgress(ctx context.Context, texts []string, batchSize, concurrencyLimit int, progress ProgressFunc) ([][]float32, error) {
	if batchSize <= 0 || concurrencyLimit <= 0 {
		return nil, fmt.Errorf("%w: batch size %d, concurrency limit %d", ErrInvalidBatchConfig, batchSize, concurrencyLimit)
	}
	if err := b.validate(texts); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	batches := partition(len(texts), batchSize)
	b.logger.Debug("embedding texts", "texts", len(texts), "batches", len(batches), "concurrency", concurrencyLimit)

	pool, err := ants.NewPool(concurrencyLimit)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var (
		results  = make([][]float32, len(texts))
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		done     int
	)

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
		cancel(err)
	}

	for i, span := range batches {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}

			vectors, err := b.embedBatch(ctx, i, texts[span.start:span.end])
			if err != nil {
				fail(fmt.Errorf("batch %d of %d: %w", i+1, len(batches), err))
				return
			}

			mu.Lock()
			defer mu.Unlock()
			// Discard results once the call has failed or been cancelled.
			if ctx.Err() != nil {
				return
			}
			copy(results[span.start:span.end], vectors)
			done++
			if progress != nil {
				progress(done, len(batches))
			}
		})
		if submitErr != nil {
			wg.Done()
			fail(submitErr)
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if ctx.Err() != nil {
		return nil, context.Cause(ctx)
	}
	return results, nil
}

func (b *Batcher) embedBatch(ctx context.Context, index int, texts []string) ([][]float32, error) {
	ctx, span := b.tracer.Start(ctx, "embedding.batch", trace.WithAttributes(
		attribute.Int("batch.index", index),
		attribute.Int("batch.size", len(texts)),
	))
	defer span.End()

	var vectors [][]float32
	err := RetryWithBackoff(ctx, func() error {
		callCtx := ctx
		if b.callTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, b.callTimeout)
			defer cancel()
		}

		out, err := b.embedder.EmbedTexts(callCtx, texts)
		if err != nil {
			return err
		}
		if err := b.checkResponse(texts, out); err != nil {
			return err
		}
		vectors = out
		return nil
	}, b.maxAttempts, b.retryDelay)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.logger.Error("embedding batch failed", "batch", index, "size", len(texts), "err", err)
		return nil, err
	}
	return vectors, nil
}

func (b *Batcher) validate(texts []string) error {
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("%w: item %d is empty", ErrInvalidInput, i)
		}
		if len(text) > b.maxInputBytes {
			return fmt.Errorf("%w: item %d is %d bytes, limit is %d", ErrInvalidInput, i, len(text), b.maxInputBytes)
		}
	}
	return nil
}

func (b *Batcher) checkResponse(texts []string, vectors [][]float32) error {
	if len(vectors) != len(texts) {
		return fmt.Errorf("%w: expected %d vectors, received %d", ErrMalformedResponse, len(texts), len(vectors))
	}

	b.dimsMu.Lock()
	defer b.dimsMu.Unlock()

	want := b.dimensions
	if want == 0 {
		want = b.learnedDims
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("%w: vector %d is empty", ErrMalformedResponse, i)
		}
		if want == 0 {
			want = len(v)
		}
		if len(v) != want {
			// Dimension mismatches are not retried.
			return Permanent(fmt.Errorf("%w: vector %d has %d dimensions, expected %d", ErrMalformedResponse, i, len(v), want))
		}
	}
	if b.dimensions == 0 && b.learnedDims == 0 {
		b.learnedDims = want
	}
	return nil
}

type batchSpan struct {
	start, end int
}

func partition(n, size int) []batchSpan {
	out := make([]batchSpan, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		out = append(out, batchSpan{start: start, end: min(start+size, n)})
	}
	return out
}
