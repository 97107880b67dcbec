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


package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/docvec/core"
	"github.com/poiesic/docvec/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Progress checkpoints recorded when a stage begins.
const (
	fetchProgress    = 10
	chunkProgress    = 30
	embedProgress    = 50
	embedEndProgress = 90
)

// runState carries intermediate results from one stage to the next.
type runState struct {
	doc     *core.Document
	logger  *slog.Logger
	text    string
	chunks  []string
	vectors [][]float32
}

// stage is one step of a run.
type stage struct {
	name     string
	progress int
	// upstream stages call external collaborators; their errors are
	// reported as core.UpstreamError.
	upstream bool
	timeout  func(Timeouts) time.Duration
	run      func(p *Pipeline, ctx context.Context, st *runState) error
}

var stages = []stage{
	{
		name:     "fetch",
		progress: fetchProgress,
		upstream: true,
		timeout:  func(t Timeouts) time.Duration { return t.Fetch },
		run:      (*Pipeline).fetchStage,
	},
	{
		name:     "chunk",
		progress: chunkProgress,
		run:      (*Pipeline).chunkStage,
	},
	{
		name:     "embed",
		progress: embedProgress,
		upstream: true,
		timeout:  func(t Timeouts) time.Duration { return t.Embed },
		run:      (*Pipeline).embedStage,
	},
	{
		name:     "store",
		progress: embedEndProgress,
		upstream: true,
		timeout:  func(t Timeouts) time.Duration { return t.Store },
		run:      (*Pipeline).storeStage,
	},
}

// execute drives a started document through every stage and leaves it
// indexed or failed.
func (p *Pipeline) execute(ctx context.Context, doc *core.Document) *Result {
	ctx, span := p.telemetry.tracer.Start(ctx, "ingestion.run", trace.WithAttributes(
		attribute.String("document.id", doc.Id),
	))
	defer span.End()

	st := &runState{doc: doc, logger: p.logger.With("document_id", doc.Id)}
	st.logger.Info("run started", "source", doc.SourceURL)
	started := time.Now()

	name, err := p.runStages(ctx, st)
	if err == nil {
		final, completeErr := p.complete(ctx, st)
		if completeErr == nil {
			span.SetAttributes(attribute.Int("chunks", len(st.chunks)))
			span.SetStatus(codes.Ok, "")
			p.telemetry.recordRun(ctx, outcomeIndexed, len(st.chunks))
			st.logger.Info("run indexed", "chunks", len(st.chunks), "duration", time.Since(started))
			return &Result{Success: true, Document: final}
		}
		name, err = "finalize", completeErr
	}

	err = failureCause(ctx, name, err)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	outcome := outcomeFailed
	if errors.Is(err, ErrCanceled) || errors.Is(err, ErrShutdown) {
		outcome = outcomeCanceled
	}
	p.telemetry.recordRun(ctx, outcome, 0)
	return p.finishFailed(ctx, st, name, err)
}

func (p *Pipeline) runStages(ctx context.Context, st *runState) (string, error) {
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return s.name, err
		}
		if _, err := p.tracker.Advance(ctx, st.doc.Id, s.progress); err != nil {
			return s.name, fmt.Errorf("recording progress: %w", err)
		}
		if err := p.runStage(ctx, s, st); err != nil {
			return s.name, err
		}
	}
	return "", nil
}

func (p *Pipeline) runStage(ctx context.Context, s stage, st *runState) error {
	ctx, span := p.telemetry.tracer.Start(ctx, "ingestion."+s.name)
	defer span.End()
	started := time.Now()

	var timeout time.Duration
	if s.timeout != nil {
		timeout = s.timeout(p.timeouts)
	}
	stageCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	err := s.run(p, stageCtx, st)
	if err != nil {
		if s.upstream {
			err = core.Upstream(s.name, err)
		} else {
			err = fmt.Errorf("%s: %w", s.name, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	p.telemetry.recordStage(ctx, s.name, started, err)
	if err == nil {
		st.logger.Debug("stage complete", "stage", s.name, "duration", time.Since(started))
	}
	return err
}

func (p *Pipeline) fetchStage(ctx context.Context, st *runState) error {
	text, err := p.fetcher.Fetch(ctx, st.doc.SourceURL)
	if err != nil {
		return err
	}
	st.text = text
	return nil
}

func (p *Pipeline) chunkStage(_ context.Context, st *runState) error {
	if strings.TrimSpace(st.text) == "" {
		return ErrEmptyDocument
	}
	st.chunks = p.chunker.Chunk(st.text)
	if len(st.chunks) == 0 {
		return ErrEmptyDocument
	}
	st.text = ""
	st.logger.Debug("document chunked", "chunks", len(st.chunks))
	return nil
}

func (p *Pipeline) embedStage(ctx context.Context, st *runState) error {
	id := st.doc.Id
	progress := func(done, total int) {
		pct := embedProgress + (embedEndProgress-embedProgress)*done/total
		if _, err := p.tracker.Advance(ctx, id, pct); err != nil && ctx.Err() == nil {
			p.abort(id, fmt.Errorf("%w: %w", ErrLostOwnership, err))
		}
	}

	vectors, err := p.embedder.EmbedWithProgress(ctx, st.chunks, p.batchSize, p.concurrencyLimit, progress)
	if err != nil {
		return err
	}
	if len(vectors) != len(st.chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(st.chunks))
	}
	st.vectors = vectors
	return nil
}

// storeStage replaces whatever chunk records the document had with the new
// set and writes the document's own record.
func (p *Pipeline) storeStage(ctx context.Context, st *runState) error {
	doc := st.doc
	if _, err := storage.DeleteMatching(ctx, p.vectors, core.ChunkFilter(doc.Id), storage.DefaultPageSize); err != nil {
		return fmt.Errorf("removing previous chunks: %w", err)
	}

	records := make([]core.Record, len(st.chunks))
	for i, content := range st.chunks {
		records[i] = core.NewChunkRecord(&core.Chunk{
			Id:         core.ChunkID(doc.Id, i),
			DocumentId: doc.Id,
			UserId:     doc.UserId,
			Index:      i,
			Content:    content,
			Embedding:  st.vectors[i],
		})
	}
	for start := 0; start < len(records); start += p.upsertBatchSize {
		group := records[start:min(start+p.upsertBatchSize, len(records))]
		if err := p.vectors.Upsert(ctx, group...); err != nil {
			return fmt.Errorf("upserting chunks %d-%d: %w", start, start+len(group)-1, err)
		}
	}

	summary := doc.Clone()
	summary.ChunkCount = len(st.chunks)
	if err := p.vectors.Upsert(ctx, core.NewDocumentRecord(summary, core.MeanVector(st.vectors))); err != nil {
		return fmt.Errorf("upserting document record: %w", err)
	}
	return nil
}

func (p *Pipeline) complete(ctx context.Context, st *runState) (*core.Document, error) {
	if cause := context.Cause(ctx); cause != nil {
		return nil, cause
	}
	statusCtx, cancel := p.statusContext(ctx)
	defer cancel()
	return p.tracker.Complete(statusCtx, st.doc.Id, len(st.chunks))
}

// finishFailed removes the run's vectors and records err on the document.
func (p *Pipeline) finishFailed(ctx context.Context, st *runState, stage string, err error) *Result {
	id := st.doc.Id
	p.logger.Error("run failed", "document_id", id, "stage", stage, "err", err)

	statusCtx, cancel := p.statusContext(ctx)
	defer cancel()

	if purgeErr := p.purge(statusCtx, id); purgeErr != nil {
		p.logger.Warn("removing vectors of failed run", "document_id", id, "err", purgeErr)
	}

	if errors.Is(err, core.ErrNotFound) {
		p.logger.Warn("document removed during run", "document_id", id)
		return &Result{Err: err}
	}
	failed, failErr := p.tracker.Fail(statusCtx, id, err.Error())
	if failErr != nil {
		p.logger.Error("recording failure", "document_id", id, "err", failErr)
		return &Result{Err: err}
	}
	return &Result{Document: failed, Err: err}
}

// purge deletes every chunk record and the document record for id.
func (p *Pipeline) purge(ctx context.Context, id string) error {
	if _, err := storage.DeleteMatching(ctx, p.vectors, core.ChunkFilter(id), storage.DefaultPageSize); err != nil {
		return err
	}
	return p.vectors.Delete(ctx, id)
}

func (p *Pipeline) abort(id string, cause error) {
	p.mu.Lock()
	cancel, ok := p.runs[id]
	p.mu.Unlock()
	if ok {
		cancel(cause)
	}
}

// failureCause replaces err with the run's cancellation cause when the run
// context was cancelled, so the recorded message names the cancellation
// rather than whichever call noticed it.
func failureCause(ctx context.Context, stage string, err error) error {
	cause := context.Cause(ctx)
	if cause == nil {
		return err
	}
	if errors.Is(cause, context.Canceled) {
		cause = ErrCanceled
	}
	return fmt.Errorf("%w during %s", cause, stage)
}
