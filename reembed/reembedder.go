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


package reembed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/docvec/core"
	"github.com/poiesic/docvec/ingestion"
	"github.com/poiesic/docvec/storage"
)

// Config holds configuration for a reindex.
type Config struct {
	// ReportInterval is how often to report progress (number of documents)
	ReportInterval int

	// IncludeFailed retries failed documents as well as reprocessing indexed ones
	IncludeFailed bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ReportInterval: 1,
	}
}

// Reprocessor restarts ingestion for a stored document.
type Reprocessor interface {
	Reprocess(ctx context.Context, id string) (*ingestion.Result, error)
	Retry(ctx context.Context, id string) (*ingestion.Result, error)
}

var _ Reprocessor = (*ingestion.Pipeline)(nil)

// Summary counts what a reindex did.
type Summary struct {
	Total   int
	Indexed int
	Failed  int
	Skipped int
}

func (s Summary) done() int {
	return s.Indexed + s.Failed + s.Skipped
}

// Reembedder re-runs ingestion over stored documents.
type Reembedder struct {
	docs     storage.DocumentRepository
	pipeline Reprocessor
	config   *Config
	progress io.Writer
	logger   *slog.Logger
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(docs storage.DocumentRepository, pipeline Reprocessor, config *Config, progress io.Writer) (*Reembedder, error) {
	if docs == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if pipeline == nil {
		return nil, ErrPipelineRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}
	return &Reembedder{
		docs:     docs,
		pipeline: pipeline,
		config:   config,
		progress: progress,
		logger:   slog.Default().With("component", "reembed"),
	}, nil
}

// Run reindexes the documents owned by userID, or every document when
// userID is empty. Per-document failures are counted, not returned; the
// error is non-nil only when listing fails or ctx ends.
func (r *Reembedder) Run(ctx context.Context, userID string) (*Summary, error) {
	all, err := r.docs.ListDocuments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	var selected []*core.Document
	for _, doc := range all {
		if doc.Status == core.StatusIndexed || (r.config.IncludeFailed && doc.Status == core.StatusFailed) {
			selected = append(selected, doc)
		}
	}

	if len(selected) == 0 {
		fmt.Fprintf(r.progress, "No documents to reindex\n")
		return &Summary{}, nil
	}

	fmt.Fprintf(r.progress, "Starting reindex of %d documents\n", len(selected))
	tracker := NewProgressTracker(r.progress, len(selected), r.config.ReportInterval)
	tracker.Start()
	stop := func(err error) (*Summary, error) {
		tracker.Finish()
		summary := tracker.Summary()
		return &summary, err
	}

	for _, doc := range selected {
		if err := ctx.Err(); err != nil {
			return stop(err)
		}

		var result *ingestion.Result
		if doc.Status == core.StatusFailed {
			result, err = r.pipeline.Retry(ctx, doc.Id)
		} else {
			result, err = r.pipeline.Reprocess(ctx, doc.Id)
		}

		switch {
		case err != nil:
			// Claimed by another run, deleted or changed since listing.
			tracker.Record(OutcomeSkipped)
			r.logger.Info("skipping document", "document_id", doc.Id, "err", err)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return stop(err)
			}
		case result.Success:
			tracker.Record(OutcomeIndexed)
		default:
			tracker.Record(OutcomeFailed)
			r.logger.Warn("reindex failed", "document_id", doc.Id, "err", result.Err)
		}
	}

	summary, _ := stop(nil)
	fmt.Fprintf(r.progress, "Reindex complete. %d indexed, %d failed, %d skipped in %v\n",
		summary.Indexed, summary.Failed, summary.Skipped, tracker.Elapsed().Round(time.Millisecond))
	return summary, nil
}
