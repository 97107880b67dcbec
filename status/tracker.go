package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/docvec/core"
	"github.com/poiesic/docvec/storage"
)

// Progress checkpoints.
const (
	StartProgress   = 10
	RestartProgress = 0
	DoneProgress    = 100
)

var (
	// ErrInvalidTransition indicates a transition the state machine does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrStaleUpdate indicates a progress update for a document that is not
	// processing, or one that would move progress backwards.
	ErrStaleUpdate = errors.New("stale progress update")

	// ErrInvalidProgress indicates a progress value outside [0, 100].
	ErrInvalidProgress = errors.New("progress out of range")
)

// TransitionError describes a rejected transition.
type TransitionError struct {
	Id   string
	From core.DocumentStatus
	To   core.DocumentStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: document %s cannot move from %s to %s", ErrInvalidTransition, e.Id, e.From, e.To)
}

// Is reports whether target is ErrInvalidTransition.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Listener observes every successful status write.
type Listener func(doc *core.Document)

// Option configures a Tracker.
type Option func(*Tracker) error

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) error {
		t.logger = logger
		return nil
	}
}

// WithListener registers a listener called after each successful write.
// Listeners run synchronously on the writer's goroutine.
func WithListener(fn Listener) Option {
	return func(t *Tracker) error {
		if fn == nil {
			return errors.New("listener cannot be nil")
		}
		t.listeners = append(t.listeners, fn)
		return nil
	}
}

// Tracker drives documents through the status state machine.
type Tracker struct {
	repo      storage.DocumentRepository
	logger    *slog.Logger
	listeners []Listener
}

// NewTracker creates a Tracker persisting through repo.
func NewTracker(repo storage.DocumentRepository, opts ...Option) (*Tracker, error) {
	if repo == nil {
		return nil, errors.New("document repository is required")
	}
	t := &Tracker{
		repo:   repo,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	t.logger = t.logger.With("component", "status")
	return t, nil
}

// Create stores a new document in the created state.
// Returns a *core.ValidationError for missing identifiers or a bad source URL.
func (t *Tracker) Create(ctx context.Context, doc *core.Document) (*core.Document, error) {
	if err := core.ValidateDocument(doc); err != nil {
		return nil, err
	}
	doc = doc.Clone()
	doc.Status = core.StatusCreated
	doc.Progress = 0
	doc.ErrorMessage = ""
	doc.ChunkCount = 0

	created, err := t.repo.CreateDocument(ctx, doc)
	if err != nil {
		return nil, err
	}
	t.logger.Debug("document created", "document_id", created.Id)
	t.notify(created)
	return created, nil
}

// Get returns the current state of a document.
func (t *Tracker) Get(ctx context.Context, id string) (*core.Document, error) {
	return t.repo.GetDocument(ctx, id)
}

// Start moves a created document to processing(10).
func (t *Tracker) Start(ctx context.Context, id string) (*core.Document, error) {
	return t.transition(ctx, id, func(doc *core.Document) error {
		if doc.Status != core.StatusCreated {
			return &TransitionError{Id: id, From: doc.Status, To: core.StatusProcessing}
		}
		doc.Status = core.StatusProcessing
		doc.Progress = StartProgress
		return nil
	})
}

// Restart moves a document that is currently in from (failed or indexed)
// back to processing(0), clearing the previous error.
func (t *Tracker) Restart(ctx context.Context, id string, from core.DocumentStatus) (*core.Document, error) {
	if !from.IsTerminal() {
		return nil, fmt.Errorf("%w: restart must start from failed or indexed, not %s", ErrInvalidTransition, from)
	}
	return t.transition(ctx, id, func(doc *core.Document) error {
		if doc.Status != from {
			return &TransitionError{Id: id, From: doc.Status, To: core.StatusProcessing}
		}
		doc.Status = core.StatusProcessing
		doc.Progress = RestartProgress
		doc.ErrorMessage = ""
		return nil
	})
}

// Advance records a progress checkpoint for a processing document.
// Progress may stay equal but never decrease.
func (t *Tracker) Advance(ctx context.Context, id string, progress int) (*core.Document, error) {
	if progress < 0 || progress > DoneProgress {
		return nil, fmt.Errorf("%w: %d", ErrInvalidProgress, progress)
	}
	return t.transition(ctx, id, func(doc *core.Document) error {
		if doc.Status != core.StatusProcessing {
			return fmt.Errorf("%w: document %s is %s", ErrStaleUpdate, id, doc.Status)
		}
		if progress < doc.Progress {
			return fmt.Errorf("%w: document %s progress %d would drop to %d", ErrStaleUpdate, id, doc.Progress, progress)
		}
		doc.Progress = progress
		return nil
	})
}

// Complete moves a processing document to indexed(100).
func (t *Tracker) Complete(ctx context.Context, id string, chunkCount int) (*core.Document, error) {
	return t.transition(ctx, id, func(doc *core.Document) error {
		if doc.Status != core.StatusProcessing {
			return &TransitionError{Id: id, From: doc.Status, To: core.StatusIndexed}
		}
		doc.Status = core.StatusIndexed
		doc.Progress = DoneProgress
		doc.ErrorMessage = ""
		doc.ChunkCount = chunkCount
		return nil
	})
}

// Fail moves a processing document to failed, recording message.
// Progress is left where the run stopped.
func (t *Tracker) Fail(ctx context.Context, id string, message string) (*core.Document, error) {
	if message == "" {
		message = "unknown error"
	}
	return t.transition(ctx, id, func(doc *core.Document) error {
		if doc.Status != core.StatusProcessing {
			return &TransitionError{Id: id, From: doc.Status, To: core.StatusFailed}
		}
		doc.Status = core.StatusFailed
		doc.ErrorMessage = message
		return nil
	})
}

func (t *Tracker) transition(ctx context.Context, id string, apply func(doc *core.Document) error) (*core.Document, error) {
	doc, err := t.repo.UpdateDocument(ctx, id, apply)
	if err != nil {
		return nil, err
	}
	t.logger.Debug("status changed", "document_id", id, "status", doc.Status, "progress", doc.Progress)
	t.notify(doc)
	return doc, nil
}

func (t *Tracker) notify(doc *core.Document) {
	for _, fn := range t.listeners {
		fn(doc.Clone())
	}
}
