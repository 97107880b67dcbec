// Package fetch retrieves the raw text of a document from its source URL.
//
// http and https sources are downloaded; file sources are read from the local
// filesystem. PDF bodies are converted to plain text, everything else is
// treated as UTF-8 text.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// DefaultMaxBytes caps the size of a fetched body.
const DefaultMaxBytes = 64 << 20

var (
	// ErrUnsupportedScheme indicates a source URL scheme with no fetcher.
	ErrUnsupportedScheme = errors.New("unsupported source scheme")

	// ErrTooLarge indicates a source body larger than the configured cap.
	ErrTooLarge = errors.New("source too large")

	// ErrBadStatus indicates a non-2xx response from an http source.
	ErrBadStatus = errors.New("unexpected status")

	// ErrOutsideRoot indicates a file source outside the allowed root directory.
	ErrOutsideRoot = errors.New("path outside allowed root")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %s", e.URL, e.Status)
}

// Is reports whether target is ErrBadStatus.
func (e *StatusError) Is(target error) bool {
	return target == ErrBadStatus
}

// Fetcher returns the raw text at a source URL.
type Fetcher interface {
	Fetch(ctx context.Context, sourceURL string) (string, error)
}

// Option configures a Router.
type Option func(*Router) error

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) error {
		r.logger = logger
		return nil
	}
}

// WithScheme registers a fetcher for a URL scheme, replacing any default.
func WithScheme(scheme string, f Fetcher) Option {
	return func(r *Router) error {
		if f == nil {
			return fmt.Errorf("fetcher for %q cannot be nil", scheme)
		}
		r.fetchers[strings.ToLower(scheme)] = f
		return nil
	}
}

// Router dispatches a source URL to the fetcher registered for its scheme.
type Router struct {
	fetchers map[string]Fetcher
	logger   *slog.Logger
}

var _ Fetcher = (*Router)(nil)

// New creates a Router with http, https and file fetchers using default settings.
func New(opts ...Option) (*Router, error) {
	httpFetcher := NewHTTPFetcher()
	r := &Router{
		fetchers: map[string]Fetcher{
			"http":  httpFetcher,
			"https": httpFetcher,
			"file":  NewFileFetcher(""),
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "fetch")
	return r, nil
}

// Fetch returns the text at sourceURL.
func (r *Router) Fetch(ctx context.Context, sourceURL string) (string, error) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return "", fmt.Errorf("parsing source url: %w", err)
	}
	f, ok := r.fetchers[strings.ToLower(u.Scheme)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	text, err := f.Fetch(ctx, sourceURL)
	if err != nil {
		return "", err
	}
	r.logger.Debug("fetched source", "url", u.Redacted(), "bytes", len(text))
	return text, nil
}
