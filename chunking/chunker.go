package chunking

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidChunkSize indicates a non-positive maximum chunk size.
	ErrInvalidChunkSize = errors.New("max chunk size must be positive")

	// ErrInvalidOverlap indicates a negative overlap.
	ErrInvalidOverlap = errors.New("overlap must not be negative")

	// ErrUnknownStrategy indicates an unsupported chunking strategy name.
	ErrUnknownStrategy = errors.New("unknown chunking strategy")
)

// Strategy selects how chunk boundaries are chosen.
type Strategy string

const (
	// StrategyFixed splits on size with natural break points.
	StrategyFixed Strategy = "fixed"
	// StrategyHeaders splits on markdown headings first, then on size within long sections.
	StrategyHeaders Strategy = "headers"
)

// ParseStrategy converts a configuration value into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyFixed:
		return StrategyFixed, nil
	case StrategyHeaders:
		return StrategyHeaders, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Chunker applies a configured strategy to document text.
type Chunker struct {
	maxChunkSize int
	overlap      int
	strategy     Strategy
}

// Option configures a Chunker.
type Option func(*Chunker) error

// WithMaxChunkSize sets the maximum chunk length in runes.
// Default is DefaultMaxChunkSize.
func WithMaxChunkSize(size int) Option {
	return func(c *Chunker) error {
		if size <= 0 {
			return fmt.Errorf("%w: %d", ErrInvalidChunkSize, size)
		}
		c.maxChunkSize = size
		return nil
	}
}

// WithOverlap sets how many runes consecutive chunks share.
// Default is DefaultOverlap.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) error {
		if overlap < 0 {
			return fmt.Errorf("%w: %d", ErrInvalidOverlap, overlap)
		}
		c.overlap = overlap
		return nil
	}
}

// WithStrategy sets the boundary strategy.
// Default is StrategyFixed.
func WithStrategy(strategy Strategy) Option {
	return func(c *Chunker) error {
		if strategy != StrategyFixed && strategy != StrategyHeaders {
			return fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
		}
		c.strategy = strategy
		return nil
	}
}

// New creates a Chunker.
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{
		maxChunkSize: DefaultMaxChunkSize,
		overlap:      DefaultOverlap,
		strategy:     StrategyFixed,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MaxChunkSize returns the configured maximum chunk size.
func (c *Chunker) MaxChunkSize() int {
	return c.maxChunkSize
}

// Chunk splits text according to the configured strategy.
// Chunks holding only whitespace are dropped, so whitespace-only text
// yields no chunks.
func (c *Chunker) Chunk(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	if c.strategy == StrategyFixed {
		return dropBlank(Split(text, c.maxChunkSize, c.overlap))
	}

	var out []string
	for _, section := range SplitByHeaders(text) {
		body := section.String()
		if strings.TrimSpace(body) == "" {
			continue
		}
		out = append(out, dropBlank(Split(body, c.maxChunkSize, c.overlap))...)
	}
	return out
}

func dropBlank(chunks []string) []string {
	out := chunks[:0]
	for _, chunk := range chunks {
		if strings.TrimSpace(chunk) != "" {
			out = append(out, chunk)
		}
	}
	return out
}
