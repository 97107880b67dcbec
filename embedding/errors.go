package embedding

import "errors"

var (
	// ErrEmbedderRequired indicates a nil embedder was passed to NewBatcher.
	ErrEmbedderRequired = errors.New("embedder is required")

	// ErrInvalidBatchConfig indicates a non-positive batch size or concurrency limit.
	ErrInvalidBatchConfig = errors.New("invalid batch configuration")

	// ErrInvalidInput indicates an item that violates provider limits.
	// It is reported before any provider call is made.
	ErrInvalidInput = errors.New("invalid embedding input")

	// ErrMalformedResponse indicates the provider returned the wrong number
	// of vectors, an empty vector, or a vector of unexpected length.
	ErrMalformedResponse = errors.New("malformed embedding response")

	// ErrInvalidMaxAttempts indicates a non-positive retry attempt count.
	ErrInvalidMaxAttempts = errors.New("max attempts must be greater than 0")
)
