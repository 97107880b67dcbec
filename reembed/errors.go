package reembed

import "errors"

var (
	// ErrDocumentRepositoryRequired is returned when no document repository is supplied.
	ErrDocumentRepositoryRequired = errors.New("document repository is required")

	// ErrPipelineRequired is returned when no pipeline is supplied.
	ErrPipelineRequired = errors.New("pipeline is required")
)
