package ingestion

import "errors"

var (
	// ErrTrackerRequired is returned when a status tracker is not provided.
	ErrTrackerRequired = errors.New("status tracker required")

	// ErrVectorStoreRequired is returned when a vector store is not provided.
	ErrVectorStoreRequired = errors.New("vector store required")

	// ErrFetcherRequired is returned when a source fetcher is not provided.
	ErrFetcherRequired = errors.New("fetcher required")

	// ErrChunkerRequired is returned when a chunker is not provided.
	ErrChunkerRequired = errors.New("chunker required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrAlreadyProcessing is returned when a run for the same document is in flight.
	ErrAlreadyProcessing = errors.New("document is already processing")

	// ErrPipelineClosed is returned by calls made after Release.
	ErrPipelineClosed = errors.New("pipeline is closed")

	// ErrCanceled is the failure cause of a run stopped by Cancel.
	ErrCanceled = errors.New("ingestion canceled")

	// ErrShutdown is the failure cause of a run stopped by Release.
	ErrShutdown = errors.New("pipeline shut down")

	// ErrRunTimeout is the failure cause of a run that exceeded its overall timeout.
	ErrRunTimeout = errors.New("ingestion timed out")

	// ErrEmptyDocument indicates the fetched source contained no text.
	ErrEmptyDocument = errors.New("document contains no text")

	// ErrLostOwnership indicates the document changed under a running pipeline,
	// for example because it was deleted.
	ErrLostOwnership = errors.New("document changed during ingestion")

	// ErrInterrupted is recorded on a document whose run ended without
	// recording a result, such as when the process was killed mid-run.
	ErrInterrupted = errors.New("ingestion interrupted")
)
