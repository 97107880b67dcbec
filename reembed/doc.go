// Package reembed re-runs ingestion over documents that are already stored,
// typically after the embedding model or chunking settings change.
//
// Indexed documents are reprocessed and, when requested, failed documents
// are retried. Documents are handled one at a time; each run still embeds
// its chunks concurrently. A document that is already being processed
// elsewhere is skipped rather than waited on.
package reembed
