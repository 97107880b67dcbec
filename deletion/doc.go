// Package deletion removes a document and every vector derived from it.
//
// A Cascade deletes the document's own vector record, then pages through
// the chunk records carrying its document_id and deletes them in batches,
// and only then drops the document row. Deleting an id that is already gone
// succeeds. Blob cleanup is best-effort and never fails the cascade.
package deletion
