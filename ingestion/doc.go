// Package ingestion turns source documents into stored chunk vectors.
//
// A Pipeline run moves one document through four sequential stages:
//   - fetch the source text (progress 10)
//   - split it into chunks (progress 30)
//   - embed the chunks in batches (progress 50 to 90)
//   - store chunk and document vector records, then mark the document indexed (100)
//
// Stage errors never escape a run. They are recorded on the document, which
// ends failed, and returned in the Result. Only invocation errors, such as a
// malformed request or a run already in flight, are returned directly and
// nothing is mutated when they are.
//
// At most one run exists per document id. Runs may be cancelled, and a
// cancelled run always ends failed.
package ingestion
