// Package status owns the document lifecycle state machine.
//
// The Tracker is the only writer of a document's status, progress and error
// message. Every transition is an atomic compare-and-set against the stored
// document, which is also what makes pipeline runs single-flight: a document
// can only enter processing from created, failed or indexed.
//
//	created ──Start──▶ processing(10) ──Advance──▶ processing(p' ≥ p)
//	                        │
//	                        ├──Complete──▶ indexed(100)
//	                        └──Fail──────▶ failed(msg)
//	failed | indexed ──Restart──▶ processing(0)
package status
