package core

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a content-derived numeric identifier.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// ChunkID returns the stable vector record id for the chunk at index within a document.
// Rerunning the pipeline over the same document yields the same ids, so upserts overwrite.
// Chunk ids share the store with every other record, so they carry the full
// 128-bit digest.
func ChunkID(documentID string, index int) string {
	h, _ := blake2b.New(16, nil)
	fmt.Fprintf(h, "%s\x00%d", documentID, index)
	return fmt.Sprintf("chunk-%x", h.Sum(nil))
}

// DocumentStatus is the lifecycle state of a document.
type DocumentStatus string

const (
	// StatusCreated is the initial state before any pipeline run.
	StatusCreated DocumentStatus = "created"
	// StatusProcessing means a pipeline run owns the document.
	StatusProcessing DocumentStatus = "processing"
	// StatusIndexed means every chunk was embedded and stored.
	StatusIndexed DocumentStatus = "indexed"
	// StatusFailed means the last run ended with an error.
	StatusFailed DocumentStatus = "failed"
)

// IsTerminal reports whether no pipeline run is active for the status.
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusIndexed || s == StatusFailed
}

// ParseDocumentStatus converts a string to a DocumentStatus.
func ParseDocumentStatus(s string) (DocumentStatus, error) {
	switch DocumentStatus(s) {
	case StatusCreated, StatusProcessing, StatusIndexed, StatusFailed:
		return DocumentStatus(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Document is an uploaded source document and its ingestion state.
type Document struct {
	Id           string
	UserId       string
	Name         string
	FileType     string
	FileSize     int64
	FilePath     string // Blob storage path of the uploaded file, if any
	SourceURL    string // Where the pipeline fetches the raw text from
	Status       DocumentStatus
	Progress     int    // 0-100, only meaningful while processing
	ErrorMessage string // Set only when Status is failed
	ChunkCount   int    // Number of chunks stored by the last successful run
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Clone returns a copy of the document.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// Chunk is a contiguous slice of a document's text with its embedding.
type Chunk struct {
	Id         string
	DocumentId string
	UserId     string
	Index      int // Zero-based position within the document
	Content    string
	Embedding  []float32
}

// Conversation is a chat conversation sharing the vector store with documents.
type Conversation struct {
	Id     string
	UserId string
	Title  string
}

// Message is a single chat message sharing the vector store with documents.
type Message struct {
	Id             string
	ConversationId string
	UserId         string
	Role           string
	Content        string
}

// Match is a vector store query hit.
type Match struct {
	Record Record
	Score  float32
}
