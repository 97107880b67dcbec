// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"fmt"
	"maps"
	"strconv"
)

// RecordType discriminates the logical entity a vector record represents.
type RecordType string

const (
	RecordTypeDocument     RecordType = "document"
	RecordTypeChunk        RecordType = "chunk"
	RecordTypeConversation RecordType = "conversation"
	RecordTypeMessage      RecordType = "message"
)

// Metadata keys written on vector records.
const (
	MetaRecordType     = "record_type"
	MetaDocumentID     = "document_id"
	MetaUserID         = "user_id"
	MetaChunkIndex     = "chunk_index"
	MetaContent        = "content"
	MetaName           = "name"
	MetaFileType       = "file_type"
	MetaChunkCount     = "chunk_count"
	MetaConversationID = "conversation_id"
	MetaRole           = "role"
	MetaTitle          = "title"
)

// Record is the physical storage unit shared by every entity in the vector store.
// Metadata[MetaRecordType] is the discriminant; use the typed accessors
// instead of reading Metadata directly.
type Record struct {
	Id       string
	Vector   []float32
	Metadata map[string]string
}

// Type returns the record's discriminant.
func (r Record) Type() RecordType {
	return RecordType(r.Metadata[MetaRecordType])
}

// NewChunkRecord builds the vector record for a chunk.
func NewChunkRecord(c *Chunk) Record {
	return Record{
		Id:     c.Id,
		Vector: c.Embedding,
		Metadata: map[string]string{
			MetaRecordType: string(RecordTypeChunk),
			MetaDocumentID: c.DocumentId,
			MetaUserID:     c.UserId,
			MetaChunkIndex: strconv.Itoa(c.Index),
			MetaContent:    c.Content,
		},
	}
}

// NewDocumentRecord builds the document-level vector record.
func NewDocumentRecord(d *Document, vector []float32) Record {
	return Record{
		Id:     d.Id,
		Vector: vector,
		Metadata: map[string]string{
			MetaRecordType: string(RecordTypeDocument),
			MetaDocumentID: d.Id,
			MetaUserID:     d.UserId,
			MetaName:       d.Name,
			MetaFileType:   d.FileType,
			MetaChunkCount: strconv.Itoa(d.ChunkCount),
		},
	}
}

// NewConversationRecord builds the vector record for a conversation.
func NewConversationRecord(c *Conversation, vector []float32) Record {
	return Record{
		Id:     c.Id,
		Vector: vector,
		Metadata: map[string]string{
			MetaRecordType: string(RecordTypeConversation),
			MetaUserID:     c.UserId,
			MetaTitle:      c.Title,
		},
	}
}

// NewMessageRecord builds the vector record for a chat message.
func NewMessageRecord(m *Message, vector []float32) Record {
	return Record{
		Id:     m.Id,
		Vector: vector,
		Metadata: map[string]string{
			MetaRecordType:     string(RecordTypeMessage),
			MetaConversationID: m.ConversationId,
			MetaUserID:         m.UserId,
			MetaRole:           m.Role,
			MetaContent:        m.Content,
		},
	}
}

func (r Record) expect(t RecordType) error {
	if got := r.Type(); got != t {
		return fmt.Errorf("%w: record %s is %q, not %q", ErrRecordType, r.Id, got, t)
	}
	return nil
}

// Chunk returns the chunk variant of the record.
func (r Record) Chunk() (*Chunk, error) {
	if err := r.expect(RecordTypeChunk); err != nil {
		return nil, err
	}
	index, err := strconv.Atoi(r.Metadata[MetaChunkIndex])
	if err != nil {
		return nil, fmt.Errorf("%w: chunk %s has bad index: %w", ErrInvalidRecord, r.Id, err)
	}
	return &Chunk{
		Id:         r.Id,
		DocumentId: r.Metadata[MetaDocumentID],
		UserId:     r.Metadata[MetaUserID],
		Index:      index,
		Content:    r.Metadata[MetaContent],
		Embedding:  r.Vector,
	}, nil
}

// Document returns the document variant of the record.
// Only the fields carried in vector metadata are populated.
func (r Record) Document() (*Document, error) {
	if err := r.expect(RecordTypeDocument); err != nil {
		return nil, err
	}
	doc := &Document{
		Id:       r.Id,
		UserId:   r.Metadata[MetaUserID],
		Name:     r.Metadata[MetaName],
		FileType: r.Metadata[MetaFileType],
	}
	if v, ok := r.Metadata[MetaChunkCount]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: document %s has bad chunk count: %w", ErrInvalidRecord, r.Id, err)
		}
		doc.ChunkCount = n
	}
	return doc, nil
}

// Conversation returns the conversation variant of the record.
func (r Record) Conversation() (*Conversation, error) {
	if err := r.expect(RecordTypeConversation); err != nil {
		return nil, err
	}
	return &Conversation{
		Id:     r.Id,
		UserId: r.Metadata[MetaUserID],
		Title:  r.Metadata[MetaTitle],
	}, nil
}

// Message returns the message variant of the record.
func (r Record) Message() (*Message, error) {
	if err := r.expect(RecordTypeMessage); err != nil {
		return nil, err
	}
	return &Message{
		Id:             r.Id,
		ConversationId: r.Metadata[MetaConversationID],
		UserId:         r.Metadata[MetaUserID],
		Role:           r.Metadata[MetaRole],
		Content:        r.Metadata[MetaContent],
	}, nil
}

// Filter is a conjunction of equality predicates over record metadata.
// An empty filter matches every record.
type Filter map[string]string

// ChunkFilter selects every chunk record of a document.
func ChunkFilter(documentID string) Filter {
	return Filter{
		MetaDocumentID: documentID,
		MetaRecordType: string(RecordTypeChunk),
	}
}

// With returns a copy of the filter with an additional predicate.
func (f Filter) With(key, value string) Filter {
	out := make(Filter, len(f)+1)
	maps.Copy(out, f)
	out[key] = value
	return out
}

// Matches reports whether metadata satisfies every predicate.
func (f Filter) Matches(metadata map[string]string) bool {
	for k, v := range f {
		got, ok := metadata[k]
		if !ok || got != v {
			return false
		}
	}
	return true
}
