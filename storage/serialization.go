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


package storage

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/docvec/core"
)

// Wire format versions. Bump when a field is added.
const (
	documentFormatV1 = 1
	recordFormatV1   = 1
)

// encoder appends mus-encoded values to a pre-sized buffer.
type encoder struct {
	buf []byte
	n   int
}

func (e *encoder) int(v int)       { e.n += varint.Int.Marshal(v, e.buf[e.n:]) }
func (e *encoder) int64(v int64)   { e.n += varint.Int64.Marshal(v, e.buf[e.n:]) }
func (e *encoder) string(v string) { e.n += ord.String.Marshal(v, e.buf[e.n:]) }
func (e *encoder) float32(v float32) {
	e.n += varint.Uint32.Marshal(math.Float32bits(v), e.buf[e.n:])
}

// decoder reads mus-encoded values and remembers the first error.
type decoder struct {
	buf []byte
	n   int
	err error
}

func (d *decoder) int() int {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int.Unmarshal(d.buf[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *decoder) int64() int64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(d.buf[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *decoder) string() string {
	if d.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(d.buf[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *decoder) float32() float32 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Uint32.Unmarshal(d.buf[d.n:])
	d.n += n
	d.err = err
	return math.Float32frombits(v)
}

func (d *decoder) finish(what string) error {
	if d.err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSerializationFailed, what, d.err)
	}
	if d.n != len(d.buf) {
		return fmt.Errorf("%w: %s: %d trailing bytes", ErrSerializationFailed, what, len(d.buf)-d.n)
	}
	return nil
}

// recoverTruncated converts decoder panics on short input into ErrTruncatedData.
func recoverTruncated(what string, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %s: %v", ErrTruncatedData, what, r)
	}
}

func timeToMicros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func microsToTime(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMicro(v).UTC()
}

func documentSize(doc *core.Document) int {
	return varint.Int.Size(documentFormatV1) +
		ord.String.Size(doc.Id) +
		ord.String.Size(doc.UserId) +
		ord.String.Size(doc.Name) +
		ord.String.Size(doc.FileType) +
		varint.Int64.Size(doc.FileSize) +
		ord.String.Size(doc.FilePath) +
		ord.String.Size(doc.SourceURL) +
		ord.String.Size(string(doc.Status)) +
		varint.Int.Size(doc.Progress) +
		ord.String.Size(doc.ErrorMessage) +
		varint.Int.Size(doc.ChunkCount) +
		varint.Int64.Size(timeToMicros(doc.CreatedAt)) +
		varint.Int64.Size(timeToMicros(doc.UpdatedAt))
}

// MarshalDocument serializes a Document to bytes.
func MarshalDocument(doc *core.Document) []byte {
	e := &encoder{buf: make([]byte, documentSize(doc))}
	e.int(documentFormatV1)
	e.string(doc.Id)
	e.string(doc.UserId)
	e.string(doc.Name)
	e.string(doc.FileType)
	e.int64(doc.FileSize)
	e.string(doc.FilePath)
	e.string(doc.SourceURL)
	e.string(string(doc.Status))
	e.int(doc.Progress)
	e.string(doc.ErrorMessage)
	e.int(doc.ChunkCount)
	e.int64(timeToMicros(doc.CreatedAt))
	e.int64(timeToMicros(doc.UpdatedAt))
	return e.buf[:e.n]
}

// UnmarshalDocument deserializes a Document from bytes.
func UnmarshalDocument(data []byte) (doc *core.Document, err error) {
	defer recoverTruncated("document", &err)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: document: empty input", ErrTruncatedData)
	}

	d := &decoder{buf: data}
	if v := d.int(); d.err == nil && v != documentFormatV1 {
		return nil, fmt.Errorf("%w: document: unknown format %d", ErrSerializationFailed, v)
	}

	doc = &core.Document{}
	doc.Id = d.string()
	doc.UserId = d.string()
	doc.Name = d.string()
	doc.FileType = d.string()
	doc.FileSize = d.int64()
	doc.FilePath = d.string()
	doc.SourceURL = d.string()
	doc.Status = core.DocumentStatus(d.string())
	doc.Progress = d.int()
	doc.ErrorMessage = d.string()
	doc.ChunkCount = d.int()
	doc.CreatedAt = microsToTime(d.int64())
	doc.UpdatedAt = microsToTime(d.int64())

	if err := d.finish("document"); err != nil {
		return nil, err
	}
	return doc, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func recordSize(rec *core.Record, keys []string) int {
	size := varint.Int.Size(recordFormatV1) +
		ord.String.Size(rec.Id) +
		varint.Int.Size(len(rec.Vector))
	for _, v := range rec.Vector {
		size += varint.Uint32.Size(math.Float32bits(v))
	}
	size += varint.Int.Size(len(keys))
	for _, k := range keys {
		size += ord.String.Size(k) + ord.String.Size(rec.Metadata[k])
	}
	return size
}

// MarshalRecord serializes a vector Record to bytes.
// Metadata keys are written in sorted order so equal records encode identically.
func MarshalRecord(rec *core.Record) []byte {
	keys := sortedKeys(rec.Metadata)
	e := &encoder{buf: make([]byte, recordSize(rec, keys))}
	e.int(recordFormatV1)
	e.string(rec.Id)
	e.int(len(rec.Vector))
	for _, v := range rec.Vector {
		e.float32(v)
	}
	e.int(len(keys))
	for _, k := range keys {
		e.string(k)
		e.string(rec.Metadata[k])
	}
	return e.buf[:e.n]
}

// UnmarshalRecord deserializes a vector Record from bytes.
func UnmarshalRecord(data []byte) (rec *core.Record, err error) {
	defer recoverTruncated("record", &err)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: record: empty input", ErrTruncatedData)
	}

	d := &decoder{buf: data}
	if v := d.int(); d.err == nil && v != recordFormatV1 {
		return nil, fmt.Errorf("%w: record: unknown format %d", ErrSerializationFailed, v)
	}

	rec = &core.Record{}
	rec.Id = d.string()

	dims := d.int()
	if d.err == nil && (dims < 0 || dims > len(data)) {
		return nil, fmt.Errorf("%w: record: bad vector length %d", ErrSerializationFailed, dims)
	}
	if dims > 0 {
		rec.Vector = make([]float32, dims)
		for i := range rec.Vector {
			rec.Vector[i] = d.float32()
		}
	}

	count := d.int()
	if d.err == nil && (count < 0 || count > len(data)) {
		return nil, fmt.Errorf("%w: record: bad metadata count %d", ErrSerializationFailed, count)
	}
	if count > 0 {
		rec.Metadata = make(map[string]string, count)
		for i := 0; i < count; i++ {
			k := d.string()
			rec.Metadata[k] = d.string()
		}
	}

	if err := d.finish("record"); err != nil {
		return nil, err
	}
	return rec, nil
}
