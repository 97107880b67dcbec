package storage

import (
	"testing"
	"time"

	"github.com/poiesic/docvec/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalDocument(t *testing.T) {
	now := time.Date(2025, 3, 14, 15, 9, 26, 535000000, time.UTC)
	tests := []struct {
		name string
		doc  *core.Document
	}{
		{"minimal", &core.Document{Id: "d1", UserId: "u1", SourceURL: "file:///tmp/a.md", Status: core.StatusCreated}},
		{"failed with message", &core.Document{
			Id:           "d2",
			UserId:       "u1",
			Name:         "report.pdf",
			FileType:     "application/pdf",
			FileSize:     1 << 40,
			FilePath:     "users/u1/report.pdf",
			SourceURL:    "https://example.com/report.pdf",
			Status:       core.StatusFailed,
			Progress:     55,
			ErrorMessage: "embedding: connection refused",
			ChunkCount:   12,
			CreatedAt:    now,
			UpdatedAt:    now.Add(time.Minute),
		}},
		{"unicode", &core.Document{Id: "文書", UserId: "ユーザー", Name: "ñandú.txt", Status: core.StatusIndexed, Progress: 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := MarshalDocument(tt.doc)
			require.NotEmpty(t, data)

			decoded, err := UnmarshalDocument(data)
			require.NoError(t, err)
			assert.Equal(t, tt.doc, decoded)
		})
	}
}

func TestUnmarshalDocument_Invalid(t *testing.T) {
	valid := MarshalDocument(&core.Document{Id: "d1", UserId: "u1", Name: "name", Status: core.StatusCreated})

	tests := []struct {
		name string
		data []byte
	}{
		{"nil", nil},
		{"empty", []byte{}},
		{"truncated", valid[:len(valid)/2]},
		{"trailing bytes", append(append([]byte{}, valid...), 0x01)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalDocument(tt.data)
			assert.Error(t, err)
		})
	}
}

func TestMarshalUnmarshalRecord(t *testing.T) {
	chunk := core.NewChunkRecord(&core.Chunk{
		Id:         core.ChunkID("d1", 3),
		DocumentId: "d1",
		UserId:     "u1",
		Index:      3,
		Content:    "some chunk text",
		Embedding:  []float32{0.25, -0.5, 1e-9, 3.4e38},
	})

	tests := []struct {
		name string
		rec  core.Record
	}{
		{"chunk", chunk},
		{"no vector", core.Record{Id: "r1", Metadata: map[string]string{core.MetaRecordType: "message"}}},
		{"no metadata", core.Record{Id: "r2", Vector: []float32{1, 0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := UnmarshalRecord(MarshalRecord(&tt.rec))
			require.NoError(t, err)
			assert.Equal(t, tt.rec.Id, decoded.Id)
			assert.Equal(t, tt.rec.Vector, decoded.Vector)
			assert.Equal(t, tt.rec.Metadata, decoded.Metadata)
		})
	}
}

func TestMarshalRecord_Deterministic(t *testing.T) {
	a := core.Record{Id: "r", Metadata: map[string]string{"a": "1", "b": "2", "c": "3", "d": "4"}}
	first := MarshalRecord(&a)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, MarshalRecord(&a))
	}
}

func TestUnmarshalRecord_Invalid(t *testing.T) {
	valid := MarshalRecord(&core.Record{Id: "r", Vector: []float32{1, 2, 3}, Metadata: map[string]string{"k": "v"}})

	for _, data := range [][]byte{nil, {}, valid[:3], valid[:len(valid)-1]} {
		_, err := UnmarshalRecord(data)
		assert.Error(t, err)
	}
}
