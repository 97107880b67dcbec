package core

import (
	"math"
	"testing"
)

func approxEqual(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-5
}

func TestNormalizeVector(t *testing.T) {
	tests := []struct {
		name     string
		input    []float32
		expected []float32
	}{
		{"unit vector remains unchanged", []float32{1, 0, 0}, []float32{1, 0, 0}},
		{"scale non-unit vector", []float32{3, 4}, []float32{0.6, 0.8}},
		{"negative values", []float32{-1, 1}, []float32{-1 / float32(math.Sqrt2), 1 / float32(math.Sqrt2)}},
		{"zero vector", []float32{0, 0, 0}, []float32{0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeVector(tt.input)
			if len(got) != len(tt.expected) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.expected))
			}
			for i := range got {
				if !approxEqual(got[i], tt.expected[i]) {
					t.Errorf("got[%d] = %v, want %v", i, got[i], tt.expected[i])
				}
			}
		})
	}

	input := []float32{3, 4}
	NormalizeVector(input)
	if input[0] != 3 || input[1] != 4 {
		t.Error("NormalizeVector modified its input")
	}
}

func TestMeanVector(t *testing.T) {
	got := MeanVector([][]float32{{1, 0}, {0, 1}})
	want := float32(1 / math.Sqrt2)
	if !approxEqual(got[0], want) || !approxEqual(got[1], want) {
		t.Errorf("MeanVector = %v, want [%v %v]", got, want, want)
	}

	if MeanVector(nil) != nil {
		t.Error("expected nil for no vectors")
	}
	if MeanVector([][]float32{{1, 2}, {1}}) != nil {
		t.Error("expected nil for mismatched dimensions")
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"scaled", []float32{1, 2}, []float32{2, 4}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1, 0}, []float32{1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CosineSimilarity(tt.a, tt.b); !approxEqual(got, tt.want) {
				t.Errorf("CosineSimilarity = %v, want %v", got, tt.want)
			}
		})
	}
}
