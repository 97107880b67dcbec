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


package chunking

import "unicode"

const (
	// DefaultMaxChunkSize is the chunk size used when none is configured.
	DefaultMaxChunkSize = 1000
	// DefaultOverlap is the overlap used when none is configured.
	DefaultOverlap = 100

	maxBreakWindow = 200
)

// Span is a half-open [Start, End) range of rune offsets into the source text.
type Span struct {
	Start int
	End   int
}

// Split divides text into ordered, overlapping chunks of at most maxChunkSize runes.
//
// Chunks end at a natural break when one is close to the size limit: a sentence
// terminator followed by whitespace is preferred, then whitespace, then a hard cut.
// Each chunk after the first starts overlap runes before the previous chunk ended,
// unless that would not move forward, in which case it starts where the previous
// chunk ended. When an early break would push the chunk count past
// ceil(len/(maxChunkSize-overlap))+1 the overlap shrinks instead.
// Empty text yields no chunks.
func Split(text string, maxChunkSize, overlap int) []string {
	runes := []rune(text)
	spans := spans(runes, maxChunkSize, overlap)
	if len(spans) == 1 {
		return []string{text}
	}
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = string(runes[s.Start:s.End])
	}
	return out
}

// Spans returns the rune ranges Split would produce for text.
func Spans(text string, maxChunkSize, overlap int) []Span {
	return spans([]rune(text), maxChunkSize, overlap)
}

func spans(runes []rune, maxChunkSize, overlap int) []Span {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}

	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= maxChunkSize {
		return []Span{{Start: 0, End: n}}
	}

	window := min(max(maxChunkSize/10, 1), maxBreakWindow)
	stride := maxChunkSize - overlap

	var out []Span
	start := 0
	for start < n {
		end := start + maxChunkSize
		if end >= n {
			out = append(out, Span{Start: start, End: n})
			break
		}

		// Chunk i+1 never starts before i*stride, which caps the chunk
		// count at ceil(n/stride)+1. The break is kept at or after that
		// floor so the next start never skips text.
		floor := 0
		if stride > 0 {
			floor = len(out) * stride
		}
		brk := findBreak(runes, max(start+1, floor), end, window)
		out = append(out, Span{Start: start, End: brk})

		next := max(brk-overlap, floor)
		if next <= start {
			next = brk
		}
		start = next
	}
	return out
}

// findBreak picks the end offset for a chunk whose hard limit is end. The
// result is never below lo. end is always < len(runes), so runes[end] is
// addressable.
func findBreak(runes []rune, lo, end, window int) int {
	lo = max(end-window, lo)

	for p := end; p >= lo; p-- {
		if isTerminator(runes[p-1]) && unicode.IsSpace(runes[p]) {
			return p
		}
	}
	for p := end; p >= lo; p-- {
		if unicode.IsSpace(runes[p]) {
			return p
		}
	}
	return end
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
