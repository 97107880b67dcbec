// Package mock provides test doubles for the ai package interfaces.
//
// MockEmbedder produces deterministic unit vectors derived from an FNV hash
// of the input text, so identical text always embeds identically. Tests inject
// behavior through EmbedTextFunc and EmbedTextsFunc, for example to delay one
// batch, fail a specific call, or return malformed results:
//
//	embedder := mock.NewMockEmbedder()
//	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return nil, errors.New("provider unavailable")
//	}
//
// Recorded calls are available through Calls and CallCount.
package mock
