package storage

import (
	"context"
	"fmt"

	"github.com/poiesic/docvec/core"
)

// DefaultPageSize bounds how many ids a single filter query returns during
// a purge.
const DefaultPageSize = 1000

// DeleteMatching removes every record matching filter, querying at most
// pageSize ids at a time and deleting each page before fetching the next.
// It returns the number of ids deleted. An empty result is not an error.
func DeleteMatching(ctx context.Context, store VectorStore, filter core.Filter, pageSize int) (int, error) {
	if len(filter) == 0 {
		return 0, fmt.Errorf("%w: refusing to purge with an empty filter", ErrInvalidQuery)
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	deleted := 0
	for {
		matches, err := store.Query(ctx, QueryRequest{TopK: pageSize, Filter: filter})
		if err != nil {
			return deleted, fmt.Errorf("querying records to delete: %w", err)
		}
		if len(matches) == 0 {
			return deleted, nil
		}

		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.Record.Id
		}
		if err := store.Delete(ctx, ids...); err != nil {
			return deleted, fmt.Errorf("deleting %d records: %w", len(ids), err)
		}
		deleted += len(ids)

		if len(matches) < pageSize {
			return deleted, nil
		}
	}
}
