package blob

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FSStore {
	t.Helper()
	s, err := NewFSStore(filepath.Join(t.TempDir(), "blobs"), nil)
	require.NoError(t, err)
	return s
}

func TestFSStore_PutOpenDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Put(ctx, "u1/report.txt", strings.NewReader("contents")))

	rc, err := s.Open(ctx, "u1/report.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "contents", string(data))

	require.NoError(t, s.Put(ctx, "u1/report.txt", strings.NewReader("replaced")))
	data, err = os.ReadFile(filepath.Join(s.Root(), "u1", "report.txt"))
	require.NoError(t, err)
	assert.Equal(t, "replaced", string(data))

	require.NoError(t, s.Delete(ctx, "u1/report.txt"))
	_, err = s.Open(ctx, "u1/report.txt")
	assert.ErrorIs(t, err, os.ErrNotExist)

	assert.NoError(t, s.Delete(ctx, "u1/report.txt"), "deleting a missing blob is fine")
}

func TestFSStore_RejectsEscapingPaths(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, p := range []string{"", "  ", ".", "../outside.txt", "a/../../outside.txt"} {
		assert.ErrorIs(t, s.Put(ctx, p, strings.NewReader("x")), ErrInvalidPath, p)
		assert.ErrorIs(t, s.Delete(ctx, p), ErrInvalidPath, p)
	}
}

func TestFSStore_URL(t *testing.T) {
	s := newTestStore(t)

	u, err := s.URL("u1/a.md")
	require.NoError(t, err)
	assert.Equal(t, "file://"+filepath.ToSlash(filepath.Join(s.Root(), "u1", "a.md")), u)
}

func TestNewFSStore_RequiresRoot(t *testing.T) {
	_, err := NewFSStore("", nil)
	assert.ErrorIs(t, err, ErrInvalidPath)
}
