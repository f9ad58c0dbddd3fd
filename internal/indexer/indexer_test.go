package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"tagstore/internal/common"
	"tagstore/internal/identity"
	"tagstore/internal/storage"
)

func xattrDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	probe := filepath.Join(dir, ".xattr-probe")
	require.NoError(t, os.WriteFile(probe, nil, 0o644))
	if err := unix.Setxattr(probe, "user.tagstore.probe", []byte("1"), 0); err != nil {
		t.Skipf("filesystem does not support user xattrs: %v", err)
	}
	require.NoError(t, os.Remove(probe))
	return dir
}

func newIndexer(t *testing.T, patterns []string) (*Indexer, *storage.Store) {
	t.Helper()
	s, err := storage.Create(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s, identity.NewService(), patterns), s
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestIndexTree(t *testing.T) {
	root := xattrDir(t)
	writeTree(t, root, map[string]string{
		"cat.png":     "x",
		"raw/cat.raw": "y",
	})

	ix, s := newIndexer(t, nil)
	result, err := ix.IndexTree(context.Background(), root)
	require.NoError(t, err)

	// root, cat.png, raw, raw/cat.raw
	assert.Equal(t, 4, result.Indexed)
	assert.Equal(t, 0, result.Skipped)

	rec, err := s.GetContentByPath(context.Background(), filepath.Join(root, "raw"))
	require.NoError(t, err)
	assert.Equal(t, storage.KindFolder, rec.Kind)
}

func TestIndexTreeIsIdempotent(t *testing.T) {
	root := xattrDir(t)
	writeTree(t, root, map[string]string{"cat.png": "x"})

	ix, s := newIndexer(t, nil)
	ctx := context.Background()

	first, err := ix.IndexTree(ctx, root)
	require.NoError(t, err)
	require.Equal(t, 2, first.Indexed)

	second, err := ix.IndexTree(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Indexed)
	assert.Equal(t, 2, second.Skipped)

	// The identity survives the re-run.
	rec, err := s.GetContentByPath(ctx, filepath.Join(root, "cat.png"))
	require.NoError(t, err)
	id, err := identity.NewService().Retrieve(filepath.Join(root, "cat.png"))
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)
}

func TestIndexTreeHonorsIgnorePatterns(t *testing.T) {
	root := xattrDir(t)
	writeTree(t, root, map[string]string{
		"cat.png":        "x",
		".DS_Store":      "junk",
		"cache/blob.bin": "z",
	})

	ix, s := newIndexer(t, []string{".DS_Store", "cache/"})
	result, err := ix.IndexTree(context.Background(), root)
	require.NoError(t, err)

	// root + cat.png indexed; .DS_Store and the cache dir ignored, and
	// nothing under an ignored dir is visited.
	assert.Equal(t, 2, result.Indexed)
	assert.Equal(t, 2, result.Ignored)

	// The trailing-slash pattern keeps the directory itself out of the
	// index, not just its children.
	_, err = s.GetContentByPath(context.Background(), filepath.Join(root, "cache"))
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestIndexTreeRejectsFileRoot(t *testing.T) {
	root := xattrDir(t)
	writeTree(t, root, map[string]string{"cat.png": "x"})

	ix, _ := newIndexer(t, nil)
	_, err := ix.IndexTree(context.Background(), filepath.Join(root, "cat.png"))
	assert.ErrorIs(t, err, common.ErrInvalidPath)
}

func TestDeindex(t *testing.T) {
	root := xattrDir(t)
	writeTree(t, root, map[string]string{"cat.png": "x"})
	path := filepath.Join(root, "cat.png")

	ix, s := newIndexer(t, nil)
	ctx := context.Background()
	_, err := ix.IndexOne(ctx, path)
	require.NoError(t, err)

	require.NoError(t, ix.Deindex(ctx, path))

	_, err = s.GetContentByPath(ctx, path)
	assert.ErrorIs(t, err, common.ErrNotFound)
	id, err := identity.NewService().Retrieve(path)
	require.NoError(t, err)
	assert.Empty(t, id)

	err = ix.Deindex(ctx, path)
	assert.ErrorIs(t, err, common.ErrNotFound)
}
