package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagstore/internal/common"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TAGSTORE_CONFIG_DIR", dir)
	return dir
}

func TestCreateLoadRoundTrip(t *testing.T) {
	dir := isolate(t)

	p, err := Create("photos")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "photos.db"), p.StorePath)
	assert.Equal(t, "error", p.Logging)
	assert.NotEmpty(t, p.Ignores)

	got, err := Load("photos")
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = Create("photos")
	assert.ErrorIs(t, err, common.ErrExists)
}

func TestLoadMissingProfile(t *testing.T) {
	isolate(t)
	_, err := Load("nope")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestLoadAppliesDefaultsToSparseFile(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sparse.yaml"), []byte("logging: debug\n"), 0o600))

	p, err := Load("sparse")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, p.LogLevel())
	assert.Equal(t, filepath.Join(dir, "sparse.db"), p.StorePath)
}

func TestLogLevelNoneDisables(t *testing.T) {
	p := &Profile{Logging: "none"}
	assert.Equal(t, logrus.PanicLevel, p.LogLevel())
}

func TestList(t *testing.T) {
	isolate(t)

	names, err := List()
	require.NoError(t, err)
	assert.Empty(t, names)

	_, err = Create("a")
	require.NoError(t, err)
	_, err = Create("b")
	require.NoError(t, err)

	names, err = List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, names)
}
