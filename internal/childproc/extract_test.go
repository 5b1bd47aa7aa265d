package childproc_test

import (
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/ipmap/core/internal/childproc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureBinaryWritesWhenMissing(t *testing.T) {
	content := []byte("pretend-binary-v1")
	sum := sha256.Sum256(content)

	embedded := fstest.MapFS{"child/ipmap-child": &fstest.MapFile{Data: content}}

	destDir := t.TempDir()
	path, err := childproc.EnsureBinary(embedded, "child/ipmap-child", "ipmap-child", destDir, sum)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, "ipmap-child"), path)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestEnsureBinarySkipsWriteWhenHashMatches(t *testing.T) {
	content := []byte("pretend-binary-v1")
	sum := sha256.Sum256(content)
	embedded := fstest.MapFS{"child/ipmap-child": &fstest.MapFile{Data: content}}

	destDir := t.TempDir()
	path := filepath.Join(destDir, "ipmap-child")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	before, err := os.Stat(path)
	require.NoError(t, err)

	_, err = childproc.EnsureBinary(embedded, "child/ipmap-child", "ipmap-child", destDir, sum)
	require.NoError(t, err)

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
	assert.Equal(t, os.FileMode(0o755), after.Mode().Perm())
}

func TestEnsureBinaryRewritesOnHashMismatch(t *testing.T) {
	oldContent := []byte("old")
	newContent := []byte("new-and-different")
	sum := sha256.Sum256(newContent)
	embedded := fstest.MapFS{"child/ipmap-child": &fstest.MapFile{Data: newContent}}

	destDir := t.TempDir()
	path := filepath.Join(destDir, "ipmap-child")
	require.NoError(t, os.WriteFile(path, oldContent, 0o644))

	_, err := childproc.EnsureBinary(embedded, "child/ipmap-child", "ipmap-child", destDir, sum)
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, newContent, got)
}
