package geoipdb_test

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/ipmap/core/internal/geoipdb"
	"github.com/ipmap/core/internal/ipaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectMMDBByExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.mmdb")
	require.NoError(t, os.WriteFile(path, []byte("not a real mmdb"), 0o600))

	d, err := geoipdb.Detect(path)
	require.NoError(t, err)
	assert.Equal(t, geoipdb.KindMMDB, d.Kind)
}

func TestDetectCSVNumericV4(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.csv")
	content := "16843008,16843263,US,CA,,Mountain View,,37.4056,-122.0775,\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	d, err := geoipdb.Detect(path)
	require.NoError(t, err)
	assert.Equal(t, geoipdb.KindCSV, d.Kind)
	assert.True(t, d.IsNum)
	assert.Equal(t, ipaddr.V4, d.Family)
}

func TestDetectCSVTextualV6(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.csv")
	content := "2001:2::,2001:2::ffff:ffff:ffff:ffff:ffff,US,CA,,City,,1.0,2.0,\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	d, err := geoipdb.Detect(path)
	require.NoError(t, err)
	assert.False(t, d.IsNum)
	assert.Equal(t, ipaddr.V6, d.Family)
}

func TestDetectCSVGzipWrapped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.csv.gz")

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte("16843008,16843263,US,CA,,Mountain View,,37.4056,-122.0775,\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	d, err := geoipdb.Detect(path)
	require.NoError(t, err)
	assert.Equal(t, geoipdb.KindCSV, d.Kind)
	assert.True(t, d.IsNum)
}

func TestDetectInvalidFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.csv")
	require.NoError(t, os.WriteFile(path, []byte("not,a,valid,address,file\n"), 0o600))

	_, err := geoipdb.Detect(path)
	assert.ErrorIs(t, err, geoipdb.ErrInvalidFormat)
}
