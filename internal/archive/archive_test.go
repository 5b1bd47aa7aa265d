package archive_test

import (
	"context"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/ipmap/core/internal/archive"
	"github.com/ipmap/core/internal/geoipdb"
	"github.com/ipmap/core/internal/ipaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = "16843008,16843263,US,CA,,Mountain View,,37.4056,-122.0775,\n"

func newSingleDB(t *testing.T) (db *geoipdb.SingleDatabase) {
	t.Helper()

	db = geoipdb.NewSingleDatabase(ipaddr.V4)
	require.NoError(t, geoipdb.ReadCSV(strings.NewReader(sampleCSV), ipaddr.V4, true, db))

	return db
}

func TestCreateGenericOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	db := newSingleDB(t)

	r, err := archive.CreateGeneric(dir, archive.FileSource("dbip.csv"), db)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, archive.SourceFile, r.Source().Kind)
	assert.FileExists(t, r.Path())

	info, ok := r.Get(netip.MustParseAddr("1.1.1.0"))
	require.True(t, ok)
	assert.Equal(t, "Mountain View", info.City)
	assert.Equal(t, "US", info.Country)

	reopened, err := archive.Open(r.Path())
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, r.Checksum(), reopened.Checksum())

	info2, ok := reopened.Get(netip.MustParseAddr("1.1.1.0"))
	require.True(t, ok)
	assert.Equal(t, info, info2)
}

func TestCreateGenericAlreadyExists(t *testing.T) {
	dir := t.TempDir()
	db := newSingleDB(t)

	r, err := archive.CreateGeneric(dir, archive.DbIPCombined, db)
	require.NoError(t, err)
	defer r.Close()

	_, err = archive.CreateGeneric(dir, archive.DbIPCombined, db)
	assert.ErrorIs(t, err, archive.ErrAlreadyExists)
}

func TestCreateCombinedRoundTrip(t *testing.T) {
	dir := t.TempDir()

	db := geoipdb.NewCombinedDatabase()
	require.NoError(t, geoipdb.ReadCSVCombined(strings.NewReader(sampleCSV), ipaddr.V4, true, db))

	r, err := archive.CreateCombined(dir, archive.Geolite2Combined, db)
	require.NoError(t, err)
	defer r.Close()

	info, ok := r.Get(netip.MustParseAddr("1.1.1.0"))
	require.True(t, ok)
	assert.Equal(t, "Mountain View", info.City)

	_, ok = r.Get(netip.MustParseAddr("::1"))
	assert.False(t, ok)
}

func TestOpenRejectsCorruptedChecksum(t *testing.T) {
	dir := t.TempDir()
	db := newSingleDB(t)

	r, err := archive.CreateGeneric(dir, archive.FileSource("x.csv"), db)
	require.NoError(t, err)
	path := r.Path()
	require.NoError(t, r.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[0] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = archive.Open(path)
	assert.ErrorIs(t, err, archive.ErrChecksumMismatch)
}

func TestOpenRejectsBadChecksumName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "not-a-number.res")
	require.NoError(t, os.WriteFile(path, []byte("whatever"), 0o644))

	_, err := archive.Open(path)
	assert.ErrorIs(t, err, archive.ErrBadChecksumName)
}

func TestScanFindsCreatedArchives(t *testing.T) {
	dir := t.TempDir()
	db := newSingleDB(t)

	r, err := archive.CreateGeneric(dir, archive.FileSource("a.csv"), db)
	require.NoError(t, err)
	defer r.Close()

	entries, err := archive.Scan(context.Background(), dir, nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NoError(t, entries[0].Err)
	assert.Equal(t, r.Checksum(), entries[0].Checksum)
	require.NotNil(t, entries[0].Resource)
	defer entries[0].Resource.Close()

	skipped, err := archive.Scan(context.Background(), dir, func(checksum uint64) bool {
		return checksum == r.Checksum()
	})
	require.NoError(t, err)
	assert.Empty(t, skipped)
}

func TestScanMissingDirReturnsNil(t *testing.T) {
	entries, err := archive.Scan(context.Background(), "/nonexistent/does-not-exist", nil)
	require.NoError(t, err)
	assert.Nil(t, entries)
}

func TestScanIgnoresNonArchiveFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, strconv.Itoa(42)+".res.bak"), []byte("hi"), 0o644))

	entries, err := archive.Scan(context.Background(), dir, nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSourceStringFixedNames(t *testing.T) {
	assert.Equal(t, "DB-IP City", archive.DbIPCombined.String())
	assert.Equal(t, "Geolite2 City", archive.Geolite2Combined.String())
	assert.Equal(t, "dbip-city.csv", archive.FileSource("/var/cache/dbip-city.csv").String())
	assert.Equal(t, "dbip-city.csv", archive.FileSource(`C:\cache\dbip-city.csv`).String())
}
