package dbstate_test

import (
	"log/slog"
	"net/netip"
	"strings"
	"testing"

	"github.com/ipmap/core/internal/archive"
	"github.com/ipmap/core/internal/dbstate"
	"github.com/ipmap/core/internal/geoipdb"
	"github.com/ipmap/core/internal/ipaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleV4CSV = "16843008,16843263,US,CA,,Mountain View,,37.4056,-122.0775,\n"

func newManager(t *testing.T) (m *dbstate.Manager) {
	t.Helper()

	return dbstate.NewManager(&dbstate.Config{Logger: slog.Default()})
}

func newV4Archive(t *testing.T, dir, name string) (r *archive.FileResource) {
	t.Helper()

	db := geoipdb.NewSingleDatabase(ipaddr.V4)
	require.NoError(t, geoipdb.ReadCSV(strings.NewReader(sampleV4CSV), ipaddr.V4, true, db))

	r, err := archive.CreateGeneric(dir, archive.FileSource(name), db)
	require.NoError(t, err)

	return r
}

func TestManagerInsertSelectsAndLooksUp(t *testing.T) {
	m := newManager(t)
	dir := t.TempDir()

	r := newV4Archive(t, dir, "a.csv")
	defer r.Close()

	info, inserted := m.Insert(dbstate.KindV4, r)
	require.True(t, inserted)
	require.Len(t, info.V4.Loaded, 1)
	require.NotNil(t, info.V4.Selected)

	got, ok := m.Lookup(netip.MustParseAddr("1.1.1.0"))
	require.True(t, ok)
	assert.Equal(t, "Mountain View", got.City)
}

func TestManagerInsertDuplicateChecksumSkipped(t *testing.T) {
	m := newManager(t)
	dir := t.TempDir()

	r1 := newV4Archive(t, dir, "a.csv")
	defer r1.Close()

	info, inserted := m.Insert(dbstate.KindV4, r1)
	require.True(t, inserted)
	require.Len(t, info.V4.Loaded, 1)

	r2, err := archive.Open(r1.Path())
	require.NoError(t, err)
	defer r2.Close()

	info, inserted = m.Insert(dbstate.KindV4, r2)
	assert.False(t, inserted)
	assert.Len(t, info.V4.Loaded, 1)
}

func TestManagerRemoveReselectsAndDeletes(t *testing.T) {
	m := newManager(t)
	dir := t.TempDir()

	r1 := newV4Archive(t, dir, "a.csv")
	r2 := newV4Archive(t, dir, "b.csv")

	_, ok := m.Insert(dbstate.KindV4, r1)
	require.True(t, ok)
	_, ok = m.Insert(dbstate.KindV4, r2)
	require.True(t, ok)

	r2Path := r2.Path()

	info, err := m.Remove(dbstate.KindV4, r2.Checksum())
	require.NoError(t, err)
	require.Len(t, info.V4.Loaded, 1)
	require.NotNil(t, info.V4.Selected)
	assert.Equal(t, "a.csv", info.V4.Selected.Path)

	assert.NoFileExists(t, r2Path)

	info, err = m.Remove(dbstate.KindV4, r1.Checksum())
	require.NoError(t, err)
	assert.Empty(t, info.V4.Loaded)
	assert.Nil(t, info.V4.Selected)
}

func TestManagerSetSelected(t *testing.T) {
	m := newManager(t)
	dir := t.TempDir()

	r1 := newV4Archive(t, dir, "a.csv")
	r2 := newV4Archive(t, dir, "b.csv")
	defer r1.Close()
	defer r2.Close()

	_, _ = m.Insert(dbstate.KindV4, r1)
	_, _ = m.Insert(dbstate.KindV4, r2)

	info, ok := m.SetSelected(dbstate.KindV4, r1.Checksum())
	require.True(t, ok)
	require.NotNil(t, info.V4.Selected)
	assert.Equal(t, "a.csv", info.V4.Selected.Path)

	_, ok = m.SetSelected(dbstate.KindV4, 0xdeadbeef)
	assert.False(t, ok)
}

func TestManagerLookupFallsThroughToCombined(t *testing.T) {
	m := newManager(t)
	dir := t.TempDir()

	combined := geoipdb.NewCombinedDatabase()
	require.NoError(t, geoipdb.ReadCSVCombined(strings.NewReader(sampleV4CSV), ipaddr.V4, true, combined))

	r, err := archive.CreateCombined(dir, archive.DbIPCombined, combined)
	require.NoError(t, err)
	defer r.Close()

	_, ok := m.Insert(dbstate.KindCombined, r)
	require.True(t, ok)

	got, ok := m.Lookup(netip.MustParseAddr("1.1.1.0"))
	require.True(t, ok)
	assert.Equal(t, "Mountain View", got.City)
}
