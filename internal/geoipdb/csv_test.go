package geoipdb_test

import (
	"net/netip"
	"strings"
	"testing"

	"github.com/ipmap/core/internal/geoipdb"
	"github.com/ipmap/core/internal/ipaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSVNumeric(t *testing.T) {
	const record = "16843008,16843263,US,CA,,Mountain View,,37.4056,-122.0775,\n"

	db := geoipdb.NewSingleDatabase(ipaddr.V4)
	require.NoError(t, geoipdb.ReadCSV(strings.NewReader(record), ipaddr.V4, true, db))

	info, ok := db.Get(netip.MustParseAddr("1.1.1.0"))
	require.True(t, ok)

	assert.InDelta(t, 37.4056, info.Coordinate.Lat, 0.001)
	assert.InDelta(t, -122.0775, info.Coordinate.Lng, 0.001)
	assert.Equal(t, "Mountain View", info.City)
	assert.Equal(t, "Ca", info.Region)
	assert.Equal(t, "US", info.Country)

	_, ok = db.Get(netip.MustParseAddr("1.1.2.0"))
	assert.False(t, ok)
}

func TestReadCSVNotEnoughColumns(t *testing.T) {
	db := geoipdb.NewSingleDatabase(ipaddr.V4)
	err := geoipdb.ReadCSV(strings.NewReader("1,2,3\n"), ipaddr.V4, true, db)
	assert.ErrorIs(t, err, geoipdb.ErrNotEnoughColumns)
}

func TestReadCSVBadCoordinate(t *testing.T) {
	const record = "1,2,US,CA,,City,,notafloat,-122.0,\n"

	db := geoipdb.NewSingleDatabase(ipaddr.V4)
	err := geoipdb.ReadCSV(strings.NewReader(record), ipaddr.V4, true, db)
	assert.ErrorIs(t, err, geoipdb.ErrCoordinateParse)
}
