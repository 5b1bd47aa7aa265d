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

func TestIngestCombinedConcurrentMergesBothFamilies(t *testing.T) {
	const v4Record = "16843008,16843263,US,CA,,Mountain View,,37.4056,-122.0775,\n"
	const v6Record = "2001:db8::,2001:db8::ffff,US,CA,,Mountain View,,37.4056,-122.0775,\n"

	v4 := geoipdb.Detection{
		Kind:   geoipdb.KindCSV,
		Family: ipaddr.V4,
		IsNum:  true,
		Reader: strings.NewReader(v4Record),
	}
	v6 := geoipdb.Detection{
		Kind:   geoipdb.KindCSV,
		Family: ipaddr.V6,
		IsNum:  false,
		Reader: strings.NewReader(v6Record),
	}

	db, err := geoipdb.IngestCombinedConcurrent(v4, v6, nil, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, db.IPv4Trie().Len())
	assert.Equal(t, 1, db.IPv6Trie().Len())

	infoV4, ok := db.Get(netip.MustParseAddr("1.1.1.0"))
	require.True(t, ok)
	assert.Equal(t, "Mountain View", infoV4.City)

	infoV6, ok := db.Get(netip.MustParseAddr("2001:db8::1"))
	require.True(t, ok)
	assert.Equal(t, "Mountain View", infoV6.City)

	// Both rows share one coordinate, so the shared location store must
	// have deduplicated them into a single entry regardless of which
	// ingest goroutine won the race to insert it first.
	assert.Equal(t, infoV4.Coordinate, infoV6.Coordinate)
}

func TestIngestCombinedConcurrentRejectsMixedFormats(t *testing.T) {
	v4 := geoipdb.Detection{Kind: geoipdb.KindCSV, Family: ipaddr.V4, Reader: strings.NewReader("")}
	v6 := geoipdb.Detection{Kind: geoipdb.KindMMDB, Family: ipaddr.V6}

	_, err := geoipdb.IngestCombinedConcurrent(v4, v6, nil, 0)
	assert.ErrorIs(t, err, geoipdb.ErrInvalidFormat)
}
