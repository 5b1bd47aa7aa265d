package triebitmap_test

import (
	"bytes"
	"net/netip"
	"testing"

	"github.com/ipmap/core/internal/geocoord"
	"github.com/ipmap/core/internal/ipaddr"
	"github.com/ipmap/core/internal/triebitmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveRoundTrip(t *testing.T) {
	tr := triebitmap.New[geocoord.PackedCoordinate](ipaddr.V4)

	entries := []struct {
		prefix string
		coord  geocoord.Coordinate
	}{
		{"1.0.8.0/21", geocoord.Coordinate{Lat: 37.4056, Lng: -122.0775}},
		{"8.8.8.0/24", geocoord.Coordinate{Lat: 37.386, Lng: -122.0838}},
		{"10.0.0.0/8", geocoord.Coordinate{Lat: 1, Lng: 2}},
	}

	for _, e := range entries {
		p := netip.MustParsePrefix(e.prefix)
		tr.Insert(p.Addr(), p.Bits(), geocoord.Pack(e.coord))
	}

	var buf bytes.Buffer
	require.NoError(t, triebitmap.WriteArchive(&buf, tr))

	at, err := triebitmap.OpenArchive(buf.Bytes())
	require.NoError(t, err)
	defer at.Close()

	assert.Equal(t, tr.Len(), at.Len())

	for _, e := range entries {
		p := netip.MustParsePrefix(e.prefix)

		wantValue, wantOK := tr.ExactMatch(p.Addr(), p.Bits())
		gotValue, gotOK := at.ExactMatch(p.Addr(), p.Bits())
		assert.Equal(t, wantOK, gotOK)
		assert.Equal(t, wantValue, gotValue)
	}

	probe := netip.MustParseAddr("8.8.8.8")
	wantAddr, wantLen, wantValue, wantOK := tr.LongestMatch(probe)
	gotAddr, gotLen, gotValue, gotOK := at.LongestMatch(probe)

	assert.Equal(t, wantOK, gotOK)
	assert.Equal(t, wantAddr, gotAddr)
	assert.Equal(t, wantLen, gotLen)
	assert.Equal(t, wantValue, gotValue)
}

func TestOpenArchiveRejectsTruncated(t *testing.T) {
	_, err := triebitmap.OpenArchive([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestOpenArchiveRejectsBadMagic(t *testing.T) {
	tr := triebitmap.New[geocoord.PackedCoordinate](ipaddr.V4)
	tr.Insert(netip.MustParseAddr("1.2.3.0"), 24, geocoord.PackedCoordinate{})

	var buf bytes.Buffer
	require.NoError(t, triebitmap.WriteArchive(&buf, tr))

	corrupted := buf.Bytes()
	corrupted[0] ^= 0xff

	_, err := triebitmap.OpenArchive(corrupted)
	assert.Error(t, err)
}
