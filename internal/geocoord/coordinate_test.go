package geocoord_test

import (
	"testing"

	"github.com/ipmap/core/internal/geocoord"
	"github.com/stretchr/testify/assert"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	step := float32(2.5)

	for lat := -float32(90); lat < 90; lat += step {
		for lng := -float32(180); lng < 180; lng += step {
			in := geocoord.Coordinate{Lat: lat, Lng: lng}
			out := geocoord.Unpack(geocoord.Pack(in))

			latDiff := absF32(in.Lat - out.Lat)
			lngDiff := absF32(in.Lng - out.Lng)

			assert.Lessf(t, latDiff, geocoord.LatMaxError, "lat %v -> %v", in.Lat, out.Lat)
			assert.Lessf(t, lngDiff, geocoord.LngMaxError, "lng %v -> %v", in.Lng, out.Lng)
		}
	}
}

func TestPackClampsOutOfRange(t *testing.T) {
	p := geocoord.Pack(geocoord.Coordinate{Lat: 1000, Lng: -1000})
	out := geocoord.Unpack(p)

	assert.InDelta(t, 90, out.Lat, float64(geocoord.LatMaxError))
	assert.InDelta(t, -180, out.Lng, float64(geocoord.LngMaxError))
}

func TestCoordinateKeyDistinguishesValues(t *testing.T) {
	a := geocoord.Coordinate{Lat: 1, Lng: 2}
	b := geocoord.Coordinate{Lat: 1, Lng: 2}
	c := geocoord.Coordinate{Lat: 1, Lng: 3}

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestCountryCode(t *testing.T) {
	assert.Equal(t, "??", geocoord.CountryCode(0).String())
	assert.Equal(t, "??", geocoord.NewCountryCode(nil).String())
	assert.Equal(t, "??", geocoord.NewCountryCode([]byte("U")).String())
	assert.Equal(t, "US", geocoord.NewCountryCode([]byte("US")).String())
	assert.Equal(t, "US", geocoord.NewCountryCode([]byte("USA")).String())
}

func absF32(v float32) float32 {
	if v < 0 {
		return -v
	}

	return v
}
