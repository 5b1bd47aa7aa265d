// Package geocoord holds the small, fixed-size value types shared between
// the geolocation ingest pipeline and the trie's zero-copy archive form:
// [Coordinate], its lossy-packed [PackedCoordinate], and [CountryCode].
package geocoord

import "math"

// latMax and lngMax bound the valid coordinate domain.
const (
	latMax = 90.0
	lngMax = 180.0

	// LatMaxError and LngMaxError bound the precision lost by packing a
	// Coordinate into a PackedCoordinate and back.
	LatMaxError = 0.00139
	LngMaxError = 0.00277
)

// Coordinate is a latitude/longitude pair. Equality, ordering, and hashing
// are performed on the raw bit patterns of lat and lng (via [Coordinate.Key]),
// not float comparison, so that two syntactically identical coordinates
// parsed from input are always treated as identical regardless of any NaN
// concerns — the ingest pipeline is required never to produce a NaN
// coordinate.
type Coordinate struct {
	Lat float32
	Lng float32
}

// Key returns a value suitable for use as a map key or for equality
// comparison: the raw bit patterns of Lat and Lng packed into a uint64.
func (c Coordinate) Key() (k uint64) {
	return uint64(math.Float32bits(c.Lat))<<32 | uint64(math.Float32bits(c.Lng))
}

// PackedCoordinate is the lossy (u16, u16) form of a [Coordinate], used as
// the trie's payload type so that archived databases stay compact. Lat
// maps [-90, 90] and Lng maps [-180, 180] linearly onto [0, 65535].
type PackedCoordinate struct {
	LatU uint16
	LngU uint16
}

// Pack converts c into its packed form, clamping out-of-range inputs.
func Pack(c Coordinate) (p PackedCoordinate) {
	lat := clamp(c.Lat, -latMax, latMax)
	lng := clamp(c.Lng, -lngMax, lngMax)

	latNorm := (lat + latMax) / (latMax * 2)
	lngNorm := (lng + lngMax) / (lngMax * 2)

	return PackedCoordinate{
		LatU: uint16(math.Round(float64(latNorm) * math.MaxUint16)),
		LngU: uint16(math.Round(float64(lngNorm) * math.MaxUint16)),
	}
}

// Unpack converts p back into a (lossy) [Coordinate].
func Unpack(p PackedCoordinate) (c Coordinate) {
	latNorm := float32(p.LatU) / math.MaxUint16
	lngNorm := float32(p.LngU) / math.MaxUint16

	return Coordinate{
		Lat: latNorm*(latMax*2) - latMax,
		Lng: lngNorm*(lngMax*2) - lngMax,
	}
}

func clamp(v, lo, hi float32) (clamped float32) {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}

	return v
}

// CountryCode is a two-byte ISO 3166-1 alpha-2 code packed into a uint16 in
// native byte order.
type CountryCode uint16

// NewCountryCode builds a CountryCode from the first two bytes of b. Shorter
// input yields the zero CountryCode, which displays as "??".
func NewCountryCode(b []byte) (c CountryCode) {
	if len(b) < 2 {
		return 0
	}

	return CountryCode(nativeOrder.Uint16(b[:2]))
}

// String implements [fmt.Stringer] for CountryCode. The zero value displays
// as "??".
func (c CountryCode) String() (s string) {
	if c == 0 {
		return "??"
	}

	buf := [2]byte{}
	nativeOrder.PutUint16(buf[:], uint16(c))

	return string(buf[:])
}
