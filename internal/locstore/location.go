package locstore

import "github.com/ipmap/core/internal/geocoord"

// LocationIndices is the compact, dictionary-backed form of a [Location]:
// city and region are 1-based [StringDict] keys (0 meaning absent), and the
// country code is stored packed.
type LocationIndices struct {
	City        uint32
	Region      uint32
	CountryCode geocoord.CountryCode
}

// Location is the fully resolved, display-ready form of a
// [LocationIndices].
type Location struct {
	City        string
	Region      string
	CountryCode string
	HasCity     bool
	HasRegion   bool
}

// Resolve populates a [Location] from li using d to look up its string
// keys.
func (li LocationIndices) Resolve(d *StringDict) (loc Location) {
	loc.CountryCode = li.CountryCode.String()

	if city, ok := d.Get(li.City); ok {
		loc.City = city
		loc.HasCity = true
	}

	if region, ok := d.Get(li.Region); ok {
		loc.Region = region
		loc.HasRegion = true
	}

	return loc
}
