package geoipdb

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/ipmap/core/internal/geocoord"
	"github.com/ipmap/core/internal/ipaddr"
	"github.com/ipmap/core/internal/locstore"
	"github.com/oschwald/maxminddb-golang"
)

// mmdbRecord is the fixed per-record shape decoded from a city MMDB.
// Fields not consumed by ingest (Postcode, Timezone) are still decoded so
// that a malformed record shape surfaces as an [ErrMaxMindDB] decode error rather
// than silently dropping data a future caller might want.
type mmdbRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
	Subdivisions []struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"subdivisions"`
	Postcode struct {
		Code string `maxminddb:"code"`
	} `maxminddb:"postal"`
	Location struct {
		Latitude  float64 `maxminddb:"latitude"`
		Longitude float64 `maxminddb:"longitude"`
		TimeZone  string  `maxminddb:"time_zone"`
	} `maxminddb:"location"`
}

// ReadMMDB ingests every network in the MMDB reader r into db. r's
// metadata.ip_version selects the family; it must match db's family.
func ReadMMDB(r *maxminddb.Reader, db *SingleDatabase) (err error) {
	family, err := mmdbFamily(r)
	if err != nil {
		return err
	}

	if family != db.family {
		return fmt.Errorf(
			"%w: mmdb is %s but database is %s",
			ErrMalformedMaxMindDB, family, db.family,
		)
	}

	return readMMDB[*locstore.StringDict](r, db.insert)
}

// ReadMMDBCombined is [ReadMMDB] for a [CombinedDatabase].
func ReadMMDBCombined(r *maxminddb.Reader, db *CombinedDatabase) (err error) {
	if _, err = mmdbFamily(r); err != nil {
		return err
	}

	return readMMDB[*locstore.StringDict](r, db.insert)
}

// ReadMMDBConcurrent is [ReadMMDB] for a [ConcurrentBuilder], feeding the
// shared [locstore.ConcurrentLocationStore] directly.
func ReadMMDBConcurrent(r *maxminddb.Reader, b *ConcurrentBuilder) (err error) {
	if _, err = mmdbFamily(r); err != nil {
		return err
	}

	return readMMDB[*locstore.ConcurrentStringDict](r, b.insert)
}

func mmdbFamily(r *maxminddb.Reader) (f ipaddr.Family, err error) {
	switch r.Metadata.IPVersion {
	case 4:
		return ipaddr.V4, nil
	case 6:
		return ipaddr.V6, nil
	default:
		return 0, fmt.Errorf("%w: unsupported ip_version %d", ErrMalformedMaxMindDB, r.Metadata.IPVersion)
	}
}

func readMMDB[D stringDict](r *maxminddb.Reader, insert insertFunc[D]) (err error) {
	networks := r.Networks(maxminddb.SkipAliasedNetworks)

	for networks.Next() {
		var rec mmdbRecord

		subnet, nerr := networks.Network(&rec)
		if nerr != nil {
			return fmt.Errorf("%w: %w", ErrMaxMindDB, nerr)
		}

		lat, lng := rec.Location.Latitude, rec.Location.Longitude
		if lat == 0 && lng == 0 {
			continue
		}

		coord := geocoord.Coordinate{Lat: float32(lat), Lng: float32(lng)}

		city := rec.City.Names["en"]
		region := ""
		if len(rec.Subdivisions) > 0 {
			region = rec.Subdivisions[0].ISOCode
		}

		country := geocoord.NewCountryCode([]byte(rec.Country.ISOCode))

		build := func(d D) locstore.LocationIndices {
			return locstore.LocationIndices{
				City:        d.Insert(city),
				Region:      d.Insert(region),
				CountryCode: country,
			}
		}

		prefix, ok := subnetToPrefix(subnet)
		if !ok {
			continue
		}

		insert(prefix, coord, build)
	}

	if err = networks.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrMaxMindDB, err)
	}

	return nil
}

// subnetToPrefix converts the *net.IPNet yielded by the MMDB network
// iterator into a netip.Prefix, normalizing 4-in-6 addresses to their
// 4-byte form.
func subnetToPrefix(subnet *net.IPNet) (p netip.Prefix, ok bool) {
	addr, ok := netip.AddrFromSlice(subnet.IP)
	if !ok {
		return p, false
	}

	if addr.Is4In6() {
		addr = netip.AddrFrom4(addr.As4())
	}

	ones, _ := subnet.Mask.Size()
	if addr.Is4() && ones > 32 {
		ones -= 96
	}

	return netip.PrefixFrom(addr, ones), true
}
