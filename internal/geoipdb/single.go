package geoipdb

import (
	"net/netip"

	"github.com/ipmap/core/internal/agdcache"
	"github.com/ipmap/core/internal/geocoord"
	"github.com/ipmap/core/internal/ipaddr"
	"github.com/ipmap/core/internal/locstore"
	"github.com/ipmap/core/internal/triebitmap"
)

// SingleDatabase is a geolocation database over one address family.
type SingleDatabase struct {
	family    ipaddr.Family
	ips       *triebitmap.Trie[geocoord.PackedCoordinate]
	locations *locstore.LocationStore
	locCache  agdcache.Interface[uint64, locstore.Location]
}

// NewSingleDatabase returns an empty database for family f, with its hot
// coordinate-to-location cache unregistered with any [agdcache.Manager]. Use
// [NewSingleDatabaseCached] to register it for external clearing.
func NewSingleDatabase(f ipaddr.Family) (db *SingleDatabase) {
	return NewSingleDatabaseCached(f, nil, defaultLocationCacheCount)
}

// NewSingleDatabaseCached is [NewSingleDatabase], additionally registering
// the location cache with mgr under a package-private ID. A cacheCount of 0
// disables the cache.
func NewSingleDatabaseCached(f ipaddr.Family, mgr agdcache.Manager, cacheCount int) (db *SingleDatabase) {
	return &SingleDatabase{
		family:    f,
		ips:       triebitmap.New[geocoord.PackedCoordinate](f),
		locations: locstore.NewLocationStore(),
		locCache:  newLocationCache(mgr, cacheCount),
	}
}

// Family returns the address family db was built for.
func (db *SingleDatabase) Family() (f ipaddr.Family) { return db.family }

// Len returns the number of distinct CIDR entries stored.
func (db *SingleDatabase) Len() (n int) { return db.ips.Len() }

// GetCoordinate returns the coordinate of the most specific stored prefix
// containing ip.
func (db *SingleDatabase) GetCoordinate(ip netip.Addr) (c geocoord.Coordinate, ok bool) {
	_, _, packed, ok := db.ips.LongestMatch(ip)
	if !ok {
		return c, false
	}

	return geocoord.Unpack(packed), true
}

// GetLocation returns the resolved location for a previously-seen
// coordinate, consulting the hot-coordinate cache before falling back to the
// backing location store.
func (db *SingleDatabase) GetLocation(c geocoord.Coordinate) (loc locstore.Location, ok bool) {
	key := c.Key()

	if loc, ok = db.locCache.Get(key); ok {
		return loc, true
	}

	loc, ok = db.locations.Get(c)
	if !ok {
		return loc, false
	}

	db.locCache.Set(key, loc)

	return loc, true
}

// Get resolves ip end to end: coordinate lookup followed by location
// resolution.
func (db *SingleDatabase) Get(ip netip.Addr) (info LookupInfo, ok bool) {
	coord, ok := db.GetCoordinate(ip)
	if !ok {
		return info, false
	}

	loc, _ := db.GetLocation(coord)

	return LookupInfo{
		Coordinate: coord,
		City:       loc.City,
		HasCity:    loc.HasCity,
		Region:     loc.Region,
		HasRegion:  loc.HasRegion,
		Country:    loc.CountryCode,
	}, true
}

// Trie returns db's underlying longest-prefix-match trie, for archival by
// [github.com/ipmap/core/internal/archive].
func (db *SingleDatabase) Trie() (t *triebitmap.Trie[geocoord.PackedCoordinate]) { return db.ips }

// Locations returns db's underlying location store, for archival by
// [github.com/ipmap/core/internal/archive].
func (db *SingleDatabase) Locations() (l *locstore.LocationStore) { return db.locations }

// insert records one (prefix, coordinate, location-builder) triple, as
// produced by CSV/MMDB ingest.
func (db *SingleDatabase) insert(
	prefix netip.Prefix,
	coord geocoord.Coordinate,
	build func(d *locstore.StringDict) locstore.LocationIndices,
) {
	db.locations.Insert(coord, build)
	db.ips.Insert(prefix.Addr(), prefix.Bits(), geocoord.Pack(coord))
}
