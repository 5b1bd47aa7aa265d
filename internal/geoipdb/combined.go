package geoipdb

import (
	"net/netip"

	"github.com/ipmap/core/internal/agdcache"
	"github.com/ipmap/core/internal/geocoord"
	"github.com/ipmap/core/internal/ipaddr"
	"github.com/ipmap/core/internal/locstore"
	"github.com/ipmap/core/internal/triebitmap"
)

// CombinedDatabase holds both address families with a single shared
// location store, so that a city/region/country observed once while
// ingesting the IPv4 file is reused by the IPv6 file's rows for the same
// coordinate.
type CombinedDatabase struct {
	ipv4      *triebitmap.Trie[geocoord.PackedCoordinate]
	ipv6      *triebitmap.Trie[geocoord.PackedCoordinate]
	locations *locstore.LocationStore
	locCache  agdcache.Interface[uint64, locstore.Location]
}

// NewCombinedDatabase returns an empty combined database, with its hot
// coordinate-to-location cache unregistered with any [agdcache.Manager]. Use
// [NewCombinedDatabaseCached] to register it for external clearing.
func NewCombinedDatabase() (db *CombinedDatabase) {
	return NewCombinedDatabaseCached(nil, defaultLocationCacheCount)
}

// NewCombinedDatabaseCached is [NewCombinedDatabase], additionally
// registering the location cache with mgr under a package-private ID. A
// cacheCount of 0 disables the cache.
func NewCombinedDatabaseCached(mgr agdcache.Manager, cacheCount int) (db *CombinedDatabase) {
	return &CombinedDatabase{
		ipv4:      triebitmap.New[geocoord.PackedCoordinate](ipaddr.V4),
		ipv6:      triebitmap.New[geocoord.PackedCoordinate](ipaddr.V6),
		locations: locstore.NewLocationStore(),
		locCache:  newLocationCache(mgr, cacheCount),
	}
}

// Len returns the total number of distinct CIDR entries stored across both
// families.
func (db *CombinedDatabase) Len() (n int) { return db.ipv4.Len() + db.ipv6.Len() }

func (db *CombinedDatabase) trieFor(ip netip.Addr) (t *triebitmap.Trie[geocoord.PackedCoordinate]) {
	if ipaddr.FamilyOf(ip) == ipaddr.V4 {
		return db.ipv4
	}

	return db.ipv6
}

// GetCoordinate returns the coordinate of the most specific stored prefix
// containing ip, consulting ip's own family's trie.
func (db *CombinedDatabase) GetCoordinate(ip netip.Addr) (c geocoord.Coordinate, ok bool) {
	_, _, packed, ok := db.trieFor(ip).LongestMatch(ip)
	if !ok {
		return c, false
	}

	return geocoord.Unpack(packed), true
}

// GetLocation returns the resolved location for a previously-seen
// coordinate, consulting the hot-coordinate cache before falling back to the
// backing location store.
func (db *CombinedDatabase) GetLocation(c geocoord.Coordinate) (loc locstore.Location, ok bool) {
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

// Get resolves ip end to end.
func (db *CombinedDatabase) Get(ip netip.Addr) (info LookupInfo, ok bool) {
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

// IPv4Trie returns db's IPv4 longest-prefix-match trie, for archival by
// [github.com/ipmap/core/internal/archive].
func (db *CombinedDatabase) IPv4Trie() (t *triebitmap.Trie[geocoord.PackedCoordinate]) { return db.ipv4 }

// IPv6Trie returns db's IPv6 longest-prefix-match trie, for archival by
// [github.com/ipmap/core/internal/archive].
func (db *CombinedDatabase) IPv6Trie() (t *triebitmap.Trie[geocoord.PackedCoordinate]) { return db.ipv6 }

// Locations returns db's shared location store, for archival by
// [github.com/ipmap/core/internal/archive].
func (db *CombinedDatabase) Locations() (l *locstore.LocationStore) { return db.locations }

func (db *CombinedDatabase) insert(
	prefix netip.Prefix,
	coord geocoord.Coordinate,
	build func(d *locstore.StringDict) locstore.LocationIndices,
) {
	db.locations.Insert(coord, build)
	db.trieFor(prefix.Addr()).Insert(prefix.Addr(), prefix.Bits(), geocoord.Pack(coord))
}
