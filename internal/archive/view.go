package archive

import (
	"errors"
	"net/netip"

	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/ipmap/core/internal/agdcache"
	"github.com/ipmap/core/internal/geocoord"
	"github.com/ipmap/core/internal/geoipdb"
	"github.com/ipmap/core/internal/ipaddr"
	"github.com/ipmap/core/internal/locstore"
	"github.com/ipmap/core/internal/triebitmap"
)

// Database is the read-only query surface a [FileResource] exposes once
// opened. Both single-family and combined archives satisfy it, so callers
// (C6's selection manager) don't need to know which shape they loaded.
type Database interface {
	// Get resolves ip end to end: coordinate lookup followed by location
	// resolution.
	Get(ip netip.Addr) (info geoipdb.LookupInfo, ok bool)

	// GetCoordinate returns the coordinate of the most specific stored
	// prefix containing ip.
	GetCoordinate(ip netip.Addr) (c geocoord.Coordinate, ok bool)

	// GetLocation returns the resolved location for a previously-seen
	// coordinate.
	GetLocation(c geocoord.Coordinate) (loc locstore.Location, ok bool)

	// Len returns the number of distinct CIDR entries stored.
	Len() (n int)

	// Close releases the archived trie's mmap. It does not touch the
	// FileResource's own mmap of the whole file; call
	// [FileResource.Close] for that.
	Close() (err error)
}

// newArchiveLocationCache builds the hot coordinate-to-location cache fronting both view
// kinds' GetLocation, mirroring [geoipdb]'s own wiring: this is the actual
// runtime lookup path once a database is selected and serving live
// captures, so it is the one that matters most under repeat traffic from a
// handful of remote peers.
func newArchiveLocationCache() (c agdcache.Interface[uint64, locstore.Location]) {
	cache, err := agdcache.New[uint64, locstore.Location](&agdcache.Config{
		Clock: timeutil.SystemClock{},
		Count: archiveLocationCacheCount,
	})
	if err != nil {
		return agdcache.Empty[uint64, locstore.Location]{}
	}

	return cache
}

const archiveLocationCacheCount = 4096

// GenericView is the read-only, memory-mapped view over a single-family
// archived database.
type GenericView struct {
	family    ipaddr.Family
	trie      *triebitmap.ArchivedTrie
	locations *locstore.LocationStore
	locCache  agdcache.Interface[uint64, locstore.Location]
}

var _ Database = (*GenericView)(nil)

// Family returns the address family the view was built for.
func (v *GenericView) Family() (f ipaddr.Family) { return v.family }

// Len implements the [Database] interface for *GenericView.
func (v *GenericView) Len() (n int) { return v.trie.Len() }

// GetCoordinate implements the [Database] interface for *GenericView.
func (v *GenericView) GetCoordinate(ip netip.Addr) (c geocoord.Coordinate, ok bool) {
	_, _, packed, ok := v.trie.LongestMatch(ip)
	if !ok {
		return c, false
	}

	return geocoord.Unpack(packed), true
}

// GetLocation implements the [Database] interface for *GenericView.
func (v *GenericView) GetLocation(c geocoord.Coordinate) (loc locstore.Location, ok bool) {
	return cachedGetLocation(v.locCache, v.locations, c)
}

// Get implements the [Database] interface for *GenericView.
func (v *GenericView) Get(ip netip.Addr) (info geoipdb.LookupInfo, ok bool) {
	return resolve(v, ip)
}

// Close implements the [Database] interface for *GenericView.
func (v *GenericView) Close() (err error) { return v.trie.Close() }

// CombinedView is the read-only, memory-mapped view over a combined
// (IPv4 + IPv6) archived database sharing one location store.
type CombinedView struct {
	ipv4      *triebitmap.ArchivedTrie
	ipv6      *triebitmap.ArchivedTrie
	locations *locstore.LocationStore
	locCache  agdcache.Interface[uint64, locstore.Location]
}

var _ Database = (*CombinedView)(nil)

func (v *CombinedView) trieFor(ip netip.Addr) (t *triebitmap.ArchivedTrie) {
	if ipaddr.FamilyOf(ip) == ipaddr.V4 {
		return v.ipv4
	}

	return v.ipv6
}

// Len implements the [Database] interface for *CombinedView.
func (v *CombinedView) Len() (n int) { return v.ipv4.Len() + v.ipv6.Len() }

// GetCoordinate implements the [Database] interface for *CombinedView.
func (v *CombinedView) GetCoordinate(ip netip.Addr) (c geocoord.Coordinate, ok bool) {
	_, _, packed, ok := v.trieFor(ip).LongestMatch(ip)
	if !ok {
		return c, false
	}

	return geocoord.Unpack(packed), true
}

// GetLocation implements the [Database] interface for *CombinedView.
func (v *CombinedView) GetLocation(c geocoord.Coordinate) (loc locstore.Location, ok bool) {
	return cachedGetLocation(v.locCache, v.locations, c)
}

// Get implements the [Database] interface for *CombinedView.
func (v *CombinedView) Get(ip netip.Addr) (info geoipdb.LookupInfo, ok bool) {
	return resolve(v, ip)
}

// Close implements the [Database] interface for *CombinedView.
func (v *CombinedView) Close() (err error) {
	return errors.Join(v.ipv4.Close(), v.ipv6.Close())
}

func cachedGetLocation(
	cache agdcache.Interface[uint64, locstore.Location],
	store *locstore.LocationStore,
	c geocoord.Coordinate,
) (loc locstore.Location, ok bool) {
	key := c.Key()

	if loc, ok = cache.Get(key); ok {
		return loc, true
	}

	loc, ok = store.Get(c)
	if !ok {
		return loc, false
	}

	cache.Set(key, loc)

	return loc, true
}

// coordinateLocationGetter is the minimal surface [resolve] needs, shared by
// *GenericView and *CombinedView.
type coordinateLocationGetter interface {
	GetCoordinate(ip netip.Addr) (c geocoord.Coordinate, ok bool)
	GetLocation(c geocoord.Coordinate) (loc locstore.Location, ok bool)
}

func resolve(v coordinateLocationGetter, ip netip.Addr) (info geoipdb.LookupInfo, ok bool) {
	coord, ok := v.GetCoordinate(ip)
	if !ok {
		return info, false
	}

	loc, _ := v.GetLocation(coord)

	return geoipdb.LookupInfo{
		Coordinate: coord,
		City:       loc.City,
		HasCity:    loc.HasCity,
		Region:     loc.Region,
		HasRegion:  loc.HasRegion,
		Country:    loc.CountryCode,
	}, true
}
