package geoipdb

import (
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/ipmap/core/internal/agdcache"
	"github.com/ipmap/core/internal/locstore"
)

// Cache identifiers registered with an [agdcache.Manager], so that an
// operator-triggered cache clear reaches the location cache alongside every
// other cache in the process.
const (
	cachePrefix     = "geoipdb/"
	cacheIDLocation = cachePrefix + "location"
)

// defaultLocationCacheCount bounds the hot coordinate to location cache
// fronting [locstore.LocationStore.Get]. Remote IPs repeat heavily within a
// capture session (a handful of CDNs and peers dominate most traffic), so a
// modest LRU absorbs the bulk of repeated lookups without holding the whole
// location table twice.
const defaultLocationCacheCount = 4096

// newLocationCache builds the LRU fronting location resolution. A zero count
// disables caching outright; mgr may be nil, in which case the cache is
// built but not registered for external clearing.
func newLocationCache(mgr agdcache.Manager, count int) (c agdcache.Interface[uint64, locstore.Location]) {
	if count <= 0 {
		return agdcache.Empty[uint64, locstore.Location]{}
	}

	cache, err := agdcache.New[uint64, locstore.Location](&agdcache.Config{
		Clock: timeutil.SystemClock{},
		Count: count,
	})
	if err != nil {
		// Config.Count is validated positive above; New only fails on an
		// invalid LRU size, so this path is unreachable in practice.
		return agdcache.Empty[uint64, locstore.Location]{}
	}

	if mgr != nil {
		mgr.Add(cacheIDLocation, cache)
	}

	return cache
}
