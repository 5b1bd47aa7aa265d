package geoipdb

import (
	"fmt"
	"net/netip"

	"github.com/ipmap/core/internal/agdcache"
	"github.com/ipmap/core/internal/geocoord"
	"github.com/ipmap/core/internal/ipaddr"
	"github.com/ipmap/core/internal/locstore"
	"github.com/ipmap/core/internal/triebitmap"
	"github.com/oschwald/maxminddb-golang"
	"golang.org/x/sync/errgroup"
)

// ConcurrentBuilder accumulates a [CombinedDatabase] from two independent
// ingest goroutines, one per address family, each free to call insert
// without coordinating with the other: the tries are per-family (so each
// goroutine only ever touches its own), and the shared dictionary/location
// store is [locstore.ConcurrentLocationStore], which serializes inserts
// internally. [Freeze] converts the result into the single-threaded
// [CombinedDatabase] the rest of the package already knows how to query.
type ConcurrentBuilder struct {
	ipv4      *triebitmap.Trie[geocoord.PackedCoordinate]
	ipv6      *triebitmap.Trie[geocoord.PackedCoordinate]
	locations *locstore.ConcurrentLocationStore
}

// NewConcurrentBuilder returns an empty builder ready for parallel ingest.
func NewConcurrentBuilder() (b *ConcurrentBuilder) {
	return &ConcurrentBuilder{
		ipv4:      triebitmap.New[geocoord.PackedCoordinate](ipaddr.V4),
		ipv6:      triebitmap.New[geocoord.PackedCoordinate](ipaddr.V6),
		locations: locstore.NewConcurrentLocationStore(),
	}
}

func (b *ConcurrentBuilder) trieFor(ip netip.Addr) (t *triebitmap.Trie[geocoord.PackedCoordinate]) {
	if ipaddr.FamilyOf(ip) == ipaddr.V4 {
		return b.ipv4
	}

	return b.ipv6
}

func (b *ConcurrentBuilder) insert(
	prefix netip.Prefix,
	coord geocoord.Coordinate,
	build func(d *locstore.ConcurrentStringDict) locstore.LocationIndices,
) {
	b.locations.Insert(coord, build)
	b.trieFor(prefix.Addr()).Insert(prefix.Addr(), prefix.Bits(), geocoord.Pack(coord))
}

// Freeze finalizes the builder into a [CombinedDatabase]. Call it only
// after every ingest goroutine that holds a reference to b has returned;
// Freeze itself does no further synchronization with in-flight inserts.
func (b *ConcurrentBuilder) Freeze(mgr agdcache.Manager, cacheCount int) (db *CombinedDatabase) {
	return &CombinedDatabase{
		ipv4:      b.ipv4,
		ipv6:      b.ipv6,
		locations: b.locations.Freeze(),
		locCache:  newLocationCache(mgr, cacheCount),
	}
}

// IngestCombinedConcurrent ingests v4 and v6 — each a [Detect] result for
// that family's CSV file — into one [CombinedDatabase], parsing both
// concurrently via [errgroup.Group]. On any ingest error the first one
// reported is returned; ingest itself does no cancellation, so the other
// goroutine is left to run to completion or its own error.
func IngestCombinedConcurrent(v4, v6 Detection, mgr agdcache.Manager, cacheCount int) (db *CombinedDatabase, err error) {
	if v4.Kind != KindCSV || v6.Kind != KindCSV {
		return nil, fmt.Errorf("%w: concurrent ingest only supports CSV sources", ErrInvalidFormat)
	}

	b := NewConcurrentBuilder()

	var eg errgroup.Group

	eg.Go(func() (err error) { return ReadCSVConcurrent(v4.Reader, v4.Family, v4.IsNum, b) })
	eg.Go(func() (err error) { return ReadCSVConcurrent(v6.Reader, v6.Family, v6.IsNum, b) })

	if err = eg.Wait(); err != nil {
		return nil, err
	}

	return b.Freeze(mgr, cacheCount), nil
}

// IngestMMDBCombinedConcurrent is [IngestCombinedConcurrent] for a pair of
// already-opened MMDB readers, since an MMDB source's reader can't be
// constructed from a [Detection] alone (unlike CSV, MMDB detection never
// reads the file, see [Detect]).
func IngestMMDBCombinedConcurrent(
	v4, v6 *maxminddb.Reader,
	mgr agdcache.Manager,
	cacheCount int,
) (db *CombinedDatabase, err error) {
	b := NewConcurrentBuilder()

	var eg errgroup.Group

	eg.Go(func() (err error) { return ReadMMDBConcurrent(v4, b) })
	eg.Go(func() (err error) { return ReadMMDBConcurrent(v6, b) })

	if err = eg.Wait(); err != nil {
		return nil, err
	}

	return b.Freeze(mgr, cacheCount), nil
}
