// Package selfloc resolves and caches the local host's own public IP and
// geolocation, for use as a synthetic first hop in a traceroute result.
package selfloc

import (
	"context"
	"net/netip"
	"sync"

	"github.com/ipmap/core/internal/dbstate"
	"github.com/ipmap/core/internal/geoipdb"
)

// Response is what a [Provider] resolves: the host's public IP, and its
// geolocation when the provider was able to determine one.
type Response struct {
	IP      netip.Addr
	Info    geoipdb.LookupInfo
	HasInfo bool
}

// Provider performs the actual public-IP/geolocation lookup. Implementations
// typically call out to a third-party IP-geolocation service.
type Provider interface {
	Lookup(ctx context.Context) (Response, error)
}

// Cache resolves a [Provider] exactly once per process, memoizing both a
// successful result and an error so a failing provider isn't hammered on
// every subsequent traceroute.
type Cache struct {
	provider Provider

	once sync.Once
	resp Response
	err  error
}

// NewCache wraps provider in a process-lifetime cache.
func NewCache(provider Provider) (c *Cache) {
	return &Cache{provider: provider}
}

// Get returns the memoized lookup, performing it on the first call.
func (c *Cache) Get(ctx context.Context) (resp Response, err error) {
	c.once.Do(func() {
		c.resp, c.err = c.provider.Lookup(ctx)
	})

	return c.resp, c.err
}

// GetWithFallback is [Cache.Get], but when the provider resolved an IP
// without geolocation, it falls back to looking that IP up against db.
func (c *Cache) GetWithFallback(ctx context.Context, db *dbstate.Manager) (resp Response, err error) {
	resp, err = c.Get(ctx)
	if err != nil {
		return resp, err
	}

	if !resp.HasInfo {
		if info, ok := db.Lookup(resp.IP); ok {
			resp.Info = info
			resp.HasInfo = true
		}
	}

	return resp, nil
}
