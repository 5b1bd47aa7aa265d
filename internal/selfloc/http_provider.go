package selfloc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"github.com/ipmap/core/internal/geocoord"
	"github.com/ipmap/core/internal/geoipdb"
)

// HTTPProvider queries a third-party IP-geolocation service over HTTP. The
// service URL and response shape are left injectable rather than hardwired,
// since no concrete provider is specified; any service returning the fields
// below in a JSON object works.
type HTTPProvider struct {
	client *http.Client
	url    string
}

// HTTPProviderConfig configures an [HTTPProvider].
type HTTPProviderConfig struct {
	// URL is the endpoint to GET; its response body must be the JSON shape
	// documented on [lookupResponse].
	URL string

	// Timeout bounds the whole request.
	Timeout time.Duration
}

// NewHTTPProvider returns a Provider backed by an HTTP GET to c.URL.
func NewHTTPProvider(c *HTTPProviderConfig) (p *HTTPProvider) {
	return &HTTPProvider{
		client: &http.Client{Timeout: c.Timeout},
		url:    c.URL,
	}
}

// lookupResponse is the expected shape of the provider's JSON response.
// Latitude, longitude, and country code are all required for [Response] to
// carry geolocation; their absence falls back to an IP-only result.
type lookupResponse struct {
	IP          string   `json:"ip"`
	Latitude    *float32 `json:"latitude"`
	Longitude   *float32 `json:"longitude"`
	CountryCode string   `json:"country_code"`
	City        string   `json:"city"`
	Region      string   `json:"region"`
}

// Lookup implements [Provider].
func (p *HTTPProvider) Lookup(ctx context.Context) (resp Response, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return resp, fmt.Errorf("selfloc: building request: %w", err)
	}

	httpResp, err := p.client.Do(req)
	if err != nil {
		return resp, fmt.Errorf("selfloc: performing lookup: %w", err)
	}
	defer httpResp.Body.Close()

	var lr lookupResponse
	if err = json.NewDecoder(httpResp.Body).Decode(&lr); err != nil {
		return resp, fmt.Errorf("selfloc: decoding response: %w", err)
	}

	ip, err := netip.ParseAddr(lr.IP)
	if err != nil {
		return resp, fmt.Errorf("selfloc: parsing ip %q: %w", lr.IP, err)
	}

	resp.IP = ip

	if lr.Latitude == nil || lr.Longitude == nil || lr.CountryCode == "" {
		return resp, nil
	}

	resp.HasInfo = true
	resp.Info = geoipdb.LookupInfo{
		Coordinate: geocoord.Coordinate{Lat: *lr.Latitude, Lng: *lr.Longitude},
		City:       lr.City,
		HasCity:    lr.City != "",
		Region:     lr.Region,
		HasRegion:  lr.Region != "",
		Country:    lr.CountryCode,
	}

	return resp, nil
}
