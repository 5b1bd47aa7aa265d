package ipaddr_test

import (
	"net/netip"
	"testing"

	"github.com/ipmap/core/internal/ipaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNibblesRoundTrip(t *testing.T) {
	a := netip.MustParseAddr("10.1.2.3")
	nibbles := ipaddr.Nibbles(a)
	require.Len(t, nibbles, 8)

	got := ipaddr.FromNibbles(ipaddr.V4, nibbles)
	assert.Equal(t, a, got)

	a6 := netip.MustParseAddr("2001:db8::1")
	nibbles6 := ipaddr.Nibbles(a6)
	require.Len(t, nibbles6, 32)

	got6 := ipaddr.FromNibbles(ipaddr.V6, nibbles6)
	assert.Equal(t, a6, got6)
}

func TestMask(t *testing.T) {
	a := netip.MustParseAddr("10.1.2.3")

	assert.Equal(t, netip.MustParseAddr("10.0.0.0"), ipaddr.Mask(a, 8))
	assert.Equal(t, netip.MustParseAddr("0.0.0.0"), ipaddr.Mask(a, 0))
	assert.Equal(t, a, ipaddr.Mask(a, 32))
}

func TestMaskPanicsOnOverflow(t *testing.T) {
	a := netip.MustParseAddr("10.1.2.3")

	assert.Panics(t, func() { ipaddr.Mask(a, 33) })
}

func TestRangeSubnetsExactCover(t *testing.T) {
	lo := netip.MustParseAddr("1.0.8.0")
	hi := netip.MustParseAddr("1.0.15.255")

	prefixes := ipaddr.RangeSubnets(lo, hi)
	require.Len(t, prefixes, 1)
	assert.Equal(t, netip.MustParsePrefix("1.0.8.0/21"), prefixes[0])
}

func TestRangeSubnetsUnaligned(t *testing.T) {
	lo := netip.MustParseAddr("1.0.0.1")
	hi := netip.MustParseAddr("1.0.0.3")

	prefixes := ipaddr.RangeSubnets(lo, hi)

	totalAddrs := 0
	for addr := lo; ; addr = addr.Next() {
		matches := 0
		for _, p := range prefixes {
			if p.Contains(addr) {
				matches++
			}
		}
		assert.Equal(t, 1, matches, "addr %s matched %d prefixes", addr, matches)

		totalAddrs++
		if addr == hi {
			break
		}
	}

	sizeSum := 0
	for _, p := range prefixes {
		sizeSum += 1 << (32 - p.Bits())
	}
	assert.Equal(t, totalAddrs, sizeSum, "prefixes must not cover addresses outside the range")
}

func TestIsGlobal(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"8.8.8.8", true},
		{"10.0.0.1", false},
		{"172.16.0.1", false},
		{"192.168.1.1", false},
		{"127.0.0.1", false},
		{"224.0.0.1", false},
		{"255.255.255.255", false},
		{"0.0.0.0", false},
		{"2001:db8::1", false},
		{"2606:4700:4700::1111", true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, ipaddr.IsGlobal(netip.MustParseAddr(tt.addr)))
		})
	}
}
