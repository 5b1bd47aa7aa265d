package capture

import "net/netip"

// Direction classifies a packet as upstream (local to remote) or downstream
// (remote to local) traffic.
type Direction uint8

// Supported directions.
const (
	Up Direction = iota
	Down
)

// String implements [fmt.Stringer] for Direction.
func (d Direction) String() (s string) {
	if d == Up {
		return "up"
	}

	return "down"
}

// documentation ranges are carved out of the allocated space for examples
// and are not globally routable, but aren't covered by [netip.Addr]'s
// built-in private/loopback/multicast/link-local checks.
var documentationPrefixes = []netip.Prefix{
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
	netip.MustParsePrefix("2001:db8::/32"),
}

// IsGlobal reports whether addr is a routable public address: not in any of
// RFC1918, loopback, multicast, link-local, documentation, or unspecified
// ranges. Exported for reuse by callers that need the same "is this worth
// showing the user" notion outside packet classification, e.g. filtering
// traceroute hops.
func IsGlobal(addr netip.Addr) (ok bool) {
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsMulticast() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() || addr.IsUnspecified() {
		return false
	}

	for _, p := range documentationPrefixes {
		if p.Contains(addr) {
			return false
		}
	}

	return true
}

// classify derives the direction and "remote" endpoint for a packet whose
// network-layer source and destination have been extracted. Traffic between
// two local or two remote addresses carries no signal and is dropped.
func classify(src, dst netip.Addr) (remote netip.Addr, dir Direction, ok bool) {
	srcGlobal, dstGlobal := IsGlobal(src), IsGlobal(dst)

	switch {
	case !srcGlobal && dstGlobal:
		return dst, Up, true
	case srcGlobal && !dstGlobal:
		return src, Down, true
	default:
		return netip.Addr{}, 0, false
	}
}
