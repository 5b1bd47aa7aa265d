package tracert

import (
	"net/netip"

	"github.com/ipmap/core/internal/capture"
)

// FilterGlobal narrows each hop's responder list to routable public
// addresses, matching the capture classifier's own notion of "global" so
// that a hop through a carrier's private backbone shows no address rather
// than a misleading internal one.
func FilterGlobal(hops [][]netip.Addr) (filtered [][]netip.Addr) {
	filtered = make([][]netip.Addr, len(hops))

	for i, hop := range hops {
		for _, addr := range hop {
			if capture.IsGlobal(addr) {
				filtered[i] = append(filtered[i], addr)
			}
		}
	}

	return filtered
}
