package ipaddr

import (
	"fmt"
	"math/big"
	"net/netip"
)

// ParseField parses a single CSV address field of family f. If isNum is
// true, field holds the address's decimal integer form (as produced by,
// e.g., Rust's u32::to_string/u128::to_string); otherwise it holds the
// address's textual form ("1.2.3.4" or "2001:db8::1"). The returned error,
// when non-nil, wraps the underlying parse failure only; callers that need
// to distinguish "textual" from "numeric" failures already know isNum.
func ParseField(f Family, field []byte, isNum bool) (a netip.Addr, err error) {
	if !isNum {
		a, err = netip.ParseAddr(string(field))
		if err != nil {
			return netip.Addr{}, fmt.Errorf("parsing %q as address: %w", field, err)
		}

		return a, nil
	}

	n, ok := new(big.Int).SetString(string(field), 10)
	if !ok {
		return netip.Addr{}, fmt.Errorf("parsing %q as decimal integer", field)
	}

	if n.Sign() < 0 || n.BitLen() > f.BitLen() {
		return netip.Addr{}, fmt.Errorf("%s value %q out of range for %s", f, field, f)
	}

	return bigToAddr(n, f), nil
}
