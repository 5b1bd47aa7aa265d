// Package tracert drives a bounded ICMP traceroute: increasing TTL one hop
// at a time, collecting every distinct responder address seen at each TTL,
// and reporting progress as it goes.
package tracert

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// probeTimeout bounds how long a single round waits for a reply before
// being considered lost; a lost round still counts toward maxRounds.
const probeTimeout = time.Second

// Result is the outcome of a bounded traceroute run.
type Result struct {
	// Hops holds, per TTL starting at 1, every distinct address that
	// responded at that hop. A round with no replies yields an empty slice.
	Hops [][]netip.Addr
}

// Run drives a traceroute toward target for at most maxRounds hops, calling
// onProgress after each round with the highest TTL reached so far. Run
// recovers from any panic raised by the ICMP plumbing and reports it as an
// error, since the underlying raw-socket path is known to be fragile across
// platforms.
func Run(ctx context.Context, target netip.Addr, maxRounds int, onProgress func(round int)) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tracert: panic during run: %v", r)
		}
	}()

	conn, closeConn, err := listen(target)
	if err != nil {
		return res, fmt.Errorf("tracert: listening for ICMP replies: %w", err)
	}
	defer closeConn()

	res.Hops = make([][]netip.Addr, 0, maxRounds)

	id := os.Getpid() & 0xffff

	for ttl := 1; ttl <= maxRounds; ttl++ {
		if err = ctx.Err(); err != nil {
			return res, err
		}

		if serr := setTTL(conn, target, ttl); serr != nil {
			return res, fmt.Errorf("tracert: setting ttl %d: %w", ttl, serr)
		}

		responders, reachedTarget, perr := probe(conn, target, id, ttl)
		if perr != nil {
			return res, fmt.Errorf("tracert: probing ttl %d: %w", ttl, perr)
		}

		res.Hops = append(res.Hops, responders)

		if onProgress != nil {
			onProgress(ttl)
		}

		if reachedTarget {
			break
		}
	}

	return res, nil
}

func listen(target netip.Addr) (conn *icmp.PacketConn, closeFn func(), err error) {
	network, address := "ip4:icmp", "0.0.0.0"
	if target.Is6() {
		network, address = "ip6:ipv6-icmp", "::"
	}

	conn, err = icmp.ListenPacket(network, address)
	if err != nil {
		return nil, nil, err
	}

	return conn, func() { _ = conn.Close() }, nil
}

func setTTL(conn *icmp.PacketConn, target netip.Addr, ttl int) (err error) {
	if target.Is6() {
		return conn.IPv6PacketConn().SetHopLimit(ttl)
	}

	return conn.IPv4PacketConn().SetTTL(ttl)
}

// probe sends one echo request at the current TTL and collects every
// distinct responder seen before probeTimeout elapses. A response carrying
// an echo reply (rather than time-exceeded) whose source is the target
// itself signals that the destination has been reached.
func probe(conn *icmp.PacketConn, target netip.Addr, id, ttl int) (responders []netip.Addr, reachedTarget bool, err error) {
	echoType := icmp.Type(ipv4.ICMPTypeEcho)
	if target.Is6() {
		echoType = ipv6.ICMPTypeEchoRequest
	}

	msg := icmp.Message{
		Type: echoType,
		Code: 0,
		Body: &icmp.Echo{ID: id, Seq: ttl, Data: []byte("ipmap-tracert")},
	}

	wire, merr := msg.Marshal(nil)
	if merr != nil {
		return nil, false, merr
	}

	dst := &net.IPAddr{IP: net.IP(target.AsSlice())}
	if _, werr := conn.WriteTo(wire, dst); werr != nil {
		return nil, false, werr
	}

	deadline := time.Now().Add(probeTimeout)
	if derr := conn.SetReadDeadline(deadline); derr != nil {
		return nil, false, derr
	}

	seen := map[netip.Addr]struct{}{}
	buf := make([]byte, 1500)

	for {
		n, peer, rerr := conn.ReadFrom(buf)
		if rerr != nil {
			if errors.Is(rerr, os.ErrDeadlineExceeded) {
				break
			}

			return addrsOf(seen), reachedTarget, nil
		}

		addr, ok := peerAddr(peer)
		if !ok {
			continue
		}

		proto := ianaProtoICMP
		if target.Is6() {
			proto = ianaProtoICMPv6
		}

		parsed, perr := icmp.ParseMessage(proto, buf[:n])
		if perr != nil {
			continue
		}

		if _, isSeen := seen[addr]; !isSeen {
			seen[addr] = struct{}{}
		}

		switch parsed.Type {
		case ipv4.ICMPTypeEchoReply, ipv6.ICMPTypeEchoReply:
			if addr == target {
				reachedTarget = true
			}
		default:
			// Time-exceeded or destination-unreachable from an intermediate
			// hop; already recorded as a responder above.
		}
	}

	return addrsOf(seen), reachedTarget, nil
}

const (
	ianaProtoICMP   = 1
	ianaProtoICMPv6 = 58
)

func peerAddr(peer net.Addr) (addr netip.Addr, ok bool) {
	ipAddr, isIPAddr := peer.(*net.IPAddr)
	if !isIPAddr {
		return addr, false
	}

	return netip.AddrFromSlice(ipAddr.IP)
}

func addrsOf(seen map[netip.Addr]struct{}) (addrs []netip.Addr) {
	addrs = make([]netip.Addr, 0, len(seen))
	for a := range seen {
		addrs = append(addrs, a)
	}

	return addrs
}
