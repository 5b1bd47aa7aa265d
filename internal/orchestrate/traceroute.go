// Package orchestrate drives the privileged child process from the parent
// side: spawning it for one traceroute or one capture session, translating
// its IPC responses back into domain types, and enriching a traceroute's
// hops with geolocation drawn from the currently selected database.
package orchestrate

import (
	"context"
	"fmt"
	"net/netip"

	agderrors "github.com/AdguardTeam/golibs/errors"
	"github.com/ipmap/core/internal/childproc"
	"github.com/ipmap/core/internal/dbstate"
	"github.com/ipmap/core/internal/geoipdb"
	"github.com/ipmap/core/internal/ipc"
	"github.com/ipmap/core/internal/selfloc"
)

// ErrUnexpectedResponse is returned when the child sends a response kind
// that doesn't belong to the command it was given.
const ErrUnexpectedResponse agderrors.Error = "orchestrate: unexpected ipc response kind"

// Hop is one traceroute hop enriched with geolocation: the distinct
// responder addresses seen at that TTL, and the location of the first one
// the database can resolve, if any.
type Hop struct {
	IPs      []netip.Addr
	Location geoipdb.LookupInfo
	HasLoc   bool
}

// TraceResult is a complete enriched traceroute: a synthetic first hop for
// the local host's own public IP and location, followed by one [Hop] per
// TTL the child reported.
type TraceResult struct {
	Hops []Hop
}

// RunTraceroute spawns the child binary at childPath to probe target for up
// to maxRounds hops, reporting each round via onProgress as it completes,
// then prepends a synthetic "my location" hop and attaches a resolved
// location to every subsequent hop from db.
func RunTraceroute(
	ctx context.Context,
	childPath, socketDir string,
	target netip.Addr,
	maxRounds int,
	onProgress func(round int),
	db *dbstate.Manager,
	loc *selfloc.Cache,
) (res TraceResult, err error) {
	session, err := childproc.Spawn(ctx, socketDir, childPath, ipc.Command{
		Kind:                ipc.CommandTraceroute,
		TracerouteTarget:    target.String(),
		TracerouteMaxRounds: maxRounds,
	})
	if err != nil {
		return res, fmt.Errorf("orchestrate: spawning traceroute child: %w", err)
	}
	defer session.Stop()

	for {
		resp, rerr := session.Conn.RecvResponse()
		if rerr != nil {
			return res, fmt.Errorf("orchestrate: receiving traceroute response: %w", rerr)
		}

		switch resp.Kind {
		case ipc.ResponseProgress:
			if onProgress != nil {
				onProgress(resp.Round)
			}
		case ipc.ResponseTraceroute:
			return enrichTraceroute(ctx, resp.Hops, db, loc)
		default:
			return res, fmt.Errorf("%w: kind %d", ErrUnexpectedResponse, resp.Kind)
		}
	}
}

func enrichTraceroute(
	ctx context.Context,
	wireHops [][]string,
	db *dbstate.Manager,
	loc *selfloc.Cache,
) (res TraceResult, err error) {
	myResp, err := loc.GetWithFallback(ctx, db)
	if err != nil {
		return res, fmt.Errorf("orchestrate: resolving self location: %w", err)
	}

	res.Hops = make([]Hop, 0, len(wireHops)+1)
	res.Hops = append(res.Hops, Hop{
		IPs:      []netip.Addr{myResp.IP},
		Location: myResp.Info,
		HasLoc:   myResp.HasInfo,
	})

	for _, wireIPs := range wireHops {
		res.Hops = append(res.Hops, hopFromWire(wireIPs, db))
	}

	return res, nil
}

// hopFromWire resolves a hop's location from the first of its addresses the
// database can place, matching the original's find_map-over-candidates
// semantics: later addresses in the same hop are never consulted once one
// resolves.
func hopFromWire(wireIPs []string, db *dbstate.Manager) (h Hop) {
	h.IPs = make([]netip.Addr, 0, len(wireIPs))

	for _, s := range wireIPs {
		addr, perr := netip.ParseAddr(s)
		if perr != nil {
			continue
		}

		h.IPs = append(h.IPs, addr)

		if !h.HasLoc {
			if info, ok := db.Lookup(addr); ok {
				h.Location = info
				h.HasLoc = true
			}
		}
	}

	return h
}
