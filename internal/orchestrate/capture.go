package orchestrate

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/ipmap/core/internal/childproc"
	"github.com/ipmap/core/internal/geoipdb"
	"github.com/ipmap/core/internal/ipc"
)

// CaptureSession is a running capture child, forwarding its samples to a
// caller-chosen sink until [CaptureSession.Stop] is called.
type CaptureSession struct {
	session *childproc.Session
	done    chan struct{}
}

// LocatedSample is one capture report with every remote address resolved
// against a geolocation database, grouped by coordinate. Addresses the
// database can't place are kept separately rather than dropped, mirroring
// the original's "not found" bucket.
type LocatedSample struct {
	ByLocation map[geoipdb.LookupInfo][]SampleEntry
	NotFound   map[netip.Addr]ipc.WireConnectionInfo
	Started    []netip.Addr
	Ended      []netip.Addr
	Stopping   bool
}

// SampleEntry pairs one remote address with its traffic snapshot.
type SampleEntry struct {
	IP   netip.Addr
	Info ipc.WireConnectionInfo
}

// StartCapture spawns the capture child for device and forwards every
// sample it emits to onSample, resolving each remote's coordinate against
// locate along the way. onSample is called from a dedicated goroutine; it
// must not block indefinitely, since the child's output channel is
// otherwise unbounded on the wire (msgpack has no backpressure signal of
// its own).
func StartCapture(
	ctx context.Context,
	childPath, socketDir, device string,
	reportFrequency time.Duration,
	locate func(netip.Addr) (geoipdb.LookupInfo, bool),
	onSample func(LocatedSample),
) (cs *CaptureSession, err error) {
	session, err := childproc.Spawn(ctx, socketDir, childPath, ipc.Command{
		Kind:                   ipc.CommandCapture,
		CaptureDevice:          device,
		CaptureReportFrequency: reportFrequency,
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrate: spawning capture child: %w", err)
	}

	cs = &CaptureSession{session: session, done: make(chan struct{})}

	go cs.forward(locate, onSample)

	return cs, nil
}

func (cs *CaptureSession) forward(
	locate func(netip.Addr) (geoipdb.LookupInfo, bool),
	onSample func(LocatedSample),
) {
	defer close(cs.done)

	for {
		resp, err := cs.session.Conn.RecvResponse()
		if err != nil {
			onSample(LocatedSample{Stopping: true})

			return
		}

		if resp.Kind != ipc.ResponseCaptureSample {
			onSample(LocatedSample{Stopping: true})

			return
		}

		onSample(locateSample(resp.Sample, locate))
	}
}

func locateSample(
	sample ipc.WireConnections,
	locate func(netip.Addr) (geoipdb.LookupInfo, bool),
) (located LocatedSample) {
	located.ByLocation = make(map[geoipdb.LookupInfo][]SampleEntry)
	located.NotFound = make(map[netip.Addr]ipc.WireConnectionInfo)

	for s, info := range sample.Updates {
		addr, perr := netip.ParseAddr(s)
		if perr != nil {
			continue
		}

		loc, ok := locate(addr)
		if !ok {
			located.NotFound[addr] = info

			continue
		}

		located.ByLocation[loc] = append(located.ByLocation[loc], SampleEntry{IP: addr, Info: info})
	}

	located.Started = parseAddrs(sample.Started)
	located.Ended = parseAddrs(sample.Ended)
	located.Stopping = sample.StoppingCapture

	return located
}

func parseAddrs(strs []string) (addrs []netip.Addr) {
	addrs = make([]netip.Addr, 0, len(strs))
	for _, s := range strs {
		if addr, err := netip.ParseAddr(s); err == nil {
			addrs = append(addrs, addr)
		}
	}

	return addrs
}

// Stop tears down the capture child and waits for the forwarding goroutine
// to observe the disconnect, matching the original's "stop callback then
// join" ordering.
func (cs *CaptureSession) Stop() (err error) {
	err = cs.session.Stop()
	<-cs.done

	return err
}
