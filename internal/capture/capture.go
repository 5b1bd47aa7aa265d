package capture

import (
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

const (
	snapLen     int32 = 64
	promiscuous       = false
	readTimeout       = time.Millisecond
)

// bpfFilter keeps only IP/IPv6 traffic that crosses the private/public
// boundary, dropping local-to-local and remote-to-remote chatter along with
// broadcast and multicast noise.
const bpfFilter = "(ip or ip6) and not " +
	"(" +
	"(src net 10.0.0.0/8 or src net 172.16.0.0/12 or src net 192.168.0.0/16 " +
	"or src net 127.0.0.0/8 or src net 224.0.0.0/4 or src net 255.255.255.255) " +
	"and " +
	"(dst net 10.0.0.0/8 or dst net 172.16.0.0/12 or dst net 192.168.0.0/16 " +
	"or dst net 127.0.0.0/8 or dst net 224.0.0.0/4 or dst net 255.255.255.255)" +
	") " +
	"and not (broadcast or multicast)"

// bufferCapacity bounds the channel [Capture.Start] returns so that a slow
// consumer applies backpressure instead of letting captured packets pile up
// in unbounded memory.
const bufferCapacity = 10_000

// Packet is a classified sample taken from a [Capture].
type Packet struct {
	IP        netip.Addr
	Len       int
	Direction Direction
}

// Capture is a live capture session opened on one [Device]. The zero value
// is not usable; use [Open].
type Capture struct {
	device Device
	handle *pcap.Handle

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

// Open begins a live capture on device. The BPF filter fails to compile only
// on a malformed expression, which is a programming error here, not a
// runtime one; a compile failure is ignored (not returned or logged) and
// capture proceeds unfiltered.
func Open(device Device) (c *Capture, err error) {
	inactive, err := pcap.NewInactiveHandle(device.Name)
	if err != nil {
		return nil, fmt.Errorf("capture: creating inactive handle: %w", err)
	}
	defer inactive.CleanUp()

	if err = inactive.SetSnapLen(int(snapLen)); err != nil {
		return nil, fmt.Errorf("capture: setting snaplen: %w", err)
	}

	if err = inactive.SetPromisc(promiscuous); err != nil {
		return nil, fmt.Errorf("capture: setting promiscuous mode: %w", err)
	}

	if err = inactive.SetTimeout(readTimeout); err != nil {
		return nil, fmt.Errorf("capture: setting read timeout: %w", err)
	}

	if err = inactive.SetImmediateMode(true); err != nil {
		return nil, fmt.Errorf("capture: setting immediate mode: %w", err)
	}

	handle, err := inactive.Activate()
	if err != nil {
		return nil, fmt.Errorf("capture: activating %s: %w", device.Name, err)
	}

	if ferr := handle.SetBPFFilter(bpfFilter); ferr != nil {
		// Non-fatal: capture proceeds unfiltered.
		_ = ferr
	}

	return &Capture{device: device, handle: handle}, nil
}

// Start spawns the capture's dispatch loop and returns the channel it feeds.
// The channel is closed when the loop exits, whether because [Capture.Stop]
// was called or the handle failed. Start must only be called once.
func (c *Capture) Start() (packets <-chan Packet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		panic("capture: Start called more than once")
	}
	c.started = true

	out := make(chan Packet, bufferCapacity)
	c.stopCh = make(chan struct{})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(out)

		c.dispatch(out)
	}()

	return out
}

func (c *Capture) dispatch(out chan<- Packet) {
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		data, _, err := c.handle.ReadPacketData()
		if err != nil {
			if err == pcap.NextErrorTimeoutExpired {
				continue
			}

			return
		}

		pkt, ok := decodePacket(data)
		if !ok {
			continue
		}

		select {
		case out <- pkt:
		case <-c.stopCh:
			return
		}
	}
}

// Stop tears down the capture session: it signals the dispatch loop to
// break, waits for it to exit, and only then closes the handle. This order
// is critical — closing the handle while the loop thread still holds it is
// undefined behavior in the underlying library.
func (c *Capture) Stop() {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()

	if !started {
		c.handle.Close()

		return
	}

	close(c.stopCh)
	c.wg.Wait()
	c.handle.Close()
}

func decodePacket(data []byte) (pkt Packet, ok bool) {
	parsed := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.DecodeOptions{
		Lazy:   true,
		NoCopy: true,
	})

	src, dst, ok := networkEndpoints(parsed)
	if !ok {
		return pkt, false
	}

	remote, dir, ok := classify(src, dst)
	if !ok {
		return pkt, false
	}

	return Packet{IP: remote, Len: len(data), Direction: dir}, true
}

func networkEndpoints(parsed gopacket.Packet) (src, dst netip.Addr, ok bool) {
	if layer := parsed.Layer(layers.LayerTypeIPv4); layer != nil {
		ip4 := layer.(*layers.IPv4)

		src, ok = netip.AddrFromSlice(ip4.SrcIP.To4())
		if !ok {
			return src, dst, false
		}

		dst, ok = netip.AddrFromSlice(ip4.DstIP.To4())

		return src, dst, ok
	}

	if layer := parsed.Layer(layers.LayerTypeIPv6); layer != nil {
		ip6 := layer.(*layers.IPv6)

		src, ok = netip.AddrFromSlice(ip6.SrcIP.To16())
		if !ok {
			return src, dst, false
		}

		dst, ok = netip.AddrFromSlice(ip6.DstIP.To16())

		return src, dst, ok
	}

	return src, dst, false
}
