package captbuf

import (
	"net/netip"
	"sync"

	"github.com/ipmap/core/internal/capture"
)

// connectionStatus tracks whether a [connection]'s first report to a
// consumer has happened yet, so that Buffer.Connections can flag a
// newly-observed remote exactly once.
type connectionStatus uint8

const (
	statusStarted connectionStatus = iota
	statusActive
	statusEnded
)

// connection aggregates samples for one remote address into per-direction
// moving averages.
type connection struct {
	up, down movingAverage
	status   connectionStatus
}

func (c *connection) addSample(pkt capture.Packet) {
	switch pkt.Direction {
	case capture.Up:
		c.up.addSample(pkt.Len)
	case capture.Down:
		c.down.addSample(pkt.Len)
	}
}

// info computes this connection's current snapshot and status, flipping a
// Started status to Active in place so later reports don't repeat it.
func (c *connection) info() (info ConnectionInfo, status connectionStatus) {
	info = ConnectionInfo{Up: c.up.info(), Down: c.down.info()}

	switch {
	case c.status == statusStarted:
		c.status = statusActive

		return info, statusStarted
	case info.Up.AvgBytesPerSec+info.Down.AvgBytesPerSec == 0:
		return info, statusEnded
	default:
		return info, statusActive
	}
}

// ConnectionInfo is a per-direction snapshot of one remote address's traffic
// rate and cumulative byte count.
type ConnectionInfo struct {
	Up   MovingAverageInfo
	Down MovingAverageInfo
}

// Connections is a snapshot produced by [Buffer.Connections]: entries still
// carrying traffic, remotes seen for the first time this round, and remotes
// whose traffic has gone fully idle and been dropped from the buffer.
type Connections struct {
	Updates         map[netip.Addr]ConnectionInfo
	Started         []netip.Addr
	Ended           []netip.Addr
	StoppingCapture bool
}

// StopConnections is the terminal report sent once a capture is being torn
// down, carrying no traffic data.
func StopConnections() (c Connections) {
	return Connections{StoppingCapture: true}
}

// Buffer aggregates a [capture.Capture]'s packet stream into per-remote-IP
// connection state, consumed via periodic [Buffer.Connections] snapshots.
type Buffer struct {
	mu   sync.Mutex
	byIP map[netip.Addr]*connection

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewBuffer starts consuming packets from cap and returns the Buffer that
// accumulates them. The consuming goroutine exits once packets is closed or
// Stop is called.
func NewBuffer(packets <-chan capture.Packet) (b *Buffer) {
	b = &Buffer{
		byIP:   make(map[netip.Addr]*connection),
		stopCh: make(chan struct{}),
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.consume(packets)
	}()

	return b
}

func (b *Buffer) consume(packets <-chan capture.Packet) {
	for {
		select {
		case pkt, ok := <-packets:
			if !ok {
				return
			}

			b.mu.Lock()
			c, found := b.byIP[pkt.IP]
			if !found {
				c = &connection{}
				b.byIP[pkt.IP] = c
			}
			c.addSample(pkt)
			b.mu.Unlock()
		case <-b.stopCh:
			return
		}
	}
}

// Stop signals the consuming goroutine to exit and waits for it.
func (b *Buffer) Stop() {
	close(b.stopCh)
	b.wg.Wait()
}

// Connections takes a snapshot of every tracked remote, removing any whose
// status has gone Ended.
func (b *Buffer) Connections() (c Connections) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c.Updates = make(map[netip.Addr]ConnectionInfo, len(b.byIP))

	for ip, conn := range b.byIP {
		info, status := conn.info()

		switch status {
		case statusStarted:
			c.Started = append(c.Started, ip)
			c.Updates[ip] = info
		case statusEnded:
			c.Ended = append(c.Ended, ip)
		default:
			c.Updates[ip] = info
		}
	}

	for _, ip := range c.Ended {
		delete(b.byIP, ip)
	}

	return c
}
