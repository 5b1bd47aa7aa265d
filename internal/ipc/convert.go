package ipc

import (
	"fmt"

	"github.com/ipmap/core/internal/captbuf"
	"github.com/ipmap/core/internal/capture"
)

// DeviceToWire converts a [capture.Device] to its wire representation.
func DeviceToWire(d capture.Device) (w DeviceInfo) {
	return DeviceInfo{
		Name:        d.Name,
		Description: d.Description,
		Ready:       d.Ready,
		Wireless:    d.Wireless,
	}
}

// DevicesToWire converts a slice of [capture.Device].
func DevicesToWire(devices []capture.Device) (wire []DeviceInfo) {
	wire = make([]DeviceInfo, len(devices))
	for i, d := range devices {
		wire[i] = DeviceToWire(d)
	}

	return wire
}

func movingAverageToWire(m captbuf.MovingAverageInfo) (w WireMovingAverage) {
	return WireMovingAverage{Total: m.Total, AvgBytesPerSec: m.AvgBytesPerSec}
}

func connectionInfoToWire(c captbuf.ConnectionInfo) (w WireConnectionInfo) {
	return WireConnectionInfo{Up: movingAverageToWire(c.Up), Down: movingAverageToWire(c.Down)}
}

// ConnectionsToWire converts a [captbuf.Connections] snapshot to its wire
// representation, stringifying each remote [netip.Addr] key.
func ConnectionsToWire(c captbuf.Connections) (w WireConnections) {
	w.Updates = make(map[string]WireConnectionInfo, len(c.Updates))
	for ip, info := range c.Updates {
		w.Updates[ip.String()] = connectionInfoToWire(info)
	}

	w.Started = addrsToStrings(c.Started)
	w.Ended = addrsToStrings(c.Ended)
	w.StoppingCapture = c.StoppingCapture

	return w
}

func addrsToStrings[T fmt.Stringer](addrs []T) (strs []string) {
	if len(addrs) == 0 {
		return nil
	}

	strs = make([]string, len(addrs))
	for i, a := range addrs {
		strs[i] = a.String()
	}

	return strs
}
