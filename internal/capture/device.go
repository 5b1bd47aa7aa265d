// Package capture opens live packet capture sessions on network devices and
// classifies each observed packet as upstream or downstream traffic relative
// to the local host.
package capture

import (
	"fmt"

	"github.com/google/gopacket/pcap"
)

// Device describes one network interface available for capture.
type Device struct {
	Name        string
	Description string

	// Ready reports whether the interface is both up and running. The
	// underlying pcap flags are independent bits; a device with only one of
	// the two set is not considered ready.
	Ready bool

	Wireless bool
}

// Devices lists the capture-eligible network devices on the host, excluding
// loopback interfaces.
func Devices() (devices []Device, err error) {
	ifaces, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("capture: listing devices: %w", err)
	}

	devices = make([]Device, 0, len(ifaces))
	for _, iface := range ifaces {
		if iface.Flags&pcap.PCAP_IF_LOOPBACK != 0 {
			continue
		}

		devices = append(devices, Device{
			Name:        iface.Name,
			Description: iface.Description,
			Ready:       iface.Flags&pcap.PCAP_IF_UP != 0 && iface.Flags&pcap.PCAP_IF_RUNNING != 0,
			Wireless:    iface.Flags&pcap.PCAP_IF_WIRELESS != 0,
		})
	}

	return devices, nil
}
