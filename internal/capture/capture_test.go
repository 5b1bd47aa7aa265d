package capture

import (
	"net"
	"net/netip"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildEthIPv4(t *testing.T, src, dst string, payload []byte) (raw []byte) {
	t.Helper()

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x01, 0x02, 0x03, 0x04, 0x05, 0x06},
		DstMAC:       net.HardwareAddr{0x06, 0x05, 0x04, 0x03, 0x02, 0x01},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.ParseIP(src),
		DstIP:    net.ParseIP(dst),
	}
	udp := &layers.UDP{SrcPort: 1234, DstPort: 5678}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)))

	return buf.Bytes()
}

func TestDecodePacketClassifiesDownDirection(t *testing.T) {
	raw := buildEthIPv4(t, "8.8.8.8", "192.168.1.5", []byte("hello"))

	pkt, ok := decodePacket(raw)
	require.True(t, ok)
	assert.Equal(t, Down, pkt.Direction)
	assert.Equal(t, netip.MustParseAddr("8.8.8.8"), pkt.IP)
	assert.Equal(t, len(raw), pkt.Len)
}

func TestDecodePacketClassifiesUpDirection(t *testing.T) {
	raw := buildEthIPv4(t, "192.168.1.5", "8.8.8.8", []byte("hello"))

	pkt, ok := decodePacket(raw)
	require.True(t, ok)
	assert.Equal(t, Up, pkt.Direction)
	assert.Equal(t, netip.MustParseAddr("8.8.8.8"), pkt.IP)
}

func TestDecodePacketDropsLocalToLocal(t *testing.T) {
	raw := buildEthIPv4(t, "192.168.1.2", "192.168.1.5", []byte("x"))

	_, ok := decodePacket(raw)
	assert.False(t, ok)
}

func TestNetworkEndpointsIPv4(t *testing.T) {
	raw := buildEthIPv4(t, "1.1.1.1", "2.2.2.2", nil)

	parsed := gopacket.NewPacket(raw, layers.LayerTypeEthernet, gopacket.DecodeOptions{Lazy: true, NoCopy: true})

	src, dst, ok := networkEndpoints(parsed)
	require.True(t, ok)
	assert.Equal(t, netip.MustParseAddr("1.1.1.1"), src)
	assert.Equal(t, netip.MustParseAddr("2.2.2.2"), dst)
}
