package captbuf

import (
	"net/netip"
	"testing"
	"time"

	"github.com/ipmap/core/internal/capture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMovingAverageEmpty(t *testing.T) {
	var m movingAverage

	info := m.info()
	assert.Zero(t, info.Total)
	assert.Zero(t, info.AvgBytesPerSec)
}

func TestMovingAverageSingleSampleHasZeroRate(t *testing.T) {
	var m movingAverage

	m.addSample(100)

	info := m.info()
	assert.EqualValues(t, 100, info.Total)
	assert.Zero(t, info.AvgBytesPerSec)
}

func TestMovingAverageCleansExpiredSamples(t *testing.T) {
	var m movingAverage

	m.data.PushBack(sample{bytes: 50, at: time.Now().Add(-10 * time.Second)})
	m.currentWindowSum = 50
	m.totalBytes = 50

	m.addSample(25)

	info := m.info()
	assert.EqualValues(t, 75, info.Total)
	assert.Zero(t, info.AvgBytesPerSec)
}

func TestBufferTracksConnectionLifecycle(t *testing.T) {
	packets := make(chan capture.Packet, 4)
	remote := netip.MustParseAddr("8.8.8.8")

	packets <- capture.Packet{IP: remote, Len: 100, Direction: capture.Up}
	close(packets)

	b := NewBuffer(packets)
	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()

		return len(b.byIP) == 1
	}, time.Second, time.Millisecond)

	snap := b.Connections()
	require.Contains(t, snap.Updates, remote)
	assert.Contains(t, snap.Started, remote)
	assert.Empty(t, snap.Ended)

	snap = b.Connections()
	assert.NotContains(t, snap.Started, remote)
	assert.Contains(t, snap.Ended, remote)

	b.Stop()
}

func TestStopConnections(t *testing.T) {
	c := StopConnections()
	assert.True(t, c.StoppingCapture)
	assert.Empty(t, c.Updates)
}
