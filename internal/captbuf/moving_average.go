package captbuf

import (
	"container/list"
	"time"
)

// windowDuration is how far back a [movingAverage] looks when computing its
// rate; samples older than this are dropped on the next read.
const windowDuration = 4 * time.Second

type sample struct {
	bytes int
	at    time.Time
}

// movingAverage is a time-windowed moving average of byte counts, fed by
// repeated calls to addSample and read via info.
type movingAverage struct {
	data             list.List // of sample, oldest at Front
	totalBytes       uint64
	currentWindowSum uint64
}

// addSample records a new sample of n bytes observed now.
func (m *movingAverage) addSample(n int) {
	m.totalBytes += uint64(n)
	m.currentWindowSum += uint64(n)
	m.data.PushBack(sample{bytes: n, at: time.Now()})
}

// info cleans expired samples and returns the current total and
// average-bytes-per-second snapshot.
func (m *movingAverage) info() (i MovingAverageInfo) {
	m.clean()

	return MovingAverageInfo{
		Total:          m.totalBytes,
		AvgBytesPerSec: uint64(m.averageBytesPerSecond()),
	}
}

// clean drops samples whose age exceeds windowDuration from the front of
// the FIFO, which is safe because the data is time-ordered.
func (m *movingAverage) clean() {
	now := time.Now()

	for e := m.data.Front(); e != nil; e = m.data.Front() {
		s := e.Value.(sample)
		if now.Sub(s.at) <= windowDuration {
			break
		}

		m.currentWindowSum -= uint64(s.bytes)
		m.data.Remove(e)
	}
}

// averageBytesPerSecond needs at least two samples to define a meaningful
// duration; with fewer it reports a rate of 0. With samples bunched at
// effectively the same instant, it treats the window sum as an
// instantaneous rate rather than dividing by a near-zero duration.
func (m *movingAverage) averageBytesPerSecond() (rate float64) {
	if m.data.Len() <= 1 {
		return 0
	}

	oldest := m.data.Front().Value.(sample).at
	newest := m.data.Back().Value.(sample).at
	duration := newest.Sub(oldest)

	if duration.Seconds() < epsilon {
		if m.currentWindowSum > 0 {
			return float64(m.currentWindowSum)
		}

		return 0
	}

	return float64(m.currentWindowSum) / duration.Seconds()
}

// epsilon mirrors Rust's f64::EPSILON, the smallest representable gap above
// 1.0 — used only to detect a near-zero duration between the oldest and
// newest sample.
const epsilon = 2.220446049250313e-16

// MovingAverageInfo is a snapshot of one direction's moving average.
type MovingAverageInfo struct {
	Total          uint64
	AvgBytesPerSec uint64
}
