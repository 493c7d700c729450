package progress

import (
	"sync"
	"time"
)

// Stats is a point-in-time view of a chunked retrieval.
type Stats struct {
	ChunksDone  uint32
	TotalChunks uint32
	BytesDone   int64
	// ChunkRate is a smoothed chunks-per-second rate.
	ChunkRate float64
	// RateBps is a smoothed payload rate in bytes per second.
	RateBps   float64
	ETA       time.Duration
	Percent   float64
	StartedAt time.Time
}

// Meter tracks chunk progress and computes smoothed rates.
type Meter struct {
	mu         sync.Mutex
	total      uint32
	chunks     uint32
	bytes      int64
	startedAt  time.Time
	lastAt     time.Time
	lastChunks uint32
	lastBytes  int64
	chunkRate  float64
	rateBps    float64
	alpha      float64
	now        func() time.Time
}

// NewMeter returns a meter with a default smoothing factor.
func NewMeter() *Meter {
	return NewMeterWithNow(time.Now)
}

// NewMeterWithNow returns a meter with a custom time source (for tests).
func NewMeterWithNow(now func() time.Time) *Meter {
	if now == nil {
		now = time.Now
	}
	return &Meter{alpha: 0.2, now: now}
}

// Start resets the meter for a run of totalChunks.
func (m *Meter) Start(totalChunks uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total = totalChunks
	m.chunks = 0
	m.bytes = 0
	m.startedAt = m.now()
	m.lastAt = m.startedAt
	m.lastChunks = 0
	m.lastBytes = 0
	m.chunkRate = 0
	m.rateBps = 0
}

// Observe records that received chunks are done and n more payload bytes arrived.
func (m *Meter) Observe(received uint32, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if received > m.chunks {
		m.chunks = received
	}
	if n > 0 {
		m.bytes += int64(n)
	}
	dt := now.Sub(m.lastAt).Seconds()
	if dt <= 0 {
		return
	}
	instChunks := float64(m.chunks-m.lastChunks) / dt
	instBytes := float64(m.bytes-m.lastBytes) / dt
	if m.chunkRate == 0 && m.rateBps == 0 {
		m.chunkRate = instChunks
		m.rateBps = instBytes
	} else {
		m.chunkRate = m.alpha*instChunks + (1-m.alpha)*m.chunkRate
		m.rateBps = m.alpha*instBytes + (1-m.alpha)*m.rateBps
	}
	m.lastAt = now
	m.lastChunks = m.chunks
	m.lastBytes = m.bytes
}

// Snapshot returns the current progress.
func (m *Meter) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := Stats{
		ChunksDone:  m.chunks,
		TotalChunks: m.total,
		BytesDone:   m.bytes,
		ChunkRate:   m.chunkRate,
		RateBps:     m.rateBps,
		StartedAt:   m.startedAt,
	}
	if m.total > 0 {
		stats.Percent = float64(m.chunks) / float64(m.total) * 100
	}
	if m.chunkRate > 0 && m.total > m.chunks {
		remaining := float64(m.total - m.chunks)
		stats.ETA = time.Duration(remaining / m.chunkRate * float64(time.Second))
	}
	return stats
}
