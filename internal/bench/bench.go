package bench

import (
	"math"
	"sync"
	"time"

	"github.com/Hiro-Washi/da-icn/internal/retrieval"
)

// DefaultInterval is the bucket width used for instantaneous throughput.
const DefaultInterval = time.Second

const ewmaAlpha = 0.2

// Bench derives throughput figures for one run from its telemetry. It reads
// event timestamps only, so results do not depend on when Record is called.
type Bench struct {
	mu       sync.Mutex
	interval float64

	bytes       int64
	bucketStart float64
	bucketBytes int64
	lastTs      float64
	closed      int

	ewma    float64
	peak    float64
	ttfbMs  float64
	gotTTFB bool
}

type Snapshot struct {
	Bytes    int64
	Elapsed  time.Duration
	EwmaMbps float64
	PeakMbps float64
	TTFBMs   float64
	GotTTFB  bool
}

type Summary struct {
	Bytes    int64
	Elapsed  time.Duration
	AvgMbps  float64
	PeakMbps float64
	TTFBMs   float64
	GotTTFB  bool
}

// New returns a Bench with the given bucket width; non-positive means DefaultInterval.
func New(interval time.Duration) *Bench {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Bench{interval: interval.Seconds()}
}

var _ retrieval.Sink = (*Bench)(nil)

// Record consumes DATA_RECEIVED events; other events only advance time.
func (b *Bench) Record(ev retrieval.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.roll(ev.TimestampSec)
	if ev.TimestampSec > b.lastTs {
		b.lastTs = ev.TimestampSec
	}
	if ev.Type != retrieval.EventResponseReceived || ev.PayloadSize == nil {
		return nil
	}
	size := int64(*ev.PayloadSize)
	b.bytes += size
	b.bucketBytes += size
	if !b.gotTTFB && size > 0 {
		b.gotTTFB = true
		b.ttfbMs = ev.TimestampSec * 1000
	}
	return nil
}

// roll closes every bucket that ends at or before ts.
func (b *Bench) roll(ts float64) {
	if ts < b.bucketStart+b.interval {
		return
	}
	k := math.Floor((ts - b.bucketStart) / b.interval)
	b.observe(mbps(b.bucketBytes, b.interval))
	if k > 1 {
		// idle buckets decay the average without touching the peak
		b.ewma *= math.Pow(1-ewmaAlpha, k-1)
	}
	b.bucketStart += k * b.interval
	b.bucketBytes = 0
}

func (b *Bench) observe(inst float64) {
	if b.closed == 0 {
		b.ewma = inst
	} else {
		b.ewma = ewmaAlpha*inst + (1-ewmaAlpha)*b.ewma
	}
	if inst > b.peak {
		b.peak = inst
	}
	b.closed++
}

// Snapshot reports the figures seen so far.
func (b *Bench) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Bytes:    b.bytes,
		Elapsed:  seconds(b.lastTs),
		EwmaMbps: b.ewma,
		PeakMbps: b.peak,
		TTFBMs:   b.ttfbMs,
		GotTTFB:  b.gotTTFB,
	}
}

// Final closes the run at elapsed and returns its summary. A run shorter
// than one bucket reports its average as the peak.
func (b *Bench) Final(elapsed time.Duration) Summary {
	b.mu.Lock()
	defer b.mu.Unlock()
	end := elapsed.Seconds()
	if end < b.lastTs {
		end = b.lastTs
	}
	s := Summary{
		Bytes:    b.bytes,
		Elapsed:  seconds(end),
		PeakMbps: b.peak,
		TTFBMs:   b.ttfbMs,
		GotTTFB:  b.gotTTFB,
	}
	if end > 0 {
		s.AvgMbps = mbps(b.bytes, end)
	}
	if b.closed == 0 {
		s.PeakMbps = s.AvgMbps
	}
	return s
}

func mbps(bytes int64, secs float64) float64 {
	if secs <= 0 {
		return 0
	}
	return float64(bytes) * 8 / secs / 1e6
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
