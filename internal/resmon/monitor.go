package resmon

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	sigar "github.com/elastic/gosigar"
)

// DefaultInterval is the sampling period.
const DefaultInterval = 500 * time.Millisecond

// CPUTimes are cumulative CPU counters in ticks.
type CPUTimes struct {
	Busy  uint64
	Total uint64
}

// Sampler reads host counters.
type Sampler interface {
	CPU() (CPUTimes, error)
	// MemPercent returns used memory as a percentage of total.
	MemPercent() (float64, error)
}

// HostSampler reads the host's counters through gosigar.
type HostSampler struct{}

func (HostSampler) CPU() (CPUTimes, error) {
	var cpu sigar.Cpu
	if err := cpu.Get(); err != nil {
		return CPUTimes{}, fmt.Errorf("read cpu counters: %w", err)
	}
	total := cpu.Total()
	return CPUTimes{Busy: total - cpu.Idle - cpu.Wait, Total: total}, nil
}

func (HostSampler) MemPercent() (float64, error) {
	var mem sigar.Mem
	if err := mem.Get(); err != nil {
		return 0, fmt.Errorf("read memory counters: %w", err)
	}
	if mem.Total == 0 {
		return 0, nil
	}
	return float64(mem.ActualUsed) / float64(mem.Total) * 100, nil
}

// Monitor samples CPU and memory utilisation in the background while a run
// is in progress.
type Monitor struct {
	sampler  Sampler
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	cpu     []float64
	mem     []float64
	started bool
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// New returns a monitor; a nil sampler means HostSampler.
func New(sampler Sampler, interval time.Duration, logger *slog.Logger) *Monitor {
	if sampler == nil {
		sampler = HostSampler{}
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Monitor{
		sampler:  sampler,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sampling goroutine. Calling it twice, or after Stop,
// is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	select {
	case <-m.stop:
		return
	default:
	}
	m.started = true
	go m.loop()
}

// Stop signals the sampler and waits for it to exit. It is safe to call
// more than once, and before Start.
func (m *Monitor) Stop() {
	m.once.Do(func() {
		close(m.stop)
	})
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if started {
		<-m.done
	}
}

// Averages returns the mean CPU and memory percentages, 0 when no samples
// were taken.
func (m *Monitor) Averages() (cpu, mem float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return mean(m.cpu), mean(m.mem)
}

// Samples returns how many CPU and memory samples were collected.
func (m *Monitor) Samples() (cpu, mem int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cpu), len(m.mem)
}

func (m *Monitor) loop() {
	defer close(m.done)

	prev, err := m.sampler.CPU()
	havePrev := err == nil
	if err != nil {
		m.logger.Debug("cpu baseline unavailable", "error", err)
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
		}

		if cur, err := m.sampler.CPU(); err != nil {
			m.logger.Debug("cpu sample failed", "error", err)
		} else {
			if havePrev && cur.Total > prev.Total {
				pct := float64(cur.Busy-prev.Busy) / float64(cur.Total-prev.Total) * 100
				m.mu.Lock()
				m.cpu = append(m.cpu, pct)
				m.mu.Unlock()
			}
			prev, havePrev = cur, true
		}

		if pct, err := m.sampler.MemPercent(); err != nil {
			m.logger.Debug("memory sample failed", "error", err)
		} else {
			m.mu.Lock()
			m.mem = append(m.mem, pct)
			m.mu.Unlock()
		}
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
