package resmon

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// stepSampler advances 100 ticks per CPU read, 25 of them busy.
type stepSampler struct {
	mu    sync.Mutex
	calls uint64
	mem   float64
	err   error
}

func (s *stepSampler) CPU() (CPUTimes, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return CPUTimes{Busy: s.calls * 25, Total: s.calls * 100}, nil
}

func (s *stepSampler) MemPercent() (float64, error) {
	return s.mem, s.err
}

func waitForSamples(t *testing.T, m *Monitor, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cpu, _ := m.Samples(); cpu >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("monitor did not collect %d samples", n)
}

func TestMonitorAverages(t *testing.T) {
	m := New(&stepSampler{mem: 40}, time.Millisecond, nil)
	m.Start()
	waitForSamples(t, m, 3)
	m.Stop()

	cpu, mem := m.Averages()
	if cpu != 25 {
		t.Fatalf("expected cpu 25%%, got %.2f", cpu)
	}
	if mem != 40 {
		t.Fatalf("expected mem 40%%, got %.2f", mem)
	}
}

func TestMonitorStopIsIdempotent(t *testing.T) {
	m := New(&stepSampler{}, time.Millisecond, nil)
	m.Stop()
	m.Start()
	m.Stop()
	m.Stop()
	if cpu, mem := m.Averages(); cpu != 0 || mem != 0 {
		t.Fatalf("expected no samples after stop before start, got %.2f %.2f", cpu, mem)
	}
}

func TestMonitorSkipsFailedMemorySamples(t *testing.T) {
	m := New(&stepSampler{err: errors.New("no meminfo")}, time.Millisecond, nil)
	m.Start()
	waitForSamples(t, m, 2)
	m.Stop()
	if _, mem := m.Samples(); mem != 0 {
		t.Fatalf("expected no memory samples, got %d", mem)
	}
}

func TestNoSamplesAveragesZero(t *testing.T) {
	m := New(nil, 0, nil)
	if m.interval != DefaultInterval {
		t.Fatalf("expected default interval, got %s", m.interval)
	}
	if cpu, mem := m.Averages(); cpu != 0 || mem != 0 {
		t.Fatalf("expected zero averages")
	}
}
