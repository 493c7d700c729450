package retrieval

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockProducer is an in-memory Client backed by a simulated producer.
// It runs on a virtual clock: Receive advances the clock to the next due
// response, or by the full timeout when nothing is due, so tests involving
// thousands of round trips finish instantly and RTTs are exact.
type MockProducer struct {
	mu sync.Mutex

	contentName string
	totalChunks uint32
	chunkSize   int
	now         time.Time

	// Delay is the response latency for every answered request.
	Delay time.Duration
	// DelayFunc, when set, overrides Delay per chunk index. Meta requests use Delay.
	DelayFunc func(index uint32) time.Duration
	// Drop reports whether a request goes unanswered.
	Drop func(name string, index uint32) bool
	// DuplicateResponses answers every chunk request twice.
	DuplicateResponses bool
	// MetaPayload, when non-nil, replaces the decimal chunk count in meta answers.
	MetaPayload []byte

	pending  []mockResponse
	injected []Outcome
	requests []MockRequest
	seq      uint64
}

// MockRequest records one request seen by a MockProducer.
type MockRequest struct {
	Name  string
	Index uint32
	At    time.Time
}

type mockResponse struct {
	due time.Time
	seq uint64
	out Outcome
}

// NewMockProducer returns a producer serving totalChunks chunks of chunkSize
// bytes under contentName, answering after 10ms by default.
func NewMockProducer(contentName string, totalChunks uint32, chunkSize int) *MockProducer {
	return &MockProducer{
		contentName: contentName,
		totalChunks: totalChunks,
		chunkSize:   chunkSize,
		now:         time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC),
		Delay:       10 * time.Millisecond,
	}
}

// Now returns the virtual clock. Pass it as Config.Now.
func (m *MockProducer) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the virtual clock forward.
func (m *MockProducer) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Inject queues an outcome returned by the next Receive, ahead of any
// scheduled response and without advancing the clock.
func (m *MockProducer) Inject(out Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.injected = append(m.injected, out)
}

// Requests returns a copy of every request received so far.
func (m *MockProducer) Requests() []MockRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// Pending returns the number of scheduled, undelivered responses.
func (m *MockProducer) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// SendRequest schedules the producer's answer, if any.
func (m *MockProducer) SendRequest(name string, index uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, MockRequest{Name: name, Index: index, At: m.now})
	if m.Drop != nil && m.Drop(name, index) {
		return nil
	}

	switch {
	case name == MetaName(m.contentName):
		payload := m.MetaPayload
		if payload == nil {
			payload = FormatChunkCount(m.totalChunks)
		}
		m.schedule(m.Delay, Outcome{Kind: OutcomeResponse, Name: name, Index: 0, Payload: payload})
	case name == m.contentName && index < m.totalChunks:
		delay := m.Delay
		if m.DelayFunc != nil {
			delay = m.DelayFunc(index)
		}
		out := Outcome{Kind: OutcomeResponse, Name: name, Index: index, Payload: m.chunk(index)}
		m.schedule(delay, out)
		if m.DuplicateResponses {
			m.schedule(delay, out)
		}
	}
	return nil
}

// Receive delivers the next outcome within timeout on the virtual clock.
func (m *MockProducer) Receive(ctx context.Context, timeout time.Duration) Outcome {
	if ctx.Err() != nil {
		return TimeoutOutcome()
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.injected) > 0 {
		out := m.injected[0]
		m.injected = m.injected[1:]
		return out
	}

	deadline := m.now.Add(timeout)
	if len(m.pending) > 0 && !m.pending[0].due.After(deadline) {
		next := m.pending[0]
		m.pending = m.pending[1:]
		if next.due.After(m.now) {
			m.now = next.due
		}
		return next.out
	}
	m.now = deadline
	return TimeoutOutcome()
}

func (m *MockProducer) schedule(delay time.Duration, out Outcome) {
	m.seq++
	resp := mockResponse{due: m.now.Add(delay), seq: m.seq, out: out}
	i := sort.Search(len(m.pending), func(i int) bool {
		p := m.pending[i]
		return p.due.After(resp.due) || (p.due.Equal(resp.due) && p.seq > resp.seq)
	})
	m.pending = append(m.pending, mockResponse{})
	copy(m.pending[i+1:], m.pending[i:])
	m.pending[i] = resp
}

func (m *MockProducer) chunk(index uint32) []byte {
	size := m.chunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte(index)
	}
	return buf
}
