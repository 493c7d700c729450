package retrieval

import "time"

// State is the lifecycle state of a retrieval session.
type State int

const (
	StateRunning State = iota
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// AbortReason explains why a session ended in StateAborted.
type AbortReason string

const (
	AbortNone                AbortReason = ""
	AbortConsecutiveTimeouts AbortReason = "consecutive_timeouts"
	AbortCanceled            AbortReason = "canceled"
)

// RunStats is the finalized record of one session.
type RunStats struct {
	RunID       int
	ContentName string
	State       State
	AbortReason AbortReason

	Elapsed        time.Duration
	TotalChunks    uint32
	ChunkSize      int
	BytesReceived  int64
	RequestsSent   int
	ChunksReceived uint32
	Timeouts       int
	// RTTs holds one entry per accepted response that matched an in-flight request.
	RTTs []time.Duration

	// Debug counters for packets that caused no state change.
	Duplicates       int
	OutOfRange       int
	ForeignResponses int
	RequestsIgnored  int
	SendErrors       int
	// MaxInFlight is the largest in-flight table size observed.
	MaxInFlight int
}

// Completed reports whether every chunk was received.
func (s RunStats) Completed() bool {
	return s.State == StateCompleted
}

// AvgRTT is the arithmetic mean of recorded RTTs, 0 when none were recorded.
func (s RunStats) AvgRTT() time.Duration {
	if len(s.RTTs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, rtt := range s.RTTs {
		sum += rtt
	}
	return sum / time.Duration(len(s.RTTs))
}

// AvgRTTMs is AvgRTT in fractional milliseconds.
func (s RunStats) AvgRTTMs() float64 {
	if len(s.RTTs) == 0 {
		return 0
	}
	var sum float64
	for _, rtt := range s.RTTs {
		sum += durationMs(rtt)
	}
	return sum / float64(len(s.RTTs))
}

// ExpectedBytes is the byte count of a full retrieval at ChunkSize per chunk.
func (s RunStats) ExpectedBytes() int64 {
	return int64(s.TotalChunks) * int64(s.ChunkSize)
}

// SuccessRatePercent compares received bytes with ExpectedBytes.
func (s RunStats) SuccessRatePercent() float64 {
	expected := s.ExpectedBytes()
	if expected <= 0 {
		return 0
	}
	return float64(s.BytesReceived) / float64(expected) * 100
}

// ThroughputMbps is received payload bits per second over the whole run, in megabits.
func (s RunStats) ThroughputMbps() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.BytesReceived) * 8 / s.Elapsed.Seconds() / 1e6
}
