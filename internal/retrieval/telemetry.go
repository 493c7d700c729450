package retrieval

import (
	"errors"
	"log/slog"
	"time"
)

// EventType names a state transition observed by the recorder.
type EventType int

const (
	EventRequestSent EventType = iota + 1
	EventTimeout
	EventResponseReceived
)

// String returns the name used in time-series exports.
func (t EventType) String() string {
	switch t {
	case EventRequestSent:
		return "INTEREST_SENT"
	case EventTimeout:
		return "TIMEOUT"
	case EventResponseReceived:
		return "DATA_RECEIVED"
	default:
		return "UNKNOWN"
	}
}

// ParseEventType is the inverse of EventType.String.
func ParseEventType(s string) (EventType, bool) {
	switch s {
	case "INTEREST_SENT":
		return EventRequestSent, true
	case "TIMEOUT":
		return EventTimeout, true
	case "DATA_RECEIVED":
		return EventResponseReceived, true
	default:
		return 0, false
	}
}

// Event is one telemetry record. Optional fields are nil when they do not
// apply: timeouts carry no chunk, requests carry no size or RTT, and a
// response with no matching in-flight entry carries no RTT.
type Event struct {
	RunID        int
	TimestampSec float64
	Type         EventType
	ChunkIndex   *uint32
	PayloadSize  *int
	RTTMs        *float64
}

// Sink consumes telemetry events in the order they were produced.
type Sink interface {
	Record(Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event) error

func (f SinkFunc) Record(ev Event) error {
	return f(ev)
}

// ErrSinkFull is returned by ChanSink when the channel has no room.
var ErrSinkFull = errors.New("telemetry sink full")

// ChanSink delivers events to a channel without blocking the retrieval loop.
type ChanSink chan<- Event

func (c ChanSink) Record(ev Event) error {
	select {
	case c <- ev:
		return nil
	default:
		return ErrSinkFull
	}
}

// MultiSink fans an event out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Record(ev Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// recorder turns state transitions into events. Sink errors are logged and
// swallowed; the recorder has no say in the retrieval outcome.
type recorder struct {
	runID   int
	start   time.Time
	sink    Sink
	logger  *slog.Logger
	dropped int
}

func newRecorder(runID int, start time.Time, sink Sink, logger *slog.Logger) *recorder {
	return &recorder{runID: runID, start: start, sink: sink, logger: logger}
}

func (r *recorder) requestSent(now time.Time, index uint32) {
	idx := index
	r.emit(Event{Type: EventRequestSent, TimestampSec: r.since(now), ChunkIndex: &idx})
}

func (r *recorder) timeout(now time.Time) {
	r.emit(Event{Type: EventTimeout, TimestampSec: r.since(now)})
}

func (r *recorder) responseReceived(now time.Time, index uint32, size int, rtt *time.Duration) {
	idx := index
	sz := size
	ev := Event{Type: EventResponseReceived, TimestampSec: r.since(now), ChunkIndex: &idx, PayloadSize: &sz}
	if rtt != nil {
		ms := durationMs(*rtt)
		ev.RTTMs = &ms
	}
	r.emit(ev)
}

func (r *recorder) since(now time.Time) float64 {
	return now.Sub(r.start).Seconds()
}

func (r *recorder) emit(ev Event) {
	if r.sink == nil {
		return
	}
	ev.RunID = r.runID
	if err := r.sink.Record(ev); err != nil {
		r.dropped++
		// One warning per run is enough; the rest go to debug.
		if r.dropped == 1 {
			r.logger.Warn("telemetry sink rejected event", "run_id", r.runID, "event", ev.Type.String(), "error", err)
		} else {
			r.logger.Debug("telemetry sink rejected event", "run_id", r.runID, "event", ev.Type.String(), "error", err)
		}
	}
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
