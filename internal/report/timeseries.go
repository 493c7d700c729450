package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/Hiro-Washi/da-icn/internal/retrieval"
)

// TimeSeriesHeader lists the time-series CSV columns in order.
var TimeSeriesHeader = []string{
	"run_id",
	"timestamp_sec",
	"event_type",
	"chunk_num",
	"data_size_bytes",
	"rtt_ms",
}

// SourceColumn is the extra leading column of a sourced time series.
const SourceColumn = "source"

// TimeSeries buffers telemetry events from any number of runs. It is safe
// for concurrent use.
type TimeSeries struct {
	mu      sync.Mutex
	sourced bool
	events  []retrieval.Event
	sources []string
}

var _ retrieval.Sink = (*TimeSeries)(nil)

func NewTimeSeries() *TimeSeries {
	return &TimeSeries{}
}

// NewSourcedTimeSeries buffers events from several consumers. Its CSV
// starts with a source column, since run ids only are unique per source.
func NewSourcedTimeSeries() *TimeSeries {
	return &TimeSeries{sourced: true}
}

// Record appends ev with no source.
func (t *TimeSeries) Record(ev retrieval.Event) error {
	return t.RecordFrom("", ev)
}

// RecordFrom appends ev reported by source.
func (t *TimeSeries) RecordFrom(source string, ev retrieval.Event) error {
	t.mu.Lock()
	t.events = append(t.events, ev)
	t.sources = append(t.sources, source)
	t.mu.Unlock()
	return nil
}

// Len returns the number of buffered events.
func (t *TimeSeries) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events)
}

// Events returns a copy of the buffered events.
func (t *TimeSeries) Events() []retrieval.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]retrieval.Event(nil), t.events...)
}

// Sources returns the source of each buffered event, in Events order.
func (t *TimeSeries) Sources() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.sources...)
}

// WriteEvents writes the header and every buffered event to w.
func (t *TimeSeries) WriteEvents(w io.Writer) error {
	t.mu.Lock()
	events := append([]retrieval.Event(nil), t.events...)
	sources := append([]string(nil), t.sources...)
	t.mu.Unlock()

	cw := csv.NewWriter(w)
	header := TimeSeriesHeader
	if t.sourced {
		header = append([]string{SourceColumn}, TimeSeriesHeader...)
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, ev := range events {
		rec := eventRecord(ev)
		if t.sourced {
			rec = append([]string{sources[i]}, rec...)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSV writes the buffered events to path. It writes nothing and returns
// false when no events were recorded.
func (t *TimeSeries) WriteCSV(path string) (bool, error) {
	if t.Len() == 0 {
		return false, nil
	}
	if err := writeFile(path, t.WriteEvents); err != nil {
		return false, fmt.Errorf("write time-series log: %w", err)
	}
	return true, nil
}

func eventRecord(ev retrieval.Event) []string {
	rec := []string{
		strconv.Itoa(ev.RunID),
		strconv.FormatFloat(ev.TimestampSec, 'f', -1, 64),
		ev.Type.String(),
		"",
		"",
		"",
	}
	if ev.ChunkIndex != nil {
		rec[3] = strconv.FormatUint(uint64(*ev.ChunkIndex), 10)
	}
	if ev.PayloadSize != nil {
		rec[4] = strconv.Itoa(*ev.PayloadSize)
	}
	if ev.RTTMs != nil {
		rec[5] = formatFloat(*ev.RTTMs, 3)
	}
	return rec
}
