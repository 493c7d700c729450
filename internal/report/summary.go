package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/Hiro-Washi/da-icn/internal/bench"
	"github.com/Hiro-Washi/da-icn/internal/retrieval"
)

// SummaryHeader lists the summary CSV columns in order.
var SummaryHeader = []string{
	"run_id",
	"total_time_sec",
	"total_bytes_expected",
	"total_bytes_received",
	"success_rate_percent",
	"throughput_mbps",
	"interests_sent",
	"data_packets_received",
	"timeouts",
	"avg_chunk_rtt_ms",
	"avg_cpu_percent",
	"avg_mem_percent",
	"final_state",
	"abort_reason",
	"peak_mbps",
	"ttfb_ms",
}

// Summary is one row of the per-run summary report.
type Summary struct {
	RunID               int
	TotalTimeSec        float64
	BytesExpected       int64
	BytesReceived       int64
	SuccessRatePercent  float64
	ThroughputMbps      float64
	InterestsSent       int
	DataPacketsReceived uint32
	Timeouts            int
	AvgChunkRTTMs       float64
	AvgCPUPercent       float64
	AvgMemPercent       float64
	FinalState          string
	AbortReason         string
	PeakMbps            float64
	// TTFBMs is nil when no payload arrived.
	TTFBMs *float64
}

// NewSummary builds a row from a finished run and its side measurements.
func NewSummary(stats retrieval.RunStats, cpu, mem float64, tp bench.Summary) Summary {
	s := Summary{
		RunID:               stats.RunID,
		TotalTimeSec:        stats.Elapsed.Seconds(),
		BytesExpected:       stats.ExpectedBytes(),
		BytesReceived:       stats.BytesReceived,
		SuccessRatePercent:  stats.SuccessRatePercent(),
		ThroughputMbps:      stats.ThroughputMbps(),
		InterestsSent:       stats.RequestsSent,
		DataPacketsReceived: stats.ChunksReceived,
		Timeouts:            stats.Timeouts,
		AvgChunkRTTMs:       stats.AvgRTTMs(),
		AvgCPUPercent:       cpu,
		AvgMemPercent:       mem,
		FinalState:          stats.State.String(),
		AbortReason:         string(stats.AbortReason),
		PeakMbps:            tp.PeakMbps,
	}
	if tp.GotTTFB {
		ttfb := tp.TTFBMs
		s.TTFBMs = &ttfb
	}
	return s
}

func (s Summary) record() []string {
	ttfb := ""
	if s.TTFBMs != nil {
		ttfb = formatFloat(*s.TTFBMs, 3)
	}
	return []string{
		strconv.Itoa(s.RunID),
		formatFloat(s.TotalTimeSec, 3),
		strconv.FormatInt(s.BytesExpected, 10),
		strconv.FormatInt(s.BytesReceived, 10),
		formatFloat(s.SuccessRatePercent, 2),
		formatFloat(s.ThroughputMbps, 3),
		strconv.Itoa(s.InterestsSent),
		strconv.FormatUint(uint64(s.DataPacketsReceived), 10),
		strconv.Itoa(s.Timeouts),
		formatFloat(s.AvgChunkRTTMs, 3),
		formatFloat(s.AvgCPUPercent, 2),
		formatFloat(s.AvgMemPercent, 2),
		s.FinalState,
		s.AbortReason,
		formatFloat(s.PeakMbps, 3),
		ttfb,
	}
}

// WriteSummary writes the header and rows to w.
func WriteSummary(w io.Writer, rows []Summary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(SummaryHeader); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write(row.record()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummaryCSV writes rows to path. It writes nothing and returns false
// when rows is empty.
func WriteSummaryCSV(path string, rows []Summary) (bool, error) {
	if len(rows) == 0 {
		return false, nil
	}
	if err := writeFile(path, func(w io.Writer) error { return WriteSummary(w, rows) }); err != nil {
		return false, fmt.Errorf("write summary report: %w", err)
	}
	return true, nil
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func formatFloat(f float64, prec int) string {
	return strconv.FormatFloat(f, 'f', prec, 64)
}
