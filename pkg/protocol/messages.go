package protocol

// TelemetryEvent mirrors one row of the time-series log. Optional fields
// are omitted when they do not apply to the event type.
type TelemetryEvent struct {
	RunID         int      `json:"run_id"`
	TimestampSec  float64  `json:"timestamp_sec"`
	EventType     string   `json:"event_type"`
	ChunkNum      *uint32  `json:"chunk_num,omitempty"`
	DataSizeBytes *int     `json:"data_size_bytes,omitempty"`
	RTTMs         *float64 `json:"rtt_ms,omitempty"`
}

// RunSummary reports the outcome of one retrieval run.
type RunSummary struct {
	RunID               int      `json:"run_id"`
	ContentName         string   `json:"content_name"`
	State               string   `json:"state"`
	AbortReason         string   `json:"abort_reason,omitempty"`
	TotalTimeSec        float64  `json:"total_time_sec"`
	TotalBytesExpected  int64    `json:"total_bytes_expected"`
	TotalBytesReceived  int64    `json:"total_bytes_received"`
	InterestsSent       int      `json:"interests_sent"`
	DataPacketsReceived uint32   `json:"data_packets_received"`
	Timeouts            int      `json:"timeouts"`
	ThroughputMbps      float64  `json:"throughput_mbps"`
	AvgChunkRTTMs       float64  `json:"avg_chunk_rtt_ms"`
	AvgCPUPercent       float64  `json:"avg_cpu_percent"`
	AvgMemPercent       float64  `json:"avg_mem_percent"`
	TTFBMs              *float64 `json:"ttfb_ms,omitempty"`
}
