package protocol

// Message type constants for protocol envelopes.
const (
	TypeTelemetryEvent = "telemetry_event"
	TypeRunSummary     = "run_summary"
)
