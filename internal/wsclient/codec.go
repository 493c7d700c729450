package wsclient

import (
	"fmt"

	"github.com/Hiro-Washi/da-icn/internal/retrieval"
	"github.com/Hiro-Washi/da-icn/pkg/protocol"
)

// EncodeEvent converts a telemetry event to its wire form.
func EncodeEvent(ev retrieval.Event) protocol.TelemetryEvent {
	return protocol.TelemetryEvent{
		RunID:         ev.RunID,
		TimestampSec:  ev.TimestampSec,
		EventType:     ev.Type.String(),
		ChunkNum:      ev.ChunkIndex,
		DataSizeBytes: ev.PayloadSize,
		RTTMs:         ev.RTTMs,
	}
}

// DecodeEvent converts a wire event back, rejecting unknown event types.
func DecodeEvent(te protocol.TelemetryEvent) (retrieval.Event, error) {
	typ, ok := retrieval.ParseEventType(te.EventType)
	if !ok {
		return retrieval.Event{}, fmt.Errorf("unknown event type %q", te.EventType)
	}
	return retrieval.Event{
		RunID:        te.RunID,
		TimestampSec: te.TimestampSec,
		Type:         typ,
		ChunkIndex:   te.ChunkNum,
		PayloadSize:  te.DataSizeBytes,
		RTTMs:        te.RTTMs,
	}, nil
}
