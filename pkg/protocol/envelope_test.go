package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNewEnvelope(t *testing.T) {
	chunk := uint32(7)
	tests := []struct {
		name    string
		msgType string
		msgID   string
		payload any
	}{
		{
			name:    "telemetry event",
			msgType: TypeTelemetryEvent,
			msgID:   "test123",
			payload: TelemetryEvent{RunID: 1, TimestampSec: 0.5, EventType: "INTEREST_SENT", ChunkNum: &chunk},
		},
		{
			name:    "run summary",
			msgType: TypeRunSummary,
			msgID:   "test456",
			payload: RunSummary{RunID: 1, State: "completed"},
		},
		{
			name:    "nil payload",
			msgType: "test",
			msgID:   "test000",
			payload: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := NewEnvelope(tt.msgType, tt.msgID, tt.payload)
			if err != nil {
				t.Fatalf("NewEnvelope() error = %v", err)
			}
			if env.V != ProtocolVersion {
				t.Errorf("NewEnvelope() V = %d, want %d", env.V, ProtocolVersion)
			}
			if env.Type != tt.msgType {
				t.Errorf("NewEnvelope() Type = %s, want %s", env.Type, tt.msgType)
			}
			if env.MsgID != tt.msgID {
				t.Errorf("NewEnvelope() MsgID = %s, want %s", env.MsgID, tt.msgID)
			}
			if tt.payload == nil && env.Payload != nil {
				t.Errorf("NewEnvelope() Payload = %s, want nil", env.Payload)
			}
		})
	}
}

func TestNewEnvelopeRejectsUnmarshalablePayload(t *testing.T) {
	if _, err := NewEnvelope(TypeRunSummary, "id", make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}
}

func TestTelemetryEventOmitsNullFields(t *testing.T) {
	env, err := NewEnvelope(TypeTelemetryEvent, NewMsgID(), TelemetryEvent{RunID: 2, TimestampSec: 1.25, EventType: "TIMEOUT"})
	if err != nil {
		t.Fatalf("NewEnvelope() error = %v", err)
	}
	payload := string(env.Payload)
	for _, field := range []string{"chunk_num", "data_size_bytes", "rtt_ms"} {
		if strings.Contains(payload, field) {
			t.Errorf("payload %s should omit %s", payload, field)
		}
	}

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	var decoded Envelope
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if err := decoded.ValidateBasic(); err != nil {
		t.Fatalf("ValidateBasic() error = %v", err)
	}
	var ev TelemetryEvent
	if err := decoded.DecodePayload(&ev); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if ev.RunID != 2 || ev.EventType != "TIMEOUT" || ev.ChunkNum != nil || ev.RTTMs != nil {
		t.Errorf("unexpected decoded event %+v", ev)
	}
}

func TestEnvelope_ValidateBasic(t *testing.T) {
	tests := []struct {
		name    string
		env     Envelope
		wantErr string
	}{
		{name: "valid", env: Envelope{V: ProtocolVersion, Type: TypeRunSummary, MsgID: "a"}},
		{name: "wrong version", env: Envelope{V: 2, Type: TypeRunSummary, MsgID: "a"}, wantErr: "invalid protocol version"},
		{name: "missing type", env: Envelope{V: ProtocolVersion, MsgID: "a"}, wantErr: "type is required"},
		{name: "missing msg id", env: Envelope{V: ProtocolVersion, Type: TypeRunSummary}, wantErr: "msg_id is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.env.ValidateBasic()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidateBasic() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("ValidateBasic() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestDecodePayloadEmpty(t *testing.T) {
	var out RunSummary
	if err := (Envelope{}).DecodePayload(&out); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestNewMsgID(t *testing.T) {
	a, b := NewMsgID(), NewMsgID()
	if len(a) != 16 || a == b {
		t.Fatalf("unexpected msg ids %q %q", a, b)
	}
}
