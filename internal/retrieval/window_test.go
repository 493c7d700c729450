package retrieval

import (
	"errors"
	"testing"
	"time"
)

func TestChunkSetMarkOnce(t *testing.T) {
	s := newChunkSet(130)
	if !s.Mark(0) || !s.Mark(64) || !s.Mark(129) {
		t.Fatalf("expected first marks to change the set")
	}
	if s.Mark(64) {
		t.Fatalf("expected second mark to be a no-op")
	}
	if s.Mark(130) {
		t.Fatalf("expected out-of-range mark to be rejected")
	}
	if s.Count() != 3 {
		t.Fatalf("expected count 3, got %d", s.Count())
	}
	if !s.Has(129) || s.Has(128) || s.Has(1000) {
		t.Fatalf("unexpected membership")
	}
	if s.Full() {
		t.Fatalf("set should not be full")
	}
}

func TestEmptyChunkSetIsFull(t *testing.T) {
	s := newChunkSet(0)
	if !s.Full() {
		t.Fatalf("expected empty set to be full")
	}
}

func TestWindowFillRespectsCapacity(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	w := newWindow(10, 4)
	received := newChunkSet(10)
	var sent []uint32
	send := func(idx uint32, _ time.Time) { sent = append(sent, idx) }

	if n := w.fill(received, clock, send); n != 4 {
		t.Fatalf("expected 4 requests, got %d", n)
	}
	if n := w.fill(received, clock, send); n != 0 {
		t.Fatalf("expected full window to emit nothing, got %d", n)
	}

	if _, ok := w.settle(2); !ok {
		t.Fatalf("expected chunk 2 in flight")
	}
	if _, ok := w.settle(2); ok {
		t.Fatalf("expected chunk 2 to leave the table only once")
	}
	received.Mark(2)
	received.Mark(4)

	if n := w.fill(received, clock, send); n != 1 {
		t.Fatalf("expected 1 request after settle, got %d", n)
	}
	want := []uint32{0, 1, 2, 3, 5}
	if len(sent) != len(want) {
		t.Fatalf("expected %v, got %v", want, sent)
	}
	for i := range want {
		if sent[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, sent)
		}
	}
	if w.outstanding() != 4 {
		t.Fatalf("expected 4 outstanding, got %d", w.outstanding())
	}
}

func TestWindowExhausts(t *testing.T) {
	now := time.Now()
	w := newWindow(3, 100)
	n := w.fill(newChunkSet(3), func() time.Time { return now }, func(uint32, time.Time) {})
	if n != 3 || !w.exhausted() {
		t.Fatalf("expected all 3 requested and cursor exhausted, got n=%d", n)
	}
}

func TestParseChunkCount(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    uint32
		wantErr bool
	}{
		{name: "plain", payload: "102400", want: 102400},
		{name: "zero", payload: "0", want: 0},
		{name: "whitespace", payload: " 42\n", want: 42},
		{name: "nul padded", payload: "7\x00\x00", want: 7},
		{name: "letters", payload: "abc", wantErr: true},
		{name: "negative", payload: "-5", wantErr: true},
		{name: "empty", payload: "", wantErr: true},
		{name: "overflow", payload: "4294967296", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseChunkCount([]byte(tt.payload))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedMetaPayload) {
					t.Fatalf("expected ErrMalformedMetaPayload, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestChanSinkNeverBlocks(t *testing.T) {
	ch := make(chan Event, 1)
	sink := ChanSink(ch)
	if err := sink.Record(Event{Type: EventTimeout}); err != nil {
		t.Fatalf("first record failed: %v", err)
	}
	if err := sink.Record(Event{Type: EventTimeout}); !errors.Is(err, ErrSinkFull) {
		t.Fatalf("expected ErrSinkFull, got %v", err)
	}
}

func TestMultiSinkJoinsErrors(t *testing.T) {
	var got []EventType
	ok := SinkFunc(func(ev Event) error { got = append(got, ev.Type); return nil })
	bad := SinkFunc(func(Event) error { return errors.New("boom") })
	err := MultiSink{ok, nil, bad}.Record(Event{Type: EventRequestSent})
	if err == nil {
		t.Fatalf("expected joined error")
	}
	if len(got) != 1 || got[0] != EventRequestSent {
		t.Fatalf("expected event delivered to healthy sink, got %v", got)
	}
}

func TestEventTypeNames(t *testing.T) {
	for _, et := range []EventType{EventRequestSent, EventTimeout, EventResponseReceived} {
		parsed, ok := ParseEventType(et.String())
		if !ok || parsed != et {
			t.Fatalf("round trip failed for %s", et)
		}
	}
	if _, ok := ParseEventType("BOGUS"); ok {
		t.Fatalf("expected unknown name to fail")
	}
}
