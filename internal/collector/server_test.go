package collector

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Hiro-Washi/da-icn/internal/metrics"
	"github.com/Hiro-Washi/da-icn/internal/retrieval"
	"github.com/Hiro-Washi/da-icn/internal/wsclient"
	"github.com/Hiro-Washi/da-icn/pkg/protocol"
)

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + "/events"
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestHealth(t *testing.T) {
	srv := NewServer(nil, Options{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]bool
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if !body["ok"] {
		t.Fatalf("expected ok=true, got %v", body)
	}
}

func TestPublisherToCollector(t *testing.T) {
	m := metrics.NewCollector()
	srv := NewServer(nil, Options{Sink: m, MetricsHandler: m.Handler()})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	pub, err := wsclient.NewPublisher(context.Background(), wsURL(ts.URL), "host-a", 16, nil)
	if err != nil {
		t.Fatalf("NewPublisher failed: %v", err)
	}
	idx := uint32(3)
	size := 1024
	rtt := 1.25
	events := []retrieval.Event{
		{RunID: 1, TimestampSec: 0.1, Type: retrieval.EventRequestSent, ChunkIndex: &idx},
		{RunID: 1, TimestampSec: 0.2, Type: retrieval.EventResponseReceived, ChunkIndex: &idx, PayloadSize: &size, RTTMs: &rtt},
		{RunID: 1, TimestampSec: 1.2, Type: retrieval.EventTimeout},
	}
	for _, ev := range events {
		if err := pub.Record(ev); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	if err := pub.PublishSummary(context.Background(), protocol.RunSummary{RunID: 1, State: "completed"}); err != nil {
		t.Fatalf("PublishSummary failed: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	waitFor(t, func() bool { return srv.Series().Len() == 3 && len(srv.Summaries()) == 1 })

	got := srv.Series().Events()
	if got[1].Type != retrieval.EventResponseReceived || *got[1].RTTMs != 1.25 || *got[1].ChunkIndex != 3 {
		t.Fatalf("unexpected decoded event %+v", got[1])
	}
	if got[2].ChunkIndex != nil {
		t.Fatalf("timeout should carry no chunk")
	}
	for i, src := range srv.Series().Sources() {
		if src != "host-a" {
			t.Fatalf("event %d has source %q, want host-a", i, src)
		}
	}

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", resp.StatusCode)
	}
}

func TestCollectorRejectsBadEnvelopes(t *testing.T) {
	srv := NewServer(nil, Options{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts.URL), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	unknown, _ := protocol.NewEnvelope("hello", "id1", map[string]string{"a": "b"})
	badEvent, _ := protocol.NewEnvelope(protocol.TypeTelemetryEvent, "id2", protocol.TelemetryEvent{EventType: "NOPE"})
	messages := [][]byte{[]byte("not json")}
	for _, env := range []protocol.Envelope{unknown, badEvent, {V: 9, Type: "x", MsgID: "y"}} {
		b, _ := json.Marshal(env)
		messages = append(messages, b)
	}
	for _, msg := range messages {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			t.Fatalf("WriteMessage failed: %v", err)
		}
	}

	waitFor(t, func() bool { return srv.Rejected() == 4 })
	if srv.Series().Len() != 0 {
		t.Fatalf("expected no events, got %d", srv.Series().Len())
	}
}

func TestServeShutsDownWithOpenPublisher(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	srv := NewServer(nil, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	pub, err := wsclient.NewPublisher(context.Background(), "ws://"+ln.Addr().String()+"/events", "host-b", 4, nil)
	if err != nil {
		t.Fatalf("NewPublisher failed: %v", err)
	}
	defer pub.Close()
	waitFor(t, func() bool { return srv.conns.Load() == 1 })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestRefusesPublishersOnceShuttingDown(t *testing.T) {
	srv := NewServer(nil, Options{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	srv.beginShutdown()
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts.URL), nil)
	if err == nil {
		t.Fatal("expected the upgrade to be refused")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %v", resp)
	}

	waited := make(chan struct{})
	go func() {
		srv.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("a refused publisher must not hold the shutdown wait group")
	}
}

func TestEventsFromTwoSourcesStayApart(t *testing.T) {
	srv := NewServer(nil, Options{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	for _, source := range []string{"host-a", "host-b"} {
		pub, err := wsclient.NewPublisher(context.Background(), wsURL(ts.URL), source, 4, nil)
		if err != nil {
			t.Fatalf("NewPublisher failed: %v", err)
		}
		if err := pub.Record(retrieval.Event{RunID: 1, TimestampSec: 1, Type: retrieval.EventTimeout}); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		defer pub.Close()
	}
	waitFor(t, func() bool { return srv.Series().Len() == 2 })

	var buf strings.Builder
	if err := srv.Series().WriteEvents(&buf); err != nil {
		t.Fatalf("WriteEvents failed: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "source,run_id,") {
		t.Fatalf("missing source column in %q", out)
	}
	if !strings.Contains(out, "host-a,1,1,TIMEOUT") || !strings.Contains(out, "host-b,1,1,TIMEOUT") {
		t.Fatalf("runs from different sources collided: %q", out)
	}
}
