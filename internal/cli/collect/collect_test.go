package collect

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Hiro-Washi/da-icn/internal/config"
	"github.com/Hiro-Washi/da-icn/internal/retrieval"
	"github.com/Hiro-Washi/da-icn/internal/wsclient"
)

func TestCollectWritesTimeSeriesOnShutdown(t *testing.T) {
	cfg := config.CollectConfig{
		TimeSeriesPath: filepath.Join(t.TempDir(), "collected.csv"),
		Metrics:        true,
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	base := "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var out bytes.Buffer
	errCh := make(chan error, 1)
	go func() {
		errCh <- serve(ctx, cfg, ln, slog.New(slog.DiscardHandler), &out)
	}()

	pub, err := wsclient.NewPublisher(ctx, "ws://"+ln.Addr().String()+"/events", "host-a", 16, nil)
	if err != nil {
		t.Fatalf("NewPublisher failed: %v", err)
	}
	idx := uint32(0)
	if err := pub.Record(retrieval.Event{RunID: 1, TimestampSec: 0.01, Type: retrieval.EventRequestSent, ChunkIndex: &idx}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := pub.Record(retrieval.Event{RunID: 1, TimestampSec: 1.01, Type: retrieval.EventTimeout}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		if scrape(t, base+"/metrics") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timeout event never reached /metrics")
		}
		time.Sleep(10 * time.Millisecond)
	}
	pub.Close()
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("collector did not stop")
	}

	data, err := os.ReadFile(cfg.TimeSeriesPath)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 events, got %q", data)
	}
	if !strings.Contains(out.String(), "2 events") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func scrape(t *testing.T, url string) bool {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return strings.Contains(string(body), "daicn_timeouts_total 1")
}
