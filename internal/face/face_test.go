package face

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Hiro-Washi/da-icn/internal/retrieval"
)

func newMemFaces(t *testing.T, compress bool) (*Face, *Face) {
	t.Helper()
	a, b := NewMemPair(64)
	consumer := New(a, Options{}, a.Close)
	producer := New(b, Options{Compress: compress}, b.Close)
	t.Cleanup(func() {
		consumer.Close()
		producer.Close()
	})
	return consumer, producer
}

func TestRequestAndResponse(t *testing.T) {
	consumer, producer := newMemFaces(t, true)
	ctx := context.Background()

	if err := consumer.SendRequest("ccnx:/test/video", 3); err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}
	in := producer.Receive(ctx, time.Second)
	if in.Kind != retrieval.OutcomeRequest || in.Name != "ccnx:/test/video" || in.Index != 3 {
		t.Fatalf("unexpected interest %+v", in)
	}

	payload := make([]byte, 1024)
	if err := producer.SendData(in.Name, in.Index, payload); err != nil {
		t.Fatalf("SendData failed: %v", err)
	}
	out := consumer.Receive(ctx, time.Second)
	if out.Kind != retrieval.OutcomeResponse || out.Index != 3 || !bytes.Equal(out.Payload, payload) {
		t.Fatalf("unexpected data %+v", out.Kind)
	}
}

func TestReceiveTimeout(t *testing.T) {
	consumer, _ := newMemFaces(t, false)
	start := time.Now()
	out := consumer.Receive(context.Background(), 20*time.Millisecond)
	if out.Kind != retrieval.OutcomeTimeout {
		t.Fatalf("expected timeout, got %s", out.Kind)
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Fatalf("receive returned too early")
	}
}

func TestReceiveHonoursContext(t *testing.T) {
	consumer, _ := newMemFaces(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := consumer.Receive(ctx, time.Hour)
	if out.Kind != retrieval.OutcomeTimeout {
		t.Fatalf("expected timeout on canceled context, got %s", out.Kind)
	}
}

func TestUndecodableDatagramsCounted(t *testing.T) {
	a, b := NewMemPair(8)
	f := New(b, Options{}, b.Close)
	defer f.Close()

	if err := a.SendDatagram([]byte("garbage")); err != nil {
		t.Fatalf("SendDatagram failed: %v", err)
	}
	if out := f.Receive(context.Background(), 50*time.Millisecond); out.Kind != retrieval.OutcomeTimeout {
		t.Fatalf("expected garbage to be dropped, got %s", out.Kind)
	}
	if f.DecodeErrors() != 1 {
		t.Fatalf("expected 1 decode error, got %d", f.DecodeErrors())
	}
}

func TestCloseStopsFace(t *testing.T) {
	a, _ := NewMemPair(8)
	f := New(a, Options{}, a.Close)
	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	select {
	case <-f.Done():
	default:
		t.Fatalf("reader still running after Close")
	}
	if err := f.SendRequest("n", 0); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestLossySessionEndsWithTimeouts(t *testing.T) {
	a, b := NewMemPair(64)
	a.Loss = func([]byte) bool { return true }
	consumer := New(a, Options{}, a.Close)
	defer consumer.Close()
	defer b.Close()

	cfg := retrieval.DefaultConfig()
	cfg.ReceiveTimeout = time.Millisecond
	cfg.MaxConsecutiveTimeouts = 3
	stats, err := retrieval.NewSession(consumer, "ccnx:/x", cfg).Retrieve(context.Background(), 4)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if stats.State != retrieval.StateAborted || stats.Timeouts != 4 {
		t.Fatalf("expected abort after 4 timeouts, got %s/%d", stats.State, stats.Timeouts)
	}
}
