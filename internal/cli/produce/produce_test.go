package produce

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Hiro-Washi/da-icn/internal/config"
	"github.com/Hiro-Washi/da-icn/internal/face"
	"github.com/Hiro-Washi/da-icn/internal/retrieval"
)

func TestServeOverQUICLoopback(t *testing.T) {
	cfg := config.ProduceConfig{
		Addr:      "127.0.0.1:0",
		Name:      "ccnx:/test/video",
		FilePath:  filepath.Join(t.TempDir(), "video.mp4"),
		FileSize:  10*512 + 7,
		ChunkSize: 512,
		Fill:      "random",
		Compress:  true,
	}
	logger := slog.New(slog.DiscardHandler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	var out bytes.Buffer
	go func() {
		errCh <- serve(ctx, cfg, logger, &out, func(addr string) { addrCh <- addr })
	}()

	var addr string
	select {
	case addr = <-addrCh:
	case err := <-errCh:
		t.Fatalf("serve failed early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("producer did not start")
	}

	dialCtx, dialCancel := context.WithTimeout(ctx, 5*time.Second)
	defer dialCancel()
	f, err := face.Dial(dialCtx, addr, 0, face.Options{})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	rc := retrieval.DefaultConfig()
	rc.ChunkSize = cfg.ChunkSize
	stats, err := retrieval.NewSession(f, cfg.Name, rc).Run(ctx)
	f.Close()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.State != retrieval.StateCompleted || stats.TotalChunks != 11 {
		t.Fatalf("unexpected stats %s/%d", stats.State, stats.TotalChunks)
	}
	if stats.BytesReceived != cfg.FileSize {
		t.Fatalf("expected %d bytes, got %d", cfg.FileSize, stats.BytesReceived)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("producer did not stop")
	}
	if !strings.Contains(out.String(), "created random content file") {
		t.Fatalf("missing creation notice in %q", out.String())
	}
	if !strings.Contains(out.String(), "served 12") {
		t.Fatalf("expected 12 answers (meta and 11 chunks) in %q", out.String())
	}
}

func TestServeRejectsBadFill(t *testing.T) {
	cfg := config.ProduceConfig{
		Addr:      "127.0.0.1:0",
		FilePath:  filepath.Join(t.TempDir(), "c.bin"),
		ChunkSize: 512,
		Fill:      "ones",
	}
	var out bytes.Buffer
	if err := serve(context.Background(), cfg, slog.New(slog.DiscardHandler), &out, nil); err == nil {
		t.Fatal("expected an error for unknown fill")
	}
}

func TestServeRejectsChunkLargerThanDatagram(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.bin")
	cfg := config.ProduceConfig{
		Addr:      "127.0.0.1:0",
		Name:      "ccnx:/test/video",
		FilePath:  path,
		FileSize:  40960,
		ChunkSize: 4096,
	}
	var out bytes.Buffer
	err := serve(context.Background(), cfg, slog.New(slog.DiscardHandler), &out, func(string) {
		t.Fatal("listener must not start")
	})
	if err == nil || !strings.Contains(err.Error(), "does not fit") {
		t.Fatalf("expected datagram size error, got %v", err)
	}
	if _, statErr := os.Stat(path); statErr == nil {
		t.Fatal("content file should not be created for an invalid config")
	}
}
