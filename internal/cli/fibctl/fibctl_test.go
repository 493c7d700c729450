package fibctl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Hiro-Washi/da-icn/internal/config"
)

type recordRunner struct {
	calls []string
	err   error
}

func (r *recordRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	r.calls = append(r.calls, name+" "+strings.Join(args, " "))
	return "FIB entries:\n  ccnx:/my/data udp 172.18.0.22\n", r.err
}

func writeEntries(t *testing.T, dir string) (string, string) {
	t.Helper()
	fibPath := filepath.Join(dir, "cefnetd.fib")
	entries := filepath.Join(dir, "entries.toml")
	body := fmt.Sprintf(`fib_path = %q

[[static]]
name = "ccnx:/my/data"
protocol = "udp"
next_hops = ["172.18.0.22"]

[[dynamic]]
name = "ccnx:/dynamic/route"
protocol = "tcp"
next_hops = ["172.18.0.23"]
`, fibPath)
	if err := os.WriteFile(entries, []byte(body), 0o644); err != nil {
		t.Fatalf("write entries: %v", err)
	}
	return entries, fibPath
}

func TestApplyThenRemove(t *testing.T) {
	entries, fibPath := writeEntries(t, t.TempDir())
	cfg := config.FibConfig{File: entries, Command: "cefroute"}
	runner := &recordRunner{}
	logger := slog.New(slog.DiscardHandler)
	var out bytes.Buffer

	if err := run(context.Background(), "apply", cfg, runner, logger, &out); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	data, err := os.ReadFile(fibPath)
	if err != nil {
		t.Fatalf("read fib: %v", err)
	}
	if !strings.Contains(string(data), "ccnx:/my/data udp 172.18.0.22") {
		t.Fatalf("static entry missing from %q", data)
	}
	if len(runner.calls) != 1 || runner.calls[0] != "cefroute add ccnx:/dynamic/route tcp 172.18.0.23" {
		t.Fatalf("unexpected calls %v", runner.calls)
	}
	if !strings.Contains(out.String(), "apply: 2 changed, 0 unchanged, 0 failed") {
		t.Fatalf("unexpected output %q", out.String())
	}

	out.Reset()
	if err := run(context.Background(), "remove", cfg, runner, logger, &out); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	data, _ = os.ReadFile(fibPath)
	if strings.Contains(string(data), "ccnx:/my/data") {
		t.Fatalf("static entry still present in %q", data)
	}
	if runner.calls[1] != "cefroute del ccnx:/dynamic/route tcp 172.18.0.23" {
		t.Fatalf("unexpected del call %q", runner.calls[1])
	}
}

func TestFlagFIBPathOverridesFile(t *testing.T) {
	dir := t.TempDir()
	entries, fibPath := writeEntries(t, dir)
	override := filepath.Join(dir, "override.fib")
	cfg := config.FibConfig{File: entries, FIBPath: override}

	if err := run(context.Background(), "apply", cfg, &recordRunner{}, slog.New(slog.DiscardHandler), &bytes.Buffer{}); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if _, err := os.Stat(override); err != nil {
		t.Fatalf("override FIB not written: %v", err)
	}
	if _, err := os.Stat(fibPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("file fib_path should be ignored, stat err %v", err)
	}
}

func TestDynamicFailureIsReported(t *testing.T) {
	entries, _ := writeEntries(t, t.TempDir())
	runner := &recordRunner{err: errors.New("exit status 1")}
	var out bytes.Buffer
	err := run(context.Background(), "apply", config.FibConfig{File: entries}, runner, slog.New(slog.DiscardHandler), &out)
	if err == nil || !strings.Contains(err.Error(), "1 FIB entries failed") {
		t.Fatalf("expected failure count, got %v", err)
	}
	if !strings.Contains(out.String(), "1 changed, 0 unchanged, 1 failed") {
		t.Fatalf("static entry should still be applied, got %q", out.String())
	}
}

func TestShowAndUnknownAction(t *testing.T) {
	runner := &recordRunner{}
	var out bytes.Buffer
	cfg := config.FibConfig{Sudo: true}
	if err := run(context.Background(), "show", cfg, runner, slog.New(slog.DiscardHandler), &out); err != nil {
		t.Fatalf("show failed: %v", err)
	}
	if runner.calls[0] != "cefroute show" {
		t.Fatalf("show must not use sudo, got %q", runner.calls[0])
	}
	if !strings.Contains(out.String(), "ccnx:/my/data") {
		t.Fatalf("unexpected listing %q", out.String())
	}
	if err := run(context.Background(), "flush", cfg, runner, slog.New(slog.DiscardHandler), &out); err == nil {
		t.Fatal("expected error for unknown action")
	}
	if err := Run(context.Background(), nil, &out); err == nil {
		t.Fatal("expected error for missing action")
	}
}
