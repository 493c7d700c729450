package termio

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriterFlushWritesInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	w := newWriter(f)
	for _, s := range []string{"run 1 ", "completed", "\n"} {
		if _, err := w.Write([]byte(s)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	w.flush()

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "run 1 completed\n" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestIsTerminalOnRegularFile(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "plain"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if IsTerminal(f) {
		t.Fatal("regular file reported as terminal")
	}
	if IsTerminal(nil) {
		t.Fatal("nil file reported as terminal")
	}
}
