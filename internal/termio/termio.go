package termio

import (
	"io"
	"os"
	"sync"
)

// writer hands writes to a goroutine so a slow terminal never stalls the
// receive loop. Flush waits for everything queued so far.
type writer struct {
	file *os.File
	ch   chan request
}

type request struct {
	buf  []byte
	done chan struct{}
}

func (w *writer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	w.ch <- request{buf: buf}
	return len(p), nil
}

func (w *writer) flush() {
	done := make(chan struct{})
	w.ch <- request{done: done}
	<-done
}

type manager struct {
	once   sync.Once
	stdout *writer
	stderr *writer
}

var global manager

func Init() {
	global.once.Do(func() {
		global.stdout = newWriter(os.Stdout)
		global.stderr = newWriter(os.Stderr)
	})
}

func newWriter(f *os.File) *writer {
	w := &writer{
		file: f,
		ch:   make(chan request, 1024),
	}
	go func() {
		for req := range w.ch {
			if req.done != nil {
				close(req.done)
				continue
			}
			_, _ = w.file.Write(req.buf)
		}
	}()
	return w
}

func Stdout() io.Writer {
	Init()
	return global.stdout
}

func Stderr() io.Writer {
	Init()
	return global.stderr
}

// Flush blocks until every write queued on Stdout and Stderr has reached
// the terminal. Call it before os.Exit.
func Flush() {
	Init()
	global.stdout.flush()
	global.stderr.flush()
}

// IsTerminal reports whether f is a character device.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
