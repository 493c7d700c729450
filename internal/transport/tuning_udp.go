package transport

import (
	"errors"
	"log/slog"
	"net"
)

const (
	// DefaultUDPBuffer is large enough to absorb a full window of 1 KiB chunks.
	DefaultUDPBuffer = 8 * 1024 * 1024

	minSocketBuffer = 256 * 1024
	maxSocketBuffer = 64 * 1024 * 1024
)

// BufferTuning is the outcome of SetSocketBuffers.
type BufferTuning struct {
	// Size is the clamped size asked of the kernel for both directions.
	Size int
	// Applied is false when there was no socket or the kernel refused.
	Applied bool
	Err     error
}

// LogValue lets a BufferTuning be logged as a single attribute group.
func (t BufferTuning) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("size", FormatBytes(int64(t.Size))),
		slog.Bool("applied", t.Applied),
	}
	if t.Err != nil {
		attrs = append(attrs, slog.String("error", t.Err.Error()))
	}
	return slog.GroupValue(attrs...)
}

var errNoSocket = errors.New("no UDP socket to tune")

// SetSocketBuffers sizes both the read and write buffer of conn. Requests
// are clamped to [256KiB, 64MiB]; a refusal is reported, never fatal.
func SetSocketBuffers(conn *net.UDPConn, size int) BufferTuning {
	t := BufferTuning{Size: clampSocketBuffer(size)}
	if conn == nil {
		t.Err = errNoSocket
		return t
	}
	t.Err = errors.Join(conn.SetReadBuffer(t.Size), conn.SetWriteBuffer(t.Size))
	t.Applied = t.Err == nil
	return t
}

func clampSocketBuffer(n int) int {
	return min(max(n, minSocketBuffer), maxSocketBuffer)
}
