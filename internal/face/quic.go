package face

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quic-go/quic-go"

	"github.com/Hiro-Washi/da-icn/internal/quictransport"
)

var _ DatagramConn = (*quic.Conn)(nil)

// Dial connects to a producer at addr and returns a consumer face.
func Dial(ctx context.Context, addr string, udpBuffer int, opts Options) (*Face, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	conn, closeFn, err := quictransport.Dial(ctx, addr, udpBuffer, logger)
	if err != nil {
		return nil, fmt.Errorf("dial producer %s: %w", addr, err)
	}
	return New(conn, opts, closeFn), nil
}

// Listener accepts consumer connections and wraps each in a Face.
type Listener struct {
	ln     *quictransport.Listener
	opts   Options
	logger *slog.Logger
}

// Listen binds a producer listener on addr.
func Listen(addr string, udpBuffer int, opts Options) (*Listener, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ln, err := quictransport.Listen(addr, udpBuffer, logger)
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln, opts: opts, logger: logger}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() string {
	return l.ln.Addr().String()
}

// Accept waits for the next consumer.
func (l *Listener) Accept(ctx context.Context) (*Face, error) {
	conn, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to accept QUIC connection: %w", err)
	}
	l.logger.Info("consumer connected", "remote_addr", conn.RemoteAddr())
	return New(conn, l.opts, func() error {
		return conn.CloseWithError(0, "")
	}), nil
}

// Close stops accepting and releases the socket.
func (l *Listener) Close() error {
	return l.ln.Close()
}
