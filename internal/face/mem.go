package face

import (
	"context"
	"io"
	"sync"
)

// MemConn is one end of an in-memory datagram link used in tests and local
// loopback runs. Datagrams are dropped, never blocked, when the peer's
// buffer is full, like a saturated UDP socket.
type MemConn struct {
	mu     sync.Mutex
	in     chan []byte
	peer   *MemConn
	closed bool
	done   chan struct{}

	// Loss, when set, drops outgoing datagrams for which it returns true.
	Loss func(b []byte) bool
}

// NewMemPair returns two connected ends, each buffering up to depth datagrams.
func NewMemPair(depth int) (*MemConn, *MemConn) {
	if depth <= 0 {
		depth = defaultQueueLen
	}
	a := &MemConn{in: make(chan []byte, depth), done: make(chan struct{})}
	b := &MemConn{in: make(chan []byte, depth), done: make(chan struct{})}
	a.peer = b
	b.peer = a
	return a, b
}

// SendDatagram queues a copy of b at the peer.
func (c *MemConn) SendDatagram(b []byte) error {
	c.mu.Lock()
	closed := c.closed
	loss := c.Loss
	c.mu.Unlock()
	if closed {
		return io.ErrClosedPipe
	}
	if loss != nil && loss(b) {
		return nil
	}
	buf := append([]byte(nil), b...)
	select {
	case <-c.peer.done:
		return io.ErrClosedPipe
	default:
	}
	select {
	case c.peer.in <- buf:
	default:
	}
	return nil
}

// ReceiveDatagram blocks until a datagram arrives, ctx is done or c is closed.
func (c *MemConn) ReceiveDatagram(ctx context.Context) ([]byte, error) {
	select {
	case b := <-c.in:
		return b, nil
	case <-c.done:
		return nil, io.ErrClosedPipe
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close shuts this end down; the peer's sends start failing.
func (c *MemConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	return nil
}
