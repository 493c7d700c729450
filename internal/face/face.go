package face

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Hiro-Washi/da-icn/internal/retrieval"
	"github.com/Hiro-Washi/da-icn/internal/wire"
)

var _ retrieval.Client = (*Face)(nil)

// ErrClosed is returned by sends on a closed face.
var ErrClosed = errors.New("face closed")

// DatagramConn is an unreliable, message-oriented connection.
// *quic.Conn satisfies it when datagrams are enabled.
type DatagramConn interface {
	SendDatagram(b []byte) error
	ReceiveDatagram(ctx context.Context) ([]byte, error)
}

// Options configures a Face.
type Options struct {
	// Compress LZ4-compresses Data payloads when it helps.
	Compress bool
	// QueueLen bounds decoded packets waiting for Receive.
	QueueLen int
	Logger   *slog.Logger
}

const defaultQueueLen = 4096

// Face speaks the Interest/Data protocol over a DatagramConn. A reader
// goroutine decodes incoming datagrams into a single queue that Receive
// drains, so one consumer goroutine sees packets in arrival order.
type Face struct {
	conn     DatagramConn
	compress bool
	logger   *slog.Logger

	queue   chan retrieval.Outcome
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	onClose func() error

	closeOnce    sync.Once
	closed       atomic.Bool
	decodeErrors atomic.Int64
}

// New starts a face on conn. onClose, if non-nil, runs once on Close after
// the reader has stopped.
func New(conn DatagramConn, opts Options, onClose func() error) *Face {
	if opts.QueueLen <= 0 {
		opts.QueueLen = defaultQueueLen
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	f := &Face{
		conn:     conn,
		compress: opts.Compress,
		logger:   logger,
		queue:    make(chan retrieval.Outcome, opts.QueueLen),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		onClose:  onClose,
	}
	go f.readLoop()
	return f
}

// SendRequest sends an Interest for chunk index of name.
func (f *Face) SendRequest(name string, index uint32) error {
	if f.closed.Load() {
		return ErrClosed
	}
	buf, err := wire.EncodeInterest(name, index)
	if err != nil {
		return err
	}
	if err := f.conn.SendDatagram(buf); err != nil {
		return fmt.Errorf("send interest %s#%d: %w", name, index, err)
	}
	return nil
}

// SendData answers an Interest with payload.
func (f *Face) SendData(name string, index uint32, payload []byte) error {
	if f.closed.Load() {
		return ErrClosed
	}
	buf, err := wire.EncodeData(name, index, payload, f.compress)
	if err != nil {
		return err
	}
	if err := f.conn.SendDatagram(buf); err != nil {
		return fmt.Errorf("send data %s#%d: %w", name, index, err)
	}
	return nil
}

// Receive returns the next decoded packet, or a timeout outcome when nothing
// arrives within timeout or ctx is done.
func (f *Face) Receive(ctx context.Context, timeout time.Duration) retrieval.Outcome {
	select {
	case out := <-f.queue:
		return out
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case out := <-f.queue:
		return out
	case <-timer.C:
		return retrieval.TimeoutOutcome()
	case <-ctx.Done():
		return retrieval.TimeoutOutcome()
	}
}

// DecodeErrors returns how many datagrams failed to decode.
func (f *Face) DecodeErrors() int64 {
	return f.decodeErrors.Load()
}

// Done is closed when the reader goroutine has exited.
func (f *Face) Done() <-chan struct{} {
	return f.done
}

// Close stops the reader and releases the underlying connection.
func (f *Face) Close() error {
	var err error
	f.closeOnce.Do(func() {
		f.closed.Store(true)
		f.cancel()
		if f.onClose != nil {
			err = f.onClose()
		}
		<-f.done
	})
	return err
}

func (f *Face) readLoop() {
	defer close(f.done)
	for {
		buf, err := f.conn.ReceiveDatagram(f.ctx)
		if err != nil {
			if f.ctx.Err() == nil {
				f.logger.Debug("face reader stopped", "error", err)
			}
			return
		}
		pkt, err := wire.Decode(buf)
		if err != nil {
			f.decodeErrors.Add(1)
			f.logger.Debug("dropping undecodable datagram", "error", err, "len", len(buf))
			continue
		}
		out := retrieval.Outcome{Name: pkt.Name, Index: pkt.Chunk, Payload: pkt.Payload}
		if pkt.IsInterest() {
			out.Kind = retrieval.OutcomeRequest
		} else {
			out.Kind = retrieval.OutcomeResponse
		}
		select {
		case f.queue <- out:
		case <-f.ctx.Done():
			return
		}
	}
}
