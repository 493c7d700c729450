package wsclient

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/Hiro-Washi/da-icn/internal/retrieval"
	"github.com/Hiro-Washi/da-icn/pkg/protocol"
)

// Publisher streams telemetry to a collector. Record never blocks: when the
// queue is full the event is dropped and counted.
type Publisher struct {
	conn    *Conn
	source  string
	logger  *slog.Logger
	cancel  context.CancelFunc
	readErr chan error

	sent    atomic.Int64
	dropped atomic.Int64
}

var _ retrieval.Sink = (*Publisher)(nil)

// NewPublisher dials the collector at wsURL. source identifies this consumer.
func NewPublisher(ctx context.Context, wsURL, source string, queueLen int, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	conn, err := Dial(ctx, wsURL, queueLen, logger)
	if err != nil {
		return nil, err
	}
	readCtx, cancel := context.WithCancel(context.Background())
	p := &Publisher{
		conn:    conn,
		source:  source,
		logger:  logger,
		cancel:  cancel,
		readErr: make(chan error, 1),
	}
	go func() {
		p.readErr <- conn.ReadLoop(readCtx, func(env protocol.Envelope) {
			logger.Debug("ignoring collector message", "type", env.Type)
		})
	}()
	return p, nil
}

// Record enqueues ev for the collector.
func (p *Publisher) Record(ev retrieval.Event) error {
	env, err := p.envelope(protocol.TypeTelemetryEvent, EncodeEvent(ev))
	if err != nil {
		return err
	}
	if err := p.conn.TrySend(env); err != nil {
		if errors.Is(err, ErrQueueFull) {
			p.dropped.Add(1)
			return retrieval.ErrSinkFull
		}
		return err
	}
	p.sent.Add(1)
	return nil
}

// PublishSummary sends a run summary, waiting for queue space.
func (p *Publisher) PublishSummary(ctx context.Context, s protocol.RunSummary) error {
	env, err := p.envelope(protocol.TypeRunSummary, s)
	if err != nil {
		return err
	}
	return p.conn.Send(ctx, env)
}

// Sent returns how many events were queued.
func (p *Publisher) Sent() int64 { return p.sent.Load() }

// Dropped returns how many events were discarded because the queue was full.
func (p *Publisher) Dropped() int64 { return p.dropped.Load() }

// Close flushes pending envelopes and closes the connection.
func (p *Publisher) Close() error {
	err := p.conn.Close()
	p.cancel()
	<-p.readErr
	if n := p.dropped.Load(); n > 0 {
		p.logger.Warn("telemetry events dropped", "count", n)
	}
	return err
}

func (p *Publisher) envelope(msgType string, payload any) (protocol.Envelope, error) {
	env, err := protocol.NewEnvelope(msgType, protocol.NewMsgID(), payload)
	if err != nil {
		return protocol.Envelope{}, err
	}
	env.Source = p.source
	return env, nil
}
