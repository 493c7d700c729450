package producer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Hiro-Washi/da-icn/internal/face"
	"github.com/Hiro-Washi/da-icn/internal/retrieval"
)

// Endpoint is the producer side of a face.
type Endpoint interface {
	Receive(ctx context.Context, timeout time.Duration) retrieval.Outcome
	SendData(name string, index uint32, payload []byte) error
	Done() <-chan struct{}
}

var _ Endpoint = (*face.Face)(nil)

// pollInterval bounds how long Serve blocks before rechecking ctx.
const pollInterval = 500 * time.Millisecond

// Server answers Interests for one content name.
type Server struct {
	contentName string
	metaName    string
	content     *Content
	logger      *slog.Logger

	served  atomic.Int64
	ignored atomic.Int64
}

// NewServer serves content under contentName.
func NewServer(contentName string, content *Content, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		contentName: contentName,
		metaName:    retrieval.MetaName(contentName),
		content:     content,
		logger:      logger,
	}
}

// Served returns how many Data packets were sent.
func (s *Server) Served() int64 { return s.served.Load() }

// Ignored returns how many packets were not answered.
func (s *Server) Ignored() int64 { return s.ignored.Load() }

// Serve answers Interests arriving on ep until ctx is done or ep closes.
func (s *Server) Serve(ctx context.Context, ep Endpoint) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ep.Done():
			return nil
		default:
		}

		out := ep.Receive(ctx, pollInterval)
		if out.Kind != retrieval.OutcomeRequest {
			if out.Kind == retrieval.OutcomeResponse {
				s.ignored.Add(1)
			}
			continue
		}
		if err := s.answer(ep, out); err != nil {
			if errors.Is(err, face.ErrClosed) {
				return nil
			}
			s.logger.Warn("failed to answer interest", "name", out.Name, "chunk", out.Index, "error", err)
		}
	}
}

func (s *Server) answer(ep Endpoint, in retrieval.Outcome) error {
	switch in.Name {
	case s.metaName:
		if err := ep.SendData(s.metaName, 0, retrieval.FormatChunkCount(s.content.TotalChunks())); err != nil {
			return err
		}
		s.served.Add(1)
		s.logger.Debug("sent meta", "chunks", s.content.TotalChunks())
		return nil
	case s.contentName:
		if in.Index >= s.content.TotalChunks() {
			s.ignored.Add(1)
			s.logger.Debug("ignoring out-of-range interest", "chunk", in.Index, "total", s.content.TotalChunks())
			return nil
		}
		buf, err := s.content.Chunk(in.Index)
		if err != nil {
			return err
		}
		defer s.content.Release(buf)
		if err := ep.SendData(s.contentName, in.Index, *buf); err != nil {
			return err
		}
		s.served.Add(1)
		return nil
	default:
		s.ignored.Add(1)
		s.logger.Debug("ignoring interest for unknown name", "name", in.Name)
		return nil
	}
}

// ServeListener accepts consumers on ln and serves each in its own goroutine
// until ctx is done.
func (s *Server) ServeListener(ctx context.Context, ln *face.Listener) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		f, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer f.Close()
			if err := s.Serve(ctx, f); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn("serve consumer failed", "error", err)
			}
			s.logger.Info("consumer finished", "served", s.Served())
		}()
	}
}
