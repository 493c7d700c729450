package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrSessionUsed is returned when Run or Retrieve is called a second time.
var ErrSessionUsed = errors.New("retrieval session already used")

// Session retrieves one content object once. It is not safe for concurrent
// use; all session state is owned by the goroutine calling Run.
type Session struct {
	client      Client
	contentName string
	cfg         Config
	used        bool
}

// NewSession prepares a retrieval of contentName over client.
func NewSession(client Client, contentName string, cfg Config) *Session {
	return &Session{
		client:      client,
		contentName: contentName,
		cfg:         cfg.normalize(),
	}
}

// ContentName returns the name being retrieved.
func (s *Session) ContentName() string {
	return s.contentName
}

// Run resolves the chunk count and then retrieves every chunk. Meta failures
// are returned before any chunk is requested. A run that aborts on timeouts
// returns its stats with a nil error; callers must check RunStats.State.
func (s *Session) Run(ctx context.Context) (RunStats, error) {
	if s.used {
		return RunStats{}, ErrSessionUsed
	}
	total, err := ResolveChunkCount(ctx, s.client, s.contentName, MetaOptions{
		Attempts: s.cfg.MetaAttempts,
		Timeout:  s.cfg.MetaTimeout,
		Logger:   s.cfg.Logger,
	})
	if err != nil {
		s.used = true
		return RunStats{
			RunID:       s.cfg.RunID,
			ContentName: s.contentName,
			State:       StateAborted,
			ChunkSize:   s.cfg.ChunkSize,
		}, err
	}
	return s.Retrieve(ctx, total)
}

// Retrieve runs the request/receive loop for a known chunk count.
func (s *Session) Retrieve(ctx context.Context, totalChunks uint32) (RunStats, error) {
	if s.used {
		return RunStats{}, ErrSessionUsed
	}
	s.used = true

	cfg := s.cfg
	logger := cfg.Logger.With("run_id", cfg.RunID, "name", s.contentName)
	start := cfg.Now()

	stats := &RunStats{
		RunID:       cfg.RunID,
		ContentName: s.contentName,
		TotalChunks: totalChunks,
		ChunkSize:   cfg.ChunkSize,
	}
	win := newWindow(totalChunks, cfg.WindowCapacity)
	tr := newTracker(s.contentName, totalChunks, cfg.MaxConsecutiveTimeouts, stats)
	rec := newRecorder(cfg.RunID, start, cfg.Sink, logger)

	send := func(index uint32, at time.Time) {
		stats.RequestsSent++
		if err := s.client.SendRequest(s.contentName, index); err != nil {
			stats.SendErrors++
			logger.Debug("request send failed", "chunk", index, "error", err)
		}
		rec.requestSent(at, index)
	}

	logger.Info("retrieval started", "chunks", totalChunks, "window", cfg.WindowCapacity)

	var runErr error
	for tr.running() {
		if err := ctx.Err(); err != nil {
			tr.abort(AbortCanceled)
			runErr = fmt.Errorf("retrieval canceled: %w", err)
			break
		}

		win.fill(tr.received, cfg.Now, send)
		if n := win.outstanding(); n > stats.MaxInFlight {
			stats.MaxInFlight = n
		}

		out := s.client.Receive(ctx, cfg.ReceiveTimeout)
		switch out.Kind {
		case OutcomeTimeout:
			if ctx.Err() != nil {
				// The receive was cut short by cancellation; the next iteration ends the run.
				continue
			}
			tr.onTimeout()
			rec.timeout(cfg.Now())
			logger.Debug("receive timeout", "timeouts", stats.Timeouts, "consecutive", tr.consecutive)
			if !tr.running() {
				logger.Warn("too many consecutive timeouts, aborting run",
					"consecutive", tr.consecutive, "received", stats.ChunksReceived, "total", totalChunks)
			}
		case OutcomeRequest:
			stats.RequestsIgnored++
		case OutcomeResponse:
			at := cfg.Now()
			if tr.onResponse(out) != verdictAccepted {
				continue
			}
			var rtt *time.Duration
			if sentAt, ok := win.settle(out.Index); ok {
				d := at.Sub(sentAt)
				stats.RTTs = append(stats.RTTs, d)
				rtt = &d
			}
			rec.responseReceived(at, out.Index, len(out.Payload), rtt)
			if cfg.OnProgress != nil {
				cfg.OnProgress(stats.ChunksReceived, totalChunks, len(out.Payload))
			}
			if cfg.ProgressEvery > 0 && stats.ChunksReceived%uint32(cfg.ProgressEvery) == 0 {
				logger.Info("retrieval progress", "received", stats.ChunksReceived, "total", totalChunks)
			}
			tr.checkComplete()
		}
	}

	stats.Elapsed = cfg.Now().Sub(start)
	stats.State = tr.state
	stats.AbortReason = tr.reason
	logger.Info("retrieval finished",
		"state", stats.State.String(),
		"received", stats.ChunksReceived,
		"total", totalChunks,
		"bytes", stats.BytesReceived,
		"requests", stats.RequestsSent,
		"timeouts", stats.Timeouts,
		"elapsed", stats.Elapsed,
	)
	return *stats, runErr
}
