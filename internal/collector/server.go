package collector

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Hiro-Washi/da-icn/internal/report"
	"github.com/Hiro-Washi/da-icn/internal/retrieval"
	"github.com/Hiro-Washi/da-icn/internal/wsclient"
	"github.com/Hiro-Washi/da-icn/pkg/protocol"
)

const (
	defaultMaxMessageBytes = 64 * 1024
	readWait               = 90 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Options configures a Server.
type Options struct {
	// Sink, if set, also receives every decoded event (e.g. metrics).
	Sink retrieval.Sink
	// MetricsHandler, if set, is mounted at /metrics.
	MetricsHandler  http.Handler
	MaxMessageBytes int64
	Logger          *slog.Logger
}

// Server accepts telemetry from consumers over WebSocket and buffers it
// for the time-series report, tagged with each publisher's source.
type Server struct {
	series *report.TimeSeries
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	summaries []protocol.RunSummary
	active    map[*websocket.Conn]struct{}
	closing   bool

	conns    atomic.Int64
	rejected atomic.Int64
	wg       sync.WaitGroup
}

func NewServer(series *report.TimeSeries, opts Options) *Server {
	if series == nil {
		series = report.NewSourcedTimeSeries()
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = defaultMaxMessageBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		series: series,
		opts:   opts,
		logger: logger,
		active: make(map[*websocket.Conn]struct{}),
	}
}

// Handler returns the HTTP routes: /health, /events and optionally /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	mux.HandleFunc("/events", s.handleEvents)
	if s.opts.MetricsHandler != nil {
		mux.Handle("/metrics", s.opts.MetricsHandler)
	}
	return mux
}

// Series returns the buffer events are appended to.
func (s *Server) Series() *report.TimeSeries { return s.series }

// Summaries returns the run summaries received so far.
func (s *Server) Summaries() []protocol.RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.RunSummary(nil), s.summaries...)
}

// Rejected returns how many envelopes failed validation or decoding.
func (s *Server) Rejected() int64 { return s.rejected.Load() }

// ListenAndServe serves on addr until ctx is done, then shuts down and
// waits for open connections to finish.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("collector listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	// hijacked websocket connections are not tracked by Shutdown
	s.beginShutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.wg.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	return err
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !s.enter() {
		http.Error(w, "collector shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.wg.Done()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	if !s.track(conn) {
		conn.Close()
		return
	}
	defer s.untrack(conn)

	active := s.conns.Add(1)
	defer s.conns.Add(-1)
	s.logger.Info("publisher connected", "remote_addr", r.RemoteAddr, "active", active)

	conn.SetReadLimit(s.opts.MaxMessageBytes)

	for {
		conn.SetReadDeadline(time.Now().Add(readWait))
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("publisher read error", "error", err)
			}
			s.logger.Info("publisher disconnected", "remote_addr", r.RemoteAddr)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var env protocol.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			s.reject("invalid JSON envelope", err)
			continue
		}
		s.handleEnvelope(env)
	}
}

// enter registers a handler with the shutdown wait group unless shutdown
// has begun. Add and the closing check share s.mu so Wait never races Add.
func (s *Server) enter() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.wg.Add(1)
	return true
}

// track records conn for shutdown. It reports false once shutdown has begun.
func (s *Server) track(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.active[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.active, conn)
	s.mu.Unlock()
	conn.Close()
}

// beginShutdown refuses new publishers and closes the open ones.
func (s *Server) beginShutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closing = true
	for conn := range s.active {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "collector shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
	}
}

func (s *Server) handleEnvelope(env protocol.Envelope) {
	if err := env.ValidateBasic(); err != nil {
		s.reject("invalid envelope", err)
		return
	}
	switch env.Type {
	case protocol.TypeTelemetryEvent:
		var te protocol.TelemetryEvent
		if err := env.DecodePayload(&te); err != nil {
			s.reject("invalid telemetry event", err)
			return
		}
		ev, err := wsclient.DecodeEvent(te)
		if err != nil {
			s.reject("invalid telemetry event", err)
			return
		}
		_ = s.series.RecordFrom(env.Source, ev)
		if s.opts.Sink != nil {
			if err := s.opts.Sink.Record(ev); err != nil {
				s.logger.Debug("event sink failed", "error", err)
			}
		}
	case protocol.TypeRunSummary:
		var sum protocol.RunSummary
		if err := env.DecodePayload(&sum); err != nil {
			s.reject("invalid run summary", err)
			return
		}
		s.mu.Lock()
		s.summaries = append(s.summaries, sum)
		s.mu.Unlock()
		s.logger.Info("run summary received",
			"source", env.Source,
			"run_id", sum.RunID,
			"state", sum.State,
			"throughput_mbps", sum.ThroughputMbps,
		)
	default:
		s.reject("unknown message type", errors.New(env.Type))
	}
}

func (s *Server) reject(msg string, err error) {
	s.rejected.Add(1)
	s.logger.Warn(msg, "error", err)
}
