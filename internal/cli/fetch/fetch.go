package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Hiro-Washi/da-icn/internal/bench"
	"github.com/Hiro-Washi/da-icn/internal/config"
	"github.com/Hiro-Washi/da-icn/internal/face"
	"github.com/Hiro-Washi/da-icn/internal/logging"
	"github.com/Hiro-Washi/da-icn/internal/metrics"
	"github.com/Hiro-Washi/da-icn/internal/progress"
	"github.com/Hiro-Washi/da-icn/internal/report"
	"github.com/Hiro-Washi/da-icn/internal/resmon"
	"github.com/Hiro-Washi/da-icn/internal/retrieval"
	"github.com/Hiro-Washi/da-icn/internal/transport"
	"github.com/Hiro-Washi/da-icn/internal/wsclient"
	"github.com/Hiro-Washi/da-icn/pkg/protocol"
)

// Conn is a consumer connection to a producer.
type Conn interface {
	retrieval.Client
	Close() error
}

// SummaryPublisher receives each run's summary, e.g. a collector connection.
type SummaryPublisher interface {
	PublishSummary(ctx context.Context, s protocol.RunSummary) error
}

// Benchmark retrieves the same content several times and measures each run.
type Benchmark struct {
	Config config.FetchConfig
	// Dial opens a fresh connection for every run.
	Dial func(ctx context.Context) (Conn, error)
	// Sampler feeds the resource monitor; nil samples the host.
	Sampler resmon.Sampler
	// Sink receives every telemetry event in addition to the time series.
	Sink      retrieval.Sink
	Publisher SummaryPublisher
	Logger    *slog.Logger
	Out       io.Writer
	// Now is the session clock; nil means time.Now.
	Now func() time.Time
}

// Result collects what a benchmark produced.
type Result struct {
	Summaries  []report.Summary
	Series     *report.TimeSeries
	Throughput bench.Aggregate
	// FailedRuns counts runs skipped because the chunk count could not be resolved.
	FailedRuns int
}

// Run executes Config.Runs runs back to back. It stops early only when ctx
// is canceled; meta failures skip the run and continue with the next.
func (b *Benchmark) Run(ctx context.Context) (Result, error) {
	logger := b.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	out := b.Out
	if out == nil {
		out = io.Discard
	}

	res := Result{Series: report.NewTimeSeries()}
	var throughput []bench.Summary
	for runID := 1; runID <= b.Config.Runs; runID++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		fmt.Fprintf(out, "--- run %d/%d: %s ---\n", runID, b.Config.Runs, b.Config.Name)

		row, tp, err := b.runOnce(ctx, runID, res.Series, logger)
		if err != nil {
			if errors.Is(err, retrieval.ErrMetaResolution) || errors.Is(err, retrieval.ErrMalformedMetaPayload) {
				res.FailedRuns++
				logger.Error("run failed", "run_id", runID, "error", err)
				fmt.Fprintf(out, "run %d failed: %v\n", runID, err)
				continue
			}
			if row == nil {
				return res, err
			}
		}
		res.Summaries = append(res.Summaries, *row)
		throughput = append(throughput, tp)
		printSummary(out, *row)
		if b.Publisher != nil {
			if perr := b.Publisher.PublishSummary(ctx, runSummary(b.Config.Name, *row)); perr != nil {
				logger.Warn("failed to publish run summary", "run_id", runID, "error", perr)
			}
		}
		if err != nil {
			res.Throughput = bench.AggregateRuns(throughput)
			return res, err
		}
	}
	res.Throughput = bench.AggregateRuns(throughput)
	return res, nil
}

// runOnce returns a nil row when the connection or meta resolution failed.
func (b *Benchmark) runOnce(ctx context.Context, runID int, series *report.TimeSeries, logger *slog.Logger) (*report.Summary, bench.Summary, error) {
	conn, err := b.Dial(ctx)
	if err != nil {
		return nil, bench.Summary{}, err
	}
	defer conn.Close()

	tp := bench.New(bench.DefaultInterval)
	meter := progress.NewMeter()
	meterStarted := false

	rc := b.Config.RetrievalConfig(runID)
	rc.ProgressEvery = 0
	rc.Logger = logger
	rc.Now = b.Now
	rc.Sink = retrieval.MultiSink{series, tp, b.Sink}
	rc.OnProgress = func(received, total uint32, size int) {
		if !meterStarted {
			meter.Start(total)
			meterStarted = true
		}
		meter.Observe(received, size)
		every := uint32(b.Config.ProgressEvery)
		if every > 0 && received%every == 0 {
			s := meter.Snapshot()
			logger.Info("retrieval progress",
				"run_id", runID,
				"received", received,
				"total", total,
				"percent", fmt.Sprintf("%.1f", s.Percent),
				"rate", transport.FormatMbps(s.RateBps*8/1e6),
				"eta", s.ETA.Round(time.Second),
			)
		}
	}

	mon := resmon.New(b.Sampler, b.Config.SampleInterval, logger)
	mon.Start()
	stats, err := retrieval.NewSession(conn, b.Config.Name, rc).Run(ctx)
	mon.Stop()

	if err != nil && stats.TotalChunks == 0 && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, bench.Summary{}, err
	}
	cpu, mem := mon.Averages()
	tpSummary := tp.Final(stats.Elapsed)
	row := report.NewSummary(stats, cpu, mem, tpSummary)
	return &row, tpSummary, err
}

func runSummary(name string, s report.Summary) protocol.RunSummary {
	return protocol.RunSummary{
		RunID:               s.RunID,
		ContentName:         name,
		State:               s.FinalState,
		AbortReason:         s.AbortReason,
		TotalTimeSec:        s.TotalTimeSec,
		TotalBytesExpected:  s.BytesExpected,
		TotalBytesReceived:  s.BytesReceived,
		InterestsSent:       s.InterestsSent,
		DataPacketsReceived: s.DataPacketsReceived,
		Timeouts:            s.Timeouts,
		ThroughputMbps:      s.ThroughputMbps,
		AvgChunkRTTMs:       s.AvgChunkRTTMs,
		AvgCPUPercent:       s.AvgCPUPercent,
		AvgMemPercent:       s.AvgMemPercent,
		TTFBMs:              s.TTFBMs,
	}
}

func printSummary(w io.Writer, s report.Summary) {
	fmt.Fprintf(w, "run %d %s in %.3fs\n", s.RunID, s.FinalState, s.TotalTimeSec)
	fmt.Fprintf(w, "  received   %s of %s (%.2f%%)\n",
		transport.FormatBytes(s.BytesReceived), transport.FormatBytes(s.BytesExpected), s.SuccessRatePercent)
	fmt.Fprintf(w, "  throughput %s (peak %s)\n", transport.FormatMbps(s.ThroughputMbps), transport.FormatMbps(s.PeakMbps))
	fmt.Fprintf(w, "  interests  %d, data %d, timeouts %d\n", s.InterestsSent, s.DataPacketsReceived, s.Timeouts)
	fmt.Fprintf(w, "  avg rtt    %.3f ms, cpu %.2f%%, mem %.2f%%\n", s.AvgChunkRTTMs, s.AvgCPUPercent, s.AvgMemPercent)
}

// Run is the `icn fetch` command.
func Run(ctx context.Context, args []string, out io.Writer) error {
	cfg, err := config.ParseFetchConfig(args)
	if err != nil {
		return err
	}
	logger := logging.New("fetch", cfg.LogLevel)

	var sinks retrieval.MultiSink
	var publisher *wsclient.Publisher
	if cfg.CollectorURL != "" {
		publisher, err = wsclient.NewPublisher(ctx, cfg.CollectorURL, cfg.Source, 0, logger)
		if err != nil {
			return fmt.Errorf("connect collector: %w", err)
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
	}
	if cfg.MetricsAddr != "" {
		m := metrics.NewCollector()
		stop, err := serveMetrics(cfg.MetricsAddr, m.Handler(), logger)
		if err != nil {
			return err
		}
		defer stop()
		sinks = append(sinks, m)
	}

	b := &Benchmark{
		Config: cfg,
		Dial: func(ctx context.Context) (Conn, error) {
			return face.Dial(ctx, cfg.Addr, cfg.UDPBuffer, face.Options{Logger: logger})
		},
		Sink:   sinks,
		Logger: logger,
		Out:    out,
	}
	if publisher != nil {
		b.Publisher = publisher
	}

	res, runErr := b.Run(ctx)
	if err := writeReports(cfg, res, out); err != nil {
		logger.Error("failed to write reports", "error", err)
	}
	if len(res.Summaries) > 1 {
		fmt.Fprintf(out, "%d runs: mean %s, peak %s\n", res.Throughput.Runs,
			transport.FormatMbps(res.Throughput.MeanAvgMbps), transport.FormatMbps(res.Throughput.MaxPeakMbps))
	}
	if runErr != nil {
		return runErr
	}
	if len(res.Summaries) == 0 {
		return errors.New("no run completed meta resolution")
	}
	return nil
}

func writeReports(cfg config.FetchConfig, res Result, out io.Writer) error {
	var errs []error
	if cfg.SummaryPath != "" {
		ok, err := report.WriteSummaryCSV(cfg.SummaryPath, res.Summaries)
		switch {
		case err != nil:
			errs = append(errs, err)
		case ok:
			fmt.Fprintf(out, "summary report written to %s\n", cfg.SummaryPath)
		default:
			fmt.Fprintln(out, "no summary rows to write")
		}
	}
	if cfg.TimeSeriesPath != "" && res.Series != nil {
		ok, err := res.Series.WriteCSV(cfg.TimeSeriesPath)
		switch {
		case err != nil:
			errs = append(errs, err)
		case ok:
			fmt.Fprintf(out, "time-series log written to %s (%d events)\n", cfg.TimeSeriesPath, res.Series.Len())
		default:
			fmt.Fprintln(out, "no time-series events to write")
		}
	}
	return errors.Join(errs...)
}

func serveMetrics(addr string, h http.Handler, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen metrics: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
