package collect

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/Hiro-Washi/da-icn/internal/collector"
	"github.com/Hiro-Washi/da-icn/internal/config"
	"github.com/Hiro-Washi/da-icn/internal/logging"
	"github.com/Hiro-Washi/da-icn/internal/metrics"
	"github.com/Hiro-Washi/da-icn/internal/report"
)

// Run is the `icn collect` command. It serves until ctx is canceled and then
// writes everything received to the time-series CSV.
func Run(ctx context.Context, args []string, out io.Writer) error {
	cfg, err := config.ParseCollectConfig(args)
	if err != nil {
		return err
	}
	logger := logging.New("collect", cfg.LogLevel)
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	return serve(ctx, cfg, ln, logger, out)
}

func serve(ctx context.Context, cfg config.CollectConfig, ln net.Listener, logger *slog.Logger, out io.Writer) error {
	opts := collector.Options{
		MaxMessageBytes: cfg.MaxMessageBytes,
		Logger:          logger,
	}
	if cfg.Metrics {
		m := metrics.NewCollector()
		opts.Sink = m
		opts.MetricsHandler = m.Handler()
	}
	srv := collector.NewServer(report.NewSourcedTimeSeries(), opts)

	fmt.Fprintf(out, "collecting telemetry on ws://%s/events\n", ln.Addr())
	serveErr := srv.Serve(ctx, ln)

	summaries := srv.Summaries()
	fmt.Fprintf(out, "collector stopped: %d events, %d run summaries, %d rejected\n",
		srv.Series().Len(), len(summaries), srv.Rejected())
	if cfg.TimeSeriesPath != "" {
		ok, err := srv.Series().WriteCSV(cfg.TimeSeriesPath)
		switch {
		case err != nil:
			logger.Error("failed to write time series", "path", cfg.TimeSeriesPath, "error", err)
			if serveErr == nil {
				serveErr = err
			}
		case ok:
			fmt.Fprintf(out, "time-series log written to %s\n", cfg.TimeSeriesPath)
		default:
			fmt.Fprintln(out, "no events received, nothing written")
		}
	}
	return serveErr
}
