package produce

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/Hiro-Washi/da-icn/internal/config"
	"github.com/Hiro-Washi/da-icn/internal/face"
	"github.com/Hiro-Washi/da-icn/internal/logging"
	"github.com/Hiro-Washi/da-icn/internal/producer"
	"github.com/Hiro-Washi/da-icn/internal/transport"
)

// Run is the `icn produce` command. It blocks until ctx is canceled.
func Run(ctx context.Context, args []string, out io.Writer) error {
	cfg, err := config.ParseProduceConfig(args)
	if err != nil {
		return err
	}
	logger := logging.New("produce", cfg.LogLevel)
	return serve(ctx, cfg, logger, out, nil)
}

// serve prepares the content file and answers consumers on cfg.Addr. ready,
// if non-nil, receives the bound address once the listener is up.
func serve(ctx context.Context, cfg config.ProduceConfig, logger *slog.Logger, out io.Writer, ready func(addr string)) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	fill, err := producer.ParseFill(cfg.Fill)
	if err != nil {
		return err
	}
	created, err := producer.EnsureDummyFile(cfg.FilePath, cfg.FileSize, fill)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(out, "created %s content file %s (%s)\n", fill, cfg.FilePath, transport.FormatBytes(cfg.FileSize))
	}

	content, err := producer.OpenContent(cfg.FilePath, cfg.ChunkSize)
	if err != nil {
		return err
	}
	defer content.Close()

	ln, err := face.Listen(cfg.Addr, cfg.UDPBuffer, face.Options{Compress: cfg.Compress, Logger: logger})
	if err != nil {
		return err
	}
	defer ln.Close()

	fmt.Fprintf(out, "serving %s from %s (%s, %d chunks) on %s\n",
		cfg.Name, cfg.FilePath, transport.FormatBytes(content.Size()), content.TotalChunks(), ln.Addr())
	if ready != nil {
		ready(ln.Addr())
	}

	srv := producer.NewServer(cfg.Name, content, logger)
	err = srv.ServeListener(ctx, ln)
	fmt.Fprintf(out, "producer stopped: served %d, ignored %d\n", srv.Served(), srv.Ignored())
	return err
}
