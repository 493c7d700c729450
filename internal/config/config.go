package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Hiro-Washi/da-icn/internal/retrieval"
	"github.com/Hiro-Washi/da-icn/internal/transport"
	"github.com/Hiro-Washi/da-icn/internal/wire"
)

const envPrefix = "DAICN_"

// Defaults shared by the consumer and producer.
const (
	DefaultContentName  = "ccnx:/test/video"
	DefaultProducerAddr = "127.0.0.1:9000"
	DefaultListenAddr   = ":9000"
	DefaultCollectAddr  = ":8090"
	DefaultLogLevel     = "info"
)

// FetchConfig configures the consumer benchmark (icn fetch).
type FetchConfig struct {
	Addr                   string
	Name                   string
	Runs                   int
	Window                 int
	ReceiveTimeout         time.Duration
	MaxConsecutiveTimeouts int
	MetaAttempts           int
	MetaTimeout            time.Duration
	ChunkSize              int
	ProgressEvery          int
	SummaryPath            string
	TimeSeriesPath         string
	CollectorURL           string
	MetricsAddr            string
	SampleInterval         time.Duration
	UDPBuffer              int
	Source                 string
	LogLevel               string
}

// ProduceConfig configures the producer (icn produce).
type ProduceConfig struct {
	Addr      string
	Name      string
	FilePath  string
	FileSize  int64
	ChunkSize int
	Fill      string
	Compress  bool
	UDPBuffer int
	LogLevel  string
}

// CollectConfig configures the telemetry collector (icn collect).
type CollectConfig struct {
	Addr            string
	TimeSeriesPath  string
	Metrics         bool
	MaxMessageBytes int64
	LogLevel        string
}

// FibConfig configures the FIB agent (icnfib).
type FibConfig struct {
	File     string
	FIBPath  string
	Command  string
	Sudo     bool
	LogLevel string
}

// ParseFetchConfig parses consumer configuration from args and DAICN_*
// environment variables. Flags take precedence over the environment.
func ParseFetchConfig(args []string) (FetchConfig, error) {
	return parseFetchConfigWithFlagSet(flag.NewFlagSet("fetch", flag.ContinueOnError), args)
}

func parseFetchConfigWithFlagSet(fs *flag.FlagSet, args []string) (FetchConfig, error) {
	cfg := FetchConfig{
		Addr:                   DefaultProducerAddr,
		Name:                   DefaultContentName,
		Runs:                   2,
		Window:                 retrieval.DefaultWindowCapacity,
		ReceiveTimeout:         retrieval.DefaultReceiveTimeout,
		MaxConsecutiveTimeouts: retrieval.DefaultMaxConsecutiveTimeouts,
		MetaAttempts:           retrieval.DefaultMetaAttempts,
		MetaTimeout:            retrieval.DefaultMetaTimeout,
		ChunkSize:              retrieval.DefaultChunkSize,
		ProgressEvery:          retrieval.DefaultProgressEvery,
		SummaryPath:            "summary_report.csv",
		TimeSeriesPath:         "timeseries_log.csv",
		SampleInterval:         500 * time.Millisecond,
		UDPBuffer:              transport.DefaultUDPBuffer,
		Source:                 hostname(),
		LogLevel:               DefaultLogLevel,
	}

	var env envReader
	env.stringVar("PRODUCER_ADDR", &cfg.Addr)
	env.stringVar("NAME", &cfg.Name)
	env.intVar("RUNS", &cfg.Runs)
	env.intVar("WINDOW", &cfg.Window)
	env.durationVar("RECEIVE_TIMEOUT", &cfg.ReceiveTimeout)
	env.intVar("MAX_CONSECUTIVE_TIMEOUTS", &cfg.MaxConsecutiveTimeouts)
	env.intVar("META_ATTEMPTS", &cfg.MetaAttempts)
	env.durationVar("META_TIMEOUT", &cfg.MetaTimeout)
	env.intVar("CHUNK_SIZE", &cfg.ChunkSize)
	env.stringVar("SUMMARY_PATH", &cfg.SummaryPath)
	env.stringVar("TIMESERIES_PATH", &cfg.TimeSeriesPath)
	env.stringVar("COLLECTOR_URL", &cfg.CollectorURL)
	env.stringVar("METRICS_ADDR", &cfg.MetricsAddr)
	env.intVar("UDP_BUFFER", &cfg.UDPBuffer)
	env.stringVar("SOURCE", &cfg.Source)
	env.stringVar("LOG_LEVEL", &cfg.LogLevel)
	if env.err != nil {
		return FetchConfig{}, env.err
	}

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "producer QUIC address")
	fs.StringVar(&cfg.Name, "name", cfg.Name, "content name to retrieve")
	fs.IntVar(&cfg.Runs, "runs", cfg.Runs, "number of benchmark runs")
	fs.IntVar(&cfg.Window, "window", cfg.Window, "maximum outstanding chunk requests")
	fs.DurationVar(&cfg.ReceiveTimeout, "receive-timeout", cfg.ReceiveTimeout, "per-receive wait before a timeout is counted")
	fs.IntVar(&cfg.MaxConsecutiveTimeouts, "max-consecutive-timeouts", cfg.MaxConsecutiveTimeouts, "abort once consecutive timeouts exceed this")
	fs.IntVar(&cfg.MetaAttempts, "meta-attempts", cfg.MetaAttempts, "meta resolution attempts")
	fs.DurationVar(&cfg.MetaTimeout, "meta-timeout", cfg.MetaTimeout, "wait per meta attempt")
	fs.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "nominal chunk size used for expected bytes")
	fs.IntVar(&cfg.ProgressEvery, "progress-every", cfg.ProgressEvery, "log progress every N chunks (0 disables)")
	fs.StringVar(&cfg.SummaryPath, "summary", cfg.SummaryPath, "summary CSV path (empty disables)")
	fs.StringVar(&cfg.TimeSeriesPath, "timeseries", cfg.TimeSeriesPath, "time-series CSV path (empty disables)")
	fs.StringVar(&cfg.CollectorURL, "collector", cfg.CollectorURL, "collector WebSocket URL, e.g. ws://host:8090/events")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address")
	fs.DurationVar(&cfg.SampleInterval, "sample-interval", cfg.SampleInterval, "CPU/memory sampling interval")
	fs.IntVar(&cfg.UDPBuffer, "udp-buffer", cfg.UDPBuffer, "UDP socket buffer size in bytes")
	fs.StringVar(&cfg.Source, "source", cfg.Source, "name reported to the collector")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return FetchConfig{}, err
	}
	return cfg, cfg.Validate()
}

// Validate rejects values the consumer cannot run with.
func (c FetchConfig) Validate() error {
	var errs []error
	if c.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if c.Runs < 1 {
		errs = append(errs, fmt.Errorf("runs must be at least 1, got %d", c.Runs))
	}
	if c.Window < 1 {
		errs = append(errs, fmt.Errorf("window must be at least 1, got %d", c.Window))
	}
	if c.ReceiveTimeout <= 0 || c.MetaTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if c.MaxConsecutiveTimeouts < 0 {
		errs = append(errs, fmt.Errorf("max-consecutive-timeouts must not be negative, got %d", c.MaxConsecutiveTimeouts))
	}
	if c.MetaAttempts < 1 {
		errs = append(errs, fmt.Errorf("meta-attempts must be at least 1, got %d", c.MetaAttempts))
	}
	if c.ChunkSize < 1 {
		errs = append(errs, fmt.Errorf("chunk-size must be at least 1, got %d", c.ChunkSize))
	}
	return errors.Join(errs...)
}

// RetrievalConfig maps the consumer flags onto a session configuration.
func (c FetchConfig) RetrievalConfig(runID int) retrieval.Config {
	rc := retrieval.DefaultConfig()
	rc.WindowCapacity = c.Window
	rc.ReceiveTimeout = c.ReceiveTimeout
	rc.MaxConsecutiveTimeouts = c.MaxConsecutiveTimeouts
	rc.MetaAttempts = c.MetaAttempts
	rc.MetaTimeout = c.MetaTimeout
	rc.ChunkSize = c.ChunkSize
	rc.ProgressEvery = c.ProgressEvery
	rc.RunID = runID
	return rc
}

// ParseProduceConfig parses producer configuration.
func ParseProduceConfig(args []string) (ProduceConfig, error) {
	return parseProduceConfigWithFlagSet(flag.NewFlagSet("produce", flag.ContinueOnError), args)
}

func parseProduceConfigWithFlagSet(fs *flag.FlagSet, args []string) (ProduceConfig, error) {
	cfg := ProduceConfig{
		Addr:      DefaultListenAddr,
		Name:      DefaultContentName,
		FilePath:  "video.mp4",
		FileSize:  100 * 1024 * 1024,
		ChunkSize: retrieval.DefaultChunkSize,
		Fill:      "zero",
		UDPBuffer: transport.DefaultUDPBuffer,
		LogLevel:  DefaultLogLevel,
	}

	var env envReader
	env.stringVar("LISTEN_ADDR", &cfg.Addr)
	env.stringVar("NAME", &cfg.Name)
	env.stringVar("FILE", &cfg.FilePath)
	env.int64Var("FILE_SIZE", &cfg.FileSize)
	env.intVar("CHUNK_SIZE", &cfg.ChunkSize)
	env.stringVar("FILL", &cfg.Fill)
	env.boolVar("COMPRESS", &cfg.Compress)
	env.intVar("UDP_BUFFER", &cfg.UDPBuffer)
	env.stringVar("LOG_LEVEL", &cfg.LogLevel)
	if env.err != nil {
		return ProduceConfig{}, env.err
	}

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "QUIC listen address")
	fs.StringVar(&cfg.Name, "name", cfg.Name, "content name to serve")
	fs.StringVar(&cfg.FilePath, "file", cfg.FilePath, "content file (created when missing or of the wrong size)")
	fs.Int64Var(&cfg.FileSize, "file-size", cfg.FileSize, "content size in bytes")
	fs.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "chunk size in bytes")
	fs.StringVar(&cfg.Fill, "fill", cfg.Fill, "fill for generated content (zero, random)")
	fs.BoolVar(&cfg.Compress, "compress", cfg.Compress, "LZ4-compress chunk payloads on the wire")
	fs.IntVar(&cfg.UDPBuffer, "udp-buffer", cfg.UDPBuffer, "UDP socket buffer size in bytes")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return ProduceConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return ProduceConfig{}, err
	}
	return cfg, nil
}

// Validate checks that every chunk of Name fits in a single datagram.
func (c ProduceConfig) Validate() error {
	if c.ChunkSize < 1 {
		return fmt.Errorf("chunk-size must be at least 1, got %d", c.ChunkSize)
	}
	if budget := wire.PayloadBudget(c.Name); c.ChunkSize > budget {
		return fmt.Errorf("chunk-size %d does not fit a %d-byte datagram for name %q (max %d)",
			c.ChunkSize, wire.MaxDatagramLen, c.Name, budget)
	}
	if c.FileSize < 0 {
		return fmt.Errorf("file-size must not be negative, got %d", c.FileSize)
	}
	return nil
}

// ParseCollectConfig parses collector configuration.
func ParseCollectConfig(args []string) (CollectConfig, error) {
	return parseCollectConfigWithFlagSet(flag.NewFlagSet("collect", flag.ContinueOnError), args)
}

func parseCollectConfigWithFlagSet(fs *flag.FlagSet, args []string) (CollectConfig, error) {
	cfg := CollectConfig{
		Addr:            DefaultCollectAddr,
		TimeSeriesPath:  "collected_timeseries.csv",
		Metrics:         true,
		MaxMessageBytes: 64 * 1024,
		LogLevel:        DefaultLogLevel,
	}

	var env envReader
	env.stringVar("COLLECT_ADDR", &cfg.Addr)
	env.stringVar("TIMESERIES_PATH", &cfg.TimeSeriesPath)
	env.boolVar("METRICS", &cfg.Metrics)
	env.int64Var("MAX_MESSAGE_BYTES", &cfg.MaxMessageBytes)
	env.stringVar("LOG_LEVEL", &cfg.LogLevel)
	if env.err != nil {
		return CollectConfig{}, env.err
	}

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	fs.StringVar(&cfg.TimeSeriesPath, "timeseries", cfg.TimeSeriesPath, "time-series CSV written on shutdown")
	fs.BoolVar(&cfg.Metrics, "metrics", cfg.Metrics, "expose /metrics")
	fs.Int64Var(&cfg.MaxMessageBytes, "max-message-bytes", cfg.MaxMessageBytes, "largest accepted WebSocket message")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return CollectConfig{}, err
	}
	return cfg, nil
}

// ParseFibConfig parses FIB agent configuration.
func ParseFibConfig(args []string) (FibConfig, error) {
	return parseFibConfigWithFlagSet(flag.NewFlagSet("icnfib", flag.ContinueOnError), args)
}

func parseFibConfigWithFlagSet(fs *flag.FlagSet, args []string) (FibConfig, error) {
	cfg := FibConfig{
		Command:  "cefroute",
		Sudo:     true,
		LogLevel: DefaultLogLevel,
	}

	var env envReader
	env.stringVar("FIB_ENTRIES", &cfg.File)
	env.stringVar("FIB_PATH", &cfg.FIBPath)
	env.stringVar("CEFROUTE", &cfg.Command)
	env.boolVar("SUDO", &cfg.Sudo)
	env.stringVar("LOG_LEVEL", &cfg.LogLevel)
	if env.err != nil {
		return FibConfig{}, env.err
	}

	fs.StringVar(&cfg.File, "file", cfg.File, "TOML file of [[static]] and [[dynamic]] entries (default: built-in testbed set)")
	fs.StringVar(&cfg.FIBPath, "fib-path", cfg.FIBPath, "cefnetd FIB file (default: /etc/cefnetd/cefnetd.fib)")
	fs.StringVar(&cfg.Command, "cefroute", cfg.Command, "cefroute binary")
	fs.BoolVar(&cfg.Sudo, "sudo", cfg.Sudo, "run cefroute add/del through sudo")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return FibConfig{}, err
	}
	return cfg, nil
}

// envReader reads DAICN_* variables, keeping the first parse error.
type envReader struct {
	err error
}

func (r *envReader) lookup(key string) (string, bool) {
	v := os.Getenv(envPrefix + key)
	return v, v != ""
}

func (r *envReader) fail(key, v string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid %s%s=%q: %w", envPrefix, key, v, err)
	}
}

func (r *envReader) stringVar(key string, dst *string) {
	if v, ok := r.lookup(key); ok {
		*dst = v
	}
}

func (r *envReader) intVar(key string, dst *int) {
	if v, ok := r.lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			r.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (r *envReader) int64Var(key string, dst *int64) {
	if v, ok := r.lookup(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			r.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (r *envReader) boolVar(key string, dst *bool) {
	if v, ok := r.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			r.fail(key, v, err)
			return
		}
		*dst = b
	}
}

func (r *envReader) durationVar(key string, dst *time.Duration) {
	if v, ok := r.lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			r.fail(key, v, err)
			return
		}
		*dst = d
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
