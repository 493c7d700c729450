package retrieval

import (
	"log/slog"
	"time"
)

const (
	DefaultWindowCapacity         = 2000
	DefaultReceiveTimeout         = 1000 * time.Millisecond
	DefaultMaxConsecutiveTimeouts = 20
	DefaultMetaAttempts           = 5
	DefaultMetaTimeout            = 1000 * time.Millisecond
	DefaultChunkSize              = 1024
	DefaultProgressEvery          = 1000

	// MetaSuffix is appended to a content name to address its chunk-count record.
	MetaSuffix = "/meta"
)

// Config holds the per-session retrieval parameters.
type Config struct {
	// WindowCapacity bounds the number of outstanding requests.
	WindowCapacity int
	// ReceiveTimeout is the deadline of each blocking receive in the main loop.
	ReceiveTimeout time.Duration
	// MaxConsecutiveTimeouts aborts the run once exceeded.
	MaxConsecutiveTimeouts int
	// MetaAttempts and MetaTimeout bound chunk-count resolution.
	MetaAttempts int
	MetaTimeout  time.Duration
	// ChunkSize is used for byte accounting only.
	ChunkSize int
	// ProgressEvery logs a progress line every N received chunks (0 disables).
	ProgressEvery int

	// RunID tags telemetry events.
	RunID int
	// Sink receives telemetry events; nil disables telemetry.
	Sink Sink
	// OnProgress is called after every accepted response with the number of
	// distinct chunks received so far and the payload size.
	OnProgress func(received, total uint32, payloadSize int)
	Logger     *slog.Logger
	// Now is the session clock; tests substitute a virtual one.
	Now func() time.Time
}

// DefaultConfig returns a Config populated with the documented defaults.
func DefaultConfig() Config {
	return Config{
		WindowCapacity:         DefaultWindowCapacity,
		ReceiveTimeout:         DefaultReceiveTimeout,
		MaxConsecutiveTimeouts: DefaultMaxConsecutiveTimeouts,
		MetaAttempts:           DefaultMetaAttempts,
		MetaTimeout:            DefaultMetaTimeout,
		ChunkSize:              DefaultChunkSize,
		ProgressEvery:          DefaultProgressEvery,
		RunID:                  1,
	}
}

// normalize fills zero values with defaults.
func (c Config) normalize() Config {
	out := c
	if out.WindowCapacity <= 0 {
		out.WindowCapacity = DefaultWindowCapacity
	}
	if out.ReceiveTimeout <= 0 {
		out.ReceiveTimeout = DefaultReceiveTimeout
	}
	if out.MaxConsecutiveTimeouts <= 0 {
		out.MaxConsecutiveTimeouts = DefaultMaxConsecutiveTimeouts
	}
	if out.MetaAttempts <= 0 {
		out.MetaAttempts = DefaultMetaAttempts
	}
	if out.MetaTimeout <= 0 {
		out.MetaTimeout = DefaultMetaTimeout
	}
	if out.ChunkSize <= 0 {
		out.ChunkSize = DefaultChunkSize
	}
	if out.ProgressEvery < 0 {
		out.ProgressEvery = 0
	}
	if out.Logger == nil {
		out.Logger = slog.New(slog.DiscardHandler)
	}
	if out.Now == nil {
		out.Now = time.Now
	}
	return out
}

// MetaName returns the name of the chunk-count record for contentName.
func MetaName(contentName string) string {
	return contentName + MetaSuffix
}
