package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrMetaResolution means no valid chunk-count response arrived within the retry budget.
	ErrMetaResolution = errors.New("meta resolution failed")
	// ErrMalformedMetaPayload means the producer answered with a payload that is not a count.
	ErrMalformedMetaPayload = errors.New("malformed meta payload")
)

// MetaOptions bounds chunk-count resolution.
type MetaOptions struct {
	Attempts int
	Timeout  time.Duration
	Logger   *slog.Logger
}

// ResolveChunkCount asks for MetaName(contentName) until a matching response
// arrives or the attempts run out. Timeouts and unrelated packets are retried;
// a malformed count is not.
func ResolveChunkCount(ctx context.Context, c Client, contentName string, opts MetaOptions) (uint32, error) {
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultMetaAttempts
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultMetaTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	metaName := MetaName(contentName)
	for attempt := 1; attempt <= opts.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrMetaResolution, err)
		}
		if err := c.SendRequest(metaName, 0); err != nil {
			logger.Debug("meta request send failed", "name", metaName, "attempt", attempt, "error", err)
		}
		out := c.Receive(ctx, opts.Timeout)
		if out.Kind != OutcomeResponse || out.Name != metaName {
			logger.Debug("meta attempt unanswered", "name", metaName, "attempt", attempt, "outcome", out.Kind.String())
			continue
		}
		count, err := ParseChunkCount(out.Payload)
		if err != nil {
			return 0, err
		}
		logger.Info("meta resolved", "name", metaName, "chunks", count, "attempt", attempt)
		return count, nil
	}
	return 0, fmt.Errorf("%w: %s unanswered after %d attempts", ErrMetaResolution, metaName, opts.Attempts)
}

// ParseChunkCount decodes a decimal chunk count. Surrounding whitespace and
// NUL padding are ignored.
func ParseChunkCount(payload []byte) (uint32, error) {
	text := strings.Trim(string(payload), " \t\r\n\x00")
	n, err := strconv.ParseUint(text, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedMetaPayload, string(payload))
	}
	return uint32(n), nil
}

// FormatChunkCount encodes a chunk count the way ParseChunkCount reads it.
func FormatChunkCount(n uint32) []byte {
	return []byte(strconv.FormatUint(uint64(n), 10))
}
