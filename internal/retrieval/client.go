package retrieval

import (
	"context"
	"time"
)

// OutcomeKind classifies what a single Receive call produced.
type OutcomeKind int

const (
	// OutcomeTimeout means nothing arrived before the receive deadline.
	OutcomeTimeout OutcomeKind = iota
	// OutcomeRequest means a request (Interest) arrived on the face.
	OutcomeRequest
	// OutcomeResponse means a response (Data) arrived on the face.
	OutcomeResponse
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeTimeout:
		return "timeout"
	case OutcomeRequest:
		return "request"
	case OutcomeResponse:
		return "response"
	default:
		return "unknown"
	}
}

// Outcome is the result of one blocking receive.
// Name and Index are set for requests and responses; Payload only for responses.
type Outcome struct {
	Kind    OutcomeKind
	Name    string
	Index   uint32
	Payload []byte
}

// TimeoutOutcome is returned by clients when the receive deadline expires.
func TimeoutOutcome() Outcome {
	return Outcome{Kind: OutcomeTimeout}
}

// Client is the ask-and-get primitive the retrieval engine runs on.
//
// SendRequest is fire-and-forget: a request that fails to go out is
// indistinguishable from one that is never answered. Receive blocks for at
// most timeout and must return a timeout outcome when ctx is done, so the
// caller can observe cancellation on its next iteration.
//
// Implementations whose I/O runs on other goroutines must serialize outcomes
// into a single queue consumed by Receive.
type Client interface {
	SendRequest(name string, index uint32) error
	Receive(ctx context.Context, timeout time.Duration) Outcome
}
