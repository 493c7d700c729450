package retrieval

// verdict is the tracker's classification of a response.
type verdict int

const (
	verdictAccepted verdict = iota
	verdictForeign
	verdictOutOfRange
	verdictDuplicate
)

// tracker owns the received set and the Running/Completed/Aborted machine.
type tracker struct {
	contentName    string
	total          uint32
	received       *chunkSet
	state          State
	reason         AbortReason
	consecutive    int
	maxConsecutive int
	stats          *RunStats
}

func newTracker(contentName string, total uint32, maxConsecutive int, stats *RunStats) *tracker {
	t := &tracker{
		contentName:    contentName,
		total:          total,
		received:       newChunkSet(total),
		state:          StateRunning,
		maxConsecutive: maxConsecutive,
		stats:          stats,
	}
	t.checkComplete()
	return t
}

func (t *tracker) running() bool {
	return t.state == StateRunning
}

// onTimeout counts a timeout and aborts once the consecutive count exceeds the limit.
func (t *tracker) onTimeout() {
	if !t.running() {
		return
	}
	t.stats.Timeouts++
	t.consecutive++
	if t.consecutive > t.maxConsecutive {
		t.abort(AbortConsecutiveTimeouts)
	}
}

// onResponse classifies a response and, when accepted, marks the chunk
// received and updates byte accounting. RTT bookkeeping is the caller's.
func (t *tracker) onResponse(out Outcome) verdict {
	if !t.running() {
		return verdictForeign
	}
	if out.Name != t.contentName {
		t.stats.ForeignResponses++
		return verdictForeign
	}
	if out.Index >= t.total {
		t.stats.OutOfRange++
		return verdictOutOfRange
	}
	if !t.received.Mark(out.Index) {
		t.stats.Duplicates++
		return verdictDuplicate
	}
	t.consecutive = 0
	t.stats.ChunksReceived = t.received.Count()
	t.stats.BytesReceived += int64(len(out.Payload))
	return verdictAccepted
}

// checkComplete moves to Completed once every chunk has arrived.
func (t *tracker) checkComplete() {
	if t.running() && t.received.Full() {
		t.state = StateCompleted
	}
}

func (t *tracker) abort(reason AbortReason) {
	if !t.running() {
		return
	}
	t.state = StateAborted
	t.reason = reason
}
