package retrieval

import "time"

// window schedules chunk requests in increasing index order while keeping at
// most capacity of them outstanding.
type window struct {
	capacity  int
	total     uint32
	next      uint32
	requested *chunkSet
	inFlight  map[uint32]time.Time
}

func newWindow(total uint32, capacity int) *window {
	hint := capacity
	if uint64(hint) > uint64(total) {
		hint = int(total)
	}
	return &window{
		capacity:  capacity,
		total:     total,
		requested: newChunkSet(total),
		inFlight:  make(map[uint32]time.Time, hint),
	}
}

// fill selects the next indices to request. For each one it calls send and
// records the send time; chunks already received are skipped without being
// requested. It returns how many requests were emitted.
func (w *window) fill(received *chunkSet, now func() time.Time, send func(index uint32, at time.Time)) int {
	emitted := 0
	for len(w.inFlight) < w.capacity && w.next < w.total {
		idx := w.next
		w.next++
		if received.Has(idx) || !w.requested.Mark(idx) {
			continue
		}
		at := now()
		w.inFlight[idx] = at
		send(idx, at)
		emitted++
	}
	return emitted
}

// settle removes index from the in-flight table and returns its send time.
// The second result is false when no request for index is outstanding.
func (w *window) settle(index uint32) (time.Time, bool) {
	at, ok := w.inFlight[index]
	if ok {
		delete(w.inFlight, index)
	}
	return at, ok
}

// outstanding returns the current in-flight count.
func (w *window) outstanding() int {
	return len(w.inFlight)
}

// exhausted reports whether every index has been visited by the cursor.
func (w *window) exhausted() bool {
	return w.next >= w.total
}
