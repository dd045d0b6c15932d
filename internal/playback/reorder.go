package playback

// reorderQueue buffers chunk payloads that arrived out of order and releases
// them strictly by ascending index. It is owned by the driver goroutine and
// needs no locking.
type reorderQueue struct {
	pending   map[int]Payload
	watermark int // next index to release
}

func newReorderQueue() *reorderQueue {
	return &reorderQueue{pending: make(map[int]Payload)}
}

// put stores a chunk payload under its sequence index. A payload at an
// already-released index is dropped; late duplicates replace pending ones.
func (q *reorderQueue) put(index int, p Payload) bool {
	if index < q.watermark {
		return false
	}
	q.pending[index] = p
	return true
}

// takeReady removes and returns the payload at the watermark, if present,
// advancing the watermark. Callers loop until ok is false to drain every
// contiguously available chunk.
func (q *reorderQueue) takeReady() (p Payload, index int, ok bool) {
	p, ok = q.pending[q.watermark]
	if !ok {
		return Payload{}, 0, false
	}
	index = q.watermark
	delete(q.pending, index)
	q.watermark++
	return p, index, true
}

// skip abandons the slot at the watermark so one bad chunk cannot stall the
// rest of the queue.
func (q *reorderQueue) skip() {
	delete(q.pending, q.watermark)
	q.watermark++
}

// reset clears all pending chunks and rewinds the watermark to zero.
func (q *reorderQueue) reset() {
	q.pending = make(map[int]Payload)
	q.watermark = 0
}

func (q *reorderQueue) pendingCount() int {
	return len(q.pending)
}
