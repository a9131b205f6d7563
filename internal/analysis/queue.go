package analysis

import "sync"

// task is one recompute request.
type task struct {
	Ticker    string
	Timestamp int64 // Bar timestamp (ms since epoch)
}

// taskQueue is a bounded FIFO that coalesces by ticker: a ticker
// already pending keeps its queue position and takes the newest
// timestamp instead of occupying a second slot.
type taskQueue struct {
	mu   sync.Mutex
	cond *sync.Cond

	pending  map[string]int64 // ticker → newest requested timestamp
	order    []string         // FIFO of distinct tickers
	capacity int
	closed   bool

	// Stats
	enqueued  int64
	coalesced int64
	dropped   int64
}

// queueStats is a snapshot of queue counters.
type queueStats struct {
	Depth     int
	Enqueued  int64
	Coalesced int64
	Dropped   int64
}

func newTaskQueue(capacity int) *taskQueue {
	if capacity < 1 {
		capacity = 1
	}
	q := &taskQueue{
		pending:  make(map[string]int64),
		capacity: capacity,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push enqueues or coalesces a request. Returns false when the queue
// is full or closed.
func (q *taskQueue) push(ticker string, ts int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	if prev, ok := q.pending[ticker]; ok {
		if ts > prev {
			q.pending[ticker] = ts
		}
		q.coalesced++
		return true
	}

	if len(q.order) >= q.capacity {
		q.dropped++
		return false
	}

	q.pending[ticker] = ts
	q.order = append(q.order, ticker)
	q.enqueued++
	q.cond.Signal()
	return true
}

// pop blocks until a task is available or the queue is closed and
// drained.
func (q *taskQueue) pop() (task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.order) == 0 && !q.closed {
		q.cond.Wait()
	}

	if len(q.order) == 0 {
		return task{}, false
	}

	ticker := q.order[0]
	q.order = q.order[1:]
	ts := q.pending[ticker]
	delete(q.pending, ticker)

	return task{Ticker: ticker, Timestamp: ts}, true
}

// close stops accepting work and wakes all waiting poppers. Pending
// tasks can still be drained.
func (q *taskQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}

func (q *taskQueue) stats() queueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return queueStats{
		Depth:     len(q.order),
		Enqueued:  q.enqueued,
		Coalesced: q.coalesced,
		Dropped:   q.dropped,
	}
}
