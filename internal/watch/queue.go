package watch

import "sync"

// queue is a FIFO of file names pending processing. Every name ever offered
// (or marked known up front) is remembered, so repeated directory scans and
// duplicate filesystem events never enqueue a file twice.
type queue struct {
	mu      sync.Mutex
	pending []string
	known   map[string]struct{}
}

func newQueue() *queue {
	return &queue{known: make(map[string]struct{})}
}

// MarkKnown records a name without enqueueing it. Used for the baseline
// snapshot: files present when watching starts are never processed.
func (q *queue) MarkKnown(name string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.known[name] = struct{}{}
}

// Offer enqueues name unless it was seen before. Returns true when the
// name was actually added.
func (q *queue) Offer(name string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, seen := q.known[name]; seen {
		return false
	}
	q.known[name] = struct{}{}
	q.pending = append(q.pending, name)
	return true
}

// Pop removes and returns the oldest pending name.
func (q *queue) Pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return "", false
	}
	name := q.pending[0]
	q.pending = q.pending[1:]
	return name, true
}

// Len reports the number of pending names.
func (q *queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Clear drops all pending names. Known names stay known, so a file skipped
// by a stop is not picked up by a later session using the same queue.
func (q *queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = nil
}
