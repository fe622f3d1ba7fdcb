// Package ingest turns inbound chat traffic into Events on a bounded queue.
package ingest

import (
	"sync"
	"time"

	"github.com/liamashdown/tokenradar/internal/metrics"
)

// Event is one inbound message
type Event struct {
	SourceID  string
	Text      string
	Timestamp time.Time
}

// Queue is a bounded event buffer shared by every source. When full the
// oldest event is discarded so producers never block on a slow consumer.
type Queue struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

// NewQueue creates a queue holding up to size events
func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{ch: make(chan Event, size)}
}

// Push enqueues ev and reports whether an older event was dropped to make
// room. Pushing to a closed queue is a no-op.
func (q *Queue) Push(ev Event) (dropped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	select {
	case q.ch <- ev:
		return false
	default:
	}

	// only producers hold mu, so after one receive there is room
	select {
	case <-q.ch:
		dropped = true
		metrics.EventsDropped.Inc()
	default:
	}
	q.ch <- ev
	return dropped
}

// Events is the consumer side
func (q *Queue) Events() <-chan Event {
	return q.ch
}

// Len returns the number of buffered events
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops accepting events; buffered events stay readable
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}
