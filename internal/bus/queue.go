package bus

import (
	"context"
	"sync"
)

// eventQueue decouples the connection reader from the event loop. push
// never blocks, so a burst of signals cannot hold a reply frame behind it
// while the loop is itself waiting on that reply.
type eventQueue struct {
	mu     sync.Mutex
	items  []Event
	closed bool
	ready  chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{ready: make(chan struct{}, 1)}
}

// push appends ev. Events pushed after close are dropped.
func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}

	q.items = append(q.items, ev)
	depth := len(q.items)
	q.mu.Unlock()

	eventQueueDepth.Set(float64(depth))
	q.wake()
}

// close lets pump return once the queued events are delivered.
func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.wake()
}

func (q *eventQueue) wake() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// pump moves queued events to out in order until the queue is closed and
// empty or ctx is done.
func (q *eventQueue) pump(ctx context.Context, out chan<- Event) {
	for {
		q.mu.Lock()

		if len(q.items) == 0 {
			closed := q.closed
			q.mu.Unlock()

			if closed {
				return
			}

			select {
			case <-q.ready:
				continue
			case <-ctx.Done():
				return
			}
		}

		ev := q.items[0]
		q.items[0] = Event{}
		q.items = q.items[1:]
		depth := len(q.items)
		q.mu.Unlock()

		eventQueueDepth.Set(float64(depth))

		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}
