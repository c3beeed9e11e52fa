package session

import (
	"sync"
	"sync/atomic"
)

// Handlers receive everything a session produces. Any field may be nil.
// Callbacks run one at a time, in order, on a goroutine owned by the
// session; they may call back into the session. None starts after Close
// returns.
type Handlers struct {
	OnOutput      func(line string)
	OnError       func(message string)
	OnExplanation func(text string)
	OnStatus      func(status Status)
}

// deliveryQueue runs handler callbacks in FIFO order off the lifecycle
// loop. It never blocks the producer.
type deliveryQueue struct {
	mu       sync.Mutex
	items    []func()
	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newDeliveryQueue() *deliveryQueue {
	return &deliveryQueue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (q *deliveryQueue) push(fn func()) {
	q.mu.Lock()
	q.items = append(q.items, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *deliveryQueue) pop() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	fn := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return fn, true
}

// run delivers queued callbacks until stop. Once closed is set, remaining
// callbacks are dropped; one already started is not interrupted.
func (q *deliveryQueue) run(closed *atomic.Bool) {
	for {
		select {
		case <-q.wake:
		case <-q.done:
			return
		}
		for {
			fn, ok := q.pop()
			if !ok {
				break
			}
			if closed.Load() {
				continue
			}
			fn()
		}
	}
}

func (q *deliveryQueue) stop() {
	q.stopOnce.Do(func() { close(q.done) })
}
