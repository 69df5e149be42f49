package orchestrator

import "sync"

// Dispatcher runs functions on a specific thread, typically the host's
// world thread.
type Dispatcher interface {
	Post(fn func())
}

// Immediate runs posted functions inline on the caller's goroutine. Use
// it in tools and tests that have no frame loop.
type Immediate struct{}

// Post implements Dispatcher.
func (Immediate) Post(fn func()) { fn() }

// FrameQueue collects posted functions until the host calls Drain from
// its world thread.
type FrameQueue struct {
	mu    sync.Mutex
	queue []func()
}

// NewFrameQueue returns an empty queue.
func NewFrameQueue() *FrameQueue {
	return &FrameQueue{}
}

// Post implements Dispatcher. It never blocks.
func (q *FrameQueue) Post(fn func()) {
	q.mu.Lock()
	q.queue = append(q.queue, fn)
	q.mu.Unlock()
}

// Drain runs every function queued before the call and returns how many
// ran. Functions posted while draining run on the next Drain.
func (q *FrameQueue) Drain() int {
	q.mu.Lock()
	batch := q.queue
	q.queue = nil
	q.mu.Unlock()

	for _, fn := range batch {
		fn()
	}
	return len(batch)
}

// Len returns the number of queued functions.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}
