package pool

import "time"

// waitKey partitions queued callers so that unrelated (category, tenant, role)
// combinations never block each other.
type waitKey struct {
	category Category
	tenantID string
	role     string
}

// waitResult resolves one queued Acquire: either a channel or an error.
type waitResult struct {
	info ChannelInfo
	err  error
}

// waiter is one caller blocked on channel scarcity. It is resolved exactly
// once: the done flag is flipped under the pool mutex before anything is sent
// on resume.
type waiter struct {
	key        waitKey
	enqueuedAt time.Time
	deadline   time.Time
	resume     chan waitResult // buffered, capacity 1
	done       bool
}

// waitQueue holds per-key FIFO queues of blocked callers. Not safe for
// concurrent use; the pool mutex guards it.
type waitQueue struct {
	entries map[waitKey][]*waiter
	total   int
}

func newWaitQueue() *waitQueue {
	return &waitQueue{entries: make(map[waitKey][]*waiter)}
}

// enqueue appends a caller to its key's queue.
func (q *waitQueue) enqueue(w *waiter) {
	q.entries[w.key] = append(q.entries[w.key], w)
	q.total++
}

// dequeue pops the oldest unresolved waiter for a key, marking it done.
// Returns nil if no caller is waiting on the key.
func (q *waitQueue) dequeue(key waitKey) *waiter {
	queue := q.entries[key]
	for len(queue) > 0 {
		w := queue[0]
		queue = queue[1:]
		if !w.done {
			w.done = true
			q.total--
			q.store(key, queue)
			return w
		}
	}
	q.store(key, queue)
	return nil
}

// remove marks a waiter done (timeout or cancellation) and drops it from its
// queue. Returns false if the waiter was already resolved.
func (q *waitQueue) remove(w *waiter) bool {
	if w.done {
		return false
	}
	w.done = true
	q.total--

	queue := q.entries[w.key]
	for i, entry := range queue {
		if entry == w {
			queue = append(queue[:i], queue[i+1:]...)
			break
		}
	}
	q.store(w.key, queue)
	return true
}

// drain resolves every pending waiter with err. Used at pool shutdown.
func (q *waitQueue) drain(err error) {
	for key, queue := range q.entries {
		for _, w := range queue {
			if w.done {
				continue
			}
			w.done = true
			q.total--
			w.resume <- waitResult{err: err}
		}
		delete(q.entries, key)
	}
}

// depth reports the number of unresolved waiters across all keys.
func (q *waitQueue) depth() int {
	return q.total
}

func (q *waitQueue) store(key waitKey, queue []*waiter) {
	if len(queue) == 0 {
		delete(q.entries, key)
	} else {
		q.entries[key] = queue
	}
}
