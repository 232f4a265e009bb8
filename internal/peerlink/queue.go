package peerlink

import (
	"context"
	"sync"
)

type op func(ctx context.Context)

// opQueue is an unbounded FIFO of link operations.
//
// Producers never block, so dispatch to one link cannot stall another.
type opQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	closed   bool
	ops      []op
}

func newOpQueue() *opQueue {
	q := &opQueue{}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends o. It reports false once the queue is closed.
func (q *opQueue) Enqueue(o op) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.ops = append(q.ops, o)
	q.notEmpty.Signal()
	return true
}

// Dequeue blocks until an op is available or the queue is closed.
// Pending ops are discarded on close.
func (q *opQueue) Dequeue() (op, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.ops) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if q.closed {
		return nil, false
	}
	o := q.ops[0]
	q.ops[0] = nil
	q.ops = q.ops[1:]
	return o, true
}

func (q *opQueue) Close() {
	q.mu.Lock()
	q.closed = true
	for i := range q.ops {
		q.ops[i] = nil
	}
	q.ops = nil
	q.mu.Unlock()
	q.notEmpty.Broadcast()
}
