package finalizer

import (
	"sync/atomic"

	pyembed "github.com/VidyaBipin/pythonnet-Csharp-python"
)

// pendingRelease is one owed decrement. Immutable once pushed; ownership of
// the decrement transfers to the queue, the enqueuing wrapper must never
// touch the handle again.
type pendingRelease struct {
	next   *pendingRelease
	handle pyembed.Handle
	epoch  uint64
}

// releaseQueue is an unbounded multi-producer queue of pending releases.
// Producers push with a CAS loop and never block; the consumer detaches the
// whole chain atomically. Push order is recovered by reversing the detached
// chain, so drains observe strict FIFO enqueue order.
type releaseQueue struct {
	head  atomic.Pointer[pendingRelease]
	depth atomic.Int64
}

// push appends one entry. Non-blocking, safe from any goroutine.
func (q *releaseQueue) push(h pyembed.Handle, epoch uint64) {
	n := &pendingRelease{handle: h, epoch: epoch}
	for {
		old := q.head.Load()
		n.next = old
		if q.head.CompareAndSwap(old, n) {
			q.depth.Add(1)
			return
		}
	}
}

// detach atomically takes the current queue contents, oldest first.
// Entries pushed concurrently land on the fresh chain and are left for a
// later drain.
func (q *releaseQueue) detach() []pendingRelease {
	head := q.head.Swap(nil)
	if head == nil {
		return nil
	}

	n := 0
	for e := head; e != nil; e = e.next {
		n++
	}
	q.depth.Add(int64(-n))

	out := make([]pendingRelease, n)
	i := n - 1
	for e := head; e != nil; e = e.next {
		out[i] = *e
		out[i].next = nil
		i--
	}
	return out
}

// walk copies the current chain without consuming it, oldest first. The
// result is a point-in-time view; concurrent pushes may be missed.
func (q *releaseQueue) walk() []pendingRelease {
	head := q.head.Load()
	if head == nil {
		return nil
	}

	n := 0
	for e := head; e != nil; e = e.next {
		n++
	}

	out := make([]pendingRelease, n)
	i := n - 1
	for e := head; e != nil; e = e.next {
		out[i] = *e
		out[i].next = nil
		i--
	}
	return out
}

// len returns the current queue depth.
func (q *releaseQueue) len() int {
	if d := q.depth.Load(); d > 0 {
		return int(d)
	}
	return 0
}
