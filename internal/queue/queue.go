// ============================================================================
// Taskengine Queue - Lock-Free MPMC Ready Queue
// ============================================================================
//
// Package: internal/queue
// File: queue.go
// Function: Michael & Scott's singly-linked, multi-producer/multi-consumer
// FIFO of ready tasks.
//
// Design Pattern:
//   Classic two-CAS MS-queue: a permanent sentinel node, atomic head/tail
//   pointers, producers help advance a lagging tail, consumers CAS head
//   forward and read the value out of the node that head now points to
//   (which becomes the new sentinel).
//
// Memory Reclamation:
//   The original algorithm pairs every pointer with a generation counter
//   (or a freelist with its own ABA guard) because in C/C++ a popped node
//   can be freed and reallocated while another thread still holds a stale
//   reference to it, corrupting the CAS. Go's garbage collector removes
//   that hazard: a node stays alive for as long as any goroutine holds a
//   pointer to it, so two racing CASes against a stale head can only ever
//   fail cleanly (comparand mismatch) or succeed correctly — the pointer
//   can never be silently reused for something else. No tagged pointers or
//   freelist are implemented here; this is the Go-native equivalent the
//   spec's "or equivalent tagged-pointer scheme" anticipates, not a gap.
//
// Contention Handling:
//   Both Push and Pop retry through internal/backoff's spin/yield
//   escalation rather than spinning tightly forever, so a CAS loser backs
//   off instead of repeatedly hammering the same cache line as the winner.
//
// ============================================================================

package queue

import (
	"sync/atomic"

	"github.com/ChuLiYu/taskengine/internal/backoff"
	"github.com/ChuLiYu/taskengine/internal/task"
)

// Entry is one ready-queue slot: the task to run and an advisory hint at
// which unit index a popper might start from. The hint is advisory only —
// ClaimUnit on the task itself is the sole source of truth, since by the
// time a popper acts on the hint another popper may already have claimed
// past it.
type Entry struct {
	Task *task.Task
	Hint int
}

type node struct {
	next atomic.Pointer[node]
	val  Entry
}

// Queue is a lock-free multi-producer/multi-consumer FIFO of Entry values.
// The zero value is not usable; construct with New.
type Queue struct {
	head atomic.Pointer[node]
	tail atomic.Pointer[node]
}

// New returns an empty Queue.
func New() *Queue {
	sentinel := &node{}
	q := &Queue{}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)
	return q
}

// Push appends e to the tail. Non-blocking, linearizable with respect to
// other pushes and pops.
func (q *Queue) Push(e Entry) {
	n := &node{val: e}
	b := backoff.New()
	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		if tail != q.tail.Load() {
			b.Spin()
			continue
		}
		if next == nil {
			if tail.next.CompareAndSwap(nil, n) {
				q.tail.CompareAndSwap(tail, n)
				return
			}
		} else {
			// Tail lagged behind a node another pusher already linked in;
			// help it catch up before retrying our own insert.
			q.tail.CompareAndSwap(tail, next)
		}
		b.Spin()
	}
}

// Pop removes and returns the oldest entry, or reports false if the queue
// was empty at some point during the call.
func (q *Queue) Pop() (Entry, bool) {
	b := backoff.New()
	for {
		head := q.head.Load()
		tail := q.tail.Load()
		next := head.next.Load()
		if head != q.head.Load() {
			b.Spin()
			continue
		}
		if head == tail {
			if next == nil {
				return Entry{}, false
			}
			// Tail lagged behind a fully-linked node; help it advance.
			q.tail.CompareAndSwap(tail, next)
			b.Spin()
			continue
		}
		val := next.val
		if q.head.CompareAndSwap(head, next) {
			return val, true
		}
		b.Spin()
	}
}
