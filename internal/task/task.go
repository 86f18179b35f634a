// ============================================================================
// Taskengine Task - Reference-Counted DAG Node
// ============================================================================
//
// Package: internal/task
// File: task.go
// Purpose: The task object and its lifecycle: state, refcounts, work-unit
// counter, parent/child links, payload, and exception slot.
//
// State Machine:
//   Pending --(unresolvedParents -> 0)--> Ready --(first claimUnit)--> Running
//      |                                                                 |
//      +--(parent failed)------------------------------------------> Done
//                                           ^
//            (remainingUnits -> 0) ---------+
//
// Ownership:
//   refcount = caller handles + children not yet ready + (pending work > 0 ? 1 : 0).
//   A task's own children slice is guarded by mu, held only across AddChild
//   and the snapshot-and-clear step of completion; everything else (unit
//   counters, refcount, exception slot, state) is lock-free.
//
// ============================================================================

package task

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// State is a task's position in its lifecycle.
type State int32

const (
	StatePending State = iota
	StateReady
	StateRunning
	StateDone
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Callback is one work unit's invocation: the claimed index in
// [0, totalUnits) and the task's opaque payload.
type Callback func(unit int, payload interface{}) error

// Enqueuer is the narrow surface a Task needs from its owning pool: push a
// task that just became Ready onto the shared ready queue. Keeping this as
// an interface (rather than importing the pool package directly) avoids a
// cycle, since the pool package needs to see inside *Task to dispatch units.
type Enqueuer interface {
	Enqueue(t *Task)
}

type errBox struct {
	err error
}

// Task is one submission's worth of work: totalUnits independently
// claimable invocations of callback, gated on a set of parent tasks.
type Task struct {
	id uint64

	totalUnits     int32
	nextUnit       atomic.Int32
	remainingUnits atomic.Int32

	unresolvedParents atomic.Int32

	mu       sync.Mutex
	children []*Task
	state    atomic.Int32

	callback Callback
	payload  interface{}
	dtor     func(interface{})

	refcount atomic.Int32
	errSlot  atomic.Pointer[errBox]

	done     chan struct{}
	doneOnce sync.Once

	enqueuer Enqueuer

	// onComplete, if set, fires exactly once after the task reaches Done
	// (after children have been cascaded and the payload destructor has
	// run), before the completion event is signalled. It is how the pool
	// wires latency/outcome metrics without the task package importing
	// metrics.
	onComplete func(err error)
}

// New constructs a task with the given number of work units and parent
// count. The caller is responsible for calling AddChild on each parent
// handle immediately afterward (see the Submit algorithm in package
// taskengine), which is what may further decrement unresolvedParents.
func New(id uint64, totalUnits int, cb Callback, payload interface{}, dtor func(interface{}), parentCount int, enq Enqueuer, onComplete func(error)) *Task {
	if totalUnits < 1 {
		panic("taskengine: totalUnits must be >= 1")
	}
	t := &Task{
		id:         id,
		totalUnits: int32(totalUnits),
		callback:   cb,
		payload:    payload,
		dtor:       dtor,
		enqueuer:   enq,
		done:       make(chan struct{}),
		onComplete: onComplete,
	}
	t.remainingUnits.Store(int32(totalUnits))
	t.unresolvedParents.Store(int32(parentCount))
	// caller handle + one slot per declared parent relation + the
	// pending-work slot, released when remainingUnits reaches zero.
	t.refcount.Store(int32(1 + parentCount + 1))
	t.state.Store(int32(StatePending))
	return t
}

// ID returns the task's correlation id, used only for logging.
func (t *Task) ID() uint64 { return t.id }

// State returns the task's current lifecycle state.
func (t *Task) State() State { return State(t.state.Load()) }

// TotalUnits returns the immutable work-unit count.
func (t *Task) TotalUnits() int { return int(t.totalUnits) }

// UnresolvedParents returns the current unresolved-parent count.
func (t *Task) UnresolvedParents() int32 { return t.unresolvedParents.Load() }

// Done returns the channel closed exactly once, after the task reaches
// Done and its children have been notified.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the first captured exception, if any.
func (t *Task) Err() error {
	b := t.errSlot.Load()
	if b == nil {
		return nil
	}
	return b.err
}

// CaptureException CASes the exception slot from empty to err. Only the
// first caller wins; later failures on the same task are dropped.
func (t *Task) CaptureException(err error) bool {
	if err == nil {
		return false
	}
	return t.errSlot.CompareAndSwap(nil, &errBox{err: err})
}

// ClaimUnit atomically hands out the next unclaimed unit index. It is
// wait-free: a single fetch-add, no retry loop.
func (t *Task) ClaimUnit() (index int, ok bool) {
	i := t.nextUnit.Add(1) - 1
	if i >= t.totalUnits {
		return 0, false
	}
	t.state.CompareAndSwap(int32(StateReady), int32(StateRunning))
	return int(i), true
}

// HasMoreUnits reports whether any units remain unclaimed. It is advisory:
// the result can be stale the instant it's read, which is fine since its
// only use is deciding whether to republish the task for other workers to
// help drain; ClaimUnit remains the single source of truth.
func (t *Task) HasMoreUnits() bool {
	return t.nextUnit.Load() < t.totalUnits
}

// RunCallback invokes the callback for the given unit, converting a panic
// into an error the same way a recovered exception would surface in a
// language with native unwinding (see design notes on exception crossing
// threads).
func (t *Task) RunCallback(unit int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("taskengine: work unit %d of task %d panicked: %v", unit, t.id, r)
		}
	}()
	return t.callback(unit, t.payload)
}

// FinishUnit decrements remainingUnits; the caller that observes it reach
// zero performs completion.
func (t *Task) FinishUnit() {
	if t.remainingUnits.Add(-1) == 0 {
		t.complete()
	}
}

// AddChild registers child as dependent on t. If t has not yet completed,
// child is appended under t's lock and will be cascaded at t's completion.
// If t has already completed, t's outcome is applied to child immediately:
// a captured exception is copied, child's unresolved-parent count is
// decremented (calling TryEnqueue on child if that was its last
// outstanding parent), and the parent-relation refcount slot New reserved
// for t is released.
//
// This resolves the two equivalent descriptions of "add_child on a Done
// parent" into one code path used both at submission time (a new task
// whose parent already finished) and after the fact. Submit does not
// re-check readiness for a task declared with parents; TryEnqueue's
// CAS-guarded Pending->Ready transition keeps this branch and the
// completion cascade of another parent from both acting on the same child.
func (t *Task) AddChild(child *Task) {
	t.mu.Lock()
	if State(t.state.Load()) != StateDone {
		t.children = append(t.children, child)
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	if err := t.Err(); err != nil {
		child.errSlot.CompareAndSwap(nil, &errBox{err: err})
	}
	if child.unresolvedParents.Add(-1) == 0 {
		child.TryEnqueue()
	}
	child.Release()
}

// TryEnqueue performs the Pending->Ready transition exactly once and, on
// success, pushes the task onto its pool's ready queue. A task that has
// already inherited a parent's exception is not enqueued: it completes
// immediately with that exception and none of its units run. It is safe
// to call redundantly from multiple call sites (submission's own ready
// check, AddChild's late-bind branch, and the completion cascade): only
// the caller that wins the CAS acts.
func (t *Task) TryEnqueue() {
	if t.state.CompareAndSwap(int32(StatePending), int32(StateReady)) {
		if t.Err() != nil {
			t.remainingUnits.Store(0)
			t.complete()
			return
		}
		t.enqueuer.Enqueue(t)
	}
}

// RunInline executes the task's single unit synchronously on the calling
// goroutine, bypassing the queue entirely. It is only valid for the
// inline fast path (totalUnits == 1, no unresolved parents, no inherited
// exception); the caller is responsible for checking those preconditions.
func (t *Task) RunInline() {
	i, ok := t.ClaimUnit()
	if !ok {
		return
	}
	if err := t.RunCallback(i); err != nil {
		t.CaptureException(err)
	}
	t.FinishUnit()
}

// ForceFail captures err as t's exception (if t has not already failed) and
// runs the completion protocol immediately, without waiting for any unit to
// be claimed. It is how a pool rejects a task whose Enqueue arrives after
// shutdown: the task still reaches Done, with err as its captured exception,
// rather than sitting Ready on a queue no worker will ever drain.
func (t *Task) ForceFail(err error) {
	t.CaptureException(err)
	t.remainingUnits.Store(0)
	t.complete()
}

// complete runs the completion protocol for t and, iteratively rather than
// recursively, for every descendant that inherits a failure from it. A
// worklist avoids unbounded stack depth on wide or deep DAGs.
func (t *Task) complete() {
	pending := []*Task{t}
	for len(pending) > 0 {
		cur := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		cur.finishOne(&pending)
	}
}

func (t *Task) finishOne(pending *[]*Task) {
	t.mu.Lock()
	children := t.children
	t.children = nil
	t.state.Store(int32(StateDone))
	t.mu.Unlock()

	failed := t.Err()
	for _, c := range children {
		// release the parent-relation refcount slot New reserved for t,
		// regardless of which branch below resolves it. Releasing it first
		// means a waiter on c never sees c Done while this slot is held.
		c.Release()
		if failed != nil {
			c.errSlot.CompareAndSwap(nil, &errBox{err: failed})
			// only the first failing parent completes c; a second one
			// finds it no longer Pending.
			if c.state.CompareAndSwap(int32(StatePending), int32(StateReady)) {
				c.remainingUnits.Store(0)
				*pending = append(*pending, c)
			}
		} else if c.unresolvedParents.Add(-1) == 0 {
			c.TryEnqueue()
		}
	}

	if t.dtor != nil {
		t.dtor(t.payload)
		t.dtor = nil
	}

	if t.onComplete != nil {
		t.onComplete(t.Err())
	}

	// release the pending-work slot before signalling, so a waiter that
	// releases its handle right after Done sees the refcount reach zero.
	t.Release()
	t.doneOnce.Do(func() { close(t.done) })
}

// Release decrements the refcount, freeing the task's resources when it
// reaches zero. A negative refcount is a programming error (double
// release), not a recoverable condition.
func (t *Task) Release() {
	n := t.refcount.Add(-1)
	if n == 0 {
		t.free()
		return
	}
	if n < 0 {
		panic("taskengine: task refcount underflow (double release)")
	}
}

// Retain increments the refcount for an additional caller-held handle.
func (t *Task) Retain() {
	t.refcount.Add(1)
}

func (t *Task) free() {
	t.payload = nil
	t.callback = nil
	t.dtor = nil
	t.children = nil
}
