// ============================================================================
// Taskengine Pool - Fixed Worker Set
// ============================================================================
//
// Package: internal/pool
// File: pool.go
// Function: Manages the lifecycle of N worker goroutines draining a shared
// lock-free ready queue, plus resize and idle parking.
//
// Architecture:
//   ┌──────────────┐  Enqueue(task)  ┌───────────┐
//   │ taskengine    │ ──────────────> │  queue    │
//   │ (submission)  │                 │ (lock-free)│
//   └──────────────┘                 └─────┬─────┘
//                                           │ Pop
//                          ┌────────────────┼────────────────┐
//                          ▼                ▼                ▼
//                     worker 1         worker 2          worker N
//                  (claim + run     (claim + run      (claim + run
//                   one unit,        one unit,         one unit,
//                   republish if     republish if      republish if
//                   units remain)    units remain)     units remain)
//
// Intra-task fan-out: a worker that pops a task with units still
// unclaimed republishes it (so other idle workers can also pop it) before
// claiming and running exactly one unit itself, then goes back to Pop.
// This is what makes the atomic, CAS-based claim counter on Task
// meaningful — see DESIGN.md for why a
// literal "one pop drains everything serially" reading would make that
// primitive pointless.
//
// Shutdown:
//   Destroy sets a shutdown flag, wakes every parked worker, and joins all
//   worker goroutines. In-flight units are allowed to finish; only the
//   idle-park loop observes the flag.
//
// ============================================================================

package pool

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ChuLiYu/taskengine/internal/backoff"
	"github.com/ChuLiYu/taskengine/internal/queue"
	"github.com/ChuLiYu/taskengine/internal/task"
	"github.com/ChuLiYu/taskengine/internal/threadid"
)

var log = slog.Default()

// ErrPoolClosed is the exception a task is forced to fail with if it
// becomes Ready after Destroy has already been called. A pool has no
// "not started" state to mirror the teacher's ErrPoolNotStarted: New
// starts every worker before returning, so the only rejectable submission
// is one that arrives after shutdown.
var ErrPoolClosed = errors.New("taskengine: pool is closed")

// idleParkTimeout bounds how long a fully-backed-off worker blocks on the
// sleep gate before re-checking the shutdown flag and retrying the queue.
// Keeping this bounded (rather than parking indefinitely) means shutdown
// and new-work wakeups are never permanently missed even if a Wake is lost
// to a race.
const idleParkTimeout = 50 * time.Millisecond

// Collector is the narrow metrics surface a Pool reports through. It is
// satisfied by *internal/metrics.Collector; kept as an interface so this
// package does not import the metrics package (and tests can use a no-op).
type Collector interface {
	SetQueueDepth(int)
	SetPoolSize(int)
	SetIdleWorkers(int)
	RecordWorkUnit()
}

// Pool is a fixed (resizable) set of worker goroutines draining a shared
// lock-free ready queue.
type Pool struct {
	q    *queue.Queue
	gate *gate

	mu       sync.Mutex
	workers  []*workerHandle
	nextSlot int

	shutdown bool
	wg       sync.WaitGroup

	queueDepth int
	idle       int
	metrics    Collector
}

type workerHandle struct {
	slot int
	stop chan struct{}
	done chan struct{}
}

// New creates a Pool with n workers already running. n == 0 is legal: the
// pool then does no work of its own, and every task must be drained by a
// cooperative waiter.
func New(n int, metrics Collector) *Pool {
	p := &Pool{
		q:       queue.New(),
		gate:    newGate(),
		metrics: metrics,
	}
	p.SetSize(n)
	return p
}

// Enqueue implements task.Enqueuer: push a task that just became Ready
// onto the shared queue and wake any parked worker. A task that becomes
// Ready after Destroy is instead forced to fail with ErrPoolClosed, since
// no worker will ever drain it.
func (p *Pool) Enqueue(t *task.Task) {
	p.mu.Lock()
	closed := p.shutdown
	p.mu.Unlock()
	if closed {
		t.ForceFail(ErrPoolClosed)
		return
	}

	p.q.Push(queue.Entry{Task: t})
	p.mu.Lock()
	p.queueDepth++
	depth := p.queueDepth
	p.mu.Unlock()
	if p.metrics != nil {
		p.metrics.SetQueueDepth(depth)
	}
	p.gate.Wake()
}

// ProcessOne pops one ready entry and executes exactly one of its claimed
// work units, republishing the task first if more units remain. It
// reports whether it found anything to pop. Both worker goroutines and
// cooperative waiters call this; it is the one place dispatch happens.
func (p *Pool) ProcessOne() bool {
	entry, ok := p.q.Pop()
	if !ok {
		return false
	}
	p.mu.Lock()
	if p.queueDepth > 0 {
		p.queueDepth--
	}
	depth := p.queueDepth
	p.mu.Unlock()
	if p.metrics != nil {
		p.metrics.SetQueueDepth(depth)
	}

	t := entry.Task
	if t.HasMoreUnits() {
		p.q.Push(queue.Entry{Task: t})
		p.mu.Lock()
		p.queueDepth++
		p.mu.Unlock()
		p.gate.Wake()
	}

	if i, claimed := t.ClaimUnit(); claimed {
		if err := t.RunCallback(i); err != nil {
			t.CaptureException(err)
		}
		if p.metrics != nil {
			p.metrics.RecordWorkUnit()
		}
		t.FinishUnit()
	}
	return true
}

// Wake releases any worker or waiter currently parked on the pool's idle
// gate, without pushing anything. Exposed for the waiter, which shares the
// same gate so a worker completing a task and a waiter blocked on that
// task's completion event don't miss each other's wakeups.
func (p *Pool) Wake() { p.gate.Wake() }

// ParkChan returns a channel that closes on the next wake. Callers must
// re-fetch it after each wait, since the gate rearms on every Wake.
func (p *Pool) ParkChan() <-chan struct{} { return p.gate.C() }

func (p *Pool) runWorker(w *workerHandle) {
	defer p.wg.Done()
	defer close(w.done)
	threadid.Register(w.slot)
	defer threadid.Unregister()

	b := backoff.New()
	for {
		select {
		case <-w.stop:
			return
		default:
		}

		if p.ProcessOne() {
			b.Reset()
			continue
		}

		p.mu.Lock()
		shuttingDown := p.shutdown
		p.mu.Unlock()
		if shuttingDown {
			return
		}

		if !b.Spin() {
			continue
		}

		p.adjustIdle(1)
		select {
		case <-w.stop:
			p.adjustIdle(-1)
			return
		case <-p.ParkChan():
		case <-time.After(idleParkTimeout):
		}
		p.adjustIdle(-1)
	}
}

func (p *Pool) adjustIdle(delta int) {
	p.mu.Lock()
	p.idle += delta
	n := p.idle
	p.mu.Unlock()
	if p.metrics != nil {
		p.metrics.SetIdleWorkers(n)
	}
}

// SetSize grows or shrinks the worker set to n. Growing spawns new
// goroutines; shrinking signals the excess workers to exit at the start of
// their next loop iteration and waits for them to do so, leaving any task they
// were mid-unit on to finish normally (a worker only checks its stop
// channel between ProcessOne calls, never inside one).
func (p *Pool) SetSize(n int) {
	if n < 0 {
		n = 0
	}
	p.mu.Lock()
	if p.shutdown && n > len(p.workers) {
		p.mu.Unlock()
		log.Warn("ignoring resize of a closed pool", "requested", n)
		return
	}
	current := len(p.workers)
	if n == current {
		p.mu.Unlock()
		return
	}
	if n > current {
		added := make([]*workerHandle, 0, n-current)
		for i := current; i < n; i++ {
			p.nextSlot++
			w := &workerHandle{slot: p.nextSlot, stop: make(chan struct{}), done: make(chan struct{})}
			p.workers = append(p.workers, w)
			added = append(added, w)
		}
		p.mu.Unlock()
		for _, w := range added {
			p.wg.Add(1)
			go p.runWorker(w)
		}
		log.Debug("pool resized up", "size", n)
		if p.metrics != nil {
			p.metrics.SetPoolSize(n)
		}
		return
	}

	removed := append([]*workerHandle(nil), p.workers[n:]...)
	p.workers = p.workers[:n]
	p.mu.Unlock()

	for _, w := range removed {
		close(w.stop)
	}
	p.gate.Wake()
	for _, w := range removed {
		<-w.done
	}
	log.Debug("pool resized down", "size", n)
	if p.metrics != nil {
		p.metrics.SetPoolSize(n)
	}
}

// Size returns the current worker count.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// Destroy signals shutdown, wakes every parked worker, and waits for all
// of them to exit. Already-queued tasks are not drained by Destroy itself;
// callers are expected to have waited on everything they care about
// first, exactly as the spec's pool_destroy only promises worker exit, not
// queue drainage. Once Destroy returns, any task that still becomes Ready
// (a late AddChild resolution, a cascade from an in-flight task) is forced
// to fail with ErrPoolClosed instead of sitting Ready forever; see Enqueue.
func (p *Pool) Destroy() {
	p.mu.Lock()
	p.shutdown = true
	p.mu.Unlock()
	p.gate.Wake()
	p.wg.Wait()
}

// Closed reports whether Destroy has been called.
func (p *Pool) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shutdown
}

// QueueDepth reports the pool's best-effort view of ready-queue length,
// for introspection only.
func (p *Pool) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queueDepth
}
