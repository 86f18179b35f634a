// ============================================================================
// Taskengine - Minimal Task-Parallel Execution Engine
// ============================================================================
//
// Package: taskengine (root)
// File: taskengine.go
// Purpose: The public function-call API: submit a task (optionally depending
// on others already submitted), wait for it, release its handle.
//
// This package is the only one a host program imports directly; everything
// under internal/ is plumbing it composes: internal/task for the DAG node
// and its lifecycle, internal/pool for the worker set and ready queue,
// internal/metrics for the Prometheus surface wired in per Pool.
//
// ============================================================================

package taskengine

import (
	"time"

	"github.com/ChuLiYu/taskengine/internal/task"
)

// Callback is one work unit's invocation: the claimed index in
// [0, units) and the task's opaque payload.
type Callback = task.Callback

// waitParkTimeout bounds how long Wait blocks on the pool's idle gate
// between re-checks of the target task's completion event, mirroring the
// worker idle loop's own park timeout so a lost wakeup never stalls a
// waiter for more than this long.
const waitParkTimeout = 50 * time.Millisecond

// Handle pins a submitted task's storage. It must be released exactly once,
// via Release or WaitAndRelease. Releasing it without ever waiting on it
// silently discards any captured error, per the documented error-handling
// policy.
type Handle struct {
	t    *task.Task
	pool *Pool
}

// Submit allocates a task with the given number of work units and submits
// it to p (the default pool if p is nil). parents are handles returned by
// earlier Submit calls; the new task becomes Ready only once every parent
// has completed. If forceAsync is false, units == 1, and parents is empty,
// the callback runs synchronously on the calling goroutine before Submit
// returns (the inline fast path) — a task declared with any parents always
// goes through the normal ready-queue path instead, even if every parent
// happens to already be Done by the time the dependency loop below runs:
// AddChild's late-bind branch is the single place that performs the
// done-parent enqueue decision, so Submit does not duplicate it.
func Submit(p *Pool, units int, fn Callback, payload interface{}, dtor func(interface{}), parents []*Handle, forceAsync bool) *Handle {
	if p == nil {
		p = DefaultPool()
	}

	id := p.nextID.Add(1)
	p.submitted.Add(1)
	p.metrics.RecordSubmit()
	submittedAt := time.Now()

	onComplete := func(err error) {
		if err != nil {
			p.failed.Add(1)
		} else {
			p.completed.Add(1)
		}
		p.metrics.RecordCompletion(err, time.Since(submittedAt).Seconds())
	}

	tk := task.New(id, units, fn, payload, dtor, len(parents), p.internal, onComplete)
	h := &Handle{t: tk, pool: p}

	for _, parent := range parents {
		parent.t.AddChild(tk)
	}

	if len(parents) == 0 {
		if !forceAsync && units == 1 && tk.Err() == nil {
			tk.RunInline()
			return h
		}
		tk.TryEnqueue()
	}

	return h
}

// SubmitWithDeps is a convenience over Submit for the common case of an
// asynchronous task with one or more parents and no payload destructor.
func SubmitWithDeps(p *Pool, units int, fn Callback, payload interface{}, parents ...*Handle) *Handle {
	return Submit(p, units, fn, payload, nil, parents, true)
}

// SubmitAndWait submits a task with no parents and force_async = false,
// then waits for it and releases its handle, returning any captured error.
func SubmitAndWait(p *Pool, units int, fn Callback, payload interface{}) error {
	h := Submit(p, units, fn, payload, nil, nil, false)
	return h.WaitAndRelease()
}

// Wait blocks until h's task reaches Done, cooperatively draining h's pool
// ready queue in the meantime, and returns the task's captured error (if
// any) exactly once it is Done.
func Wait(h *Handle) error { return h.Wait() }

// Release decrements h's task's refcount, freeing it once no handle,
// child-relation, or pending work holds it.
func Release(h *Handle) { h.Release() }

// WaitAndRelease waits on h and then releases it, returning the error Wait
// observed.
func WaitAndRelease(h *Handle) error { return h.WaitAndRelease() }

// Wait is the method form of the package-level Wait.
func (h *Handle) Wait() error {
	for {
		select {
		case <-h.t.Done():
			return h.t.Err()
		default:
		}

		if h.pool.internal.ProcessOne() {
			continue
		}

		select {
		case <-h.t.Done():
			return h.t.Err()
		case <-h.pool.internal.ParkChan():
		case <-time.After(waitParkTimeout):
		}
	}
}

// Release is the method form of the package-level Release.
func (h *Handle) Release() { h.t.Release() }

// WaitAndRelease is the method form of the package-level WaitAndRelease.
func (h *Handle) WaitAndRelease() error {
	err := h.Wait()
	h.Release()
	return err
}

// Err returns h's task's captured error without waiting. It is only
// meaningful once the task is Done; callers that have not waited should
// prefer Wait.
func (h *Handle) Err() error { return h.t.Err() }

// Done returns the channel that closes once h's task reaches Done.
func (h *Handle) Done() <-chan struct{} { return h.t.Done() }
