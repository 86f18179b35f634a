package taskengine

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/ChuLiYu/taskengine/internal/metrics"
	"github.com/ChuLiYu/taskengine/internal/pool"
	"github.com/ChuLiYu/taskengine/internal/threadid"
	"github.com/ChuLiYu/taskengine/pkg/types"
)

var log = slog.Default()

// Auto is the pool-size sentinel meaning "hardware parallelism", i.e.
// runtime.NumCPU().
const Auto = -1

// ErrPoolClosed is the error a task's Wait/Err reports if the task only
// became Ready for dispatch after its pool was destroyed: it is forced to
// fail with this error rather than sitting Ready on a queue no worker will
// ever drain.
var ErrPoolClosed = pool.ErrPoolClosed

// Pool is a fixed (resizable) worker set plus the metrics and bookkeeping
// a host program submits tasks against. The zero value is not usable;
// construct with PoolCreate.
type Pool struct {
	internal *pool.Pool
	metrics  *metrics.Collector

	nextID atomic.Uint64

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// PoolCreate creates a pool with n workers, or Auto for runtime.NumCPU().
// n == 0 is legal: the pool then does no work of its own, and every task
// submitted to it must be drained by a cooperative Wait.
func PoolCreate(n int) *Pool {
	if n == Auto {
		n = runtime.NumCPU()
	}
	if n < 0 {
		panic(fmt.Sprintf("taskengine: invalid pool size %d", n))
	}
	m := metrics.NewCollector()
	p := &Pool{
		internal: pool.New(n, m),
		metrics:  m,
	}
	log.Debug("pool created", "size", n)
	return p
}

// PoolDestroy signals shutdown and waits for every worker goroutine to
// exit. Tasks already queued are not drained by PoolDestroy itself;
// callers are expected to have waited on everything they care about first.
func PoolDestroy(p *Pool) {
	p.internal.Destroy()
}

// PoolSetSize grows or shrinks p's worker set to n.
func PoolSetSize(p *Pool, n int) {
	p.internal.SetSize(n)
}

// PoolSize returns p's current worker count.
func PoolSize(p *Pool) int {
	return p.internal.Size()
}

// ThreadID returns 0 for a caller that is not one of a pool's own worker
// goroutines, or 1..N for a worker identifying itself from inside a
// callback.
func ThreadID() int {
	return threadid.Current()
}

// Stats returns a point-in-time snapshot of p's task bookkeeping.
func (p *Pool) Stats() types.Stats {
	submitted := p.submitted.Load()
	completed := p.completed.Load()
	failed := p.failed.Load()
	return types.Stats{
		Submitted:  submitted,
		Completed:  completed,
		Failed:     failed,
		InFlight:   submitted - completed - failed,
		QueueDepth: p.internal.QueueDepth(),
		PoolSize:   p.internal.Size(),
	}
}

// MetricsHandler exposes p's Prometheus metrics as an http.Handler, for a
// host program to mount on its own mux (see internal/cli's run command).
func (p *Pool) MetricsHandler() http.Handler {
	return p.metrics.Handler()
}

var (
	defaultPoolOnce sync.Once
	defaultPool     *Pool
)

// DefaultPool returns the process-wide pool, lazily created on first use
// with Auto size. A host program that wants deterministic teardown should
// still call PoolDestroy(DefaultPool()) before exit; see cmd/taskenginectl
// for the pattern this module expects a main package to follow, since Go
// has no portable atexit hook to do it automatically.
func DefaultPool() *Pool {
	defaultPoolOnce.Do(func() {
		defaultPool = PoolCreate(Auto)
	})
	return defaultPool
}
