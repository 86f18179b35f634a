// ============================================================================
// Taskengine Performance Test Suite
// ============================================================================
//
// Package: test/integration
// File: performance_test.go
// Functionality: pool-level throughput under a realistic fan-out workload.
//
// Test Environment:
//   - 8 workers
//   - 500 independent single-unit tasks, no dependencies
//
// TestPoolThroughput:
//   submit 500 independent tasks and measure completion rate within a
//   generous deadline; this is a smoke test for scheduler overhead, not a
//   hardware benchmark, so the throughput floor is set low on purpose.
//
// ============================================================================

package integration

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/ChuLiYu/taskengine"
)

func TestPoolThroughput(t *testing.T) {
	p := taskengine.PoolCreate(8)
	defer taskengine.PoolDestroy(p)

	const totalTasks = 500
	var completed int64

	start := time.Now()

	handles := make([]*taskengine.Handle, totalTasks)
	for i := 0; i < totalTasks; i++ {
		handles[i] = taskengine.Submit(p, 1, func(int, interface{}) error {
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&completed, 1)
			return nil
		}, nil, nil, nil, true)
	}

	deadline := time.Now().Add(30 * time.Second)
	for _, h := range handles {
		if time.Now().After(deadline) {
			t.Fatalf("did not complete all tasks within deadline, completed=%d/%d", atomic.LoadInt64(&completed), totalTasks)
		}
		if err := h.WaitAndRelease(); err != nil {
			t.Fatalf("task failed unexpectedly: %v", err)
		}
	}

	elapsed := time.Since(start)
	throughput := float64(totalTasks) / elapsed.Seconds()

	t.Logf("=== Performance Test Results ===")
	t.Logf("Total tasks: %d", totalTasks)
	t.Logf("Completed: %d", atomic.LoadInt64(&completed))
	t.Logf("Elapsed time: %v", elapsed)
	t.Logf("Throughput: %.2f tasks/second", throughput)

	const expectedThroughput = 5.0
	if throughput < expectedThroughput {
		t.Errorf("throughput %.2f tasks/s is below target of %.2f tasks/s", throughput, expectedThroughput)
	}
	if atomic.LoadInt64(&completed) != totalTasks {
		t.Errorf("completion mismatch: %d/%d", completed, totalTasks)
	}
}
