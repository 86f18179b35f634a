package integration

import (
	"testing"

	"github.com/ChuLiYu/taskengine"
)

func BenchmarkSubmitAndWaitThroughput(b *testing.B) {
	p := taskengine.PoolCreate(8)
	defer taskengine.PoolDestroy(p)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := taskengine.SubmitAndWait(p, 1, func(int, interface{}) error { return nil }, nil); err != nil {
			b.Fatalf("task failed: %v", err)
		}
	}
	b.StopTimer()
}

func BenchmarkFanOutThroughput(b *testing.B) {
	p := taskengine.PoolCreate(8)
	defer taskengine.PoolDestroy(p)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := taskengine.SubmitAndWait(p, 50, func(int, interface{}) error { return nil }, nil); err != nil {
			b.Fatalf("task failed: %v", err)
		}
	}
	b.StopTimer()
}
