package parallelfor

import (
	"sync"
	"testing"

	"github.com/ChuLiYu/taskengine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCoversEveryElementExactlyOnce(t *testing.T) {
	p := taskengine.PoolCreate(4)
	defer taskengine.PoolDestroy(p)

	const n = 997 // deliberately not a multiple of the block size
	seen := make([]int32, n)
	var mu sync.Mutex

	err := Run(p, 0, n, 10, func(begin, end int) {
		mu.Lock()
		for i := begin; i < end; i++ {
			seen[i]++
		}
		mu.Unlock()
	})
	require.NoError(t, err)

	for i, v := range seen {
		require.Equal(t, int32(1), v, "index %d covered %d times", i, v)
	}
}

func TestRunEmptyRangeIsNoop(t *testing.T) {
	p := taskengine.PoolCreate(2)
	defer taskengine.PoolDestroy(p)

	called := false
	err := Run(p, 5, 5, 10, func(int, int) { called = true })
	require.NoError(t, err)
	assert.False(t, called)
}

func TestRunLastBlockIsClamped(t *testing.T) {
	p := taskengine.PoolCreate(2)
	defer taskengine.PoolDestroy(p)

	var maxEnd int
	var mu sync.Mutex
	err := Run(p, 0, 25, 10, func(begin, end int) {
		mu.Lock()
		if end > maxEnd {
			maxEnd = end
		}
		mu.Unlock()
	})
	require.NoError(t, err)
	assert.Equal(t, 25, maxEnd)
}
