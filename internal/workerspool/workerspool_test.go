package workerspool

import (
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPool(t *testing.T) {
	const numTasks = 50
	for _, parallelism := range []int{1, 3, -1} {
		pool := New(parallelism)
		var running, maxRunning, done atomic.Int32
		for range numTasks {
			pool.Go(func() {
				current := running.Add(1)
				for {
					prev := maxRunning.Load()
					if current <= prev || maxRunning.CompareAndSwap(prev, current) {
						break
					}
				}
				runtime.Gosched()
				running.Add(-1)
				done.Add(1)
			})
		}
		pool.Wait()
		assert.Equal(t, int32(numTasks), done.Load())
		if parallelism > 0 {
			assert.LessOrEqual(t, int(maxRunning.Load()), parallelism)
		}
	}
	assert.Equal(t, runtime.NumCPU(), New(0).MaxParallelism())
	assert.Equal(t, -1, New(-5).MaxParallelism())
}
