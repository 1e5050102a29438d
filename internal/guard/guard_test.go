package guard

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_TryAcquireIsExclusivePerKey(t *testing.T) {
	g := New()

	require.True(t, g.TryAcquire(ResultKey("a")))
	assert.False(t, g.TryAcquire(ResultKey("a")), "second acquisition of the same key must fail fast")
	assert.True(t, g.TryAcquire(ResultKey("b")), "other keys are independent")
	assert.True(t, g.TryAcquire(IndependentKey))
	assert.Equal(t, 3, g.Len())

	assert.True(t, g.Release(ResultKey("a")))
	assert.True(t, g.TryAcquire(ResultKey("a")), "key is reusable after release")
}

func TestGuard_ReleaseTwiceReportsFalse(t *testing.T) {
	g := New()

	require.True(t, g.TryAcquire("k"))
	assert.True(t, g.Release("k"))
	assert.False(t, g.Release("k"))
	assert.False(t, g.Held("k"))
	assert.Equal(t, 0, g.Len())
}

func TestGuard_ConcurrentAcquireHasOneWinner(t *testing.T) {
	g := New()

	var winners atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if g.TryAcquire(ResultKey("same")) {
				winners.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	assert.True(t, g.Held(ResultKey("same")))
}
