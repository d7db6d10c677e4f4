package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_ObtainRelease(t *testing.T) {
	l := NewLocal(100 * time.Millisecond)
	ctx := context.Background()

	held, err := l.Obtain(ctx, "a", 0)
	require.NoError(t, err)

	// Same key is busy
	_, err = l.Obtain(ctx, "a", 0)
	assert.ErrorIs(t, err, ErrNotObtained)

	// Other keys are independent
	other, err := l.Obtain(ctx, "b", 0)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, held.Release(ctx))
	// Double release is a no-op
	require.NoError(t, held.Release(ctx))

	again, err := l.Obtain(ctx, "a", 0)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))

	l.mu.Lock()
	assert.Empty(t, l.slots, "slots should be dropped once unused")
	l.mu.Unlock()
}

func TestLocal_ContextCanceled(t *testing.T) {
	l := NewLocal(0)
	held, err := l.Obtain(context.Background(), "a", 0)
	require.NoError(t, err)
	defer held.Release(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Obtain(ctx, "a", 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocal_MutualExclusion(t *testing.T) {
	l := NewLocal(5 * time.Second)
	ctx := context.Background()

	var inside int32
	var maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			held, err := l.Obtain(ctx, "shared", 0)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			_ = held.Release(ctx)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}
