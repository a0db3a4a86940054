package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(start time.Time) (*MemoryLimiter, *time.Time) {
	current := start
	l := NewMemoryLimiter()
	l.now = func() time.Time { return current }
	return l, &current
}

func TestAllowWithinLimit(t *testing.T) {
	l, _ := newTestLimiter(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := l.Allow(ctx, "sender:u1", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "event %d should be admitted", i)
	}

	ok, err := l.Allow(ctx, "sender:u1", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "6th event within window must be rejected")
}

func TestAllowEmptyKey(t *testing.T) {
	l, _ := newTestLimiter(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	ok, err := l.Allow(context.Background(), "", 5, time.Minute)
	require.ErrorIs(t, err, ErrEmptyKey)
	assert.False(t, ok)
}

func TestAllowAfterWindowElapses(t *testing.T) {
	l, clock := newTestLimiter(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, _ := l.Allow(ctx, "sender:u1", 5, time.Minute)
		require.True(t, ok)
		*clock = clock.Add(5 * time.Second)
	}

	ok, _ := l.Allow(ctx, "sender:u1", 5, time.Minute)
	assert.False(t, ok)

	// 最早一条事件滑出窗口后放行新事件
	*clock = clock.Add(41 * time.Second)
	ok, _ = l.Allow(ctx, "sender:u1", 5, time.Minute)
	assert.True(t, ok)
}

func TestRejectedEventNotRecorded(t *testing.T) {
	l, clock := newTestLimiter(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		l.Allow(ctx, "sender:u1", 5, time.Minute)
	}
	// 被拒绝的事件不应延长封禁
	for i := 0; i < 10; i++ {
		ok, _ := l.Allow(ctx, "sender:u1", 5, time.Minute)
		assert.False(t, ok)
	}

	*clock = clock.Add(61 * time.Second)
	remaining, err := l.Remaining(ctx, "sender:u1", 5, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 5, remaining)
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(time.Now())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, _ := l.Allow(ctx, "sender:u1", 5, time.Minute)
		require.True(t, ok)
	}
	ok, _ := l.Allow(ctx, "sender:u1", 5, time.Minute)
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "sender:u2", 5, time.Minute)
	assert.True(t, ok, "another sender must not be affected")
	ok, _ = l.Allow(ctx, "group:g1", 20, time.Minute)
	assert.True(t, ok)
}

func TestReset(t *testing.T) {
	l, _ := newTestLimiter(time.Now())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		l.Allow(ctx, "sender:u1", 5, time.Minute)
	}
	require.NoError(t, l.Reset(ctx, "sender:u1"))

	ok, _ := l.Allow(ctx, "sender:u1", 5, time.Minute)
	assert.True(t, ok)
}

func TestConcurrentAllowNeverExceedsLimit(t *testing.T) {
	l := NewMemoryLimiter()
	ctx := context.Background()

	const workers = 50
	var wg sync.WaitGroup
	admitted := make(chan struct{}, workers)
	// 断言不能在子 goroutine 里做，错误收集回主 goroutine 统一检查
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.Allow(ctx, "group:g1", 20, time.Minute)
			if err != nil {
				errs <- err
				return
			}
			if ok {
				admitted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(admitted)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	count := 0
	for range admitted {
		count++
	}
	assert.Equal(t, 20, count)
}
