package work

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapKeepsInputOrder(t *testing.T) {
	pool := NewPool(3)

	out := Map(context.Background(), pool, 20, func(_ context.Context, i int) int {
		time.Sleep(time.Duration(20-i) * time.Millisecond / 10)
		return i * i
	})

	require.Len(t, out, 20)
	for i, v := range out {
		assert.Equal(t, i*i, v)
	}
}

func TestMapBoundsConcurrency(t *testing.T) {
	pool := NewPool(2)
	var running, peak int32

	Map(context.Background(), pool, 10, func(_ context.Context, i int) struct{} {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return struct{}{}
	})

	assert.LessOrEqual(t, peak, int32(2))
}

func TestMapCallsEveryJobAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := Map(ctx, NewPool(4), 5, func(ctx context.Context, i int) error {
		return ctx.Err()
	})

	require.Len(t, out, 5)
	for _, err := range out {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestNewPoolDefault(t *testing.T) {
	assert.Equal(t, DefaultWorkers, NewPool(0).Workers())
	assert.Empty(t, Map(context.Background(), NewPool(1), 0, func(context.Context, int) int { return 1 }))
}

func TestRetryPolicy(t *testing.T) {
	boom := errors.New("boom")

	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		err := RetryPolicy{Retries: 3}.Do(context.Background(), func(context.Context) error {
			calls++
			if calls < 3 {
				return boom
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("exhausts retries", func(t *testing.T) {
		calls := 0
		err := RetryPolicy{Retries: 2}.Do(context.Background(), func(context.Context) error {
			calls++
			return boom
		})
		assert.ErrorIs(t, err, ErrAttemptsExhausted)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 3, calls)
	})

	t.Run("each attempt times out", func(t *testing.T) {
		calls := 0
		err := RetryPolicy{Retries: 1, Timeout: 10 * time.Millisecond}.Do(context.Background(), func(ctx context.Context) error {
			calls++
			<-ctx.Done()
			return ctx.Err()
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 2, calls)
	})

	t.Run("stops on parent cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := RetryPolicy{Retries: 5, Backoff: time.Millisecond}.Do(ctx, func(context.Context) error {
			calls++
			cancel()
			return boom
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		permanent := errors.New("not found")
		calls := 0
		err := RetryPolicy{
			Retries:   4,
			Retryable: func(err error) bool { return !errors.Is(err, permanent) },
		}.Do(context.Background(), func(context.Context) error {
			calls++
			return permanent
		})
		assert.ErrorIs(t, err, permanent)
		assert.NotErrorIs(t, err, ErrAttemptsExhausted)
		assert.Equal(t, 1, calls)
	})
}
