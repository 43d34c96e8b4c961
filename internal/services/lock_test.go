package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	locker := NewLocalLocker()
	key := PlotLockKey(1, 7)

	unlock, err := locker.Lock(ctx, key, time.Second)
	require.NoError(t, err)

	_, err = locker.Lock(ctx, key, time.Second)
	assert.ErrorIs(t, err, ErrLockBusy)

	// Other keys are independent
	unlockOther, err := locker.Lock(ctx, PlotLockKey(1, 8), time.Second)
	require.NoError(t, err)
	unlockOther()

	unlock()
	unlock() // releasing twice is harmless

	unlock, err = locker.Lock(ctx, key, time.Second)
	require.NoError(t, err)
	unlock()
}

func TestKeepAlive_ExtendsUntilStopped(t *testing.T) {
	var calls atomic.Int32
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepAlive(stop, 5*time.Millisecond, func(context.Context) (bool, error) {
			calls.Add(1)
			return true, nil
		}, zaptest.NewLogger(t))
	}()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("keepAlive did not stop")
	}
	n := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, calls.Load(), "no extension after stop")
}

func TestKeepAlive_StopsWhenLockLost(t *testing.T) {
	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepAlive(make(chan struct{}), 5*time.Millisecond, func(context.Context) (bool, error) {
			calls.Add(1)
			return false, nil
		}, zaptest.NewLogger(t))
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("keepAlive kept extending a lost lock")
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestLockKeys(t *testing.T) {
	assert.Equal(t, "lock:plot:3:12", PlotLockKey(3, 12))
	assert.Equal(t, "lock:cancelled_sale:3:4", CancelledSaleLockKey(3, 4))
	assert.Equal(t, "report:summary:9", ReportSummaryKey(9))
}

func TestGetOrSet_NilCache(t *testing.T) {
	calls := 0
	v, err := GetOrSet(nil, context.Background(), "k", time.Minute, func() (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)
}
