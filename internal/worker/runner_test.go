package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestGoRunsDetachedFromCaller(t *testing.T) {
	r := NewRunner(zaptest.NewLogger(t))
	done := make(chan struct{})

	require.NoError(t, r.Go("relay", func(ctx context.Context) error {
		assert.NoError(t, ctx.Err())
		close(done)
		return nil
	}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
	require.NoError(t, r.Shutdown(context.Background()))
}

func TestAfterFiresOnce(t *testing.T) {
	r := NewRunner(zaptest.NewLogger(t))
	var calls int32

	h, err := r.After("recheck", 10*time.Millisecond, func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("logged, not retried")
	})
	require.NoError(t, err)

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("delayed task did not fire")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, 0, r.Pending())
	require.NoError(t, r.Shutdown(context.Background()))
}

func TestCancelledDelayedTaskNeverRuns(t *testing.T) {
	r := NewRunner(zaptest.NewLogger(t))
	var calls int32

	h, err := r.After("recheck", time.Hour, func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, r.Pending())

	h.Cancel()
	<-h.Done()
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	assert.Equal(t, 0, r.Pending())
}

func TestShutdownCancelsWaitingAndRejectsNew(t *testing.T) {
	r := NewRunner(zaptest.NewLogger(t))
	var calls int32

	h, err := r.After("recheck", time.Hour, func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, r.Shutdown(context.Background()))
	<-h.Done()
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))

	assert.ErrorIs(t, r.Go("late", func(context.Context) error { return nil }), ErrStopped)
	_, err = r.After("late", time.Millisecond, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrStopped)
}

func TestShutdownTimesOutOnStuckTask(t *testing.T) {
	// the stuck task logs after Shutdown returns
	r := NewRunner(zap.NewNop())
	require.NoError(t, r.Go("stuck", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, r.Shutdown(ctx))
}

func TestPanicsAreContained(t *testing.T) {
	r := NewRunner(zaptest.NewLogger(t))
	require.NoError(t, r.Go("bad", func(context.Context) error { panic("boom") }))
	require.NoError(t, r.Shutdown(context.Background()))
}
