package retry_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alejandrodnm/autotrader/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelayFuncs(t *testing.T) {
	lin := retry.Linear(300 * time.Millisecond)
	assert.Equal(t, 300*time.Millisecond, lin(0))
	assert.Equal(t, 600*time.Millisecond, lin(1))
	assert.Equal(t, 900*time.Millisecond, lin(2))

	exp := retry.Exponential(time.Second, 5*time.Second)
	assert.Equal(t, time.Second, exp(0))
	assert.Equal(t, 4*time.Second, exp(2))
	assert.Equal(t, 5*time.Second, exp(5))
	assert.Equal(t, 5*time.Second, exp(400), "no overflow past the ceiling")

	assert.Equal(t, time.Minute, retry.Fixed(time.Minute)(7))
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	var calls int
	err := retry.Do(context.Background(), retry.Policy{Attempts: 3, Delay: retry.Fixed(time.Millisecond)},
		func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("boom")
			}
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ReturnsLastError(t *testing.T) {
	sentinel := errors.New("revert")
	var calls int
	err := retry.Do(context.Background(), retry.Policy{Attempts: 2}, func(context.Context) error {
		calls++
		return sentinel
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 2, calls)
}

func TestDo_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	err := retry.Do(ctx, retry.Policy{Attempts: 5, Delay: retry.Fixed(time.Hour)}, func(context.Context) error {
		calls++
		cancel()
		return errors.New("fail")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPoll(t *testing.T) {
	var n int
	ok, err := retry.Poll(context.Background(), retry.Policy{Attempts: 4, Delay: retry.Fixed(time.Millisecond)},
		func(context.Context) (bool, error) {
			n++
			if n == 1 {
				return false, errors.New("rpc down")
			}
			return n == 3, nil
		})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	n = 0
	ok, err = retry.Poll(context.Background(), retry.Policy{Attempts: 4, Delay: retry.Fixed(time.Millisecond)},
		func(context.Context) (bool, error) {
			n++
			return false, nil
		})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 4, n)
}

func TestDetached_RunsAndSurvivesParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Bool
	done := make(chan struct{})
	retry.Detached(ctx, "test", func(ctx context.Context) error {
		defer close(done)
		ran.Store(ctx.Err() == nil)
		return errors.New("logged only")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("detached task did not run")
	}
	assert.True(t, ran.Load())
}
