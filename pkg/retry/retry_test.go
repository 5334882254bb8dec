package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsAfterFailures(t *testing.T) {
	sleeper := &RecordingSleeper{}
	cfg := Fixed(5 * time.Second)
	cfg.Sleeper = sleeper

	calls := 0
	err := Do(context.Background(), cfg, func(ctx context.Context, attempt int) error {
		calls++
		assert.Equal(t, calls, attempt)
		if attempt <= 3 {
			return errors.New("boom")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, sleeper.Delays())
	assert.Equal(t, 15*time.Second, sleeper.Total())
}

func TestDo_FirstAttemptNoWait(t *testing.T) {
	sleeper := &RecordingSleeper{}
	cfg := DefaultConfig()
	cfg.Sleeper = sleeper

	err := Do(context.Background(), cfg, func(context.Context, int) error { return nil })
	require.NoError(t, err)
	assert.Empty(t, sleeper.Delays())
}

func TestDo_Transitions(t *testing.T) {
	var got []Transition
	cfg := Fixed(time.Second)
	cfg.Sleeper = &RecordingSleeper{}
	cfg.OnTransition = func(tr Transition) { got = append(got, tr) }

	boom := errors.New("boom")
	err := Do(context.Background(), cfg, func(_ context.Context, attempt int) error {
		if attempt == 1 {
			return boom
		}
		return nil
	})
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, Transition{Attempt: 1, From: StateAttempting, To: StateWaiting, Err: boom, Delay: time.Second}, got[0])
	assert.Equal(t, Transition{Attempt: 2, From: StateWaiting, To: StateAttempting}, got[1])
	assert.Equal(t, Transition{Attempt: 2, From: StateAttempting, To: StateSucceeded}, got[2])
}

func TestDo_CancelDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Fixed(time.Hour)

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, cfg, func(context.Context, int) error {
			calls++
			return errors.New("still down")
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCancelled)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancel")
	}
	assert.Equal(t, 1, calls)
}

func TestDo_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := Do(ctx, DefaultConfig(), func(context.Context, int) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCancelled)
	assert.False(t, called)
}

func TestDo_MaxAttempts(t *testing.T) {
	for _, n := range []int{1, 2, 3} {
		sleeper := &RecordingSleeper{}
		cfg := Fixed(time.Millisecond)
		cfg.MaxAttempts = n
		cfg.Sleeper = sleeper

		var last State
		cfg.OnTransition = func(tr Transition) { last = tr.To }

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		calls := 0
		err := Do(ctx, cfg, func(context.Context, int) error {
			calls++
			return errors.New("down")
		})
		cancel()

		require.Error(t, err, "n=%d", n)
		assert.NotErrorIs(t, err, ErrCancelled, "n=%d", n)
		assert.Contains(t, err.Error(), fmt.Sprintf("gave up after %d attempts", n))
		assert.Equal(t, n, calls)
		assert.Len(t, sleeper.Delays(), n-1)
		assert.Equal(t, StateExhausted, last)
	}
}

func TestConfig_ExponentialBackoffCapped(t *testing.T) {
	cfg := Config{InitialBackoff: time.Second, MaxBackoff: 3 * time.Second, Multiplier: 2}
	assert.Equal(t, 2*time.Second, cfg.next(time.Second))
	assert.Equal(t, 3*time.Second, cfg.next(2*time.Second))
	assert.Equal(t, 5*time.Second, Fixed(5*time.Second).next(5*time.Second))
}

func TestTimerSleeper(t *testing.T) {
	start := time.Now()
	require.NoError(t, TimerSleeper{}.Sleep(context.Background(), 10*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, TimerSleeper{}.Sleep(ctx, time.Hour), context.Canceled)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "waiting", StateWaiting.String())
	assert.Equal(t, "unknown", State(99).String())
}
