package shutdown

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShutdown_LIFO(t *testing.T) {
	m := New(time.Second, nil)
	var order []string
	m.Register("store", func(context.Context) error { order = append(order, "store"); return nil })
	m.Register("server", func(context.Context) error { order = append(order, "server"); return nil })

	errs := m.Shutdown()
	assert.Empty(t, errs)
	assert.Equal(t, []string{"server", "store"}, order)

	select {
	case <-m.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestShutdown_CollectsErrorsAndRunsOnce(t *testing.T) {
	m := New(time.Second, nil)
	var calls int32
	boom := errors.New("boom")
	m.Register("a", func(context.Context) error { atomic.AddInt32(&calls, 1); return boom })
	m.Register("b", func(context.Context) error { atomic.AddInt32(&calls, 1); return nil })

	errs := m.Shutdown()
	assert.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], boom)
	assert.Empty(t, m.Shutdown())
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestWaitWithContext(t *testing.T) {
	m := New(time.Second, nil)
	closed := false
	m.Register("res", CloseResource(closerFunc(func() error { closed = true; return nil })))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Empty(t, m.WaitWithContext(ctx))
	assert.True(t, closed)
}

func TestWaitFor(t *testing.T) {
	var ready atomic.Bool
	go func() {
		time.Sleep(20 * time.Millisecond)
		ready.Store(true)
	}()
	assert.NoError(t, WaitFor(ready.Load, 5*time.Millisecond)(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := WaitFor(func() bool { return false }, 5*time.Millisecond)(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
