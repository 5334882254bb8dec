package invoke

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/psantana5/crashloop/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type step struct {
	resp *Response
	err  error
}

// scriptedInvoker replays steps in order and records every payload it saw.
// Once the script runs out it keeps returning the last step.
type scriptedInvoker struct {
	mu       sync.Mutex
	steps    []step
	payloads []Request
	targets  []string
}

func (s *scriptedInvoker) Invoke(ctx context.Context, target string, payload []byte) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}
	s.payloads = append(s.payloads, req)
	s.targets = append(s.targets, target)

	i := len(s.payloads) - 1
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	return s.steps[i].resp, s.steps[i].err
}

func crashes(n int, final step) []step {
	steps := make([]step, 0, n+1)
	for i := 0; i < n; i++ {
		steps = append(steps, step{resp: &Response{FunctionError: "Unhandled"}})
	}
	return append(steps, final)
}

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []string
	waited   time.Duration
}

func (f *fakeRecorder) RecordAttempt(target, outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome)
}

func (f *fakeRecorder) RecordWait(target string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waited += d
}

func TestRetrier_EventualSuccess(t *testing.T) {
	for _, n := range []int{0, 1, 3, 7} {
		inv := &scriptedInvoker{steps: crashes(n, step{resp: &Response{Payload: []byte(`"done"`)}})}
		sleeper := &retry.RecordingSleeper{}
		r := NewRetrier(inv, WithSleeper(sleeper))

		res, err := r.Invoke(context.Background(), "fn")
		require.NoError(t, err)
		assert.Equal(t, `"done"`, res.Payload)
		assert.Equal(t, n+1, res.Attempts)
		assert.Len(t, inv.payloads, n+1)
		assert.GreaterOrEqual(t, sleeper.Total(), time.Duration(n)*5*time.Second)
		assert.Equal(t, time.Duration(n)*5*time.Second, res.Waited)
		for _, d := range sleeper.Delays() {
			assert.Equal(t, 5*time.Second, d, "delay stays constant")
		}
	}
}

func TestRetrier_TransportAndFunctionErrorsAreEquivalent(t *testing.T) {
	run := func(failure step) (*Result, []time.Duration) {
		inv := &scriptedInvoker{steps: []step{failure, failure, {resp: &Response{Payload: []byte("ok")}}}}
		sleeper := &retry.RecordingSleeper{}
		res, err := NewRetrier(inv, WithSleeper(sleeper)).Invoke(context.Background(), "fn")
		require.NoError(t, err)
		return res, sleeper.Delays()
	}

	fnRes, fnDelays := run(step{resp: &Response{FunctionError: "Unhandled"}})
	trRes, trDelays := run(step{err: errors.New("connection refused")})

	assert.Equal(t, fnRes.Payload, trRes.Payload)
	assert.Equal(t, fnRes.Attempts, trRes.Attempts)
	assert.Equal(t, fnRes.Waited, trRes.Waited)
	assert.Equal(t, fnDelays, trDelays)
}

func TestRetrier_RequestIDStableAcrossRetries(t *testing.T) {
	inv := &scriptedInvoker{steps: crashes(4, step{resp: &Response{Payload: []byte("ok")}})}
	r := NewRetrier(inv, WithSleeper(&retry.RecordingSleeper{}))

	res, err := r.Invoke(context.Background(), "fn")
	require.NoError(t, err)
	require.Len(t, inv.payloads, 5)
	for _, p := range inv.payloads {
		assert.Equal(t, res.RequestID, p.RequestID)
		assert.Equal(t, "value", p.Key)
	}
}

func TestRetrier_RequestIDUniqueAcrossCalls(t *testing.T) {
	inv := &scriptedInvoker{steps: []step{{resp: &Response{Payload: []byte("ok")}}}}
	r := NewRetrier(inv, WithSleeper(&retry.RecordingSleeper{}))

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		res, err := r.Invoke(context.Background(), "fn")
		require.NoError(t, err)
		assert.False(t, seen[res.RequestID], "request id %s reused", res.RequestID)
		seen[res.RequestID] = true
	}
	assert.Len(t, inv.payloads, 20)
}

func TestRetrier_PayloadShape(t *testing.T) {
	var raw []byte
	inv := invokerFunc(func(_ context.Context, _ string, payload []byte) (*Response, error) {
		raw = payload
		return &Response{}, nil
	})
	_, err := NewRetrier(inv, WithIDGenerator(func() string { return "req-1" })).InvokeUntilSuccess(context.Background(), "fn")
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"value","request_id":"req-1"}`, string(raw))
}

func TestRetrier_FirstAttemptSuccessNoWait(t *testing.T) {
	inv := &scriptedInvoker{steps: []step{{resp: &Response{Payload: []byte(`{"bank":990}`)}}}}
	sleeper := &retry.RecordingSleeper{}
	rec := &fakeRecorder{}

	out, err := NewRetrier(inv, WithSleeper(sleeper), WithRecorder(rec)).InvokeUntilSuccess(context.Background(), "fn")
	require.NoError(t, err)
	assert.Equal(t, `{"bank":990}`, out)
	assert.Empty(t, sleeper.Delays())
	assert.Equal(t, []string{OutcomeSuccess}, rec.outcomes)
	assert.Zero(t, rec.waited)
}

func TestRetrier_RecordsOutcomes(t *testing.T) {
	inv := &scriptedInvoker{steps: []step{
		{resp: &Response{FunctionError: "Unhandled"}},
		{err: errors.New("throttled")},
		{resp: &Response{Payload: []byte("ok")}},
	}}
	rec := &fakeRecorder{}

	_, err := NewRetrier(inv, WithSleeper(&retry.RecordingSleeper{}), WithRecorder(rec), WithDelay(time.Second)).
		InvokeUntilSuccess(context.Background(), "fn")
	require.NoError(t, err)
	assert.Equal(t, []string{OutcomeFunctionError, OutcomeTransportError, OutcomeSuccess}, rec.outcomes)
	assert.Equal(t, 2*time.Second, rec.waited)
}

func TestRetrier_EncodeFailureIsFatal(t *testing.T) {
	inv := &scriptedInvoker{steps: []step{{resp: &Response{}}}}
	r := NewRetrier(inv, WithEncoder(func(Request) ([]byte, error) {
		return nil, errors.New("unsupported value")
	}))

	_, err := r.InvokeUntilSuccess(context.Background(), "fn")
	assert.ErrorIs(t, err, ErrEncodeRequest)
	assert.Empty(t, inv.payloads, "target never invoked")
}

func TestRetrier_LossyDecode(t *testing.T) {
	inv := &scriptedInvoker{steps: []step{{resp: &Response{Payload: []byte{'o', 'k', 0xff}}}}}
	out, err := NewRetrier(inv).InvokeUntilSuccess(context.Background(), "fn")
	require.NoError(t, err)
	assert.Equal(t, "ok�", out)
}

func TestRetrier_EmptyPayload(t *testing.T) {
	inv := &scriptedInvoker{steps: []step{{resp: &Response{}}}}
	out, err := NewRetrier(inv).InvokeUntilSuccess(context.Background(), "fn")
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestRetrier_Cancellation(t *testing.T) {
	inv := &scriptedInvoker{steps: []step{{err: errors.New("down")}}}
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRetrier(inv, WithDelay(time.Hour))

	done := make(chan error, 1)
	go func() {
		_, err := r.InvokeUntilSuccess(ctx, "fn")
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, retry.ErrCancelled)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("retrier ignored cancellation")
	}
}

func TestRetrier_MaxAttempts(t *testing.T) {
	tests := []struct {
		name     string
		attempts int
	}{
		{"single attempt", 1},
		{"one retry", 2},
		{"two retries", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &scriptedInvoker{steps: []step{{resp: &Response{FunctionError: "Unhandled"}}}}
			sleeper := &retry.RecordingSleeper{}
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			res, err := NewRetrier(inv, WithSleeper(sleeper), WithMaxAttempts(tt.attempts)).Invoke(ctx, "fn")
			require.Error(t, err)
			assert.NotErrorIs(t, err, retry.ErrCancelled)
			var ferr *FunctionError
			assert.ErrorAs(t, err, &ferr)
			assert.Equal(t, tt.attempts, res.Attempts)
			assert.Len(t, inv.payloads, tt.attempts)
			assert.Len(t, sleeper.Delays(), tt.attempts-1)
		})
	}
}

func TestRetrier_ConcurrentCallsAreIndependent(t *testing.T) {
	inv := &scriptedInvoker{steps: []step{{resp: &Response{Payload: []byte("ok")}}}}
	r := NewRetrier(inv, WithSleeper(&retry.RecordingSleeper{}))

	var wg sync.WaitGroup
	ids := make(chan string, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Invoke(context.Background(), "fn")
			if assert.NoError(t, err) {
				ids <- res.RequestID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		seen[id] = true
	}
	assert.Len(t, seen, 10)
}

type invokerFunc func(ctx context.Context, target string, payload []byte) (*Response, error)

func (f invokerFunc) Invoke(ctx context.Context, target string, payload []byte) (*Response, error) {
	return f(ctx, target, payload)
}

func TestDispatcher(t *testing.T) {
	var got string
	mk := func(name string) Invoker {
		return invokerFunc(func(context.Context, string, []byte) (*Response, error) {
			got = name
			return &Response{}, nil
		})
	}
	d := &Dispatcher{HTTP: mk("http"), Lambda: mk("lambda")}

	_, _ = d.Invoke(context.Background(), "http://localhost:9000/fn", nil)
	assert.Equal(t, "http", got)
	_, _ = d.Invoke(context.Background(), "arn:aws:lambda:us-east-1:000000000000:function:demo_purchase_function", nil)
	assert.Equal(t, "lambda", got)
}
