// Package invoke drives an at-least-once invocation loop against a remote
// compute function. Function-level and transport-level failures are both
// treated as simulated crashes: the retrier waits a fixed delay and tries
// again with the same request id until the function answers successfully.
package invoke

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/psantana5/crashloop/pkg/logging"
	"github.com/psantana5/crashloop/pkg/retry"
	"github.com/psantana5/crashloop/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/encoding/unicode"
)

// Recorder receives per-attempt outcomes; pkg/metrics implements it.
type Recorder interface {
	RecordAttempt(target, outcome string)
	RecordWait(target string, d time.Duration)
}

// Attempt outcomes passed to Recorder.RecordAttempt.
const (
	OutcomeSuccess        = "success"
	OutcomeFunctionError  = "function_error"
	OutcomeTransportError = "transport_error"
)

// Result describes a finished InvokeUntilSuccess call.
type Result struct {
	Payload   string        `json:"payload"`
	RequestID string        `json:"request_id"`
	Attempts  int           `json:"attempts"`
	Waited    time.Duration `json:"waited_ns"`
}

// Retrier invokes a target until it succeeds.
type Retrier struct {
	invoker  Invoker
	policy   retry.Config
	logger   *logging.Logger
	recorder Recorder
	tracer   *tracing.Provider
	newID    func() string
	encode   func(Request) ([]byte, error)
}

// Option configures a Retrier
type Option func(*Retrier)

// WithDelay sets the constant pause between attempts.
func WithDelay(d time.Duration) Option {
	return func(r *Retrier) {
		r.policy.InitialBackoff = d
		r.policy.MaxBackoff = d
		r.policy.Multiplier = 1
	}
}

// WithMaxAttempts bounds the loop to n attempts; 0 keeps it unbounded.
func WithMaxAttempts(n int) Option {
	return func(r *Retrier) { r.policy.MaxAttempts = n }
}

// WithSleeper replaces the real timer, mainly for tests.
func WithSleeper(s retry.Sleeper) Option {
	return func(r *Retrier) { r.policy.Sleeper = s }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Retrier) { r.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Retrier) { r.recorder = rec }
}

// WithTracer sets the tracing provider.
func WithTracer(p *tracing.Provider) Option {
	return func(r *Retrier) { r.tracer = p }
}

// WithIDGenerator replaces uuid.NewString.
func WithIDGenerator(f func() string) Option {
	return func(r *Retrier) { r.newID = f }
}

// WithEncoder replaces the JSON encoder for the request payload.
func WithEncoder(f func(Request) ([]byte, error)) Option {
	return func(r *Retrier) { r.encode = f }
}

// NewRetrier creates a retrier with a 5 second fixed delay and no attempt limit.
func NewRetrier(invoker Invoker, opts ...Option) *Retrier {
	r := &Retrier{
		invoker: invoker,
		policy:  retry.DefaultConfig(),
		logger:  logging.Nop(),
		tracer:  tracing.Noop(),
		newID:   uuid.NewString,
		encode:  func(req Request) ([]byte, error) { return json.Marshal(req) },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// InvokeUntilSuccess invokes target until it returns without a function
// error and returns the decoded payload. It blocks until success, ctx ends,
// or a configured attempt limit runs out.
func (r *Retrier) InvokeUntilSuccess(ctx context.Context, target string) (string, error) {
	res, err := r.Invoke(ctx, target)
	if err != nil {
		return "", err
	}
	return res.Payload, nil
}

// Invoke is InvokeUntilSuccess with attempt details.
func (r *Retrier) Invoke(ctx context.Context, target string) (*Result, error) {
	requestID := r.newID()
	payload, err := r.encode(NewRequest(requestID))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodeRequest, err)
	}

	ctx, span := r.tracer.StartSpan(ctx, "invoke.until_success",
		attribute.String("invoke.target", target),
		attribute.String("invoke.request_id", requestID),
	)
	defer span.End()

	log := r.logger.WithField("target", target).WithField("request_id", requestID)
	res := &Result{RequestID: requestID}

	policy := r.policy
	policy.OnTransition = func(tr retry.Transition) {
		if tr.To == retry.StateWaiting {
			res.Waited += tr.Delay
			if r.recorder != nil {
				r.recorder.RecordWait(target, tr.Delay)
			}
			log.Info(fmt.Sprintf("Restarting after %s...", tr.Delay), map[string]interface{}{"attempt": tr.Attempt})
		}
	}

	err = retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		res.Attempts = attempt
		tracing.AddEvent(ctx, "attempt", attribute.Int("invoke.attempt", attempt))
		log.Info("Attempting to invoke function", map[string]interface{}{"attempt": attempt})

		resp, err := r.invoker.Invoke(ctx, target, payload)
		if err != nil {
			r.record(target, OutcomeTransportError)
			terr := &TransportError{Target: target, Err: err}
			log.Warn("Function invocation failed", map[string]interface{}{"attempt": attempt, "error": err.Error()})
			return terr
		}
		if resp.FunctionError != "" {
			r.record(target, OutcomeFunctionError)
			log.Warn("Function crashed while attempting to complete", map[string]interface{}{
				"attempt":        attempt,
				"function_error": resp.FunctionError,
			})
			return &FunctionError{Target: target, Kind: resp.FunctionError}
		}

		r.record(target, OutcomeSuccess)
		res.Payload = decodeLossy(resp.Payload)
		return nil
	})
	span.SetAttributes(attribute.Int("invoke.attempts", res.Attempts))
	if err != nil {
		tracing.SetError(ctx, err)
		if errors.Is(err, retry.ErrCancelled) {
			log.Warn("Invocation abandoned", map[string]interface{}{"attempts": res.Attempts})
		}
		return res, fmt.Errorf("invoke %s: %w", target, err)
	}

	log.Info("Function completed", map[string]interface{}{"attempts": res.Attempts, "waited": res.Waited.String()})
	return res, nil
}

func (r *Retrier) record(target, outcome string) {
	if r.recorder != nil {
		r.recorder.RecordAttempt(target, outcome)
	}
}

// decodeLossy turns the payload into text, replacing invalid UTF-8 with U+FFFD.
func decodeLossy(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	out, err := unicode.UTF8.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}
