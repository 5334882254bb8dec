// Package crash flips the fault-injection flag that tells the remote
// function whether to simulate a crash.
//
// The flag is a single record (table "crash_table", id "mode") whose
// "value" field is "0" (run normally) or "1" (crash).
//
// Toggle is an unguarded read-modify-write: two concurrent toggles can
// both read the same value and both write its complement, so the net
// effect is a single flip where two were requested (a lost update). This
// is the known consistency gap of a single-operator harness. Use
// WithConditionalWrite to turn the lost update into ErrConcurrentToggle.
//
// Complement treats only "0" as off. Any other value, including corrupt
// ones such as "" or "2", flips to "0". Whether that tolerance is
// intended or masks corruption is undecided; the behaviour is kept as is.
package crash

import (
	"context"
	"errors"

	"github.com/psantana5/crashloop/pkg/kv"
	"github.com/psantana5/crashloop/pkg/logging"
	"github.com/psantana5/crashloop/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultTable = "crash_table"
	DefaultKey   = "mode"
	ValueField   = "value"

	Off = "0"
	On  = "1"
)

// Recorder receives toggle outcomes; pkg/metrics implements it.
type Recorder interface {
	RecordToggle(result string, value string)
}

// Toggler reads and flips the crash flag through a kv.Store.
type Toggler struct {
	store       kv.Store
	table       string
	key         string
	conditional bool
	logger      *logging.Logger
	recorder    Recorder
	tracer      *tracing.Provider
}

// Option configures a Toggler
type Option func(*Toggler)

// WithTable overrides the table and key holding the flag.
func WithTable(table, key string) Option {
	return func(t *Toggler) {
		t.table = table
		t.key = key
	}
}

// WithConditionalWrite guards the write with the value that was read.
func WithConditionalWrite() Option {
	return func(t *Toggler) { t.conditional = true }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(t *Toggler) { t.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(t *Toggler) { t.recorder = r }
}

// WithTracer sets the tracing provider.
func WithTracer(p *tracing.Provider) Option {
	return func(t *Toggler) { t.tracer = p }
}

// NewToggler creates a toggler for the default crash_table/mode record.
func NewToggler(store kv.Store, opts ...Option) *Toggler {
	t := &Toggler{
		store:  store,
		table:  DefaultTable,
		key:    DefaultKey,
		logger: logging.Nop(),
		tracer: tracing.Noop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Complement returns the flipped flag value: "0" becomes "1", anything else "0".
func Complement(current string) string {
	if current == Off {
		return On
	}
	return Off
}

// Current reads the flag without modifying it.
func (t *Toggler) Current(ctx context.Context) (string, error) {
	rec, err := t.store.Get(ctx, t.table, t.key)
	if errors.Is(err, kv.ErrNotFound) {
		return "", newError(ErrNotFound, "no record "+t.table+"/"+t.key+"; was the environment bootstrapped?", nil)
	}
	if err != nil {
		return "", newError(ErrReadFailed, "reading from "+t.table+" failed", err)
	}

	value, present, ok := rec.String(ValueField)
	if !present {
		return "", newError(ErrNotFound, "record "+t.table+"/"+t.key+" has no "+ValueField+" field", nil)
	}
	if !ok {
		return "", newError(ErrMalformedState, ValueField+" field is not a string", nil)
	}
	return value, nil
}

// Toggle flips the flag and returns the new value. A failed write leaves
// the stored flag unchanged even though the new value was computed.
func (t *Toggler) Toggle(ctx context.Context) (string, error) {
	ctx, span := t.tracer.StartSpan(ctx, "crash.toggle",
		attribute.String("crash.table", t.table),
		attribute.Bool("crash.conditional", t.conditional),
	)
	defer span.End()

	value, err := t.toggle(ctx)
	if err != nil {
		tracing.SetError(ctx, err)
		t.record(resultOf(err), "")
		t.logger.Error("Toggling crash mode failed", map[string]interface{}{"error": err.Error()})
		return "", err
	}
	span.SetAttributes(attribute.String("crash.value", value))
	t.record("ok", value)
	return value, nil
}

func (t *Toggler) toggle(ctx context.Context) (string, error) {
	current, err := t.Current(ctx)
	if err != nil {
		return "", err
	}
	t.logger.Info("Current crash mode", map[string]interface{}{"value": current})

	next := Complement(current)
	fields := map[string]string{ValueField: next}

	if t.conditional {
		err = t.store.PutIf(ctx, t.table, t.key, fields, kv.Condition{Field: ValueField, Expected: current})
		if errors.Is(err, kv.ErrConditionFailed) {
			return "", newError(ErrConcurrentToggle, "flag no longer "+current+" at write time", err)
		}
	} else {
		err = t.store.Put(ctx, t.table, t.key, fields)
	}
	if err != nil {
		return "", newError(ErrWriteFailed, "writing "+next+" to "+t.table+" failed", err)
	}

	t.logger.Info("Crash mode toggled", map[string]interface{}{"from": current, "to": next})
	return next, nil
}

// Seed writes the initial "0" value, overwriting whatever is there.
func (t *Toggler) Seed(ctx context.Context) error {
	if err := t.store.Put(ctx, t.table, t.key, map[string]string{ValueField: Off}); err != nil {
		return newError(ErrWriteFailed, "inserting initial value failed", err)
	}
	return nil
}

func (t *Toggler) record(result, value string) {
	if t.recorder != nil {
		t.recorder.RecordToggle(result, value)
	}
}

func resultOf(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrMalformedState):
		return "malformed"
	case errors.Is(err, ErrReadFailed):
		return "read_failed"
	case errors.Is(err, ErrConcurrentToggle):
		return "conflict"
	case errors.Is(err, ErrWriteFailed):
		return "write_failed"
	default:
		return "error"
	}
}
