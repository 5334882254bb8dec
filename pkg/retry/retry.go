// Package retry runs an operation until it succeeds, waiting between
// attempts. The loop is a small state machine (attempting, waiting,
// succeeded, cancelled) with a pluggable Sleeper so tests never block on
// real time.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCancelled is returned when the context ends before the operation succeeds.
var ErrCancelled = errors.New("retry cancelled")

// State is a position in the retry loop.
type State int

const (
	StateAttempting State = iota
	StateWaiting
	StateSucceeded
	StateCancelled
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateAttempting:
		return "attempting"
	case StateWaiting:
		return "waiting"
	case StateSucceeded:
		return "succeeded"
	case StateCancelled:
		return "cancelled"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Transition describes one move of the state machine.
type Transition struct {
	Attempt int // 1-based attempt the transition belongs to
	From    State
	To      State
	Err     error         // failure that caused Attempting -> Waiting
	Delay   time.Duration // wait about to start, set on -> Waiting
}

// Config holds retry configuration
type Config struct {
	MaxAttempts    int           // Total attempts allowed; 0 means unbounded
	InitialBackoff time.Duration // Delay before the first retry
	MaxBackoff     time.Duration // Upper bound for the delay, 0 means no bound
	Multiplier     float64       // Backoff multiplier; 1 keeps the delay constant

	Sleeper      Sleeper
	OnTransition func(Transition)
}

// DefaultDelay is the pause between attempts used by the harness.
const DefaultDelay = 5 * time.Second

// DefaultConfig retries forever with a constant 5 second pause.
func DefaultConfig() Config {
	return Fixed(DefaultDelay)
}

// Fixed returns an unbounded config with a constant delay.
func Fixed(delay time.Duration) Config {
	return Config{
		InitialBackoff: delay,
		MaxBackoff:     delay,
		Multiplier:     1,
	}
}

func (c Config) sleeper() Sleeper {
	if c.Sleeper == nil {
		return TimerSleeper{}
	}
	return c.Sleeper
}

func (c Config) emit(t Transition) {
	if c.OnTransition != nil {
		c.OnTransition(t)
	}
}

func (c Config) next(backoff time.Duration) time.Duration {
	if c.Multiplier <= 1 {
		return backoff
	}
	backoff = time.Duration(float64(backoff) * c.Multiplier)
	if c.MaxBackoff > 0 && backoff > c.MaxBackoff {
		backoff = c.MaxBackoff
	}
	return backoff
}

// Do executes fn until it returns nil. fn receives the 1-based attempt number.
// Attempts never overlap. Every error from fn is retried; only the context
// or MaxAttempts end the loop early.
func Do(ctx context.Context, config Config, fn func(ctx context.Context, attempt int) error) error {
	sleeper := config.sleeper()
	backoff := config.InitialBackoff

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			config.emit(Transition{Attempt: attempt, From: StateAttempting, To: StateCancelled, Err: err})
			return fmt.Errorf("%w: %w", ErrCancelled, err)
		}

		err := fn(ctx, attempt)
		if err == nil {
			config.emit(Transition{Attempt: attempt, From: StateAttempting, To: StateSucceeded})
			return nil
		}

		if config.MaxAttempts > 0 && attempt >= config.MaxAttempts {
			config.emit(Transition{Attempt: attempt, From: StateAttempting, To: StateExhausted, Err: err})
			return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		}

		config.emit(Transition{Attempt: attempt, From: StateAttempting, To: StateWaiting, Err: err, Delay: backoff})
		if serr := sleeper.Sleep(ctx, backoff); serr != nil {
			config.emit(Transition{Attempt: attempt, From: StateWaiting, To: StateCancelled, Err: serr})
			return fmt.Errorf("%w: %w", ErrCancelled, serr)
		}
		config.emit(Transition{Attempt: attempt + 1, From: StateWaiting, To: StateAttempting})

		backoff = config.next(backoff)
	}
}
