// Package shutdown runs registered cleanup functions when the process is
// asked to stop.
package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/psantana5/crashloop/pkg/logging"
)

// Manager handles graceful shutdown
type Manager struct {
	mu            sync.Mutex
	shutdownFuncs []namedFunc
	timeout       time.Duration
	logger        *logging.Logger
	doneChan      chan struct{}
	once          sync.Once
}

type namedFunc struct {
	name string
	fn   func(context.Context) error
}

// New creates a shutdown manager whose Shutdown gives all functions
// timeout to finish.
func New(timeout time.Duration, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Manager{
		timeout:  timeout,
		logger:   logger,
		doneChan: make(chan struct{}),
	}
}

// Register adds a shutdown function. Functions run in reverse order (LIFO).
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownFuncs = append(m.shutdownFuncs, namedFunc{name: name, fn: fn})
}

// Done is closed once shutdown starts.
func (m *Manager) Done() <-chan struct{} {
	return m.doneChan
}

// Shutdown runs every registered function and returns the failures.
// Only the first call does any work.
func (m *Manager) Shutdown() []error {
	var errs []error
	m.once.Do(func() {
		close(m.doneChan)

		m.mu.Lock()
		defer m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		for i := len(m.shutdownFuncs) - 1; i >= 0; i-- {
			f := m.shutdownFuncs[i]
			m.logger.Info("Stopping "+f.name)
			if err := f.fn(ctx); err != nil {
				m.logger.Error("Shutdown step failed", map[string]interface{}{"step": f.name, "error": err.Error()})
				errs = append(errs, fmt.Errorf("%s: %w", f.name, err))
			}
		}
		m.logger.Info("Graceful shutdown complete")
	})
	return errs
}

// WaitWithContext blocks until SIGINT/SIGTERM or ctx ends, then shuts down.
func (m *Manager) WaitWithContext(ctx context.Context) []error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		m.logger.Info("Received signal, initiating graceful shutdown", map[string]interface{}{"signal": sig.String()})
	case <-ctx.Done():
		m.logger.Info("Context done, initiating graceful shutdown")
	}
	return m.Shutdown()
}

// StopHTTPServer wraps http.Server.Shutdown.
func StopHTTPServer(server interface{ Shutdown(context.Context) error }) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop HTTP server: %w", err)
		}
		return nil
	}
}

// CloseResource wraps an io.Closer.
func CloseResource(closer interface{ Close() error }) func(context.Context) error {
	return func(ctx context.Context) error {
		return closer.Close()
	}
}

// WaitFor polls done until it reports true or ctx expires.
func WaitFor(done func() bool, pollInterval time.Duration) func(context.Context) error {
	return func(ctx context.Context) error {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			if done() {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}
}
