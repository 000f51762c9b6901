package observability

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ShutdownFunc is a function to call during shutdown
type ShutdownFunc func(context.Context) error

type namedShutdown struct {
	name string
	fn   ShutdownFunc
}

// ShutdownManager runs registered cleanup hooks in reverse registration
// order, so that components are stopped before the things they depend on
// (the mirror dispatcher drains before the database is closed).
type ShutdownManager struct {
	logger *Logger
	mu     sync.Mutex
	funcs  []namedShutdown
	once   sync.Once
	err    error
}

// NewShutdownManager creates a new shutdown manager
func NewShutdownManager(logger *Logger) *ShutdownManager {
	if logger == nil {
		logger = NopLogger()
	}
	return &ShutdownManager{logger: logger}
}

// Register adds a named hook
func (sm *ShutdownManager) Register(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.funcs = append(sm.funcs, namedShutdown{name: name, fn: fn})
}

// Shutdown runs every hook once. Failures are logged and joined; later
// hooks still run.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	sm.once.Do(func() {
		sm.mu.Lock()
		funcs := make([]namedShutdown, len(sm.funcs))
		copy(funcs, sm.funcs)
		sm.mu.Unlock()

		var errs []error
		for i := len(funcs) - 1; i >= 0; i-- {
			hook := funcs[i]
			log := sm.logger.WithField("component", hook.name)
			if err := hook.fn(ctx); err != nil {
				log.WithError(err).Error("Shutdown hook failed")
				errs = append(errs, fmt.Errorf("%s: %w", hook.name, err))
				continue
			}
			log.Info("Shutdown hook complete")
		}
		sm.err = errors.Join(errs...)
	})
	return sm.err
}
