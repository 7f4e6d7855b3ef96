// Package goroutine runs background work with a concurrency cap, panic
// recovery and a final Wait used during shutdown.
package goroutine

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/shandysiswandi/otpgate/internal/pkg/stacktrace"
)

// DefaultMaxGoroutine is multiplied by NumCPU when NewManager receives a non-positive limit.
const DefaultMaxGoroutine int = 100

// Manager runs functions in goroutines with a configurable concurrency limit.
//
// It collects errors returned by tasks and can be waited on using Wait. After
// Wait has been called no new task is accepted.
type Manager struct {
	wg   sync.WaitGroup
	sema chan struct{}

	// guards closed against a concurrent Wait
	state  sync.RWMutex
	closed bool

	errMu sync.Mutex
	errs  []error
}

// NewManager creates a new Manager with the provided maximum concurrency.
func NewManager(maxGoroutine int) *Manager {
	if maxGoroutine < 1 {
		maxGoroutine = runtime.NumCPU() * DefaultMaxGoroutine
	}

	return &Manager{sema: make(chan struct{}, maxGoroutine)}
}

// Go schedules f and reports whether it was started. Tasks are dropped, with a
// warning, when the manager is closed or at its concurrency limit.
func (g *Manager) Go(ctx context.Context, f func(ctx context.Context) error) bool {
	if g == nil {
		return false
	}

	g.state.RLock()
	defer g.state.RUnlock()

	if g.closed {
		slog.WarnContext(ctx, "goroutine manager is closed, skipping new goroutine")
		return false
	}

	select {
	case g.sema <- struct{}{}:
	default:
		slog.WarnContext(ctx, "maximum goroutine limit reached, failed to start new goroutine")
		return false
	}

	g.wg.Add(1)
	go g.run(ctx, f)

	return true
}

func (g *Manager) run(ctx context.Context, f func(ctx context.Context) error) {
	defer g.wg.Done()
	defer func() { <-g.sema }()
	defer func() {
		if rvr := recover(); rvr != nil {
			stack := debug.Stack()
			if paths := stacktrace.InternalPaths(stack); len(paths) > 0 {
				slog.ErrorContext(ctx, "panic occurred in goroutine", "because", rvr, "stack", paths)
				return
			}
			slog.ErrorContext(ctx, "panic occurred in goroutine", "because", rvr, "stack", string(stack))
		}
	}()

	if err := ctx.Err(); err != nil {
		slog.WarnContext(ctx, "goroutine canceled", "because", err)
		return
	}

	if err := f(ctx); err != nil {
		g.errMu.Lock()
		g.errs = append(g.errs, err)
		g.errMu.Unlock()
	}
}

// Wait closes the manager, blocks until all scheduled goroutines finish and
// returns the collected errors.
func (g *Manager) Wait() error {
	if g == nil {
		return nil
	}

	g.state.Lock()
	g.closed = true
	g.state.Unlock()

	g.wg.Wait()

	g.errMu.Lock()
	defer g.errMu.Unlock()
	return errors.Join(g.errs...)
}
