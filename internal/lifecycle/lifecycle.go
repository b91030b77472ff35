package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Errors returned by Binder.
var (
	// ErrStopTimeout is returned when a runner does not exit before the
	// Stop deadline. The runner goroutine is leaked; callers treat this as fatal.
	ErrStopTimeout = errors.New("lifecycle: runner did not stop before deadline")

	// ErrAlreadyStarted is returned by a second Start without an intervening Stop.
	ErrAlreadyStarted = errors.New("lifecycle: already started")
)

// Hook is a component started with the server and stopped when it closes.
type Hook interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Runner is a long-running function. It must return promptly once ctx is
// done; returning ctx.Err() (or nil) at that point is a clean exit.
type Runner func(ctx context.Context) error

// Logger defines the logging interface used by the Binder.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Binder runs a Runner for as long as it is started.
type Binder struct {
	name   string
	run    Runner
	logger Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error // runner result, valid once done is closed
}

// NewBinder wraps run as a Hook called name.
func NewBinder(name string, run Runner) *Binder {
	return &Binder{name: name, run: run, logger: noopLogger{}}
}

// SetLogger sets the logger for runner start, exit and failure messages.
func (b *Binder) SetLogger(logger Logger) {
	b.logger = logger
}

// Name implements Hook.
func (b *Binder) Name() string {
	return b.name
}

// Start launches the runner in a goroutine and returns immediately.
//
// The runner's context derives from ctx with cancellation detached:
// only Stop ends it, so a request-scoped ctx passed here cannot kill it.
func (b *Binder) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.done != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyStarted, b.name)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	b.cancel = cancel
	b.done = done
	b.err = nil

	go func() {
		defer close(done)
		err := b.run(runCtx)
		if err != nil && runCtx.Err() != nil && errors.Is(err, runCtx.Err()) {
			err = nil
		}
		if err != nil {
			b.logger.Error("background runner failed", "runner", b.name, "error", err)
		}
		b.mu.Lock()
		b.err = err
		b.mu.Unlock()
	}()

	b.logger.Info("background runner started", "runner", b.name)
	return nil
}

// Stop cancels the runner and waits until it has exited or ctx is done.
//
// Returns ErrStopTimeout if ctx expires first, otherwise the runner's own
// error (nil for a clean cancellation). Stopping a binder that was never
// started is a no-op.
func (b *Binder) Stop(ctx context.Context) error {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.mu.Unlock()

	if done == nil {
		return nil
	}

	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %w", ErrStopTimeout, b.name, ctx.Err())
	}

	b.mu.Lock()
	err := b.err
	b.cancel, b.done = nil, nil
	b.mu.Unlock()

	b.logger.Info("background runner stopped", "runner", b.name)
	if err != nil {
		return fmt.Errorf("runner %s: %w", b.name, err)
	}
	return nil
}

// Running reports whether the runner goroutine is still active.
func (b *Binder) Running() bool {
	b.mu.Lock()
	done := b.done
	b.mu.Unlock()

	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// StartAll starts hooks in order. If one fails, the hooks already started
// are stopped in reverse order and the start error is returned.
func StartAll(ctx context.Context, hooks []Hook) error {
	for i, h := range hooks {
		if err := h.Start(ctx); err != nil {
			stopErr := StopAll(ctx, hooks[:i])
			return errors.Join(fmt.Errorf("starting %s: %w", h.Name(), err), stopErr)
		}
	}
	return nil
}

// StopAll stops every hook in reverse order, continuing past failures,
// and returns all errors joined.
func StopAll(ctx context.Context, hooks []Hook) error {
	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i].Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping %s: %w", hooks[i].Name(), err))
		}
	}
	return errors.Join(errs...)
}
