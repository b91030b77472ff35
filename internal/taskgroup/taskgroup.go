// Package taskgroup tracks fire-and-forget background tasks so they can be
// cancelled and drained as a unit.
//
// The WHEP handlers register one monitoring task per created session. On
// shutdown the group is closed, every task's context is cancelled, and the
// caller waits for all of them to return before the process exits.
package taskgroup

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Errors returned by Group.
var (
	// ErrSealed is returned by Add while the group is draining.
	ErrSealed = errors.New("taskgroup: group is running")

	// ErrClosed is returned by Add after Shutdown.
	ErrClosed = errors.New("taskgroup: group is closed")

	// ErrDrainTimeout is returned by Shutdown when tasks outlive its deadline.
	ErrDrainTimeout = errors.New("taskgroup: tasks did not finish before deadline")
)

// Task is a unit of background work. It must return once ctx is done.
type Task func(ctx context.Context) error

// Logger defines the logging interface used by the Group.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Group is a set of running tasks.
//
// Thread Safety: all methods are safe for concurrent use.
type Group struct {
	name   string
	logger Logger

	mu        sync.Mutex
	eg        *errgroup.Group
	ctx       context.Context
	cancel    context.CancelFunc
	tasks     map[uint64]string
	nextID    uint64
	done      chan struct{} // non-nil while sealed
	closed    bool
	callbacks []func(*Group)
	drained   int // tasks tracked when the last Run sealed the group
}

// New creates an empty, unsealed group. name identifies it in logs and
// as a lifecycle hook.
func New(name string) *Group {
	ctx, cancel := context.WithCancel(context.Background())
	return &Group{
		name:   name,
		logger: noopLogger{},
		eg:     new(errgroup.Group),
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[uint64]string),
	}
}

// SetLogger sets the logger for the group.
func (g *Group) SetLogger(logger Logger) {
	g.logger = logger
}

// Name returns the group's name.
func (g *Group) Name() string {
	return g.name
}

// Add starts task in its own goroutine and tracks it until it returns.
//
// Returns ErrSealed while Run is draining the group and ErrClosed after
// Shutdown; in both cases the task is not started.
func (g *Group) Add(name string, task Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return fmt.Errorf("%w: %s", ErrClosed, name)
	}
	if g.done != nil {
		return fmt.Errorf("%w: %s", ErrSealed, name)
	}

	id := g.nextID
	g.nextID++
	g.tasks[id] = name
	ctx := g.ctx

	g.eg.Go(func() error {
		defer g.untrack(id)
		defer func() {
			if r := recover(); r != nil {
				g.logger.Error("task panic recovered", "group", g.name, "task", name, "panic", r)
			}
		}()

		err := task(ctx)
		if err != nil && ctx.Err() == nil {
			g.logger.Warn("task failed", "group", g.name, "task", name, "error", err)
		}
		return nil
	})

	g.logger.Debug("task added", "group", g.name, "task", name, "tasks", len(g.tasks))
	return nil
}

func (g *Group) untrack(id uint64) {
	g.mu.Lock()
	delete(g.tasks, id)
	g.mu.Unlock()
}

// Len returns the number of tracked tasks.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tasks)
}

// Empty reports whether no tasks are tracked.
func (g *Group) Empty() bool {
	return g.Len() == 0
}

// OnDone registers a callback invoked every time a Run completes.
// A panicking callback is logged and does not stop the others.
func (g *Group) OnDone(fn func(*Group)) {
	g.mu.Lock()
	g.callbacks = append(g.callbacks, fn)
	g.mu.Unlock()
}

// Drained returns how many tasks were tracked when the most recent Run
// sealed the group. Completion callbacks use it to report the drain.
func (g *Group) Drained() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.drained
}

// Cancel cancels the context of every task added so far. Tasks added
// afterwards get a fresh context.
func (g *Group) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.cancel()
	g.ctx, g.cancel = context.WithCancel(context.Background())
}

// Run seals the group and returns a channel closed once every tracked task
// has returned and the completion callbacks have run. Completion clears
// the tracked set and unseals the group. Calling Run again while it is
// draining returns the same channel.
func (g *Group) Run() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.done != nil {
		return g.done
	}

	done := make(chan struct{})
	g.done = done
	eg := g.eg
	sealed := len(g.tasks)
	g.logger.Debug("task group draining", "group", g.name, "tasks", len(g.tasks))

	go func() {
		_ = eg.Wait() //nolint:errcheck // tasks always return nil; failures are logged in Add

		g.mu.Lock()
		clear(g.tasks)
		g.eg = new(errgroup.Group)
		g.done = nil
		g.drained = sealed
		callbacks := append([]func(*Group){}, g.callbacks...)
		g.mu.Unlock()

		for _, fn := range callbacks {
			g.invoke(fn)
		}
		close(done)
	}()

	return done
}

func (g *Group) invoke(fn func(*Group)) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("task group callback panicked", "group", g.name, "panic", r)
		}
	}()
	fn(g)
}

// Shutdown closes the group to new tasks, cancels the running ones and
// waits for them, bounded by ctx. Returns ErrDrainTimeout if ctx expires
// first.
func (g *Group) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	g.Cancel()

	select {
	case <-g.Run():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %d task(s) still running: %w", ErrDrainTimeout, g.Len(), ctx.Err())
	}
}

// Start implements lifecycle.Hook. The group needs no startup work.
func (g *Group) Start(context.Context) error {
	return nil
}

// Stop implements lifecycle.Hook by calling Shutdown.
func (g *Group) Stop(ctx context.Context) error {
	return g.Shutdown(ctx)
}
