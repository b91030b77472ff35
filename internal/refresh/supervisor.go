package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/whep-gateway/internal/device"
	"github.com/nerrad567/whep-gateway/internal/events"
)

// Default intervals, matching the gateway configuration defaults.
const (
	DefaultUpdateInterval  = time.Hour
	DefaultBackoffInterval = time.Minute
)

// Cycle states reported by Status.
const (
	StateIdle       = "idle"
	StateRefreshing = "refreshing"
	StateBackingOff = "backing_off"
	StateStopped    = "stopped"
)

// Logger defines the logging interface used by the Supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds the supervisor's two knobs. Zero values take the defaults.
type Config struct {
	UpdateInterval  time.Duration
	BackoffInterval time.Duration
}

// Status is a read-only diagnostic view of the refresh cycle.
type Status struct {
	State               string    `json:"state"`
	LastSuccess         time.Time `json:"last_success,omitzero"`
	LastAttempt         time.Time `json:"last_attempt,omitzero"`
	LastError           string    `json:"last_error,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Refreshes           int       `json:"refreshes"`
}

// Supervisor periodically replaces the registry contents with the
// upstream device list.
type Supervisor struct {
	lister   device.Lister
	registry *device.Registry
	cfg      Config

	clock     Clock
	publisher events.Publisher
	logger    Logger

	trigger chan struct{}

	mu     sync.RWMutex // Protects status
	status Status
}

// New creates a supervisor. It does nothing until Run is called.
func New(lister device.Lister, registry *device.Registry, cfg Config) *Supervisor {
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = DefaultUpdateInterval
	}
	if cfg.BackoffInterval <= 0 {
		cfg.BackoffInterval = DefaultBackoffInterval
	}
	return &Supervisor{
		lister:   lister,
		registry: registry,
		cfg:      cfg,
		clock:    realClock{},
		logger:   noopLogger{},
		trigger:  make(chan struct{}, 1),
		status:   Status{State: StateIdle},
	}
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
}

// SetClock replaces the wall clock. Must be called before Run.
func (s *Supervisor) SetClock(clock Clock) {
	s.clock = clock
}

// SetPublisher sets where refresh outcomes are announced.
func (s *Supervisor) SetPublisher(p events.Publisher) {
	s.publisher = p
}

// Run refreshes immediately and then forever on the configured cadence.
// It only returns when ctx is done, with ctx.Err().
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info("device refresh started",
		"update_interval", s.cfg.UpdateInterval,
		"backoff_interval", s.cfg.BackoffInterval,
	)
	defer s.setState(StateStopped)

	for {
		next := s.refreshOnce(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.wait(ctx, next); err != nil {
			return err
		}
	}
}

// Trigger requests an immediate refresh. Calls made while one is already
// pending are coalesced; Trigger never blocks.
func (s *Supervisor) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Status returns a copy of the current diagnostics.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// refreshOnce performs one fetch-and-replace and returns how long to wait
// before the next attempt.
func (s *Supervisor) refreshOnce(ctx context.Context) time.Duration {
	start := s.clock.Now()
	s.mu.Lock()
	s.status.State = StateRefreshing
	s.status.LastAttempt = start.UTC()
	s.mu.Unlock()

	devices, err := s.lister.ListDevices(ctx)
	count := 0
	if err == nil {
		count = s.registry.Replace(devices)
	}
	elapsed := s.clock.Now().Sub(start)

	if err != nil {
		if ctx.Err() != nil {
			// Shutting down; not a refresh failure.
			return 0
		}
		s.recordFailure(ctx, err, elapsed)
		return s.cfg.BackoffInterval
	}

	s.recordSuccess(ctx, count, elapsed)
	return s.cfg.UpdateInterval
}

func (s *Supervisor) recordSuccess(ctx context.Context, count int, elapsed time.Duration) {
	s.mu.Lock()
	s.status.State = StateIdle
	s.status.LastSuccess = s.clock.Now().UTC()
	s.status.LastError = ""
	s.status.ConsecutiveFailures = 0
	s.status.Refreshes++
	s.mu.Unlock()

	s.logger.Info("device list refreshed", "devices", count, "duration", elapsed)

	if s.publisher != nil {
		e := events.New(events.RegistryRefreshed)
		e.Devices = count
		e.DurationMS = elapsed.Milliseconds()
		s.publisher.Publish(ctx, e)
	}
}

func (s *Supervisor) recordFailure(ctx context.Context, err error, elapsed time.Duration) {
	s.mu.Lock()
	s.status.State = StateBackingOff
	s.status.LastError = err.Error()
	s.status.ConsecutiveFailures++
	failures := s.status.ConsecutiveFailures
	s.mu.Unlock()

	s.logger.Error("device refresh failed",
		"error", err,
		"consecutive_failures", failures,
		"retry_in", s.cfg.BackoffInterval,
	)

	if s.publisher != nil {
		e := events.New(events.RegistryRefreshFailed)
		e.Error = err.Error()
		e.DurationMS = elapsed.Milliseconds()
		s.publisher.Publish(ctx, e)
	}
}

// wait blocks for d, until Trigger is called, or until ctx is done.
func (s *Supervisor) wait(ctx context.Context, d time.Duration) error {
	t := s.clock.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C():
		return nil
	case <-s.trigger:
		s.logger.Debug("device refresh triggered")
		return nil
	}
}

func (s *Supervisor) setState(state string) {
	s.mu.Lock()
	s.status.State = state
	s.mu.Unlock()
}
