package device

import (
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry holds the most recently fetched device list.
//
// The collection is never modified in place: Replace swaps the whole slice
// under the write lock, so a reader holding a snapshot sees a complete list.
//
// All public methods are thread-safe.
type Registry struct {
	mu          sync.RWMutex // Protects devices and refreshedAt
	devices     []Descriptor
	refreshedAt time.Time
	logger      Logger
}

// NewRegistry creates an empty registry.
// Lookups fail with ErrDeviceNotFound until the first Replace.
func NewRegistry() *Registry {
	return &Registry{
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Snapshot returns a copy of the current device list in upstream order.
func (r *Registry) Snapshot() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, len(r.devices))
	copy(out, r.devices)
	return out
}

// Replace atomically swaps the whole device list and returns how many
// devices it now holds.
//
// When an ID repeats, the first occurrence wins and later ones are dropped
// with a warning, so one bad upstream entry cannot hide the other devices.
func (r *Registry) Replace(devices []Descriptor) int {
	seen := make(map[string]struct{}, len(devices))
	next := make([]Descriptor, 0, len(devices))
	for _, d := range devices {
		if _, dup := seen[d.ID]; dup {
			r.logger.Warn("dropping duplicate device", "device_id", d.ID, "handle", d.Handle)
			continue
		}
		seen[d.ID] = struct{}{}
		next = append(next, d)
	}

	r.mu.Lock()
	r.devices = next
	r.refreshedAt = time.Now().UTC()
	r.mu.Unlock()

	r.logger.Debug("device registry replaced", "count", len(next))
	return len(next)
}

// Find returns the device with the given ID.
// Returns ErrDeviceNotFound if it is not in the current snapshot.
func (r *Registry) Find(id string) (Descriptor, error) {
	r.mu.RLock()
	devices := r.devices
	r.mu.RUnlock()

	// devices is never mutated after Replace, so scanning outside the lock is safe.
	for _, d := range devices {
		if d.ID == id {
			return d, nil
		}
	}
	return Descriptor{}, fmt.Errorf("%w: %q", ErrDeviceNotFound, id)
}

// Count returns the number of known devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// RefreshedAt returns when the list was last replaced.
// The zero time means the registry has never been populated.
func (r *Registry) RefreshedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refreshedAt
}
