package device

import "context"

// Descriptor identifies a camera known to the upstream device-control service.
type Descriptor struct {
	// ID is the public device identifier used in WHEP paths.
	ID string `json:"device_id"`

	// Handle is the upstream's own key for the device. It is opaque to the
	// gateway and only passed back to the Client.
	Handle string `json:"-"`

	Name string `json:"name,omitempty"`
	Kind string `json:"kind,omitempty"`
}

// Client is the device-control collaborator the gateway sits in front of.
//
// Implementations must be safe for concurrent use. Every method may fail
// with network or authentication errors; the gateway treats those as
// upstream failures and never inspects them further.
type Client interface {
	// ListDevices returns every camera currently reachable.
	ListDevices(ctx context.Context) ([]Descriptor, error)

	// GenerateStream forwards an SDP offer and returns the device's SDP answer.
	GenerateStream(ctx context.Context, d Descriptor, offer string) (string, error)

	// CloseStream terminates a session previously created by GenerateStream.
	CloseStream(ctx context.Context, d Descriptor, sessionID string) error

	// SessionExists reports whether the device still knows the session.
	SessionExists(ctx context.Context, d Descriptor, sessionID string) (bool, error)
}

// Lister is the subset of Client used by the refresh supervisor.
type Lister interface {
	ListDevices(ctx context.Context) ([]Descriptor, error)
}
