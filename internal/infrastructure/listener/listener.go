// Package listener resolves the sockets the HTTP server serves on.
//
// Normally that is one TCP listener on api.host:api.port. When the process
// is started by systemd with socket activation, the inherited descriptors
// (LISTEN_PID/LISTEN_FDS, starting at fd 3) are used instead, so the
// gateway can be restarted without refusing connections.
package listener

import (
	"errors"
	"fmt"
	"net"

	"github.com/coreos/go-systemd/v22/activation"
)

// ErrNoActivation is returned by Activated when the process was not socket-activated.
var ErrNoActivation = errors.New("listener: no socket activation")

// activationListeners is replaced in tests.
var activationListeners = activation.Listeners

// Activated returns the listeners passed by the service manager.
//
// LISTEN_PID is honoured so descriptors meant for a parent are not picked
// up by a child, and the activation variables are unset afterwards.
// Returns ErrNoActivation when the variables are absent or address another
// process. Every inherited descriptor must be a listening socket.
func Activated() ([]net.Listener, error) {
	ls, err := activationListeners()
	if err != nil {
		return nil, fmt.Errorf("listener: reading activated sockets: %w", err)
	}
	if len(ls) == 0 {
		return nil, ErrNoActivation
	}

	for i, l := range ls {
		if l == nil {
			closeAll(ls)
			return nil, fmt.Errorf("listener: fd %d is not a listening socket", i+3)
		}
	}
	return ls, nil
}

// Resolve returns the activated listeners when socketActivation is set and
// available, otherwise a TCP listener on addr.
//
// The second return value reports whether activation was used.
func Resolve(addr string, socketActivation bool) ([]net.Listener, bool, error) {
	if socketActivation {
		ls, err := Activated()
		switch {
		case err == nil:
			return ls, true, nil
		case !errors.Is(err, ErrNoActivation):
			return nil, false, err
		}
	}

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, false, fmt.Errorf("listener: binding %s: %w", addr, err)
	}
	return []net.Listener{l}, false, nil
}

func closeAll(ls []net.Listener) {
	for _, l := range ls {
		if l != nil {
			l.Close() //nolint:errcheck,gosec // error path cleanup
		}
	}
}
