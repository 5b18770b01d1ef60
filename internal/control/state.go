// Package control tracks whether the session daemon is present on the bus
// and what its studio is doing, and wraps the daemon's control and studio
// calls.
//
// Presence has two detection channels: the bus reports owner changes, and
// while the daemon is gone a fixed-interval poll probes it directly. Either
// channel reporting "appeared" ends the poll.
package control

import "errors"

// ErrNotPresent is returned by operations that need the daemon while it is
// gone.
var ErrNotPresent = errors.New("control: daemon not present")

// State is the studio state as seen from the client.
type State int

// Studio states. Unavailable and Sick both mean the daemon is gone;
// Sick means it went away without announcing a clean exit.
const (
	StateUnknown State = iota
	StateUnloaded
	StateStopped
	StateStarted
	StateCrashed
	StateUnavailable
	StateSick
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateStopped:
		return "stopped"
	case StateStarted:
		return "started"
	case StateCrashed:
		return "crashed"
	case StateUnavailable:
		return "unavailable"
	case StateSick:
		return "sick"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Present reports whether s implies the daemon is reachable.
func (s State) Present() bool {
	switch s {
	case StateUnloaded, StateStopped, StateStarted, StateCrashed:
		return true
	default:
		return false
	}
}

// Listener receives presence and studio notifications on the event loop.
type Listener interface {
	// StateChanged reports every state transition.
	StateChanged(state State)

	// StudioLoaded and StudioUnloaded bracket the lifetime of the studio
	// views. StudioUnloaded also follows a daemon disappearance while a
	// studio was loaded.
	StudioLoaded(name string)
	StudioUnloaded()
	StudioRenamed(name string)

	// DaemonFailed reports a user-visible error.
	DaemonFailed(msg string)
}
