package bus

import "fmt"

// EventKind discriminates the notifications queued by the Client for the
// event loop.
type EventKind int

// Event kinds.
const (
	EventSignal EventKind = iota
	EventOwner
	EventConnected
	EventReconnected
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventSignal:
		return "signal"
	case EventOwner:
		return "owner"
	case EventConnected:
		return "connected"
	case EventReconnected:
		return "reconnected"
	case EventDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one notification from the bus. Signal is set for EventSignal,
// Service and Present for EventOwner.
type Event struct {
	Kind    EventKind
	Signal  Signal
	Service string
	Present bool
}

// Signal is a push notification emitted by a remote object.
type Signal struct {
	Service   string
	Object    string
	Interface string
	Member    string
	Body      []byte
}

// Decode decodes the signal's positional arguments into v.
func (s Signal) Decode(v any) error {
	if err := DecodeArgs(s.Body, v); err != nil {
		return fmt.Errorf("%s.%s: %w", s.Interface, s.Member, err)
	}

	return nil
}

// NewSignal builds a signal with the given positional arguments.
func NewSignal(obj Object, iface, member string, args ...any) (Signal, error) {
	body, err := EncodeArgs(args...)
	if err != nil {
		return Signal{}, err
	}

	return Signal{
		Service:   obj.Service,
		Object:    obj.Path,
		Interface: iface,
		Member:    member,
		Body:      body,
	}, nil
}

func signalFromFrame(f *Frame) Signal {
	return Signal{
		Service:   f.Service,
		Object:    f.Object,
		Interface: f.Interface,
		Member:    f.Member,
		Body:      f.Body,
	}
}
