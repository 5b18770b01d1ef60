// Package patchbay mirrors a server-owned routing graph of clients, ports
// and connections. Signals from the graph object are applied through the
// version gate, and snapshot resyncs rebuild the mirror wholesale. Observers
// see every change in the order it was applied.
package patchbay

import (
	"errors"
	"fmt"

	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/patchbay-go/internal/bus"
)

// Sentinel errors for referential inconsistencies and missing interfaces.
var (
	ErrUnknownClient     = errors.New("patchbay: unknown client")
	ErrUnknownPort       = errors.New("patchbay: unknown port")
	ErrUnknownConnection = errors.New("patchbay: unknown connection")
	ErrUnknownPortType   = errors.New("patchbay: unknown port type")
	ErrUnsupported       = errors.New("patchbay: interface not supported by graph")
	ErrMismatch          = bus.ErrMismatch
)

// Port flag bits as sent by the server.
const (
	flagInput      uint32 = 0x1
	flagOutput     uint32 = 0x2
	flagPhysical   uint32 = 0x4
	flagCanMonitor uint32 = 0x8
	flagTerminal   uint32 = 0x10
)

// Port type codes as sent by the server.
const (
	typeAudio uint32 = 0
	typeMIDI  uint32 = 1
)

// ClientID identifies a client within one graph.
type ClientID uint64

// PortID identifies a port within one graph.
type PortID uint64

// Direction is the signal flow direction of a port.
type Direction uint8

// Port directions.
const (
	DirectionOutput Direction = iota
	DirectionInput
)

func (d Direction) String() string {
	if d == DirectionInput {
		return "input"
	}

	return "output"
}

// MarshalText implements encoding.TextMarshaler.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Kind is the signal type a port carries.
type Kind uint8

// Port kinds.
const (
	KindAudio Kind = iota
	KindMIDI
)

func (k Kind) String() string {
	if k == KindMIDI {
		return "midi"
	}

	return "audio"
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Port is one port of a client.
type Port struct {
	ID        PortID    `json:"id"`
	Client    ClientID  `json:"client"`
	Name      string    `json:"name"`
	Direction Direction `json:"direction"`
	Kind      Kind      `json:"kind"`
	Terminal  bool      `json:"terminal"`
	Physical  bool      `json:"physical"`
	Monitor   bool      `json:"monitor"`
}

// Client is one graph client and its ports.
type Client struct {
	ID    ClientID
	Name  string
	Ports map[PortID]*Port
}

// ConnKey is the identity of a connection: the unordered pair of port ids
// stored as (min, max).
type ConnKey struct {
	A PortID
	B PortID
}

// NewConnKey normalizes a port pair into a ConnKey.
func NewConnKey(p1, p2 PortID) ConnKey {
	if p2 < p1 {
		p1, p2 = p2, p1
	}

	return ConnKey{A: p1, B: p2}
}

// Connection is one link between two ports, kept in the order the server
// reported it.
type Connection struct {
	Client1 ClientID `json:"client1"`
	Port1   PortID   `json:"port1"`
	Client2 ClientID `json:"client2"`
	Port2   PortID   `json:"port2"`
	ID      uint64   `json:"id,omitempty"`
}

// Key returns the connection's normalized identity.
func (c Connection) Key() ConnKey {
	return NewConnKey(c.Port1, c.Port2)
}

// decodePort converts the wire flags and type into port attributes.
func decodePort(flags, typ uint32) (Direction, Kind, error) {
	var kind Kind

	switch typ {
	case typeAudio:
		kind = KindAudio
	case typeMIDI:
		kind = KindMIDI
	default:
		return 0, 0, fmt.Errorf("%w: %d", ErrUnknownPortType, typ)
	}

	dir := DirectionOutput
	if flags&flagInput != 0 {
		dir = DirectionInput
	}

	return dir, kind, nil
}

func newPort(client ClientID, id PortID, name string, flags, typ uint32) (*Port, error) {
	dir, kind, err := decodePort(flags, typ)
	if err != nil {
		return nil, err
	}

	return &Port{
		ID:        id,
		Client:    client,
		Name:      normalizeName(name),
		Direction: dir,
		Kind:      kind,
		Terminal:  flags&flagTerminal != 0,
		Physical:  flags&flagPhysical != 0,
		Monitor:   flags&flagCanMonitor != 0,
	}, nil
}

// normalizeName brings names into NFC so lookups by name match regardless
// of how the server composed them.
func normalizeName(name string) string {
	return norm.NFC.String(name)
}

// Flags re-encodes the port attributes into the wire flags word.
func (p *Port) Flags() uint32 {
	var flags uint32

	if p.Direction == DirectionInput {
		flags |= flagInput
	} else {
		flags |= flagOutput
	}

	if p.Physical {
		flags |= flagPhysical
	}

	if p.Monitor {
		flags |= flagCanMonitor
	}

	if p.Terminal {
		flags |= flagTerminal
	}

	return flags
}
