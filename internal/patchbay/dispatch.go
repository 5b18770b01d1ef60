package patchbay

import (
	"fmt"
	"log/slog"

	"github.com/tonimelisma/patchbay-go/internal/bus"
)

// Graph change signals on bus.IfacePatchbay.
const (
	SignalClientAppeared    = "ClientAppeared"
	SignalClientRenamed     = "ClientRenamed"
	SignalClientDisappeared = "ClientDisappeared"
	SignalPortAppeared      = "PortAppeared"
	SignalPortRenamed       = "PortRenamed"
	SignalPortDisappeared   = "PortDisappeared"
	SignalPortsConnected    = "PortsConnected"
	SignalPortsDisconnected = "PortsDisconnected"
)

type clientAppearedArgs struct {
	_        struct{} `cbor:",toarray"`
	Version  uint64
	ClientID uint64
	Name     string
}

type clientRenamedArgs struct {
	_        struct{} `cbor:",toarray"`
	Version  uint64
	ClientID uint64
	OldName  string
	NewName  string
}

type clientDisappearedArgs struct {
	_        struct{} `cbor:",toarray"`
	Version  uint64
	ClientID uint64
	Name     string
}

type portAppearedArgs struct {
	_          struct{} `cbor:",toarray"`
	Version    uint64
	ClientID   uint64
	ClientName string
	PortID     uint64
	PortName   string
	Flags      uint32
	Type       uint32
}

type portRenamedArgs struct {
	_          struct{} `cbor:",toarray"`
	Version    uint64
	ClientID   uint64
	ClientName string
	PortID     uint64
	OldName    string
	NewName    string
}

type portDisappearedArgs struct {
	_          struct{} `cbor:",toarray"`
	Version    uint64
	ClientID   uint64
	ClientName string
	PortID     uint64
	PortName   string
}

type connectionArgs struct {
	_            struct{} `cbor:",toarray"`
	Version      uint64
	Client1      uint64
	Client1Name  string
	Port1        uint64
	Port1Name    string
	Client2      uint64
	Client2Name  string
	Port2        uint64
	Port2Name    string
	ConnectionID uint64
}

func (m *Mirror) signalHandlers() map[string]bus.SignalHandler {
	return map[string]bus.SignalHandler{
		SignalClientAppeared:    m.onClientAppeared,
		SignalClientRenamed:     m.onClientRenamed,
		SignalClientDisappeared: m.onClientDisappeared,
		SignalPortAppeared:      m.onPortAppeared,
		SignalPortRenamed:       m.onPortRenamed,
		SignalPortDisappeared:   m.onPortDisappeared,
		SignalPortsConnected:    m.onPortsConnected,
		SignalPortsDisconnected: m.onPortsDisconnected,
	}
}

// decode parses a signal body. Malformed signals are logged and dropped
// before they reach the version gate.
func (m *Mirror) decode(sig bus.Signal, v any) bool {
	if err := sig.Decode(v); err != nil {
		m.logger.Error("ignoring malformed graph signal",
			slog.String("member", sig.Member),
			slog.String("error", err.Error()),
		)

		return false
	}

	return true
}

func (m *Mirror) onClientAppeared(sig bus.Signal) {
	var a clientAppearedArgs
	if !m.decode(sig, &a) {
		return
	}

	id := ClientID(a.ClientID)
	name := normalizeName(a.Name)

	m.coll.Apply(sig.Member, a.Version,
		func() error { return m.addClient(id, name) },
		func(o Observer) { o.ClientAppeared(id, name) },
	)
}

func (m *Mirror) onClientRenamed(sig bus.Signal) {
	var a clientRenamedArgs
	if !m.decode(sig, &a) {
		return
	}

	id := ClientID(a.ClientID)
	name := normalizeName(a.NewName)

	var old string

	m.coll.Apply(sig.Member, a.Version,
		func() error {
			var err error
			old, err = m.renameClient(id, name)

			return err
		},
		func(o Observer) { o.ClientRenamed(id, old, name) },
	)
}

func (m *Mirror) onClientDisappeared(sig bus.Signal) {
	var a clientDisappearedArgs
	if !m.decode(sig, &a) {
		return
	}

	id := ClientID(a.ClientID)

	m.coll.Apply(sig.Member, a.Version,
		func() error { return m.removeClient(id) },
		func(o Observer) { o.ClientDisappeared(id) },
	)
}

func (m *Mirror) onPortAppeared(sig bus.Signal) {
	var a portAppearedArgs
	if !m.decode(sig, &a) {
		return
	}

	var port *Port

	// An unknown port type still consumes the version, like an invalid app
	// level: the server has moved past it either way.
	m.coll.Apply(sig.Member, a.Version,
		func() error {
			var err error

			port, err = newPort(ClientID(a.ClientID), PortID(a.PortID), a.PortName, a.Flags, a.Type)
			if err != nil {
				return fmt.Errorf("port %d: %w", a.PortID, err)
			}

			return m.addPort(port)
		},
		func(o Observer) { o.PortAppeared(*port) },
	)
}

func (m *Mirror) onPortRenamed(sig bus.Signal) {
	var a portRenamedArgs
	if !m.decode(sig, &a) {
		return
	}

	client := ClientID(a.ClientID)
	id := PortID(a.PortID)
	name := normalizeName(a.NewName)

	var old string

	m.coll.Apply(sig.Member, a.Version,
		func() error {
			var err error
			old, err = m.renamePort(client, id, name)

			return err
		},
		func(o Observer) { o.PortRenamed(client, id, old, name) },
	)
}

func (m *Mirror) onPortDisappeared(sig bus.Signal) {
	var a portDisappearedArgs
	if !m.decode(sig, &a) {
		return
	}

	client := ClientID(a.ClientID)
	id := PortID(a.PortID)

	m.coll.Apply(sig.Member, a.Version,
		func() error { return m.removePort(client, id) },
		func(o Observer) { o.PortDisappeared(client, id) },
	)
}

func (m *Mirror) onPortsConnected(sig bus.Signal) {
	var a connectionArgs
	if !m.decode(sig, &a) {
		return
	}

	var conn Connection

	m.coll.Apply(sig.Member, a.Version,
		func() error {
			var err error
			conn, err = m.connect(PortID(a.Port1), PortID(a.Port2), a.ConnectionID)

			return err
		},
		func(o Observer) { o.PortsConnected(conn) },
	)
}

func (m *Mirror) onPortsDisconnected(sig bus.Signal) {
	var a connectionArgs
	if !m.decode(sig, &a) {
		return
	}

	var conn Connection

	m.coll.Apply(sig.Member, a.Version,
		func() error {
			var err error
			conn, err = m.disconnect(PortID(a.Port1), PortID(a.Port2))

			return err
		},
		func(o Observer) { o.PortsDisconnected(conn) },
	)
}
