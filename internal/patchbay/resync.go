package patchbay

import (
	"context"
	"log/slog"

	"github.com/tonimelisma/patchbay-go/internal/bus"
)

// graphReply is the GetGraph reply: version, clients with their ports, and
// connections, all in server order.
type graphReply struct {
	_           struct{} `cbor:",toarray"`
	Version     uint64
	Clients     []snapClient
	Connections []snapConnection
}

type snapClient struct {
	_     struct{} `cbor:",toarray"`
	ID    uint64
	Name  string
	Ports []snapPort
}

type snapPort struct {
	_     struct{} `cbor:",toarray"`
	ID    uint64
	Name  string
	Flags uint32
	Type  uint32
}

type snapConnection struct {
	_            struct{} `cbor:",toarray"`
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

func (m *Mirror) fetchGraph(ctx context.Context, since uint64) (uint64, *graphReply, error) {
	var reply graphReply
	if err := m.caller.Call(ctx, m.obj.Method(bus.IfacePatchbay, "GetGraph"), &reply, since); err != nil {
		return 0, nil, err
	}

	return reply.Version, &reply, nil
}

// rebuild populates the (already reset) mirror from a snapshot, emitting
// synthetic appeared and connected events in server order. Entries that do
// not fit are logged and skipped.
func (m *Mirror) rebuild(g *graphReply) {
	for _, sc := range g.Clients {
		id := ClientID(sc.ID)
		if err := m.addClient(id, sc.Name); err != nil {
			m.logger.Warn("skipping snapshot client",
				slog.Uint64("client_id", sc.ID),
				slog.String("error", err.Error()),
			)

			continue
		}

		name := m.clients[id].Name
		m.coll.Broadcast(func(o Observer) { o.ClientAppeared(id, name) })

		for _, sp := range sc.Ports {
			m.rebuildPort(id, sp)
		}
	}

	for _, sc := range g.Connections {
		conn, err := m.connect(PortID(sc.Port1), PortID(sc.Port2), sc.ConnectionID)
		if err != nil {
			m.logger.Error("skipping snapshot connection",
				slog.Uint64("port1", sc.Port1),
				slog.Uint64("port2", sc.Port2),
				slog.String("error", err.Error()),
			)

			continue
		}

		m.coll.Broadcast(func(o Observer) { o.PortsConnected(conn) })
	}
}

func (m *Mirror) rebuildPort(client ClientID, sp snapPort) {
	port, err := newPort(client, PortID(sp.ID), sp.Name, sp.Flags, sp.Type)
	if err == nil {
		err = m.addPort(port)
	}

	if err != nil {
		m.logger.Error("skipping snapshot port",
			slog.Uint64("client_id", uint64(client)),
			slog.Uint64("port_id", sp.ID),
			slog.String("error", err.Error()),
		)

		return
	}

	m.coll.Broadcast(func(o Observer) { o.PortAppeared(*port) })
}
