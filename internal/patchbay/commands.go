package patchbay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/patchbay-go/internal/bus"
)

// DictObjectType selects what a graph dict entry is attached to.
type DictObjectType uint32

// Graph dict object types.
const (
	DictGraph      DictObjectType = 0
	DictClient     DictObjectType = 1
	DictPort       DictObjectType = 2
	DictConnection DictObjectType = 3
)

// Graph commands are fire-and-forget: they return the call outcome but
// never touch the mirror, which changes only when the resulting signals
// arrive. Split and Join are the exception: after a successful call the
// mirror is rebuilt with a forced resync, so they must run on the event
// loop.

// ConnectPorts asks the server to connect two ports.
func (m *Mirror) ConnectPorts(ctx context.Context, p1, p2 PortID) error {
	return m.call(ctx, bus.IfacePatchbay, "ConnectPortsByID", nil, uint64(p1), uint64(p2))
}

// DisconnectPorts asks the server to disconnect two ports.
func (m *Mirror) DisconnectPorts(ctx context.Context, p1, p2 PortID) error {
	return m.call(ctx, bus.IfacePatchbay, "DisconnectPortsByID", nil, uint64(p1), uint64(p2))
}

// RenameClient asks the server to rename a client.
func (m *Mirror) RenameClient(ctx context.Context, id ClientID, name string) error {
	return m.managerCall(ctx, "RenameClient", nil, uint64(id), name)
}

// RenamePort asks the server to rename a port.
func (m *Mirror) RenamePort(ctx context.Context, id PortID, name string) error {
	return m.managerCall(ctx, "RenamePort", nil, uint64(id), name)
}

// MovePort asks the server to move a port to another client.
func (m *Mirror) MovePort(ctx context.Context, port PortID, client ClientID) error {
	return m.managerCall(ctx, "MovePort", nil, uint64(port), uint64(client))
}

// NewClient asks the server to create an empty client and returns its id.
func (m *Mirror) NewClient(ctx context.Context, name string) (ClientID, error) {
	var reply struct {
		_  struct{} `cbor:",toarray"`
		ID uint64
	}

	if err := m.managerCall(ctx, "NewClient", &reply, name); err != nil {
		return 0, err
	}

	return ClientID(reply.ID), nil
}

// Split asks the server to split a client into its capture and playback
// halves, then rebuilds the mirror.
func (m *Mirror) Split(ctx context.Context, id ClientID) error {
	if err := m.managerCall(ctx, "Split", nil, uint64(id)); err != nil {
		return err
	}

	return m.resyncAfter(ctx, "Split")
}

// Join asks the server to merge two clients, then rebuilds the mirror.
func (m *Mirror) Join(ctx context.Context, c1, c2 ClientID) error {
	if err := m.managerCall(ctx, "Join", nil, uint64(c1), uint64(c2)); err != nil {
		return err
	}

	return m.resyncAfter(ctx, "Join")
}

// ClientPID returns the process id behind a client.
func (m *Mirror) ClientPID(ctx context.Context, id ClientID) (int64, error) {
	var reply struct {
		_   struct{} `cbor:",toarray"`
		PID int64
	}

	if err := m.managerCall(ctx, "GetClientPID", &reply, uint64(id)); err != nil {
		return 0, err
	}

	return reply.PID, nil
}

// DictSet stores a key/value pair on a graph object.
func (m *Mirror) DictSet(ctx context.Context, typ DictObjectType, id uint64, key, value string) error {
	return m.dictCall(ctx, "Set", nil, uint32(typ), id, key, value)
}

// DictGet reads a key from a graph object.
func (m *Mirror) DictGet(ctx context.Context, typ DictObjectType, id uint64, key string) (string, error) {
	var reply struct {
		_     struct{} `cbor:",toarray"`
		Value string
	}

	if err := m.dictCall(ctx, "Get", &reply, uint32(typ), id, key); err != nil {
		return "", err
	}

	return reply.Value, nil
}

// DictDrop removes a key from a graph object.
func (m *Mirror) DictDrop(ctx context.Context, typ DictObjectType, id uint64, key string) error {
	return m.dictCall(ctx, "Drop", nil, uint32(typ), id, key)
}

func (m *Mirror) managerCall(ctx context.Context, member string, reply any, args ...any) error {
	if !m.graphManager {
		return fmt.Errorf("%w: %s on %s", ErrUnsupported, member, m.obj.Path)
	}

	return m.call(ctx, bus.IfaceGraphManager, member, reply, args...)
}

func (m *Mirror) dictCall(ctx context.Context, member string, reply any, args ...any) error {
	if !m.graphDict {
		return fmt.Errorf("%w: dict %s on %s", ErrUnsupported, member, m.obj.Path)
	}

	return m.call(ctx, bus.IfaceGraphDict, member, reply, args...)
}

func (m *Mirror) call(ctx context.Context, iface, member string, reply any, args ...any) error {
	if err := m.caller.Call(ctx, m.obj.Method(iface, member), reply, args...); err != nil {
		m.logger.Error("graph call failed",
			slog.String("method", iface+"."+member),
			slog.String("error", err.Error()),
		)

		return fmt.Errorf("patchbay: %s: %w", member, err)
	}

	return nil
}

func (m *Mirror) resyncAfter(ctx context.Context, member string) error {
	if _, err := m.coll.Resync(ctx, true); err != nil {
		return fmt.Errorf("patchbay: resync after %s: %w", member, err)
	}

	return nil
}
