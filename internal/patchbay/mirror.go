package patchbay

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/tonimelisma/patchbay-go/internal/bus"
	"github.com/tonimelisma/patchbay-go/internal/vsync"
)

// Config configures a Mirror.
type Config struct {
	// Object is the graph object on the bus (the studio, a room, or the
	// JACK controller).
	Object bus.Object
	Caller bus.Caller
	Hooks  bus.Hooks

	// GraphManager and GraphDict report whether the object implements the
	// graph manager and graph dict interfaces. Calls into a missing
	// interface fail with ErrUnsupported.
	GraphManager bool
	GraphDict    bool

	Logger *slog.Logger
}

// Mirror is the local replica of one graph. It is owned by the event loop:
// signal handlers, resyncs, commands that trigger a resync, and all read
// accessors must run there.
type Mirror struct {
	obj          bus.Object
	caller       bus.Caller
	hooks        bus.Hooks
	graphManager bool
	graphDict    bool
	logger       *slog.Logger

	coll    *vsync.Collection[Observer, *graphReply]
	clients map[ClientID]*Client
	ports   map[PortID]*Port
	conns   map[ConnKey]Connection
}

// New creates an unbound mirror for cfg.Object. Attach observers, then
// Activate.
func New(cfg Config) *Mirror {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Mirror{
		obj:          cfg.Object,
		caller:       cfg.Caller,
		hooks:        cfg.Hooks,
		graphManager: cfg.GraphManager,
		graphDict:    cfg.GraphDict,
		logger:       logger.With(slog.String("graph", cfg.Object.Path)),
	}
	m.reset()

	m.coll = vsync.New(vsync.Binding[Observer, *graphReply]{
		Name:    "graph:" + cfg.Object.Path,
		Fetch:   m.fetchGraph,
		Reset:   m.reset,
		Rebuild: m.rebuild,
		Clear:   func(o Observer) { o.Clear() },
		Register: func() error {
			return m.hooks.Register(m.obj, bus.IfacePatchbay, m.signalHandlers())
		},
		Unregister: func() {
			m.hooks.Unregister(m.obj, bus.IfacePatchbay)
		},
	}, logger)

	return m
}

// Object returns the bus object this mirror replicates.
func (m *Mirror) Object() bus.Object {
	return m.obj
}

// Name returns the collection name used in logs, metrics and the journal.
func (m *Mirror) Name() string {
	return m.coll.Name()
}

// Version returns the last accepted graph version.
func (m *Mirror) Version() uint64 {
	return m.coll.Version()
}

// Active reports whether the mirror receives changes.
func (m *Mirror) Active() bool {
	return m.coll.Active()
}

// Stats returns the mirror's gate and resync counters.
func (m *Mirror) Stats() vsync.Stats {
	return m.coll.Stats()
}

// Attach registers o. Only allowed before Activate.
func (m *Mirror) Attach(o Observer) (vsync.Handle, error) {
	return m.coll.Attach(o)
}

// Detach removes the observer registered under h.
func (m *Mirror) Detach(h vsync.Handle) error {
	return m.coll.Detach(h)
}

// Activate registers the signal hooks and performs a forced resync.
func (m *Mirror) Activate(ctx context.Context) error {
	if err := m.coll.Activate(ctx); err != nil {
		return fmt.Errorf("patchbay: activating %s: %w", m.obj.Path, err)
	}

	return nil
}

// Close removes the signal hooks. Fails with vsync.ErrObserversAttached
// while observers are attached.
func (m *Mirror) Close() error {
	if err := m.coll.Close(); err != nil {
		return fmt.Errorf("patchbay: closing %s: %w", m.obj.Path, err)
	}

	return nil
}

// Resync fetches the graph snapshot and rebuilds the mirror from it. See
// vsync.Collection.Resync for the force semantics.
func (m *Mirror) Resync(ctx context.Context, force bool) (bool, error) {
	return m.coll.Resync(ctx, force)
}

// Client returns a copy of the client with id.
func (m *Mirror) Client(id ClientID) (ClientSnapshot, bool) {
	c, ok := m.clients[id]
	if !ok {
		return ClientSnapshot{}, false
	}

	return snapshotClient(c), true
}

// Port returns a copy of the port with id.
func (m *Mirror) Port(id PortID) (Port, bool) {
	p, ok := m.ports[id]
	if !ok {
		return Port{}, false
	}

	return *p, true
}

// Connected reports whether the two ports are connected, in either order.
func (m *Mirror) Connected(p1, p2 PortID) bool {
	_, ok := m.conns[NewConnKey(p1, p2)]

	return ok
}

// Len returns the number of clients, ports and connections.
func (m *Mirror) Len() (clients, ports, conns int) {
	return len(m.clients), len(m.ports), len(m.conns)
}

func (m *Mirror) reset() {
	m.clients = make(map[ClientID]*Client)
	m.ports = make(map[PortID]*Port)
	m.conns = make(map[ConnKey]Connection)
}

// ---------------------------------------------------------------------------
// Mutations. Each returns an error when the change does not fit the
// current state; the mirror is left untouched in that case.
// ---------------------------------------------------------------------------

func (m *Mirror) addClient(id ClientID, name string) error {
	if _, ok := m.clients[id]; ok {
		return fmt.Errorf("%w: client %d", vsync.ErrDuplicate, id)
	}

	m.clients[id] = &Client{
		ID:    id,
		Name:  normalizeName(name),
		Ports: make(map[PortID]*Port),
	}

	return nil
}

func (m *Mirror) renameClient(id ClientID, name string) (string, error) {
	c, ok := m.clients[id]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownClient, id)
	}

	old := c.Name
	c.Name = normalizeName(name)

	return old, nil
}

// removeClient deletes a client, first removing its remaining ports and
// their connections with synthetic notifications.
func (m *Mirror) removeClient(id ClientID) error {
	c, ok := m.clients[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownClient, id)
	}

	for _, portID := range slices.Sorted(maps.Keys(c.Ports)) {
		m.logger.Warn("client disappeared with ports attached",
			slog.Uint64("client_id", uint64(id)),
			slog.Uint64("port_id", uint64(portID)),
		)

		m.dropPort(c, portID)
		m.coll.Broadcast(func(o Observer) { o.PortDisappeared(id, portID) })
	}

	delete(m.clients, id)

	return nil
}

func (m *Mirror) addPort(p *Port) error {
	c, ok := m.clients[p.Client]
	if !ok {
		return fmt.Errorf("%w: %d (port %d)", ErrUnknownClient, p.Client, p.ID)
	}

	if _, ok := m.ports[p.ID]; ok {
		return fmt.Errorf("%w: port %d", vsync.ErrDuplicate, p.ID)
	}

	c.Ports[p.ID] = p
	m.ports[p.ID] = p

	return nil
}

func (m *Mirror) lookupPort(client ClientID, id PortID) (*Client, *Port, error) {
	c, ok := m.clients[client]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnknownClient, client)
	}

	p, ok := c.Ports[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %d of client %d", ErrUnknownPort, id, client)
	}

	return c, p, nil
}

func (m *Mirror) renamePort(client ClientID, id PortID, name string) (string, error) {
	_, p, err := m.lookupPort(client, id)
	if err != nil {
		return "", err
	}

	old := p.Name
	p.Name = normalizeName(name)

	return old, nil
}

func (m *Mirror) removePort(client ClientID, id PortID) error {
	c, _, err := m.lookupPort(client, id)
	if err != nil {
		return err
	}

	m.dropPort(c, id)

	return nil
}

// dropPort removes a port and disconnects it, notifying observers of every
// connection it still had.
func (m *Mirror) dropPort(c *Client, id PortID) {
	var keys []ConnKey

	for key := range m.conns {
		if key.A == id || key.B == id {
			keys = append(keys, key)
		}
	}

	slices.SortFunc(keys, compareConnKeys)

	for _, key := range keys {
		conn := m.conns[key]
		delete(m.conns, key)
		m.coll.Broadcast(func(o Observer) { o.PortsDisconnected(conn) })
	}

	delete(c.Ports, id)
	delete(m.ports, id)
}

// connect records a connection. Client ids are taken from the mirror, not
// from the signal.
func (m *Mirror) connect(p1, p2 PortID, id uint64) (Connection, error) {
	port1, ok := m.ports[p1]
	if !ok {
		return Connection{}, fmt.Errorf("%w: %d", ErrUnknownPort, p1)
	}

	port2, ok := m.ports[p2]
	if !ok {
		return Connection{}, fmt.Errorf("%w: %d", ErrUnknownPort, p2)
	}

	key := NewConnKey(p1, p2)
	if _, ok := m.conns[key]; ok {
		return Connection{}, fmt.Errorf("%w: connection %d-%d", vsync.ErrDuplicate, key.A, key.B)
	}

	conn := Connection{
		Client1: port1.Client,
		Port1:   p1,
		Client2: port2.Client,
		Port2:   p2,
		ID:      id,
	}
	m.conns[key] = conn

	return conn, nil
}

func (m *Mirror) disconnect(p1, p2 PortID) (Connection, error) {
	key := NewConnKey(p1, p2)

	conn, ok := m.conns[key]
	if !ok {
		return Connection{}, fmt.Errorf("%w: %d-%d", ErrUnknownConnection, key.A, key.B)
	}

	delete(m.conns, key)

	return conn, nil
}

func compareConnKeys(a, b ConnKey) int {
	if c := cmp.Compare(a.A, b.A); c != 0 {
		return c
	}

	return cmp.Compare(a.B, b.B)
}
