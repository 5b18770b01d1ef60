package patchbay

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Snapshot is a point-in-time copy of a mirror, safe to hand to other
// goroutines. Clients, ports and connections are sorted by id.
type Snapshot struct {
	Object      string           `json:"object"`
	Version     uint64           `json:"version"`
	Clients     []ClientSnapshot `json:"clients"`
	Connections []Connection     `json:"connections"`
}

// ClientSnapshot is a copy of one client.
type ClientSnapshot struct {
	ID    ClientID `json:"id"`
	Name  string   `json:"name"`
	Ports []Port   `json:"ports"`
}

// Snapshot copies the current mirror state.
func (m *Mirror) Snapshot() Snapshot {
	s := Snapshot{
		Object:  m.obj.Path,
		Version: m.coll.Version(),
	}

	for _, id := range slices.Sorted(maps.Keys(m.clients)) {
		s.Clients = append(s.Clients, snapshotClient(m.clients[id]))
	}

	for _, key := range slices.SortedFunc(maps.Keys(m.conns), compareConnKeys) {
		s.Connections = append(s.Connections, m.conns[key])
	}

	return s
}

func snapshotClient(c *Client) ClientSnapshot {
	cs := ClientSnapshot{ID: c.ID, Name: c.Name}

	for _, id := range slices.Sorted(maps.Keys(c.Ports)) {
		cs.Ports = append(cs.Ports, *c.Ports[id])
	}

	return cs
}

// FindClient resolves a client by numeric id or by name.
func (s Snapshot) FindClient(ref string) (ClientSnapshot, error) {
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		for _, c := range s.Clients {
			if c.ID == ClientID(id) {
				return c, nil
			}
		}
	}

	name := normalizeName(ref)

	for _, c := range s.Clients {
		if c.Name == name {
			return c, nil
		}
	}

	return ClientSnapshot{}, fmt.Errorf("%w: %q", ErrUnknownClient, ref)
}

// FindPort resolves a port by numeric id or by "client:port" name. Port
// names may themselves contain colons; the client name is matched first.
func (s Snapshot) FindPort(ref string) (Port, error) {
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		for _, c := range s.Clients {
			for _, p := range c.Ports {
				if p.ID == PortID(id) {
					return p, nil
				}
			}
		}
	}

	ref = normalizeName(ref)

	for _, c := range s.Clients {
		portName, ok := strings.CutPrefix(ref, c.Name+":")
		if !ok {
			continue
		}

		for _, p := range c.Ports {
			if p.Name == portName {
				return p, nil
			}
		}
	}

	return Port{}, fmt.Errorf("%w: %q", ErrUnknownPort, ref)
}

// PortPath returns "client/port" for a port, the path form matched by view
// filters.
func (s Snapshot) PortPath(p Port) string {
	for _, c := range s.Clients {
		if c.ID == p.Client {
			return c.Name + "/" + p.Name
		}
	}

	return strconv.FormatUint(uint64(p.Client), 10) + "/" + p.Name
}
