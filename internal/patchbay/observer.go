package patchbay

// Observer receives graph changes in the order the mirror applied them.
// Callbacks run on the event loop and must not block.
type Observer interface {
	Clear()
	ClientAppeared(id ClientID, name string)
	ClientRenamed(id ClientID, oldName, newName string)
	ClientDisappeared(id ClientID)
	PortAppeared(port Port)
	PortRenamed(client ClientID, id PortID, oldName, newName string)
	PortDisappeared(client ClientID, id PortID)
	PortsConnected(conn Connection)
	PortsDisconnected(conn Connection)
}

// NopObserver ignores every change. Embed it to implement only some
// callbacks.
type NopObserver struct{}

func (NopObserver) Clear() {}
func (NopObserver) ClientAppeared(ClientID, string) {}
func (NopObserver) ClientRenamed(ClientID, string, string) {}
func (NopObserver) ClientDisappeared(ClientID) {}
func (NopObserver) PortAppeared(Port) {}
func (NopObserver) PortRenamed(ClientID, PortID, string, string) {}
func (NopObserver) PortDisappeared(ClientID, PortID) {}
func (NopObserver) PortsConnected(Connection) {}
func (NopObserver) PortsDisconnected(Connection) {}
