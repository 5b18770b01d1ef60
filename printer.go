package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tonimelisma/patchbay-go/internal/apps"
	"github.com/tonimelisma/patchbay-go/internal/config"
	"github.com/tonimelisma/patchbay-go/internal/control"
	"github.com/tonimelisma/patchbay-go/internal/patchbay"
	"github.com/tonimelisma/patchbay-go/internal/rooms"
	"github.com/tonimelisma/patchbay-go/internal/session"
)

// watchEvent is one printed change. It is also the --json line format.
type watchEvent struct {
	Time    time.Time `json:"time"`
	Scope   string    `json:"scope"`
	Event   string    `json:"event"`
	Subject string    `json:"subject,omitempty"`
	Detail  string    `json:"detail,omitempty"`
}

// printer writes the changes seen by the session's observers. All
// callbacks arrive on the event loop; only the hide filter is swapped from
// elsewhere.
type printer struct {
	w       io.Writer
	json    bool
	pal     palette
	hide    atomic.Pointer[config.HideFilter]
	logger  *slog.Logger
	nowFunc func() time.Time
}

func newPrinter(w io.Writer, jsonOut, color bool, logger *slog.Logger) *printer {
	return &printer{
		w:       w,
		json:    jsonOut,
		pal:     newPalette(w, color),
		logger:  logger,
		nowFunc: time.Now,
	}
}

// SetHide replaces the hide filter. A nil filter shows everything.
func (p *printer) SetHide(f *config.HideFilter) {
	p.hide.Store(f)
}

func (p *printer) filter() *config.HideFilter {
	return p.hide.Load()
}

// observers returns the session observers that feed this printer.
func (p *printer) observers() session.Observers {
	return session.Observers{
		Graph: func(sc session.Scope) patchbay.Observer {
			return &graphPrinter{
				p:       p,
				scope:   sc.String(),
				clients: make(map[patchbay.ClientID]string),
				ports:   make(map[patchbay.PortID]patchbay.Port),
			}
		},
		Apps: func(sc session.Scope) apps.Observer {
			return &appsPrinter{p: p, scope: sc.String(), names: make(map[uint64]string)}
		},
		Rooms:   roomsPrinter{p: p},
		Control: controlPrinter{p: p},
		Project: func(sc session.Scope, pr rooms.Project) {
			if pr.Name == "" {
				p.emit(p.pal.Muted, sc.String(), "project", "", "none")
				return
			}

			p.emit(p.pal.Changed, sc.String(), "project", pr.Name, pr.Dir)
		},
	}
}

func (p *printer) emit(style lipgloss.Style, scope, event, subject, detail string) {
	ev := watchEvent{
		Time:    p.nowFunc(),
		Scope:   scope,
		Event:   event,
		Subject: subject,
		Detail:  detail,
	}

	var err error

	if p.json {
		err = json.NewEncoder(p.w).Encode(ev)
	} else {
		line := fmt.Sprintf("%s  %-10s %-11s %s",
			p.pal.Muted.Render(ev.Time.Format("15:04:05")),
			ev.Scope,
			ev.Event,
			ev.Subject,
		)

		if ev.Detail != "" {
			line += "  " + p.pal.Muted.Render(ev.Detail)
		}

		_, err = fmt.Fprintln(p.w, style.Render(line))
	}

	if err != nil {
		p.logger.Debug("writing event failed",
			slog.String("error", err.Error()),
		)
	}
}

// graphPrinter follows one graph. It keeps its own name tables because
// rename and removal callbacks carry ids only.
type graphPrinter struct {
	p       *printer
	scope   string
	clients map[patchbay.ClientID]string
	ports   map[patchbay.PortID]patchbay.Port
}

func (g *graphPrinter) Clear() {
	clear(g.clients)
	clear(g.ports)
	g.p.emit(g.p.pal.Muted, g.scope, "clear", "graph", "")
}

func (g *graphPrinter) ClientAppeared(id patchbay.ClientID, name string) {
	g.clients[id] = name

	if g.p.filter().HiddenClient(name) {
		return
	}

	g.p.emit(g.p.pal.Added, g.scope, "client+", name, "id "+strconv.FormatUint(uint64(id), 10))
}

func (g *graphPrinter) ClientRenamed(id patchbay.ClientID, oldName, newName string) {
	g.clients[id] = newName

	hide := g.p.filter()
	if hide.HiddenClient(oldName) && hide.HiddenClient(newName) {
		return
	}

	g.p.emit(g.p.pal.Changed, g.scope, "client~", newName, "was "+oldName)
}

func (g *graphPrinter) ClientDisappeared(id patchbay.ClientID) {
	name := g.clients[id]
	delete(g.clients, id)

	for pid, port := range g.ports {
		if port.Client == id {
			delete(g.ports, pid)
		}
	}

	if g.p.filter().HiddenClient(name) {
		return
	}

	g.p.emit(g.p.pal.Removed, g.scope, "client-", name, "id "+strconv.FormatUint(uint64(id), 10))
}

func (g *graphPrinter) PortAppeared(port patchbay.Port) {
	g.ports[port.ID] = port

	if g.hidden(port.ID) {
		return
	}

	g.p.emit(g.p.pal.Added, g.scope, "port+", g.label(port.ID), port.Direction.String()+" "+port.Kind.String())
}

func (g *graphPrinter) PortRenamed(_ patchbay.ClientID, id patchbay.PortID, oldName, newName string) {
	port, ok := g.ports[id]
	if !ok {
		return
	}

	wasHidden := g.hidden(id)
	port.Name = newName
	g.ports[id] = port

	if wasHidden && g.hidden(id) {
		return
	}

	g.p.emit(g.p.pal.Changed, g.scope, "port~", g.label(id), "was "+oldName)
}

func (g *graphPrinter) PortDisappeared(_ patchbay.ClientID, id patchbay.PortID) {
	label, hidden := g.label(id), g.hidden(id)
	delete(g.ports, id)

	if hidden {
		return
	}

	g.p.emit(g.p.pal.Removed, g.scope, "port-", label, "")
}

func (g *graphPrinter) PortsConnected(c patchbay.Connection) {
	if g.hidden(c.Port1) || g.hidden(c.Port2) {
		return
	}

	g.p.emit(g.p.pal.Added, g.scope, "connect", g.label(c.Port1)+" -> "+g.label(c.Port2), "")
}

func (g *graphPrinter) PortsDisconnected(c patchbay.Connection) {
	if g.hidden(c.Port1) || g.hidden(c.Port2) {
		return
	}

	g.p.emit(g.p.pal.Removed, g.scope, "disconnect", g.label(c.Port1)+" -> "+g.label(c.Port2), "")
}

func (g *graphPrinter) label(id patchbay.PortID) string {
	port, ok := g.ports[id]
	if !ok {
		return strconv.FormatUint(uint64(id), 10)
	}

	return g.clients[port.Client] + ":" + port.Name
}

func (g *graphPrinter) hidden(id patchbay.PortID) bool {
	port, ok := g.ports[id]
	if !ok {
		return false
	}

	return g.p.filter().HiddenPort(g.clients[port.Client], port.Name)
}

type appsPrinter struct {
	p     *printer
	scope string
	names map[uint64]string
}

func (a *appsPrinter) Cleared() {
	clear(a.names)
	a.p.emit(a.p.pal.Muted, a.scope, "clear", "apps", "")
}

func (a *appsPrinter) AppAdded(app apps.App) {
	a.names[app.ID] = app.Name
	a.p.emit(a.p.pal.Added, a.scope, "app+", app.Name, appDetail(app))
}

func (a *appsPrinter) AppStateChanged(app apps.App) {
	a.names[app.ID] = app.Name
	a.p.emit(a.p.pal.Changed, a.scope, "app~", app.Name, appDetail(app))
}

func (a *appsPrinter) AppRemoved(id uint64) {
	name, ok := a.names[id]
	if !ok {
		name = "id " + strconv.FormatUint(id, 10)
	}

	delete(a.names, id)
	a.p.emit(a.p.pal.Removed, a.scope, "app-", name, "")
}

func appDetail(app apps.App) string {
	return appState(app) + ", level " + string(app.Level)
}

type roomsPrinter struct {
	p *printer
}

func (r roomsPrinter) Cleared() {
	r.p.emit(r.p.pal.Muted, "studio", "clear", "rooms", "")
}

func (r roomsPrinter) RoomAppeared(room rooms.Room) {
	r.p.emit(r.p.pal.Added, "studio", "room+", room.Name, "template "+room.Template)
}

func (r roomsPrinter) RoomDisappeared(room rooms.Room) {
	r.p.emit(r.p.pal.Removed, "studio", "room-", room.Name, "")
}

type controlPrinter struct {
	p *printer
}

func (c controlPrinter) StateChanged(s control.State) {
	c.p.emit(c.p.pal.Muted, "daemon", "state", s.String(), "")
}

func (c controlPrinter) StudioLoaded(name string) {
	c.p.emit(c.p.pal.Added, "daemon", "studio+", name, "")
}

func (c controlPrinter) StudioUnloaded() {
	c.p.emit(c.p.pal.Removed, "daemon", "studio-", "", "")
}

func (c controlPrinter) StudioRenamed(name string) {
	c.p.emit(c.p.pal.Changed, "daemon", "studio~", name, "")
}

func (c controlPrinter) DaemonFailed(msg string) {
	c.p.emit(c.p.pal.Warning, "daemon", "failed", msg, "")
}

var (
	_ patchbay.Observer = (*graphPrinter)(nil)
	_ apps.Observer     = (*appsPrinter)(nil)
	_ rooms.Observer    = roomsPrinter{}
	_ control.Listener  = controlPrinter{}
)
