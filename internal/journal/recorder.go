package journal

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/tonimelisma/patchbay-go/internal/apps"
	"github.com/tonimelisma/patchbay-go/internal/control"
	"github.com/tonimelisma/patchbay-go/internal/patchbay"
	"github.com/tonimelisma/patchbay-go/internal/rooms"
)

// Source is the collection a recorder is attached to. Observers run after
// the version is committed, so Version is the version of the change being
// recorded. During a resync it is still the pre-resync version.
type Source interface {
	Name() string
	Version() uint64
}

// ControlCollection is the collection name used for presence and studio
// state events. Those carry no version.
const ControlCollection = "control"

// recorder writes events synchronously on the event loop. Write errors are
// logged and never reach the mirror.
type recorder struct {
	j      *Journal
	src    Source
	logger *slog.Logger
}

func (r recorder) record(kind, subject, detail string) {
	ev := Event{
		Collection: r.src.Name(),
		Kind:       kind,
		Version:    r.src.Version(),
		Subject:    subject,
		Detail:     detail,
	}

	if err := r.j.Record(context.Background(), ev); err != nil {
		r.logger.Warn("journal write failed",
			slog.String("collection", ev.Collection),
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
	}
}

// GraphRecorder journals graph mirror changes.
type GraphRecorder struct {
	recorder
}

// NewGraphRecorder creates a patchbay.Observer recording into j.
func NewGraphRecorder(j *Journal, src Source, logger *slog.Logger) *GraphRecorder {
	return &GraphRecorder{recorder{j: j, src: src, logger: orDefault(logger)}}
}

func (g *GraphRecorder) Clear() { g.record("clear", "", "") }

func (g *GraphRecorder) ClientAppeared(id patchbay.ClientID, name string) {
	g.record("client_appeared", clientSubject(id), name)
}

func (g *GraphRecorder) ClientRenamed(id patchbay.ClientID, oldName, newName string) {
	g.record("client_renamed", clientSubject(id), oldName+" -> "+newName)
}

func (g *GraphRecorder) ClientDisappeared(id patchbay.ClientID) {
	g.record("client_disappeared", clientSubject(id), "")
}

func (g *GraphRecorder) PortAppeared(p patchbay.Port) {
	g.record("port_appeared", portSubject(p.ID),
		fmt.Sprintf("%s %s %s", p.Name, p.Direction, p.Kind))
}

func (g *GraphRecorder) PortRenamed(_ patchbay.ClientID, id patchbay.PortID, oldName, newName string) {
	g.record("port_renamed", portSubject(id), oldName+" -> "+newName)
}

func (g *GraphRecorder) PortDisappeared(_ patchbay.ClientID, id patchbay.PortID) {
	g.record("port_disappeared", portSubject(id), "")
}

func (g *GraphRecorder) PortsConnected(c patchbay.Connection) {
	g.record("ports_connected", connSubject(c), "")
}

func (g *GraphRecorder) PortsDisconnected(c patchbay.Connection) {
	g.record("ports_disconnected", connSubject(c), "")
}

// AppsRecorder journals app list changes.
type AppsRecorder struct {
	recorder
}

// NewAppsRecorder creates an apps.Observer recording into j.
func NewAppsRecorder(j *Journal, src Source, logger *slog.Logger) *AppsRecorder {
	return &AppsRecorder{recorder{j: j, src: src, logger: orDefault(logger)}}
}

func (a *AppsRecorder) Cleared() { a.record("clear", "", "") }

func (a *AppsRecorder) AppAdded(app apps.App) {
	a.record("app_added", appSubject(app.ID), appDetail(app))
}

func (a *AppsRecorder) AppStateChanged(app apps.App) {
	a.record("app_state_changed", appSubject(app.ID), appDetail(app))
}

func (a *AppsRecorder) AppRemoved(id uint64) {
	a.record("app_removed", appSubject(id), "")
}

// RoomsRecorder journals room list changes.
type RoomsRecorder struct {
	recorder
}

// NewRoomsRecorder creates a rooms.Observer recording into j.
func NewRoomsRecorder(j *Journal, src Source, logger *slog.Logger) *RoomsRecorder {
	return &RoomsRecorder{recorder{j: j, src: src, logger: orDefault(logger)}}
}

func (r *RoomsRecorder) Cleared() { r.record("clear", "", "") }

func (r *RoomsRecorder) RoomAppeared(room rooms.Room) {
	r.record("room_appeared", room.Object, room.Name+" ("+room.Template+")")
}

func (r *RoomsRecorder) RoomDisappeared(room rooms.Room) {
	r.record("room_disappeared", room.Object, room.Name)
}

// ProjectRecorder journals room project property changes. Its Changed
// method is the onChange callback of a rooms.ProjectTracker.
type ProjectRecorder struct {
	recorder
}

// NewProjectRecorder creates a project recorder for src.
func NewProjectRecorder(j *Journal, src Source, logger *slog.Logger) *ProjectRecorder {
	return &ProjectRecorder{recorder{j: j, src: src, logger: orDefault(logger)}}
}

// Changed records p.
func (r *ProjectRecorder) Changed(p rooms.Project) { r.record("project", p.Name, p.Dir) }

// ControlRecorder journals presence and studio state changes. It
// implements control.Listener.
type ControlRecorder struct {
	recorder
}

type controlSource struct{}

func (controlSource) Name() string { return ControlCollection }
func (controlSource) Version() uint64 { return 0 }

// NewControlRecorder creates a control.Listener recording into j.
func NewControlRecorder(j *Journal, logger *slog.Logger) *ControlRecorder {
	return &ControlRecorder{recorder{j: j, src: controlSource{}, logger: orDefault(logger)}}
}

func (c *ControlRecorder) StateChanged(s control.State) { c.record("state", "", s.String()) }
func (c *ControlRecorder) StudioLoaded(name string) { c.record("studio_loaded", name, "") }
func (c *ControlRecorder) StudioUnloaded() { c.record("studio_unloaded", "", "") }
func (c *ControlRecorder) StudioRenamed(name string) { c.record("studio_renamed", name, "") }
func (c *ControlRecorder) DaemonFailed(msg string) { c.record("daemon_failed", "", msg) }

var (
	_ patchbay.Observer = (*GraphRecorder)(nil)
	_ apps.Observer     = (*AppsRecorder)(nil)
	_ rooms.Observer    = (*RoomsRecorder)(nil)
	_ control.Listener  = (*ControlRecorder)(nil)
)

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}

	return logger
}

func clientSubject(id patchbay.ClientID) string {
	return "client " + strconv.FormatUint(uint64(id), 10)
}

func portSubject(id patchbay.PortID) string {
	return "port " + strconv.FormatUint(uint64(id), 10)
}

func connSubject(c patchbay.Connection) string {
	return fmt.Sprintf("%d:%d -> %d:%d", c.Client1, c.Port1, c.Client2, c.Port2)
}

func appSubject(id uint64) string {
	return "app " + strconv.FormatUint(id, 10)
}

func appDetail(a apps.App) string {
	state := "stopped"
	if a.Running {
		state = "running"
	}

	return fmt.Sprintf("%s %s level=%s", a.Name, state, a.Level)
}
