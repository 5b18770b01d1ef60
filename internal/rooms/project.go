package rooms

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/patchbay-go/internal/bus"
	"github.com/tonimelisma/patchbay-go/internal/vsync"
)

// SignalProjectPropertiesChanged is emitted on bus.IfaceRoom.
const SignalProjectPropertiesChanged = "ProjectPropertiesChanged"

// Project describes the project loaded into a room. An empty Name means no
// project is loaded.
type Project struct {
	Name string `json:"name"`
	Dir  string `json:"dir"`
}

type projectArgs struct {
	_       struct{} `cbor:",toarray"`
	Version uint64
	Name    string
	Dir     string
}

// ProjectTracker follows the project properties of one room. The
// properties carry their own version, gated like any collection version;
// version 0 is never valid.
type ProjectTracker struct {
	obj      bus.Object
	caller   bus.Caller
	hooks    bus.Hooks
	logger   *slog.Logger
	onChange func(Project)

	version uint64
	project Project
	started bool
}

// NewProjectTracker creates a tracker for the room object obj. onChange
// runs on the event loop after every accepted change.
func NewProjectTracker(obj bus.Object, c bus.Caller, h bus.Hooks, logger *slog.Logger, onChange func(Project)) *ProjectTracker {
	if logger == nil {
		logger = slog.Default()
	}

	if onChange == nil {
		onChange = func(Project) {}
	}

	return &ProjectTracker{
		obj:      obj,
		caller:   c,
		hooks:    h,
		logger:   logger.With(slog.String("room", obj.Path)),
		onChange: onChange,
	}
}

// Start registers the signal hook and fetches the current properties. A
// fetch error is returned but the hook stays registered.
func (p *ProjectTracker) Start(ctx context.Context) error {
	if p.started {
		return vsync.ErrActive
	}

	err := p.hooks.Register(p.obj, bus.IfaceRoom, map[string]bus.SignalHandler{
		SignalProjectPropertiesChanged: p.onProjectPropertiesChanged,
	})
	if err != nil {
		return fmt.Errorf("rooms: %s: %w", p.obj.Path, err)
	}

	p.started = true

	return p.Refresh(ctx)
}

// Refresh fetches the current properties and applies them through the
// version gate.
func (p *ProjectTracker) Refresh(ctx context.Context) error {
	var reply projectArgs
	if err := p.caller.Call(ctx, p.obj.Method(bus.IfaceRoom, "GetProjectProperties"), &reply); err != nil {
		p.logger.Error("fetching project properties failed",
			slog.String("error", err.Error()),
		)

		return fmt.Errorf("rooms: GetProjectProperties: %w", err)
	}

	return p.update(reply)
}

// Stop removes the signal hook.
func (p *ProjectTracker) Stop() {
	if !p.started {
		return
	}

	p.hooks.Unregister(p.obj, bus.IfaceRoom)
	p.started = false
}

// Name returns the name the properties are journaled under.
func (p *ProjectTracker) Name() string { return "project:" + p.obj.Path }

// Version returns the last accepted properties version.
func (p *ProjectTracker) Version() uint64 { return p.version }

// Project returns the current project properties.
func (p *ProjectTracker) Project() Project { return p.project }

// LoadProject loads the project in dir into the room.
func (p *ProjectTracker) LoadProject(ctx context.Context, dir string) error {
	return p.call(ctx, "LoadProject", dir)
}

// SaveProject saves the room's project to dir under name.
func (p *ProjectTracker) SaveProject(ctx context.Context, dir, name string) error {
	return p.call(ctx, "SaveProject", dir, name)
}

// UnloadProject unloads the room's project.
func (p *ProjectTracker) UnloadProject(ctx context.Context) error {
	return p.call(ctx, "UnloadProject")
}

func (p *ProjectTracker) onProjectPropertiesChanged(sig bus.Signal) {
	var a projectArgs
	if err := sig.Decode(&a); err != nil {
		p.logger.Error("ignoring malformed project signal",
			slog.String("error", err.Error()),
		)

		return
	}

	if err := p.update(a); err != nil {
		p.logger.Error("ignoring project properties",
			slog.String("error", err.Error()),
		)
	}
}

func (p *ProjectTracker) update(a projectArgs) error {
	if a.Version == 0 {
		return ErrInvalidVersion
	}

	if !vsync.Accept(p.version, a.Version) {
		p.logger.Debug("ignoring stale project properties",
			slog.Uint64("version", a.Version),
			slog.Uint64("local_version", p.version),
		)

		return nil
	}

	p.version = a.Version
	p.project = Project{Name: a.Name, Dir: a.Dir}
	p.onChange(p.project)

	return nil
}

func (p *ProjectTracker) call(ctx context.Context, member string, args ...any) error {
	if err := p.caller.Call(ctx, p.obj.Method(bus.IfaceRoom, member), nil, args...); err != nil {
		p.logger.Error("room call failed",
			slog.String("method", member),
			slog.String("error", err.Error()),
		)

		return fmt.Errorf("rooms: %s: %w", member, err)
	}

	return nil
}
