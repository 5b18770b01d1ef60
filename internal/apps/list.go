package apps

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/tonimelisma/patchbay-go/internal/bus"
	"github.com/tonimelisma/patchbay-go/internal/vsync"
)

// App list signals on bus.IfaceAppSupervisor.
const (
	SignalAppAdded        = "AppAdded2"
	SignalAppStateChanged = "AppStateChanged2"
	SignalAppRemoved      = "AppRemoved"
)

type appArgs struct {
	_        struct{} `cbor:",toarray"`
	Version  uint64
	ID       uint64
	Name     string
	Running  bool
	Terminal bool
	Level    string
}

type appRemovedArgs struct {
	_       struct{} `cbor:",toarray"`
	Version uint64
	ID      uint64
}

type listReply struct {
	_       struct{} `cbor:",toarray"`
	Version uint64
	Apps    []snapApp
}

type snapApp struct {
	_        struct{} `cbor:",toarray"`
	ID       uint64
	Name     string
	Running  bool
	Terminal bool
	Level    string
}

// Config configures a List.
type Config struct {
	Object bus.Object
	Caller bus.Caller
	Hooks  bus.Hooks
	Logger *slog.Logger
}

// List is the local replica of one app supervisor. Like the graph mirror
// it is owned by the event loop.
type List struct {
	obj    bus.Object
	caller bus.Caller
	hooks  bus.Hooks
	logger *slog.Logger
	coll   *vsync.Collection[Observer, *listReply]
	apps   map[uint64]*App
}

// New creates an unbound app list for cfg.Object.
func New(cfg Config) *List {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	l := &List{
		obj:    cfg.Object,
		caller: cfg.Caller,
		hooks:  cfg.Hooks,
		logger: logger.With(slog.String("apps", cfg.Object.Path)),
		apps:   make(map[uint64]*App),
	}

	l.coll = vsync.New(vsync.Binding[Observer, *listReply]{
		Name:    "apps:" + cfg.Object.Path,
		Fetch:   l.fetch,
		Reset:   func() { l.apps = make(map[uint64]*App) },
		Rebuild: l.rebuild,
		Clear:   func(o Observer) { o.Cleared() },
		Register: func() error {
			return l.hooks.Register(l.obj, bus.IfaceAppSupervisor, map[string]bus.SignalHandler{
				SignalAppAdded:        l.onAppAdded,
				SignalAppStateChanged: l.onAppStateChanged,
				SignalAppRemoved:      l.onAppRemoved,
			})
		},
		Unregister: func() {
			l.hooks.Unregister(l.obj, bus.IfaceAppSupervisor)
		},
	}, logger)

	return l
}

// Name returns the collection name.
func (l *List) Name() string { return l.coll.Name() }

// Version returns the last accepted list version.
func (l *List) Version() uint64 { return l.coll.Version() }

// Active reports whether the list receives changes.
func (l *List) Active() bool { return l.coll.Active() }

// Attach registers o. Only allowed before Activate.
func (l *List) Attach(o Observer) (vsync.Handle, error) { return l.coll.Attach(o) }

// Detach removes the observer registered under h.
func (l *List) Detach(h vsync.Handle) error { return l.coll.Detach(h) }

// Activate registers the signal hooks and performs a forced resync.
func (l *List) Activate(ctx context.Context) error {
	if err := l.coll.Activate(ctx); err != nil {
		return fmt.Errorf("apps: activating %s: %w", l.obj.Path, err)
	}

	return nil
}

// Close removes the signal hooks once every observer is detached.
func (l *List) Close() error {
	if err := l.coll.Close(); err != nil {
		return fmt.Errorf("apps: closing %s: %w", l.obj.Path, err)
	}

	return nil
}

// Resync rebuilds the list from a GetAll2 snapshot.
func (l *List) Resync(ctx context.Context, force bool) (bool, error) {
	return l.coll.Resync(ctx, force)
}

// Apps returns a copy of the list sorted by id.
func (l *List) Apps() []App {
	out := make([]App, 0, len(l.apps))
	for _, id := range slices.Sorted(maps.Keys(l.apps)) {
		out = append(out, *l.apps[id])
	}

	return out
}

// App returns a copy of the app with id.
func (l *List) App(id uint64) (App, bool) {
	a, ok := l.apps[id]
	if !ok {
		return App{}, false
	}

	return *a, true
}

func (l *List) fetch(ctx context.Context, since uint64) (uint64, *listReply, error) {
	var reply listReply
	if err := l.caller.Call(ctx, l.obj.Method(bus.IfaceAppSupervisor, "GetAll2"), &reply, since); err != nil {
		return 0, nil, err
	}

	return reply.Version, &reply, nil
}

func (l *List) rebuild(r *listReply) {
	for _, sa := range r.Apps {
		app, err := newApp(sa.ID, sa.Name, sa.Running, sa.Terminal, sa.Level)
		if err == nil {
			err = l.add(app)
		}

		if err != nil {
			l.logger.Error("skipping snapshot app",
				slog.Uint64("app_id", sa.ID),
				slog.String("error", err.Error()),
			)

			continue
		}

		l.coll.Broadcast(func(o Observer) { o.AppAdded(*app) })
	}
}

func newApp(id uint64, name string, running, terminal bool, level string) (*App, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("app %d (%s): %w", id, name, err)
	}

	return &App{ID: id, Name: name, Running: running, Terminal: terminal, Level: lvl}, nil
}

func (l *List) add(app *App) error {
	if _, ok := l.apps[app.ID]; ok {
		return fmt.Errorf("%w: app %d", vsync.ErrDuplicate, app.ID)
	}

	l.apps[app.ID] = app

	return nil
}

func (l *List) decode(sig bus.Signal, v any) bool {
	if err := sig.Decode(v); err != nil {
		l.logger.Error("ignoring malformed app signal",
			slog.String("member", sig.Member),
			slog.String("error", err.Error()),
		)

		return false
	}

	return true
}

// onAppAdded applies AppAdded2. An invalid level still consumes the
// version; the app itself is dropped.
func (l *List) onAppAdded(sig bus.Signal) {
	var a appArgs
	if !l.decode(sig, &a) {
		return
	}

	var app *App

	l.coll.Apply(sig.Member, a.Version,
		func() error {
			var err error
			if app, err = newApp(a.ID, a.Name, a.Running, a.Terminal, a.Level); err != nil {
				return err
			}

			return l.add(app)
		},
		func(o Observer) { o.AppAdded(*app) },
	)
}

func (l *List) onAppStateChanged(sig bus.Signal) {
	var a appArgs
	if !l.decode(sig, &a) {
		return
	}

	var app *App

	l.coll.Apply(sig.Member, a.Version,
		func() error {
			next, err := newApp(a.ID, a.Name, a.Running, a.Terminal, a.Level)
			if err != nil {
				return err
			}

			cur, ok := l.apps[a.ID]
			if !ok {
				return fmt.Errorf("%w: %d", ErrUnknownApp, a.ID)
			}

			*cur = *next
			app = cur

			return nil
		},
		func(o Observer) { o.AppStateChanged(*app) },
	)
}

func (l *List) onAppRemoved(sig bus.Signal) {
	var a appRemovedArgs
	if !l.decode(sig, &a) {
		return
	}

	l.coll.Apply(sig.Member, a.Version,
		func() error {
			if _, ok := l.apps[a.ID]; !ok {
				return fmt.Errorf("%w: %d", ErrUnknownApp, a.ID)
			}

			delete(l.apps, a.ID)

			return nil
		},
		func(o Observer) { o.AppRemoved(a.ID) },
	)
}
