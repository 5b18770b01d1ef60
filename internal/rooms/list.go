package rooms

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

// Room list signals on bus.IfaceStudio.
const (
	SignalRoomAppeared    = "RoomAppeared"
	SignalRoomDisappeared = "RoomDisappeared"
)

type roomAppearedArgs struct {
	_        struct{} `cbor:",toarray"`
	Version  uint64
	Object   string
	Name     string
	Template string
}

type roomDisappearedArgs struct {
	_       struct{} `cbor:",toarray"`
	Version uint64
	Object  string
	Name    string
}

type listReply struct {
	_       struct{} `cbor:",toarray"`
	Version uint64
	Rooms   []snapRoom
}

type snapRoom struct {
	_        struct{} `cbor:",toarray"`
	Object   string
	Name     string
	Template string
}

// Config configures a List.
type Config struct {
	// Object is the studio object.
	Object bus.Object
	Caller bus.Caller
	Hooks  bus.Hooks

	// StudioHandlers are registered together with the room signals.
	// Studio state signals share bus.IfaceStudio with the room list, so
	// whoever tracks studio state hands its handlers in here.
	StudioHandlers map[string]bus.SignalHandler

	Logger *slog.Logger
}

// List is the local replica of the studio's room list. Owned by the event
// loop.
type List struct {
	obj    bus.Object
	caller bus.Caller
	hooks  bus.Hooks
	extra  map[string]bus.SignalHandler
	logger *slog.Logger
	coll   *vsync.Collection[Observer, *listReply]
	rooms  map[string]Room
}

// New creates an unbound room list for the studio object cfg.Object.
func New(cfg Config) *List {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	l := &List{
		obj:    cfg.Object,
		caller: cfg.Caller,
		hooks:  cfg.Hooks,
		extra:  cfg.StudioHandlers,
		logger: logger.With(slog.String("rooms", cfg.Object.Path)),
		rooms:  make(map[string]Room),
	}

	l.coll = vsync.New(vsync.Binding[Observer, *listReply]{
		Name:       "rooms:" + cfg.Object.Path,
		Fetch:      l.fetch,
		Reset:      func() { l.rooms = make(map[string]Room) },
		Rebuild:    l.rebuild,
		Clear:      func(o Observer) { o.Cleared() },
		Register:   l.register,
		Unregister: func() { l.hooks.Unregister(l.obj, bus.IfaceStudio) },
	}, logger)

	return l
}

func (l *List) register() error {
	handlers := make(map[string]bus.SignalHandler, len(l.extra)+2)
	maps.Copy(handlers, l.extra)
	handlers[SignalRoomAppeared] = l.onRoomAppeared
	handlers[SignalRoomDisappeared] = l.onRoomDisappeared

	return l.hooks.Register(l.obj, bus.IfaceStudio, handlers)
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
		return fmt.Errorf("rooms: activating: %w", err)
	}

	return nil
}

// Close removes the signal hooks once every observer is detached.
func (l *List) Close() error {
	if err := l.coll.Close(); err != nil {
		return fmt.Errorf("rooms: closing: %w", err)
	}

	return nil
}

// Resync rebuilds the list from a GetRoomList snapshot.
func (l *List) Resync(ctx context.Context, force bool) (bool, error) {
	return l.coll.Resync(ctx, force)
}

// Rooms returns the rooms sorted by name.
func (l *List) Rooms() []Room {
	out := slices.Collect(maps.Values(l.rooms))
	slices.SortFunc(out, func(a, b Room) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.Object, b.Object))
	})

	return out
}

// Find returns the room with the given name or object path.
func (l *List) Find(ref string) (Room, error) {
	if r, ok := l.rooms[ref]; ok {
		return r, nil
	}

	for _, r := range l.rooms {
		if r.Name == ref {
			return r, nil
		}
	}

	return Room{}, fmt.Errorf("%w: %q", ErrUnknownRoom, ref)
}

func (l *List) fetch(ctx context.Context, since uint64) (uint64, *listReply, error) {
	var reply listReply
	if err := l.caller.Call(ctx, l.obj.Method(bus.IfaceStudio, "GetRoomList"), &reply, since); err != nil {
		return 0, nil, err
	}

	return reply.Version, &reply, nil
}

func (l *List) rebuild(r *listReply) {
	for _, sr := range r.Rooms {
		room := Room{Object: sr.Object, Name: sr.Name, Template: sr.Template}
		if err := l.add(room); err != nil {
			l.logger.Error("skipping snapshot room",
				slog.String("object", sr.Object),
				slog.String("error", err.Error()),
			)

			continue
		}

		l.coll.Broadcast(func(o Observer) { o.RoomAppeared(room) })
	}
}

func (l *List) add(room Room) error {
	if _, ok := l.rooms[room.Object]; ok {
		return fmt.Errorf("%w: room %s", vsync.ErrDuplicate, room.Object)
	}

	l.rooms[room.Object] = room

	return nil
}

func (l *List) decode(sig bus.Signal, v any) bool {
	if err := sig.Decode(v); err != nil {
		l.logger.Error("ignoring malformed room signal",
			slog.String("member", sig.Member),
			slog.String("error", err.Error()),
		)

		return false
	}

	return true
}

func (l *List) onRoomAppeared(sig bus.Signal) {
	var a roomAppearedArgs
	if !l.decode(sig, &a) {
		return
	}

	room := Room{Object: a.Object, Name: a.Name, Template: a.Template}

	l.coll.Apply(sig.Member, a.Version,
		func() error { return l.add(room) },
		func(o Observer) { o.RoomAppeared(room) },
	)
}

func (l *List) onRoomDisappeared(sig bus.Signal) {
	var a roomDisappearedArgs
	if !l.decode(sig, &a) {
		return
	}

	var room Room

	l.coll.Apply(sig.Member, a.Version,
		func() error {
			r, ok := l.rooms[a.Object]
			if !ok {
				return fmt.Errorf("%w: %s (%s)", ErrUnknownRoom, a.Object, a.Name)
			}

			delete(l.rooms, a.Object)
			room = r

			return nil
		},
		func(o Observer) { o.RoomDisappeared(room) },
	)
}
