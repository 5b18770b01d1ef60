package session

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/tonimelisma/patchbay-go/internal/apps"
	"github.com/tonimelisma/patchbay-go/internal/bus"
	"github.com/tonimelisma/patchbay-go/internal/control"
	"github.com/tonimelisma/patchbay-go/internal/patchbay"
	"github.com/tonimelisma/patchbay-go/internal/rooms"
	"github.com/tonimelisma/patchbay-go/internal/vsync"
)

// ErrNoStudio is returned when a view is requested while no studio is
// loaded.
var ErrNoStudio = errors.New("session: no studio loaded")

// Scope identifies the graph a view belongs to.
type Scope struct {
	Object bus.Object
	Room   string // room name, empty for the studio
}

func (s Scope) String() string {
	if s.Room == "" {
		return "studio"
	}

	return "room " + s.Room
}

// Graph groups the mirrors of one graph object.
type Graph struct {
	Scope   Scope
	Mirror  *patchbay.Mirror
	Apps    *apps.List
	Project *rooms.ProjectTracker // nil for the studio
}

// Views is the set of live views handed to Session.Do. It is only valid
// for the duration of the callback.
type Views struct {
	Caller  bus.Caller
	Tracker *control.Tracker
	Studio  *Graph      // nil while no studio is loaded
	Rooms   *rooms.List // nil while no studio is loaded

	rooms map[string]*Graph // keyed by room object path
}

// Graph returns the studio graph when room is empty, otherwise the graph
// of the named room.
func (v *Views) Graph(room string) (*Graph, error) {
	if room == "" {
		if v.Studio == nil {
			return nil, ErrNoStudio
		}

		return v.Studio, nil
	}

	return v.Room(room)
}

// Room returns the views of the room with the given name or object path.
func (v *Views) Room(ref string) (*Graph, error) {
	if v.Rooms == nil {
		return nil, ErrNoStudio
	}

	room, err := v.Rooms.Find(ref)
	if err != nil {
		return nil, err
	}

	g, ok := v.rooms[room.Object]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no views", rooms.ErrUnknownRoom, room.Name)
	}

	return g, nil
}

// RoomGraphs returns the room views sorted by room name.
func (v *Views) RoomGraphs() []*Graph {
	out := slices.Collect(maps.Values(v.rooms))
	slices.SortFunc(out, func(a, b *Graph) int {
		return cmp.Compare(a.Scope.Room, b.Scope.Room)
	})

	return out
}

// collection is the lifecycle shared by mirrors and lists.
type collection interface {
	Name() string
	Active() bool
	Detach(h vsync.Handle) error
	Close() error
	Resync(ctx context.Context, force bool) (bool, error)
}

type activatable[O any] interface {
	collection
	Attach(o O) (vsync.Handle, error)
	Activate(ctx context.Context) error
}

// attached is a collection together with the handles the session holds
// on it.
type attached struct {
	coll    collection
	handles []vsync.Handle
}

// activate attaches observers, or fallback when there are none, and
// activates c. A failed activation is logged; the collection is still
// returned so teardown stays uniform.
func activate[O any](ctx context.Context, c activatable[O], observers []O, fallback O, logger *slog.Logger) *attached {
	if len(observers) == 0 {
		observers = []O{fallback}
	}

	a := &attached{coll: c}

	for _, o := range observers {
		h, err := c.Attach(o)
		if err != nil {
			logger.Error("attaching observer failed",
				slog.String("collection", c.Name()),
				slog.String("error", err.Error()),
			)

			continue
		}

		a.handles = append(a.handles, h)
	}

	if err := c.Activate(ctx); err != nil {
		logger.Error("activating view failed",
			slog.String("collection", c.Name()),
			slog.String("error", err.Error()),
		)
	}

	return a
}

// close detaches the session's handles and closes the collection.
func (a *attached) close(logger *slog.Logger) {
	for _, h := range a.handles {
		if err := a.coll.Detach(h); err != nil {
			logger.Warn("detaching observer failed",
				slog.String("collection", a.coll.Name()),
				slog.String("error", err.Error()),
			)
		}
	}

	a.handles = nil

	if err := a.coll.Close(); err != nil {
		logger.Warn("closing view failed",
			slog.String("collection", a.coll.Name()),
			slog.String("error", err.Error()),
		)
	}
}

// graphViews is a Graph plus the session's bookkeeping for it.
type graphViews struct {
	Graph

	mirror *attached
	apps   *attached
}

func (g *graphViews) collections() []collection {
	return []collection{g.mirror.coll, g.apps.coll}
}

func (g *graphViews) close(logger *slog.Logger) {
	if g.Project != nil {
		g.Project.Stop()
	}

	g.apps.close(logger)
	g.mirror.close(logger)
	liveViews.Dec()
}

// studioViews are the views that exist while a studio is loaded.
type studioViews struct {
	graph    *graphViews
	roomList *rooms.List
	rooms    *attached
	byRoom   map[string]*graphViews // keyed by room object path
}

// roomBuilder follows the studio's room list and builds a graph view per
// room.
type roomBuilder struct {
	s *Session
}

func (b roomBuilder) Cleared() { b.s.teardownRooms() }

func (b roomBuilder) RoomAppeared(r rooms.Room) { b.s.buildRoom(r) }

func (b roomBuilder) RoomDisappeared(r rooms.Room) { b.s.teardownRoom(r.Object) }

// studioListener builds and tears down the studio views as the tracker
// reports the studio coming and going.
type studioListener struct {
	s *Session
}

func (l studioListener) StateChanged(control.State) {}

func (l studioListener) StudioLoaded(string) { l.s.buildStudio() }

func (l studioListener) StudioUnloaded() { l.s.teardownStudio() }

func (l studioListener) StudioRenamed(string) {}

func (l studioListener) DaemonFailed(string) {}

var (
	_ rooms.Observer   = roomBuilder{}
	_ control.Listener = studioListener{}
)
