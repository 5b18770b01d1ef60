package session

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/patchbay-go/internal/apps"
	"github.com/tonimelisma/patchbay-go/internal/bus"
	"github.com/tonimelisma/patchbay-go/internal/control"
	"github.com/tonimelisma/patchbay-go/internal/journal"
	"github.com/tonimelisma/patchbay-go/internal/patchbay"
	"github.com/tonimelisma/patchbay-go/internal/rooms"
)

// Bus is the transport the session drives. Satisfied by *bus.Client.
type Bus interface {
	bus.Caller
	Run(ctx context.Context) error
	Events() <-chan bus.Event
}

// Observers are attached to the views the session builds. Every field is
// optional. The factories are called once per view, on the event loop.
type Observers struct {
	Graph   func(Scope) patchbay.Observer
	Apps    func(Scope) apps.Observer
	Rooms   rooms.Observer
	Control control.Listener
	Project func(Scope, rooms.Project)
}

// Config configures a Session.
type Config struct {
	Bus          Bus
	PollInterval time.Duration

	// Journal, when set, gets a recorder attached to every view.
	Journal *journal.Journal

	Observers Observers
	Logger    *slog.Logger
}

// Session owns the event loop and every view. Views exist only while the
// session daemon reports a loaded studio.
type Session struct {
	bus     Bus
	router  *bus.Router
	loop    *Loop
	tracker *control.Tracker
	journal *journal.Journal
	obs     Observers
	logger  *slog.Logger

	// ctx is the loop context. Set by Run before the loop starts.
	ctx context.Context

	ready   chan struct{}
	started bool
	studio  *studioViews
}

// New creates a Session. Nothing happens until Run.
func New(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		bus:     cfg.Bus,
		router:  bus.NewRouter(logger),
		loop:    NewLoop(logger),
		journal: cfg.Journal,
		obs:     cfg.Observers,
		logger:  logger,
		ctx:     context.Background(),
		ready:   make(chan struct{}),
	}

	s.tracker = control.NewTracker(control.TrackerConfig{
		Caller:       cfg.Bus,
		Hooks:        s.router,
		Post:         func(fn func()) { s.loop.Post(fn) },
		PollInterval: cfg.PollInterval,
		Logger:       logger,
	})

	// Views must exist before outside listeners hear about the studio.
	s.tracker.AddListener(studioListener{s: s})

	if s.journal != nil {
		s.tracker.AddListener(journal.NewControlRecorder(s.journal, logger))
	}

	if s.obs.Control != nil {
		s.tracker.AddListener(s.obs.Control)
	}

	s.router.WatchService(bus.ServiceLadish, func(present bool) {
		s.tracker.ServiceChanged(s.ctx, present)
	})

	return s
}

// Run connects the bus and runs the event loop until ctx is canceled.
// Views are torn down before Run returns.
func (s *Session) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	s.ctx = gctx

	g.Go(func() error {
		return s.bus.Run(gctx)
	})

	g.Go(func() error {
		err := s.loop.Run(gctx, s.bus.Events(), s.handle)
		s.shutdown()

		return err
	})

	return g.Wait()
}

// Ready is closed once the first connection has been made and the
// daemon probed. Views built by that probe exist when Ready closes.
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

// Done is closed when the event loop stops.
func (s *Session) Done() <-chan struct{} {
	return s.loop.Done()
}

// Do runs fn on the event loop with the current views.
func (s *Session) Do(ctx context.Context, fn func(v *Views) error) error {
	return s.loop.Do(ctx, func() error {
		return fn(s.views())
	})
}

func (s *Session) views() *Views {
	v := &Views{
		Caller:  s.bus,
		Tracker: s.tracker,
		rooms:   make(map[string]*Graph),
	}

	if s.studio == nil {
		return v
	}

	v.Studio = &s.studio.graph.Graph
	v.Rooms = s.studio.roomList

	for path, g := range s.studio.byRoom {
		v.rooms[path] = &g.Graph
	}

	return v
}

func (s *Session) handle(ev bus.Event) {
	loopEvents.WithLabelValues(ev.Kind.String()).Inc()

	switch ev.Kind {
	case bus.EventConnected:
		s.connected()
	case bus.EventReconnected:
		s.reconnected()
	case bus.EventDisconnected:
		s.logger.Warn("bus connection lost, views kept until reconnect")
	default:
		s.router.Dispatch(ev)
	}
}

func (s *Session) connected() {
	if s.started {
		s.reconnected()
		return
	}

	s.started = true

	if err := s.tracker.Start(s.ctx); err != nil {
		s.logger.Error("starting presence tracker",
			slog.String("error", err.Error()),
		)
	}

	close(s.ready)
}

// reconnected catches up on whatever was missed while the transport was
// down: the studio state is probed again and every surviving view is
// force-resynced.
func (s *Session) reconnected() {
	s.logger.Info("bus reconnected, resynchronizing views")

	before := s.collections()
	projects := s.projects()

	s.tracker.Reprobe(s.ctx)

	for _, c := range before {
		if !c.Active() {
			continue
		}

		// Failures are logged by the collection.
		_, _ = c.Resync(s.ctx, true)
	}

	for _, p := range projects {
		if err := p.Refresh(s.ctx); err != nil {
			s.logger.Debug("project refresh failed",
				slog.String("project", p.Name()),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *Session) collections() []collection {
	if s.studio == nil {
		return nil
	}

	out := s.studio.graph.collections()
	out = append(out, s.studio.rooms.coll)

	for _, g := range s.studio.byRoom {
		out = append(out, g.collections()...)
	}

	return out
}

func (s *Session) projects() []*rooms.ProjectTracker {
	if s.studio == nil {
		return nil
	}

	out := make([]*rooms.ProjectTracker, 0, len(s.studio.byRoom))
	for _, g := range s.studio.byRoom {
		out = append(out, g.Project)
	}

	return out
}

func (s *Session) shutdown() {
	s.teardownStudio()

	if s.started {
		s.tracker.Stop()
	}
}

// buildStudio creates the studio graph, app list and room list. Rooms
// already present arrive through the room list's activation resync.
func (s *Session) buildStudio() {
	if s.studio != nil {
		s.logger.Warn("studio views already built")
		return
	}

	s.logger.Info("building studio views")

	sv := &studioViews{byRoom: make(map[string]*graphViews)}
	s.studio = sv
	sv.graph = s.buildGraph(Scope{Object: control.StudioObject})

	sv.roomList = rooms.New(rooms.Config{
		Object:         control.StudioObject,
		Caller:         s.bus,
		Hooks:          s.router,
		StudioHandlers: s.tracker.StudioHandlers(),
		Logger:         s.logger,
	})

	observers := []rooms.Observer{roomBuilder{s: s}}
	if s.obs.Rooms != nil {
		observers = append(observers, s.obs.Rooms)
	}

	if s.journal != nil {
		observers = append(observers, journal.NewRoomsRecorder(s.journal, sv.roomList, s.logger))
	}

	sv.rooms = activate[rooms.Observer](s.ctx, sv.roomList, observers, rooms.NopObserver{}, s.logger)
}

func (s *Session) teardownStudio() {
	if s.studio == nil {
		return
	}

	s.logger.Info("tearing down studio views")

	s.teardownRooms()
	s.studio.rooms.close(s.logger)
	s.studio.graph.close(s.logger)
	s.studio = nil
}

func (s *Session) buildGraph(scope Scope) *graphViews {
	logger := s.logger.With(slog.String("scope", scope.String()))

	mirror := patchbay.New(patchbay.Config{
		Object:       scope.Object,
		Caller:       s.bus,
		Hooks:        s.router,
		GraphManager: true,
		GraphDict:    true,
		Logger:       logger,
	})

	list := apps.New(apps.Config{
		Object: scope.Object,
		Caller: s.bus,
		Hooks:  s.router,
		Logger: logger,
	})

	var graphObs []patchbay.Observer
	if s.obs.Graph != nil {
		if o := s.obs.Graph(scope); o != nil {
			graphObs = append(graphObs, o)
		}
	}

	var appObs []apps.Observer
	if s.obs.Apps != nil {
		if o := s.obs.Apps(scope); o != nil {
			appObs = append(appObs, o)
		}
	}

	if s.journal != nil {
		graphObs = append(graphObs, journal.NewGraphRecorder(s.journal, mirror, logger))
		appObs = append(appObs, journal.NewAppsRecorder(s.journal, list, logger))
	}

	g := &graphViews{Graph: Graph{Scope: scope, Mirror: mirror, Apps: list}}
	g.mirror = activate[patchbay.Observer](s.ctx, mirror, graphObs, patchbay.NopObserver{}, logger)
	g.apps = activate[apps.Observer](s.ctx, list, appObs, apps.NopObserver{}, logger)

	liveViews.Inc()

	return g
}

func (s *Session) buildRoom(r rooms.Room) {
	if s.studio == nil {
		return
	}

	if _, ok := s.studio.byRoom[r.Object]; ok {
		s.logger.Warn("room views already built",
			slog.String("room", r.Name),
		)

		return
	}

	scope := Scope{
		Object: bus.Object{Service: bus.ServiceLadish, Path: r.Object},
		Room:   r.Name,
	}

	g := s.buildGraph(scope)

	var rec *journal.ProjectRecorder

	g.Project = rooms.NewProjectTracker(scope.Object, s.bus, s.router, s.logger, func(p rooms.Project) {
		if rec != nil {
			rec.Changed(p)
		}

		if s.obs.Project != nil {
			s.obs.Project(scope, p)
		}
	})

	if s.journal != nil {
		rec = journal.NewProjectRecorder(s.journal, g.Project, s.logger)
	}

	if err := g.Project.Start(s.ctx); err != nil {
		s.logger.Warn("room project properties unavailable",
			slog.String("room", r.Name),
			slog.String("error", err.Error()),
		)
	}

	s.studio.byRoom[r.Object] = g
}

func (s *Session) teardownRoom(object string) {
	if s.studio == nil {
		return
	}

	g, ok := s.studio.byRoom[object]
	if !ok {
		return
	}

	delete(s.studio.byRoom, object)
	g.close(s.logger)
}

func (s *Session) teardownRooms() {
	if s.studio == nil {
		return
	}

	for object := range s.studio.byRoom {
		s.teardownRoom(object)
	}
}
