package control

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tonimelisma/patchbay-go/internal/bus"
)

// DefaultPollInterval is the presence poll interval while the daemon is
// gone.
const DefaultPollInterval = 500 * time.Millisecond

// Control and studio signals.
const (
	SignalStudioAppeared    = "StudioAppeared"
	SignalStudioDisappeared = "StudioDisappeared"
	SignalCleanExit         = "CleanExit"

	SignalStudioStarted = "StudioStarted"
	SignalStudioStopped = "StudioStopped"
	SignalStudioCrashed = "StudioCrashed"
	SignalStudioRenamed = "StudioRenamed"
)

const crashedMessage = "session daemon crashed"

type renamedArgs struct {
	_    struct{} `cbor:",toarray"`
	Name string
}

// TrackerConfig configures a Tracker.
type TrackerConfig struct {
	Caller bus.Caller
	Hooks  bus.Hooks

	// Post queues fn on the event loop. The poll goroutine reports
	// through it.
	Post func(fn func())

	PollInterval time.Duration
	Logger       *slog.Logger
}

// Tracker is the presence tracker for the session daemon. It follows the
// daemon's presence and the studio state and tells its listeners when to
// build and tear down studio views.
//
// Everything except the poll goroutine runs on the event loop.
type Tracker struct {
	ctl          *Controller
	hooks        bus.Hooks
	post         func(func())
	pollInterval time.Duration
	logger       *slog.Logger

	// tickerFunc creates the poll ticker. Tests override it.
	tickerFunc func(d time.Duration) (<-chan time.Time, func())

	listeners []Listener

	up        bool
	loaded    bool
	cleanExit bool
	state     State
	name      string

	pollCancel context.CancelFunc
	pollWG     sync.WaitGroup
}

// NewTracker creates a Tracker in StateUnknown.
func NewTracker(cfg TrackerConfig) *Tracker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	post := cfg.Post
	if post == nil {
		post = func(fn func()) { fn() }
	}

	return &Tracker{
		ctl:          NewController(cfg.Caller, logger),
		hooks:        cfg.Hooks,
		post:         post,
		pollInterval: interval,
		logger:       logger.With(slog.String("component", "presence")),
		tickerFunc:   newTicker,
	}
}

func newTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)

	return t.C, t.Stop
}

// AddListener registers l. Listeners are notified in registration order.
func (t *Tracker) AddListener(l Listener) {
	t.listeners = append(t.listeners, l)
}

// Controller returns the call wrapper used by the tracker.
func (t *Tracker) Controller() *Controller { return t.ctl }

// State returns the current studio state.
func (t *Tracker) State() State { return t.state }

// StudioName returns the name of the loaded studio, if any.
func (t *Tracker) StudioName() string { return t.name }

// Loaded reports whether studio views should exist.
func (t *Tracker) Loaded() bool { return t.loaded }

// Up reports whether the daemon is considered present.
func (t *Tracker) Up() bool { return t.up }

// Start registers the control signal hooks and probes the daemon. When the
// probe fails the daemon is treated as gone and polling starts.
func (t *Tracker) Start(ctx context.Context) error {
	err := t.hooks.Register(ControlObject, bus.IfaceControl, map[string]bus.SignalHandler{
		SignalStudioAppeared:    func(bus.Signal) { t.studioAppeared(ctx, false) },
		SignalStudioDisappeared: func(bus.Signal) { t.studioDisappeared() },
		SignalCleanExit:         func(bus.Signal) { t.cleanExit = true },
	})
	if err != nil {
		return err
	}

	loaded, err := t.ctl.IsStudioLoaded(ctx)
	if err != nil {
		t.logger.Info("session daemon not reachable",
			slog.String("error", err.Error()),
		)

		t.setState(StateUnavailable)
		t.startPoll(ctx)

		return nil
	}

	t.appeared(ctx, loaded)

	return nil
}

// Stop cancels the poll and removes the signal hooks.
func (t *Tracker) Stop() {
	t.stopPoll()
	t.pollWG.Wait()
	t.hooks.Unregister(ControlObject, bus.IfaceControl)
}

// ServiceChanged handles an owner change of the daemon's bus name.
func (t *Tracker) ServiceChanged(ctx context.Context, present bool) {
	if present {
		if t.up {
			return
		}

		loaded, err := t.ctl.IsStudioLoaded(ctx)
		if err != nil {
			t.logger.Warn("daemon appeared but probe failed",
				slog.String("error", err.Error()),
			)

			loaded = false
		}

		t.appeared(ctx, loaded)

		return
	}

	if t.up {
		t.disappeared(ctx)
	}
}

// Reprobe refreshes the studio state after a transport reconnect. Owner
// frames sent on connect report presence changes; this catches studio
// changes that happened while the connection was down.
func (t *Tracker) Reprobe(ctx context.Context) {
	if !t.up {
		return
	}

	loaded, err := t.ctl.IsStudioLoaded(ctx)
	if err != nil {
		t.logger.Warn("reprobe failed",
			slog.String("error", err.Error()),
		)

		return
	}

	switch {
	case loaded && !t.loaded:
		t.studioAppeared(ctx, true)
	case !loaded && t.loaded:
		t.studioDisappeared()
	case loaded:
		t.seedStarted(ctx)
	}
}

// StudioHandlers returns the studio state signal handlers. They are
// registered with the room list, which shares the studio interface.
func (t *Tracker) StudioHandlers() map[string]bus.SignalHandler {
	return map[string]bus.SignalHandler{
		SignalStudioStarted: func(bus.Signal) { t.setState(StateStarted) },
		SignalStudioStopped: func(bus.Signal) { t.setState(StateStopped) },
		SignalStudioCrashed: func(bus.Signal) {
			t.setState(StateCrashed)
			t.fail("studio crashed")
		},
		SignalStudioRenamed: t.onStudioRenamed,
	}
}

func (t *Tracker) onStudioRenamed(sig bus.Signal) {
	var a renamedArgs
	if err := sig.Decode(&a); err != nil {
		t.logger.Error("ignoring malformed StudioRenamed",
			slog.String("error", err.Error()),
		)

		return
	}

	t.name = a.Name
	for _, l := range t.listeners {
		l.StudioRenamed(a.Name)
	}
}

func (t *Tracker) appeared(ctx context.Context, loaded bool) {
	t.stopPoll()
	t.up = true
	t.cleanExit = false

	t.logger.Info("session daemon appeared",
		slog.Bool("studio_loaded", loaded),
	)

	t.setState(StateUnloaded)

	if loaded {
		t.studioAppeared(ctx, true)
	}
}

func (t *Tracker) disappeared(ctx context.Context) {
	clean := t.cleanExit
	t.cleanExit = false
	t.up = false

	t.logger.Info("session daemon disappeared",
		slog.Bool("clean_exit", clean),
	)

	if clean {
		t.setState(StateUnavailable)
	} else {
		t.setState(StateSick)
		t.fail(crashedMessage)
	}

	if t.loaded {
		t.unload()
	}

	t.startPoll(ctx)
}

// studioAppeared seeds the studio state. Only the initial probe asks
// whether the studio is started; a freshly loaded studio is stopped.
func (t *Tracker) studioAppeared(ctx context.Context, initial bool) {
	t.setState(StateStopped)

	if initial {
		t.seedStarted(ctx)
	}

	if t.loaded {
		t.logger.Error("studio appeared but studio views already exist")
		return
	}

	name, err := t.ctl.StudioName(ctx)
	if err != nil {
		t.logger.Error("reading studio name failed",
			slog.String("error", err.Error()),
		)
	}

	t.name = name
	t.loaded = true

	for _, l := range t.listeners {
		l.StudioLoaded(name)
	}
}

func (t *Tracker) seedStarted(ctx context.Context) {
	started, err := t.ctl.IsStarted(ctx)
	if err != nil {
		t.logger.Error("probing studio start state failed",
			slog.String("error", err.Error()),
		)

		return
	}

	if started {
		t.setState(StateStarted)
	} else if t.state == StateStarted {
		t.setState(StateStopped)
	}
}

func (t *Tracker) studioDisappeared() {
	t.setState(StateUnloaded)

	if !t.loaded {
		t.logger.Error("studio disappeared but no studio views exist")
		return
	}

	t.unload()
}

func (t *Tracker) unload() {
	t.loaded = false
	t.name = ""

	for _, l := range t.listeners {
		l.StudioUnloaded()
	}
}

func (t *Tracker) setState(s State) {
	if t.state == s {
		return
	}

	t.logger.Debug("studio state changed",
		slog.String("from", t.state.String()),
		slog.String("to", s.String()),
	)

	t.state = s
	stateTransitions.WithLabelValues(s.String()).Inc()

	for _, l := range t.listeners {
		l.StateChanged(s)
	}
}

func (t *Tracker) fail(msg string) {
	t.logger.Error(msg)

	for _, l := range t.listeners {
		l.DaemonFailed(msg)
	}
}

// startPoll probes the daemon every poll interval until a probe succeeds
// or the poll is cancelled. A successful probe is reported on the event
// loop as an appearance.
func (t *Tracker) startPoll(ctx context.Context) {
	if t.pollCancel != nil {
		return
	}

	pollCtx, cancel := context.WithCancel(ctx)
	t.pollCancel = cancel
	ticks, stopTicker := t.tickerFunc(t.pollInterval)

	t.pollWG.Add(1)

	go func() {
		defer t.pollWG.Done()
		defer stopTicker()

		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticks:
			}

			if _, err := t.ctl.IsStudioLoaded(pollCtx); err != nil {
				presenceProbes.WithLabelValues("absent").Inc()
				continue
			}

			presenceProbes.WithLabelValues("present").Inc()

			t.post(func() {
				if pollCtx.Err() != nil {
					return
				}

				t.ServiceChanged(ctx, true)
			})

			return
		}
	}()
}

func (t *Tracker) stopPoll() {
	if t.pollCancel == nil {
		return
	}

	t.pollCancel()
	t.pollCancel = nil
}
