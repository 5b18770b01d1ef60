package session

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/patchbay-go/internal/bus"
	"github.com/tonimelisma/patchbay-go/internal/bus/bustest"
	"github.com/tonimelisma/patchbay-go/internal/control"
	"github.com/tonimelisma/patchbay-go/internal/journal"
	"github.com/tonimelisma/patchbay-go/internal/patchbay"
	"github.com/tonimelisma/patchbay-go/internal/rooms"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// testLogWriter adapts testing.T.Log to io.Writer for slog output.
type testLogWriter struct {
	t *testing.T
}

func (w testLogWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

const waitFor = 2 * time.Second

var (
	studioObj = control.StudioObject
	roomObj   = bus.Object{Service: bus.ServiceLadish, Path: "/org/ladish/Room1"}
)

// fakeBus feeds scripted replies through bustest.Fake and events through
// a channel the test writes to.
type fakeBus struct {
	*bustest.Fake
	events chan bus.Event
}

func newFakeBus(t *testing.T) *fakeBus {
	t.Helper()

	return &fakeBus{
		Fake:   bustest.New(testLogger(t)),
		events: make(chan bus.Event, 32),
	}
}

func (b *fakeBus) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (b *fakeBus) Events() <-chan bus.Event { return b.events }

func (b *fakeBus) send(kind bus.EventKind) {
	b.events <- bus.Event{Kind: kind}
}

func (b *fakeBus) signal(t *testing.T, obj bus.Object, iface, member string, args ...any) {
	t.Helper()

	sig, err := bus.NewSignal(obj, iface, member, args...)
	require.NoError(t, err)

	b.events <- bus.Event{Kind: bus.EventSignal, Signal: sig}
}

func (b *fakeBus) presence(present bool) {
	b.events <- bus.Event{Kind: bus.EventOwner, Service: bus.ServiceLadish, Present: present}
}

// scriptStudio answers the probes and fetches for a loaded, started studio
// "live" with one client, one app, and one room "Mix".
func scriptStudio(f *bustest.Fake) {
	f.Reply(control.ControlObject.Method(bus.IfaceControl, "IsStudioLoaded"), true)
	f.Reply(studioObj.Method(bus.IfaceStudio, "GetName"), "live")
	f.Reply(studioObj.Method(bus.IfaceStudio, "IsStarted"), true)
	f.Reply(studioObj.Method(bus.IfacePatchbay, "GetGraph"),
		uint64(5),
		[]any{[]any{uint64(1), "system", []any{[]any{uint64(1), "capture_1", uint32(0x2), uint32(0)}}}},
		[]any{},
	)
	f.Reply(studioObj.Method(bus.IfaceAppSupervisor, "GetAll2"),
		uint64(3),
		[]any{[]any{uint64(1), "synth", true, false, "0"}},
	)
	f.Reply(studioObj.Method(bus.IfaceStudio, "GetRoomList"),
		uint64(2),
		[]any{[]any{roomObj.Path, "Mix", "default"}},
	)
	f.Reply(roomObj.Method(bus.IfacePatchbay, "GetGraph"), uint64(1), []any{}, []any{})
	f.Reply(roomObj.Method(bus.IfaceAppSupervisor, "GetAll2"), uint64(1), []any{})
	f.Reply(roomObj.Method(bus.IfaceRoom, "GetProjectProperties"), uint64(1), "song", "/home/u/song")
}

// eventLog collects observer callbacks from the loop goroutine.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, fmt.Sprintf(format, args...))
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]string(nil), l.events...)
}

type graphLog struct {
	patchbay.NopObserver
	scope Scope
	log   *eventLog
}

func (g graphLog) Clear() { g.log.add("%s clear", g.scope) }

func (g graphLog) ClientAppeared(id patchbay.ClientID, name string) {
	g.log.add("%s client+ %d %s", g.scope, id, name)
}

type listenerLog struct {
	log *eventLog
}

func (l listenerLog) StateChanged(s control.State) { l.log.add("state %s", s) }
func (l listenerLog) StudioLoaded(name string) { l.log.add("loaded %s", name) }
func (l listenerLog) StudioUnloaded() { l.log.add("unloaded") }
func (l listenerLog) StudioRenamed(name string) { l.log.add("renamed %s", name) }
func (l listenerLog) DaemonFailed(msg string) { l.log.add("failed %s", msg) }

// startSession runs a session over fb until the test ends.
func startSession(t *testing.T, fb *fakeBus, j *journal.Journal) (*Session, *eventLog) {
	t.Helper()

	log := &eventLog{}

	s := New(Config{
		Bus:          fb,
		PollInterval: time.Hour,
		Journal:      j,
		Observers: Observers{
			Graph:   func(sc Scope) patchbay.Observer { return graphLog{scope: sc, log: log} },
			Control: listenerLog{log: log},
			Project: func(sc Scope, p rooms.Project) { log.add("%s project %s", sc, p.Name) },
		},
		Logger: testLogger(t),
	})

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)

	go func() { done <- s.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	return s, log
}

func connect(t *testing.T, s *Session, fb *fakeBus) {
	t.Helper()

	fb.send(bus.EventConnected)

	select {
	case <-s.Ready():
	case <-time.After(waitFor):
		require.FailNow(t, "session never became ready")
	}
}

// eventually polls cond on the loop until it holds.
func eventually(t *testing.T, s *Session, cond func(v *Views) bool) {
	t.Helper()

	require.Eventually(t, func() bool {
		var ok bool

		err := s.Do(t.Context(), func(v *Views) error {
			ok = cond(v)
			return nil
		})

		return err == nil && ok
	}, waitFor, 10*time.Millisecond)
}

// ---------------------------------------------------------------------------
// Building views
// ---------------------------------------------------------------------------

func TestSession_BuildsStudioAndRoomViews(t *testing.T) {
	t.Parallel()

	fb := newFakeBus(t)
	scriptStudio(fb.Fake)

	s, log := startSession(t, fb, nil)
	connect(t, s, fb)

	err := s.Do(t.Context(), func(v *Views) error {
		require.NotNil(t, v.Studio)
		assert.Equal(t, control.StateStarted, v.Tracker.State())
		assert.Equal(t, "live", v.Tracker.StudioName())

		clients, ports, conns := v.Studio.Mirror.Len()
		assert.Equal(t, [3]int{1, 1, 0}, [3]int{clients, ports, conns})
		assert.Equal(t, uint64(5), v.Studio.Mirror.Version())
		assert.Len(t, v.Studio.Apps.Apps(), 1)
		assert.Nil(t, v.Studio.Project)

		require.Len(t, v.Rooms.Rooms(), 1)

		mix, err := v.Room("Mix")
		require.NoError(t, err)
		assert.Equal(t, "room Mix", mix.Scope.String())
		assert.Equal(t, rooms.Project{Name: "song", Dir: "/home/u/song"}, mix.Project.Project())

		g, err := v.Graph("")
		require.NoError(t, err)
		assert.Same(t, v.Studio, g)
		assert.Len(t, v.RoomGraphs(), 1)

		return nil
	})
	require.NoError(t, err)

	assert.Subset(t, log.snapshot(), []string{
		"studio clear",
		"studio client+ 1 system",
		"room Mix clear",
		"room Mix project song",
		"loaded live",
		"state started",
	})
}

func TestSession_DeltasReachObservers(t *testing.T) {
	t.Parallel()

	fb := newFakeBus(t)
	scriptStudio(fb.Fake)

	s, log := startSession(t, fb, nil)
	connect(t, s, fb)

	fb.signal(t, studioObj, bus.IfacePatchbay, patchbay.SignalClientAppeared, uint64(6), uint64(2), "synth")
	// Stale: dropped by the gate.
	fb.signal(t, studioObj, bus.IfacePatchbay, patchbay.SignalClientAppeared, uint64(6), uint64(3), "dup")

	eventually(t, s, func(v *Views) bool {
		clients, _, _ := v.Studio.Mirror.Len()
		return clients == 2
	})

	assert.Contains(t, log.snapshot(), "studio client+ 2 synth")
	assert.NotContains(t, log.snapshot(), "studio client+ 3 dup")
}

func TestSession_StudioSignalsRouteThroughRoomList(t *testing.T) {
	t.Parallel()

	fb := newFakeBus(t)
	scriptStudio(fb.Fake)

	s, _ := startSession(t, fb, nil)
	connect(t, s, fb)

	fb.signal(t, studioObj, bus.IfaceStudio, control.SignalStudioStopped)

	eventually(t, s, func(v *Views) bool {
		return v.Tracker.State() == control.StateStopped
	})
}

// ---------------------------------------------------------------------------
// Tearing down views
// ---------------------------------------------------------------------------

func TestSession_StudioDisappearedTearsDownViews(t *testing.T) {
	t.Parallel()

	fb := newFakeBus(t)
	scriptStudio(fb.Fake)

	s, log := startSession(t, fb, nil)
	connect(t, s, fb)

	fb.signal(t, control.ControlObject, bus.IfaceControl, control.SignalStudioDisappeared)

	eventually(t, s, func(v *Views) bool {
		return v.Studio == nil
	})

	err := s.Do(t.Context(), func(v *Views) error {
		_, err := v.Graph("")
		assert.ErrorIs(t, err, ErrNoStudio)

		_, err = v.Room("Mix")
		assert.ErrorIs(t, err, ErrNoStudio)

		assert.False(t, s.router.Registered(studioObj, bus.IfacePatchbay))
		assert.False(t, s.router.Registered(studioObj, bus.IfaceStudio))
		assert.False(t, s.router.Registered(roomObj, bus.IfacePatchbay))
		assert.False(t, s.router.Registered(roomObj, bus.IfaceRoom))
		assert.True(t, s.router.Registered(control.ControlObject, bus.IfaceControl))

		return nil
	})
	require.NoError(t, err)

	assert.Contains(t, log.snapshot(), "unloaded")
}

func TestSession_RoomDisappearedTearsDownRoomViews(t *testing.T) {
	t.Parallel()

	fb := newFakeBus(t)
	scriptStudio(fb.Fake)

	s, _ := startSession(t, fb, nil)
	connect(t, s, fb)

	fb.signal(t, studioObj, bus.IfaceStudio, rooms.SignalRoomDisappeared, uint64(3), roomObj.Path, "Mix")

	eventually(t, s, func(v *Views) bool {
		return len(v.RoomGraphs()) == 0
	})

	err := s.Do(t.Context(), func(v *Views) error {
		_, err := v.Room("Mix")
		assert.ErrorIs(t, err, rooms.ErrUnknownRoom)
		assert.False(t, s.router.Registered(roomObj, bus.IfacePatchbay))
		assert.NotNil(t, v.Studio)

		return nil
	})
	require.NoError(t, err)
}

// ---------------------------------------------------------------------------
// Presence and reconnects
// ---------------------------------------------------------------------------

func TestSession_DaemonAbsentThenAppears(t *testing.T) {
	t.Parallel()

	fb := newFakeBus(t)
	scriptStudio(fb.Fake)
	fb.Fail(control.ControlObject.Method(bus.IfaceControl, "IsStudioLoaded"), bustest.UnknownMethod, "no daemon")

	s, _ := startSession(t, fb, nil)
	connect(t, s, fb)

	err := s.Do(t.Context(), func(v *Views) error {
		assert.Nil(t, v.Studio)
		assert.Equal(t, control.StateUnavailable, v.Tracker.State())

		return nil
	})
	require.NoError(t, err)

	fb.Reply(control.ControlObject.Method(bus.IfaceControl, "IsStudioLoaded"), true)
	fb.presence(true)

	eventually(t, s, func(v *Views) bool {
		return v.Studio != nil && v.Tracker.Up()
	})
}

func TestSession_ReconnectForcesResync(t *testing.T) {
	t.Parallel()

	fb := newFakeBus(t)
	scriptStudio(fb.Fake)

	s, _ := startSession(t, fb, nil)
	connect(t, s, fb)

	require.Len(t, fb.Calls("GetGraph"), 2)
	require.Len(t, fb.Calls("GetRoomList"), 1)

	fb.send(bus.EventReconnected)

	eventually(t, s, func(*Views) bool {
		return len(fb.Calls("IsStudioLoaded")) == 2
	})

	graphCalls := fb.Calls("GetGraph")
	require.Len(t, graphCalls, 4)
	// Forced resyncs ask for a full snapshot.
	assert.Equal(t, []any{uint64(0)}, graphCalls[2].Args)
	assert.Len(t, fb.Calls("GetRoomList"), 2)
	assert.Len(t, fb.Calls("GetAll2"), 4)
	assert.Len(t, fb.Calls("GetProjectProperties"), 2)
}

// ---------------------------------------------------------------------------
// Journal
// ---------------------------------------------------------------------------

func TestSession_JournalsEveryView(t *testing.T) {
	t.Parallel()

	j, err := journal.Open(t.Context(), filepath.Join(t.TempDir(), "journal.db"), testLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, j.Close()) })

	fb := newFakeBus(t)
	scriptStudio(fb.Fake)

	s, _ := startSession(t, fb, j)
	connect(t, s, fb)

	cursors, err := j.Cursors(t.Context())
	require.NoError(t, err)

	names := make([]string, 0, len(cursors))
	for _, c := range cursors {
		names = append(names, c.Collection)
	}

	assert.Subset(t, names, []string{
		journal.ControlCollection,
		"graph:" + studioObj.Path,
		"apps:" + studioObj.Path,
		"rooms:" + studioObj.Path,
		"project:" + roomObj.Path,
	})

	events, err := j.Events(t.Context(), journal.Query{Collection: "project:" + roomObj.Path})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "song", events[0].Subject)
	assert.Equal(t, uint64(1), events[0].Version)
}
