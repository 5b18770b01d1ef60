package journal

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/patchbay-go/internal/apps"
	"github.com/tonimelisma/patchbay-go/internal/control"
	"github.com/tonimelisma/patchbay-go/internal/patchbay"
	"github.com/tonimelisma/patchbay-go/internal/rooms"
)

// testLogger returns a debug-level logger that writes to t.Log.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// testLogWriter adapts testing.T to io.Writer for slog.
type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}

// newTestJournal opens a journal in a temp directory with a controllable
// clock.
func newTestJournal(t *testing.T) (*Journal, *time.Time) {
	t.Helper()

	j, err := Open(context.Background(), filepath.Join(t.TempDir(), "journal.db"), testLogger(t))
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, j.Close())
	})

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	j.nowFunc = func() time.Time { return now }

	return j, &now
}

type fakeSource struct {
	name    string
	version uint64
}

func (s *fakeSource) Name() string { return s.name }
func (s *fakeSource) Version() uint64 { return s.version }

// ---------------------------------------------------------------------------
// Journal
// ---------------------------------------------------------------------------

func TestOpen_Reopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j, err := Open(ctx, path, testLogger(t))
	require.NoError(t, err)
	require.NoError(t, j.SetCursor(ctx, "graph:/x", 9))
	first := j.Session()
	require.NoError(t, j.Close())

	j, err = Open(ctx, path, testLogger(t))
	require.NoError(t, err)
	defer j.Close()

	assert.NotEqual(t, first, j.Session())

	c, ok, err := j.Cursor(ctx, "graph:/x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(9), c.Version)
}

func TestRecord_AdvancesCursor(t *testing.T) {
	t.Parallel()

	j, _ := newTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Record(ctx, Event{Collection: "apps:/s", Kind: "app_added", Version: 3, Subject: "app 1"}))
	require.NoError(t, j.Record(ctx, Event{Collection: "apps:/s", Kind: "app_removed", Version: 4, Subject: "app 1"}))
	require.NoError(t, j.Record(ctx, Event{Collection: "rooms:/s", Kind: "clear", Version: 1}))

	c, ok, err := j.Cursor(ctx, "apps:/s")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(4), c.Version)

	_, ok, err = j.Cursor(ctx, "graph:/none")
	require.NoError(t, err)
	assert.False(t, ok)

	cursors, err := j.Cursors(ctx)
	require.NoError(t, err)
	require.Len(t, cursors, 2)
	assert.Equal(t, "apps:/s", cursors[0].Collection)

	events, err := j.Events(ctx, Query{Collection: "apps:/s"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "app_removed", events[0].Kind)
	assert.Equal(t, j.Session(), events[0].Session)

	events, err = j.Events(ctx, Query{Limit: 1})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "rooms:/s", events[0].Collection)
}

func TestPrune(t *testing.T) {
	t.Parallel()

	j, now := newTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Record(ctx, Event{Collection: "c", Kind: "old", Version: 1}))

	*now = now.Add(48 * time.Hour)
	require.NoError(t, j.Record(ctx, Event{Collection: "c", Kind: "new", Version: 2}))

	n, err := j.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	events, err := j.Events(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "new", events[0].Kind)

	// Cursors survive pruning.
	c, ok, err := j.Cursor(ctx, "c")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(2), c.Version)
}

func TestEvents_Since(t *testing.T) {
	t.Parallel()

	j, now := newTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Record(ctx, Event{Collection: "c", Kind: "a", Version: 1}))
	*now = now.Add(time.Hour)
	since := *now
	require.NoError(t, j.Record(ctx, Event{Collection: "c", Kind: "b", Version: 2}))

	events, err := j.Events(ctx, Query{Since: since})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "b", events[0].Kind)
	assert.True(t, events[0].RecordedAt.Equal(since))
}

// ---------------------------------------------------------------------------
// Recorders
// ---------------------------------------------------------------------------

func TestGraphRecorder(t *testing.T) {
	t.Parallel()

	j, _ := newTestJournal(t)
	src := &fakeSource{name: "graph:/org/ladish/Studio", version: 5}
	r := NewGraphRecorder(j, src, testLogger(t))

	r.ClientAppeared(3, "system")
	src.version = 6
	r.PortAppeared(patchbay.Port{ID: 7, Client: 3, Name: "capture_1", Direction: patchbay.DirectionOutput, Kind: patchbay.KindAudio})
	src.version = 7
	r.PortsConnected(patchbay.Connection{Client1: 3, Port1: 7, Client2: 4, Port2: 8})

	events, err := j.Events(context.Background(), Query{Collection: src.name})
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, "ports_connected", events[0].Kind)
	assert.Equal(t, "3:7 -> 4:8", events[0].Subject)
	assert.Equal(t, uint64(7), events[0].Version)
	assert.Equal(t, "capture_1 output audio", events[1].Detail)
	assert.Equal(t, "client 3", events[2].Subject)
}

func TestListRecorders(t *testing.T) {
	t.Parallel()

	j, _ := newTestJournal(t)
	ctx := context.Background()

	appsSrc := &fakeSource{name: "apps:/s", version: 2}
	ar := NewAppsRecorder(j, appsSrc, testLogger(t))
	ar.AppAdded(apps.App{ID: 1, Name: "synth", Running: true, Level: apps.LevelLASH})

	roomsSrc := &fakeSource{name: "rooms:/s", version: 4}
	rr := NewRoomsRecorder(j, roomsSrc, testLogger(t))
	rr.RoomAppeared(rooms.Room{Object: "/org/ladish/Room1", Name: "drums", Template: "Basic"})

	cr := NewControlRecorder(j, testLogger(t))
	cr.StateChanged(control.StateSick)

	events, err := j.Events(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, ControlCollection, events[0].Collection)
	assert.Equal(t, "sick", events[0].Detail)
	assert.Equal(t, "drums (Basic)", events[1].Detail)
	assert.Equal(t, "synth running level=lash", events[2].Detail)
}
