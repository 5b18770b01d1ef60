package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var studioObject = Object{Service: ServiceLadish, Path: ObjectStudio}

func TestRouter_DispatchesByObjectAndMember(t *testing.T) {
	t.Parallel()

	r := NewRouter(testLogger(t))

	var got []string

	require.NoError(t, r.Register(studioObject, IfacePatchbay, map[string]SignalHandler{
		"ClientAppeared": func(s Signal) { got = append(got, "studio:"+s.Member) },
	}))

	room := Object{Service: ServiceLadish, Path: "/org/ladish/Room1"}
	require.NoError(t, r.Register(room, IfacePatchbay, map[string]SignalHandler{
		"ClientAppeared": func(s Signal) { got = append(got, "room:"+s.Member) },
	}))

	for _, obj := range []Object{studioObject, room} {
		sig, err := NewSignal(obj, IfacePatchbay, "ClientAppeared", uint64(1))
		require.NoError(t, err)
		r.Dispatch(Event{Kind: EventSignal, Signal: sig})
	}

	// Unhandled member and unknown interface are ignored.
	sig, err := NewSignal(studioObject, IfacePatchbay, "PortAppeared", uint64(2))
	require.NoError(t, err)
	r.Dispatch(Event{Kind: EventSignal, Signal: sig})

	sig, err = NewSignal(studioObject, IfaceStudio, "StudioStarted")
	require.NoError(t, err)
	r.Dispatch(Event{Kind: EventSignal, Signal: sig})

	assert.Equal(t, []string{"studio:ClientAppeared", "room:ClientAppeared"}, got)
}

func TestRouter_RegisterTwice(t *testing.T) {
	t.Parallel()

	r := NewRouter(testLogger(t))

	require.NoError(t, r.Register(studioObject, IfacePatchbay, nil))
	assert.True(t, r.Registered(studioObject, IfacePatchbay))

	err := r.Register(studioObject, IfacePatchbay, nil)
	assert.ErrorIs(t, err, ErrHooksRegistered)

	r.Unregister(studioObject, IfacePatchbay)
	assert.False(t, r.Registered(studioObject, IfacePatchbay))
	assert.NoError(t, r.Register(studioObject, IfacePatchbay, nil))
}

func TestRouter_ServiceWatcher(t *testing.T) {
	t.Parallel()

	r := NewRouter(testLogger(t))

	var seen []bool

	r.WatchService(ServiceLadish, func(present bool) { seen = append(seen, present) })

	r.Dispatch(Event{Kind: EventOwner, Service: ServiceLadish, Present: true})
	r.Dispatch(Event{Kind: EventOwner, Service: ServiceJack, Present: true})
	r.Dispatch(Event{Kind: EventOwner, Service: ServiceLadish, Present: false})

	r.UnwatchService(ServiceLadish)
	r.Dispatch(Event{Kind: EventOwner, Service: ServiceLadish, Present: true})

	assert.Equal(t, []bool{true, false}, seen)
}

func TestRouter_RecoversFromPanickingHandler(t *testing.T) {
	t.Parallel()

	r := NewRouter(testLogger(t))

	require.NoError(t, r.Register(studioObject, IfacePatchbay, map[string]SignalHandler{
		"ClientAppeared": func(Signal) { panic("boom") },
	}))

	sig, err := NewSignal(studioObject, IfacePatchbay, "ClientAppeared")
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		r.Dispatch(Event{Kind: EventSignal, Signal: sig})
	})
}
