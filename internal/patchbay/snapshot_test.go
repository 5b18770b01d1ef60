package patchbay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/patchbay-go/internal/bus/bustest"
)

func testSnapshot(t *testing.T) Snapshot {
	t.Helper()

	fake := bustest.New(testLogger(t))
	replyGraph(fake, 3,
		[]any{
			snapClientArgs(1, "system",
				snapPortArgs(2, "playback_1", inFlags, typeAudio),
				snapPortArgs(1, "capture_1", outFlags, typeAudio),
			),
			snapClientArgs(2, "a2j", snapPortArgs(3, "midi:out", flagOutput, typeMIDI)),
		},
		[]any{snapConnArgs(2, 3, 1, 2, 0)},
	)

	m, _, _ := newActiveMirror(t, fake, false)

	return m.Snapshot()
}

func TestSnapshot_SortedCopy(t *testing.T) {
	t.Parallel()

	s := testSnapshot(t)

	assert.Equal(t, uint64(3), s.Version)
	require.Len(t, s.Clients, 2)
	assert.Equal(t, ClientID(1), s.Clients[0].ID)
	require.Len(t, s.Clients[0].Ports, 2)
	assert.Equal(t, PortID(1), s.Clients[0].Ports[0].ID)
	require.Len(t, s.Connections, 1)
}

func TestSnapshot_FindPort(t *testing.T) {
	t.Parallel()

	s := testSnapshot(t)

	tests := []struct {
		ref    string
		wantID PortID
		ok     bool
	}{
		{ref: "1", wantID: 1, ok: true},
		{ref: "system:playback_1", wantID: 2, ok: true},
		{ref: "a2j:midi:out", wantID: 3, ok: true},
		{ref: "system:nope", ok: false},
		{ref: "99", ok: false},
	}

	for _, tt := range tests {
		p, err := s.FindPort(tt.ref)
		if !tt.ok {
			assert.ErrorIs(t, err, ErrUnknownPort, tt.ref)
			continue
		}

		require.NoError(t, err, tt.ref)
		assert.Equal(t, tt.wantID, p.ID, tt.ref)
	}
}

func TestSnapshot_FindClient(t *testing.T) {
	t.Parallel()

	s := testSnapshot(t)

	c, err := s.FindClient("a2j")
	require.NoError(t, err)
	assert.Equal(t, ClientID(2), c.ID)

	c, err = s.FindClient("1")
	require.NoError(t, err)
	assert.Equal(t, "system", c.Name)

	_, err = s.FindClient("jack")
	assert.ErrorIs(t, err, ErrUnknownClient)
}

func TestSnapshot_PortPath(t *testing.T) {
	t.Parallel()

	s := testSnapshot(t)

	p, err := s.FindPort("3")
	require.NoError(t, err)
	assert.Equal(t, "a2j/midi:out", s.PortPath(p))
	assert.Equal(t, "9/x", s.PortPath(Port{Client: 9, Name: "x"}))
}

func TestSnapshot_JSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(testSnapshot(t))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"direction":"input"`)
	assert.Contains(t, string(data), `"kind":"midi"`)
}

func TestDecodePort(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		flags   uint32
		typ     uint32
		dir     Direction
		kind    Kind
		wantErr bool
	}{
		{name: "audio input", flags: flagInput, typ: typeAudio, dir: DirectionInput, kind: KindAudio},
		{name: "audio output", flags: flagOutput, typ: typeAudio, dir: DirectionOutput, kind: KindAudio},
		{name: "midi terminal output", flags: flagOutput | flagTerminal, typ: typeMIDI, dir: DirectionOutput, kind: KindMIDI},
		{name: "unknown type", flags: flagInput, typ: 2, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir, kind, err := decodePort(tt.flags, tt.typ)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownPortType)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.dir, dir)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func TestNewConnKey_Unordered(t *testing.T) {
	t.Parallel()

	assert.Equal(t, NewConnKey(3, 2), NewConnKey(2, 3))
	assert.Equal(t, ConnKey{A: 2, B: 3}, Connection{Port1: 3, Port2: 2}.Key())
}
