package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_EncodeDecode(t *testing.T) {
	t.Parallel()

	body, err := EncodeArgs(uint64(9))
	require.NoError(t, err)

	in := &Frame{
		Type:      FrameCall,
		Serial:    "abc",
		Service:   ServiceLadish,
		Object:    ObjectStudio,
		Interface: IfacePatchbay,
		Member:    "GetGraph",
		Body:      body,
	}

	data, err := EncodeFrame(in)
	require.NoError(t, err)

	out, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, in.Type, out.Type)
	assert.Equal(t, in.Serial, out.Serial)
	assert.Equal(t, in.Member, out.Member)
	assert.Equal(t, []byte(in.Body), []byte(out.Body))
}

func TestFrame_EncodingIsDeterministic(t *testing.T) {
	t.Parallel()

	f := &Frame{Type: FrameOwner, Service: ServiceJack, Present: true}

	a, err := EncodeFrame(f)
	require.NoError(t, err)

	b, err := EncodeFrame(f)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDecodeFrame_RejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := DecodeFrame([]byte{0xff, 0x00})
	assert.Error(t, err)
}

func TestDecodeFrame_RequiresType(t *testing.T) {
	t.Parallel()

	data, err := encMode.Marshal(map[string]any{"s": "x"})
	require.NoError(t, err)

	_, err = DecodeFrame(data)
	assert.Error(t, err)
}

func TestDecodeArgs(t *testing.T) {
	t.Parallel()

	type clientArgs struct {
		_       struct{} `cbor:",toarray"`
		Version uint64
		ID      uint64
		Name    string
	}

	tests := []struct {
		name    string
		args    []any
		wantErr bool
	}{
		{name: "matching", args: []any{uint64(1), uint64(2), "a"}},
		{name: "too few", args: []any{uint64(1), uint64(2)}, wantErr: true},
		{name: "too many", args: []any{uint64(1), uint64(2), "a", "b"}, wantErr: true},
		{name: "wrong type", args: []any{"1", uint64(2), "a"}, wantErr: true},
		{name: "negative id", args: []any{uint64(1), int64(-2), "a"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			body, err := EncodeArgs(tt.args...)
			require.NoError(t, err)

			var out clientArgs
			err = DecodeArgs(body, &out)

			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMismatch)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "a", out.Name)
		})
	}
}

func TestDecodeArgs_EmptyBody(t *testing.T) {
	t.Parallel()

	var out []any
	assert.ErrorIs(t, DecodeArgs(nil, &out), ErrMismatch)
}
