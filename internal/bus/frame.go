package bus

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// FrameType discriminates the frames exchanged over the connection.
type FrameType string

// Frame types.
const (
	FrameCall   FrameType = "call"
	FrameReply  FrameType = "reply"
	FrameError  FrameType = "error"
	FrameSignal FrameType = "signal"
	FrameOwner  FrameType = "owner"
)

// Frame is one message on the wire. Body holds the positional arguments
// as a CBOR array. Owner frames report service presence in Present.
type Frame struct {
	Type      FrameType       `cbor:"t"`
	Serial    string          `cbor:"s,omitempty"`
	Service   string          `cbor:"svc,omitempty"`
	Object    string          `cbor:"obj,omitempty"`
	Interface string          `cbor:"if,omitempty"`
	Member    string          `cbor:"m,omitempty"`
	Body      cbor.RawMessage `cbor:"b,omitempty"`
	ErrorName string          `cbor:"en,omitempty"`
	Error     string          `cbor:"e,omitempty"`
	Present   bool            `cbor:"p,omitempty"`
}

// encMode uses Core Deterministic Encoding so equal frames encode to
// identical bytes.
var encMode cbor.EncMode

// decMode decodes any-typed map targets as map[string]any. Unknown
// frame fields are ignored.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("bus: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("bus: CBOR decoder initialization failed: " + err.Error())
	}
}

// EncodeFrame serializes f for transmission.
func EncodeFrame(f *Frame) ([]byte, error) {
	data, err := encMode.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("bus: encoding %s frame: %w", f.Type, err)
	}

	return data, nil
}

// DecodeFrame parses one frame received from the wire.
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := decMode.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("bus: decoding frame: %w", err)
	}

	if f.Type == "" {
		return nil, fmt.Errorf("bus: decoding frame: missing type")
	}

	return &f, nil
}

// EncodeArgs encodes positional arguments as a CBOR array body.
func EncodeArgs(args ...any) (cbor.RawMessage, error) {
	if args == nil {
		args = []any{}
	}

	data, err := encMode.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("bus: encoding arguments: %w", err)
	}

	return data, nil
}

// DecodeArgs decodes a positional argument body into v, normally a struct
// tagged `cbor:",toarray"`. A body whose shape does not match v yields an
// error wrapping ErrMismatch.
func DecodeArgs(body []byte, v any) error {
	if len(body) == 0 {
		return fmt.Errorf("%w: empty body", ErrMismatch)
	}

	if err := decMode.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMismatch, err)
	}

	return nil
}
