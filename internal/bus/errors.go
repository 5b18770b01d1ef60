// Package bus provides the client side of the session bus: calls with a
// fixed reply timeout, push signals, and service presence events, carried
// as CBOR frames over a WebSocket connection.
package bus

import (
	"errors"
	"fmt"
)

// Sentinel errors for call failures.
// Use errors.Is(err, bus.ErrTimeout) to check.
var (
	ErrTimeout  = errors.New("bus: call timed out")
	ErrClosed   = errors.New("bus: connection closed")
	ErrNoReply  = errors.New("bus: no reply")
	ErrRemote   = errors.New("bus: remote error")
	ErrMismatch = errors.New("bus: argument mismatch")
)

// CallError is an error reply returned by the remote service. It carries
// the remote error name and message; errors.Is(err, ErrRemote) matches it.
type CallError struct {
	Method  Method
	Name    string
	Message string
}

func (e *CallError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("bus: %s failed: %s", e.Method, e.Name)
	}

	return fmt.Sprintf("bus: %s failed: %s: %s", e.Method, e.Name, e.Message)
}

func (e *CallError) Unwrap() error {
	return ErrRemote
}

// IsRemoteError reports whether err is an error reply with the given name.
func IsRemoteError(err error, name string) bool {
	var callErr *CallError
	if !errors.As(err, &callErr) {
		return false
	}

	return callErr.Name == name
}
