// Package bustest provides an in-process fake bus for tests: scripted call
// handlers plus a Router that test code feeds signals into directly.
package bustest

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tonimelisma/patchbay-go/internal/bus"
)

// UnknownMethod is the error name returned for calls without a handler.
const UnknownMethod = "org.freedesktop.DBus.Error.UnknownMethod"

// Handler answers one call. The returned values become the reply's
// positional arguments.
type Handler func(args []any) ([]any, error)

// Call records one call made through the fake.
type Call struct {
	Method bus.Method
	Args   []any
}

// Fake implements bus.Caller and bus.Hooks.
type Fake struct {
	*bus.Router

	mu       sync.Mutex
	handlers map[bus.Method]Handler
	calls    []Call
}

// New creates an empty Fake.
func New(logger *slog.Logger) *Fake {
	return &Fake{
		Router:   bus.NewRouter(logger),
		handlers: make(map[bus.Method]Handler),
	}
}

// Handle installs h as the handler for m.
func (f *Fake) Handle(m bus.Method, h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.handlers[m] = h
}

// Reply installs a handler for m that always returns values.
func (f *Fake) Reply(m bus.Method, values ...any) {
	f.Handle(m, func([]any) ([]any, error) {
		return values, nil
	})
}

// Fail installs a handler for m that always returns a remote error.
func (f *Fake) Fail(m bus.Method, name, message string) {
	f.Handle(m, func([]any) ([]any, error) {
		return nil, &bus.CallError{Method: m, Name: name, Message: message}
	})
}

// Call implements bus.Caller. Replies are encoded and decoded with the
// wire codec so reply shapes are checked the same way as on a real bus.
func (f *Fake) Call(ctx context.Context, m bus.Method, reply any, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	f.calls = append(f.calls, Call{Method: m, Args: args})
	h, ok := f.handlers[m]
	f.mu.Unlock()

	if !ok {
		return &bus.CallError{Method: m, Name: UnknownMethod}
	}

	values, err := h(args)
	if err != nil {
		return err
	}

	if reply == nil {
		return nil
	}

	body, err := bus.EncodeArgs(values...)
	if err != nil {
		return err
	}

	return bus.DecodeArgs(body, reply)
}

// Calls returns the recorded calls to member, in order.
func (f *Fake) Calls(member string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Call

	for _, c := range f.calls {
		if c.Method.Member == member {
			out = append(out, c)
		}
	}

	return out
}

// Emit builds a signal and dispatches it synchronously through the Router.
func (f *Fake) Emit(obj bus.Object, iface, member string, args ...any) error {
	sig, err := bus.NewSignal(obj, iface, member, args...)
	if err != nil {
		return err
	}

	f.Dispatch(bus.Event{Kind: bus.EventSignal, Signal: sig})

	return nil
}

// SetPresence dispatches a service presence change.
func (f *Fake) SetPresence(service string, present bool) {
	f.Dispatch(bus.Event{Kind: bus.EventOwner, Service: service, Present: present})
}
