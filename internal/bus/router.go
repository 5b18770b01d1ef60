package bus

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrHooksRegistered is returned when hooks for an object interface are
// registered twice.
var ErrHooksRegistered = errors.New("bus: hooks already registered")

// SignalHandler handles one signal member.
type SignalHandler func(Signal)

// Hooks registers signal handlers for one object interface. Satisfied by
// *Router.
type Hooks interface {
	Register(obj Object, iface string, handlers map[string]SignalHandler) error
	Unregister(obj Object, iface string)
}

type hookKey struct {
	service string
	object  string
	iface   string
}

// Router dispatches queued bus events to registered signal handlers and
// service watchers. It is not safe for concurrent use: the event loop owns
// it and calls Dispatch for every event.
type Router struct {
	logger   *slog.Logger
	hooks    map[hookKey]map[string]SignalHandler
	watchers map[string]func(present bool)
}

// NewRouter creates an empty Router.
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}

	return &Router{
		logger:   logger,
		hooks:    make(map[hookKey]map[string]SignalHandler),
		watchers: make(map[string]func(bool)),
	}
}

// Register installs handlers, keyed by signal member, for signals emitted
// on interface iface of obj.
func (r *Router) Register(obj Object, iface string, handlers map[string]SignalHandler) error {
	key := hookKey{service: obj.Service, object: obj.Path, iface: iface}
	if _, ok := r.hooks[key]; ok {
		return fmt.Errorf("%w: %s %s", ErrHooksRegistered, obj.Path, iface)
	}

	r.hooks[key] = handlers

	return nil
}

// Unregister removes the handlers for iface on obj. Unknown keys are
// ignored.
func (r *Router) Unregister(obj Object, iface string) {
	delete(r.hooks, hookKey{service: obj.Service, object: obj.Path, iface: iface})
}

// Registered reports whether hooks are installed for iface on obj.
func (r *Router) Registered(obj Object, iface string) bool {
	_, ok := r.hooks[hookKey{service: obj.Service, object: obj.Path, iface: iface}]

	return ok
}

// WatchService installs fn as the presence watcher for service, replacing
// any previous watcher.
func (r *Router) WatchService(service string, fn func(present bool)) {
	r.watchers[service] = fn
}

// UnwatchService removes the presence watcher for service.
func (r *Router) UnwatchService(service string) {
	delete(r.watchers, service)
}

// Dispatch routes a signal or presence event to its handler. Connection
// state events are not routed. A panicking handler is logged and the
// event dropped.
func (r *Router) Dispatch(ev Event) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("bus: panic in event handler",
				slog.String("event", ev.Kind.String()),
				slog.String("member", ev.Signal.Member),
				slog.Any("panic", p),
			)
		}
	}()

	switch ev.Kind {
	case EventSignal:
		r.dispatchSignal(ev.Signal)
	case EventOwner:
		fn, ok := r.watchers[ev.Service]
		if !ok {
			return
		}

		fn(ev.Present)
	default:
	}
}

func (r *Router) dispatchSignal(sig Signal) {
	handlers, ok := r.hooks[hookKey{service: sig.Service, object: sig.Object, iface: sig.Interface}]
	if !ok {
		r.logger.Debug("no hooks for signal",
			slog.String("object", sig.Object),
			slog.String("interface", sig.Interface),
			slog.String("member", sig.Member),
		)

		return
	}

	handler, ok := handlers[sig.Member]
	if !ok {
		r.logger.Debug("ignoring unhandled signal",
			slog.String("object", sig.Object),
			slog.String("interface", sig.Interface),
			slog.String("member", sig.Member),
		)

		return
	}

	handler(sig)
}
