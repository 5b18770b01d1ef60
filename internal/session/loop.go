// Package session runs the single event loop that owns every mirror. It
// follows the session daemon's presence and builds and tears down the
// studio and room views as the studio comes and goes.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/tonimelisma/patchbay-go/internal/bus"
)

// ErrStopped is returned when work is posted to a loop that has stopped.
var ErrStopped = errors.New("session: loop stopped")

const workBufferSize = 64

// Loop serializes bus events and posted work onto one goroutine. Each item
// runs to completion before the next one starts.
type Loop struct {
	work   chan func()
	done   chan struct{}
	logger *slog.Logger
}

// NewLoop creates a Loop. Run must be called exactly once.
func NewLoop(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}

	return &Loop{
		work:   make(chan func(), workBufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Run processes events and posted work until ctx is canceled or events is
// closed. Posting fails once Run has returned.
func (l *Loop) Run(ctx context.Context, events <-chan bus.Event, handle func(bus.Event)) error {
	defer close(l.done)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}

			l.safe(ev.Kind.String(), func() { handle(ev) })

		case fn := <-l.work:
			l.safe("work", fn)
		}
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Post queues fn on the loop. It returns false when the loop has stopped.
// Post blocks while the work queue is full and the loop is running.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case l.work <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do runs fn on the loop and waits for it. When ctx ends first Do returns
// ctx.Err() while fn may still run later; fn must not touch caller state
// the caller reuses after an early return.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)

	work := func() {
		defer func() {
			if p := recover(); p != nil {
				result <- fmt.Errorf("session: panic: %v", p)
			}
		}()

		result <- fn()
	}

	if !l.Post(work) {
		return ErrStopped
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		// fn may have run just before the loop stopped.
		select {
		case err := <-result:
			return err
		default:
			return ErrStopped
		}
	}
}

// safe runs fn and logs a panic instead of killing the loop.
func (l *Loop) safe(what string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			l.logger.Error("session: panic on event loop",
				slog.String("item", what),
				slog.String("panic", fmt.Sprint(p)),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	fn()
}
