package vsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Binding connects a Collection to one concrete replicated collection.
// Fetch retrieves a snapshot newer than since (0 requests a full one).
// Reset empties the local state and Rebuild repopulates it from a snapshot,
// broadcasting synthetic add events through the Collection. Clear delivers
// the clear notification to one observer. Register and Unregister install
// and remove the change signal hooks.
type Binding[O, S any] struct {
	Name       string
	Fetch      func(ctx context.Context, since uint64) (uint64, S, error)
	Reset      func()
	Rebuild    func(snapshot S)
	Clear      func(O)
	Register   func() error
	Unregister func()
}

// Stats is a snapshot of a collection's counters.
type Stats struct {
	Accepted         int64
	Stale            int64
	Rejected         int64
	ResyncsApplied   int64
	ResyncsDiscarded int64
	ResyncsFailed    int64
}

type counters struct {
	accepted         atomic.Int64
	stale            atomic.Int64
	rejected         atomic.Int64
	resyncsApplied   atomic.Int64
	resyncsDiscarded atomic.Int64
	resyncsFailed    atomic.Int64
}

// Collection is the versioned synchronization core shared by every
// replicated collection. It owns the local version, the observer registry
// and the lifecycle; the Binding owns the data.
//
// A Collection is not safe for concurrent use. The event loop owns it.
type Collection[O, S any] struct {
	binding  Binding[O, S]
	logger   *slog.Logger
	registry Registry[O]
	version  uint64
	active   bool
	closed   bool
	stats    counters
}

// New creates an inactive Collection.
func New[O, S any](binding Binding[O, S], logger *slog.Logger) *Collection[O, S] {
	if logger == nil {
		logger = slog.Default()
	}

	return &Collection[O, S]{
		binding: binding,
		logger:  logger.With(slog.String("collection", binding.Name)),
	}
}

// Name returns the collection name used in logs and metrics.
func (c *Collection[O, S]) Name() string {
	return c.binding.Name
}

// Version returns the last accepted version.
func (c *Collection[O, S]) Version() uint64 {
	return c.version
}

// Active reports whether the collection is receiving changes.
func (c *Collection[O, S]) Active() bool {
	return c.active
}

// Observers returns the number of attached observers.
func (c *Collection[O, S]) Observers() int {
	return c.registry.Len()
}

// Attach registers o. Only allowed before activation.
func (c *Collection[O, S]) Attach(o O) (Handle, error) {
	if c.active || c.closed {
		return 0, ErrActive
	}

	return c.registry.Attach(o)
}

// Detach removes the observer registered under h.
func (c *Collection[O, S]) Detach(h Handle) error {
	return c.registry.Detach(h)
}

// Activate freezes the registry, installs the change hooks and performs a
// forced resync. A failed resync leaves the collection active at version 0;
// the error is returned for the caller to report.
func (c *Collection[O, S]) Activate(ctx context.Context) error {
	if c.active || c.closed {
		return ErrActive
	}

	if c.registry.Len() == 0 {
		return ErrNoObservers
	}

	if c.binding.Register != nil {
		if err := c.binding.Register(); err != nil {
			return fmt.Errorf("vsync: %s: registering hooks: %w", c.binding.Name, err)
		}
	}

	c.registry.Freeze()
	c.active = true

	c.logger.Debug("collection activated",
		slog.Int("observers", c.registry.Len()),
	)

	_, err := c.Resync(ctx, true)

	return err
}

// Close deactivates the collection and removes its hooks. Fails with
// ErrObserversAttached while any observer is still attached.
func (c *Collection[O, S]) Close() error {
	if n := c.registry.Len(); n > 0 {
		return fmt.Errorf("%w: %s has %d", ErrObserversAttached, c.binding.Name, n)
	}

	if c.active && c.binding.Unregister != nil {
		c.binding.Unregister()
	}

	c.active = false
	c.closed = true
	collectionVersion.DeleteLabelValues(c.binding.Name)

	return nil
}

// Broadcast delivers fn to every observer in registration order. Bindings
// use it for synthetic events while mutating or rebuilding.
func (c *Collection[O, S]) Broadcast(fn func(O)) {
	c.registry.Broadcast(fn)
}

// Apply runs one incremental change through the gate. When version is not
// newer than the local version the change is dropped and Apply returns
// false. Otherwise the version is committed first, then mutate runs, then
// notify is broadcast. A mutate error means the change did not fit the
// local state: it is logged, nothing is broadcast, and the version stays
// committed.
func (c *Collection[O, S]) Apply(kind string, version uint64, mutate func() error, notify func(O)) bool {
	if !c.active {
		c.logger.Debug("ignoring change for inactive collection",
			slog.String("kind", kind),
		)

		return false
	}

	if !Accept(c.version, version) {
		c.stats.stale.Add(1)
		deltaResults.WithLabelValues(c.binding.Name, deltaStale).Inc()

		c.logger.Debug("ignoring stale change",
			slog.String("kind", kind),
			slog.Uint64("version", version),
			slog.Uint64("local_version", c.version),
		)

		return false
	}

	c.commit(version)

	if mutate != nil {
		if err := mutate(); err != nil {
			c.stats.rejected.Add(1)
			deltaResults.WithLabelValues(c.binding.Name, deltaRejected).Inc()

			level := slog.LevelError
			if errors.Is(err, ErrDuplicate) {
				level = slog.LevelWarn
			}

			c.logger.Log(context.Background(), level, "ignoring change",
				slog.String("kind", kind),
				slog.Uint64("version", version),
				slog.String("error", err.Error()),
			)

			return false
		}
	}

	if notify != nil {
		c.registry.Broadcast(notify)
	}

	c.stats.accepted.Add(1)
	deltaResults.WithLabelValues(c.binding.Name, deltaAccepted).Inc()

	return true
}

// Resync fetches a snapshot and replaces the local state with it. A forced
// resync requests a full snapshot and applies whatever version comes back.
// A regular resync applies the snapshot only if it is newer than the local
// version, and otherwise returns false without any notification.
func (c *Collection[O, S]) Resync(ctx context.Context, force bool) (bool, error) {
	if !c.active {
		return false, ErrNotActive
	}

	since := c.version
	if force {
		since = 0
	}

	version, snapshot, err := c.binding.Fetch(ctx, since)
	if err != nil {
		c.stats.resyncsFailed.Add(1)
		resyncResults.WithLabelValues(c.binding.Name, resyncFailed).Inc()

		c.logger.Error("resync failed",
			slog.Bool("force", force),
			slog.String("error", err.Error()),
		)

		return false, fmt.Errorf("vsync: %s resync: %w", c.binding.Name, err)
	}

	if !force && !Accept(c.version, version) {
		c.stats.resyncsDiscarded.Add(1)
		resyncResults.WithLabelValues(c.binding.Name, resyncDiscarded).Inc()

		c.logger.Debug("discarding stale snapshot",
			slog.Uint64("version", version),
			slog.Uint64("local_version", c.version),
		)

		return false, nil
	}

	c.registry.Broadcast(c.binding.Clear)
	c.binding.Reset()
	c.binding.Rebuild(snapshot)
	c.commit(version)

	c.stats.resyncsApplied.Add(1)
	resyncResults.WithLabelValues(c.binding.Name, resyncApplied).Inc()

	c.logger.Info("resync applied",
		slog.Bool("force", force),
		slog.Uint64("version", version),
	)

	return true, nil
}

// Stats returns a snapshot of the collection's counters.
func (c *Collection[O, S]) Stats() Stats {
	return Stats{
		Accepted:         c.stats.accepted.Load(),
		Stale:            c.stats.stale.Load(),
		Rejected:         c.stats.rejected.Load(),
		ResyncsApplied:   c.stats.resyncsApplied.Load(),
		ResyncsDiscarded: c.stats.resyncsDiscarded.Load(),
		ResyncsFailed:    c.stats.resyncsFailed.Load(),
	}
}

func (c *Collection[O, S]) commit(version uint64) {
	c.version = version
	collectionVersion.WithLabelValues(c.binding.Name).Set(float64(version))
}
