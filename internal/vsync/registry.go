package vsync

import "slices"

// Handle identifies one observer registration. The registry does not own
// the observer; the caller detaches it with the handle.
type Handle uint64

type registration[O any] struct {
	handle   Handle
	observer O
}

// Registry is an ordered set of observers. Observers are attached before
// the owning collection activates; afterwards the registry is frozen and
// only detaches are allowed.
type Registry[O any] struct {
	entries []registration[O]
	last    Handle
	frozen  bool
}

// Attach appends o and returns its handle. Fails with ErrActive once the
// registry is frozen.
func (r *Registry[O]) Attach(o O) (Handle, error) {
	if r.frozen {
		return 0, ErrActive
	}

	r.last++
	r.entries = append(r.entries, registration[O]{handle: r.last, observer: o})

	return r.last, nil
}

// Detach removes the registration for h, preserving the order of the rest.
func (r *Registry[O]) Detach(h Handle) error {
	i := slices.IndexFunc(r.entries, func(e registration[O]) bool {
		return e.handle == h
	})
	if i < 0 {
		return ErrNotAttached
	}

	r.entries = slices.Delete(r.entries, i, i+1)

	return nil
}

// Freeze disallows further attaches.
func (r *Registry[O]) Freeze() {
	r.frozen = true
}

// Frozen reports whether the registry accepts attaches.
func (r *Registry[O]) Frozen() bool {
	return r.frozen
}

// Len returns the number of attached observers.
func (r *Registry[O]) Len() int {
	return len(r.entries)
}

// Broadcast calls fn for every observer in registration order. Observers
// detached by fn during the broadcast still receive this event.
func (r *Registry[O]) Broadcast(fn func(O)) {
	for _, e := range slices.Clone(r.entries) {
		fn(e.observer)
	}
}
