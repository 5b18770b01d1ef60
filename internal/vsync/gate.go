// Package vsync implements versioned collection synchronization: the
// version gate, the observer registry, and the Collection primitive that
// combines them with a snapshot resync policy. The routing graph, the app
// list and the room list are all built on it.
package vsync

import "errors"

// Sentinel errors for registry and lifecycle misuse.
var (
	ErrActive            = errors.New("vsync: collection already active")
	ErrNotActive         = errors.New("vsync: collection not active")
	ErrNotAttached       = errors.New("vsync: observer not attached")
	ErrObserversAttached = errors.New("vsync: observers still attached")
	ErrNoObservers       = errors.New("vsync: no observers attached")

	// ErrDuplicate marks a delta that adds an entity the collection already
	// holds. Apply logs it as a warning instead of an error.
	ErrDuplicate = errors.New("vsync: duplicate entity")
)

// Accept reports whether a change stamped with incoming may be applied to
// a collection currently at local. Only strictly newer versions pass, so a
// duplicated or reordered delivery is a no-op.
func Accept(local, incoming uint64) bool {
	return incoming > local
}
