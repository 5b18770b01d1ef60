// Package rooms mirrors the rooms of the loaded studio and tracks the
// project loaded into each room. The room list uses the versioned
// collection protocol; project properties are a single version-gated value.
package rooms

import "errors"

// Sentinel errors.
var (
	ErrUnknownRoom    = errors.New("rooms: unknown room")
	ErrInvalidVersion = errors.New("rooms: invalid project properties version")
)

// Room is one room of the studio. Object is the room's bus object path.
type Room struct {
	Object   string `json:"object"`
	Name     string `json:"name"`
	Template string `json:"template"`
}

// Observer receives room list changes in the order they were applied.
type Observer interface {
	Cleared()
	RoomAppeared(room Room)
	RoomDisappeared(room Room)
}

// NopObserver ignores every change.
type NopObserver struct{}

func (NopObserver) Cleared() {}
func (NopObserver) RoomAppeared(Room) {}
func (NopObserver) RoomDisappeared(Room) {}
