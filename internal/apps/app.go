// Package apps mirrors the list of applications supervised by a studio or
// room. It uses the same versioned protocol as the routing graph: gated
// incremental signals plus a GetAll2 snapshot for resync.
package apps

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrUnknownApp   = errors.New("apps: unknown app")
	ErrInvalidLevel = errors.New("apps: invalid app level")
)

// Level is the session-management level an app is run with.
type Level string

// App levels understood by the supervisor.
const (
	LevelZero        Level = "0"
	LevelOne         Level = "1"
	LevelLASH        Level = "lash"
	LevelJACKSession Level = "jacksession"
)

// ParseLevel validates a level string.
func ParseLevel(s string) (Level, error) {
	switch l := Level(s); l {
	case LevelZero, LevelOne, LevelLASH, LevelJACKSession:
		return l, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidLevel, s)
	}
}

// App is one supervised application.
type App struct {
	ID       uint64 `json:"id"`
	Name     string `json:"name"`
	Running  bool   `json:"running"`
	Terminal bool   `json:"terminal"`
	Level    Level  `json:"level"`
}

// Properties are the editable settings of an app.
type Properties struct {
	Name        string `json:"name"`
	CommandLine string `json:"commandline"`
	Running     bool   `json:"running"`
	Terminal    bool   `json:"terminal"`
	Level       Level  `json:"level"`
}

// Observer receives app list changes in the order they were applied.
type Observer interface {
	Cleared()
	AppAdded(app App)
	AppStateChanged(app App)
	AppRemoved(id uint64)
}

// NopObserver ignores every change.
type NopObserver struct{}

func (NopObserver) Cleared() {}
func (NopObserver) AppAdded(App) {}
func (NopObserver) AppStateChanged(App) {}
func (NopObserver) AppRemoved(uint64) {}
