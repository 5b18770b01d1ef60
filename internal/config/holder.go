package config

import (
	"reflect"
	"sync"
)

// Holder is the live configuration of a long-running command. Both reload
// triggers (SIGHUP and file changes) go through Reload, so a save that
// fires both is applied once.
type Holder struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
	gen  uint64
}

// NewHolder creates a Holder for the config loaded from path. An empty
// path means defaults only; Reload then always reports no change.
func NewHolder(cfg *Config, path string) *Holder {
	return &Holder{cfg: cfg, path: path}
}

// Config returns the current config. Callers must not modify it.
func (h *Holder) Config() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.cfg
}

// Path returns the config file path. It never changes.
func (h *Holder) Path() string {
	return h.path
}

// Generation counts the configs that replaced the initial one.
func (h *Holder) Generation() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.gen
}

// Update replaces the config unconditionally.
func (h *Holder) Update(cfg *Config) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.cfg = cfg
	h.gen++
}

// Reload re-reads the config file. It returns the new config and true when
// the file's effective settings differ from the held ones. An invalid file
// returns the error and leaves the held config in place.
func (h *Holder) Reload() (*Config, bool, error) {
	if h.path == "" {
		return h.Config(), false, nil
	}

	cfg, err := LoadOrDefault(h.path)
	if err != nil {
		return nil, false, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if reflect.DeepEqual(h.cfg, cfg) {
		return h.cfg, false, nil
	}

	h.cfg = cfg
	h.gen++

	return cfg, true, nil
}
