package config

import (
	"os"
	"strings"
)

// Environment variables read by ReadEnvOverrides.
const (
	EnvConfig   = "PATCHBAY_GO_CONFIG"
	EnvBusURL   = "PATCHBAY_GO_BUS_URL"
	EnvLogLevel = "PATCHBAY_GO_LOG_LEVEL"
)

// EnvOverrides is the environment layer of Resolve. It sits between the
// config file and the CLI flags: ConfigPath picks the file unless --config
// is given, and BusURL and LogLevel replace the file's [bus] url and
// [logging] log_level before the flags get their turn. Empty fields leave
// the lower layer alone.
//
// A running watch keeps the environment it started with, so applyReload
// treats a set BusURL or LogLevel as pinned across config reloads.
type EnvOverrides struct {
	ConfigPath string
	BusURL     string
	LogLevel   string
}

// ReadEnvOverrides reads the environment layer. Surrounding whitespace is
// dropped, so a variable set to blanks counts as unset.
func ReadEnvOverrides() EnvOverrides {
	get := func(key string) string {
		return strings.TrimSpace(os.Getenv(key))
	}

	return EnvOverrides{
		ConfigPath: get(EnvConfig),
		BusURL:     get(EnvBusURL),
		LogLevel:   get(EnvLogLevel),
	}
}

// apply writes the set overrides into cfg.
func (e EnvOverrides) apply(cfg *Config) {
	if e.BusURL != "" {
		cfg.Bus.URL = e.BusURL
	}

	if e.LogLevel != "" {
		cfg.Logging.LogLevel = e.LogLevel
	}
}
