// Package config implements TOML configuration loading, validation, and
// path resolution for patchbay-go. It supports a four-layer override chain
// (defaults -> config file -> environment -> CLI flags).
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Bus      BusConfig      `toml:"bus" json:"bus"`
	Presence PresenceConfig `toml:"presence" json:"presence"`
	Logging  LoggingConfig  `toml:"logging" json:"logging"`
	Journal  JournalConfig  `toml:"journal" json:"journal"`
	Metrics  MetricsConfig  `toml:"metrics" json:"metrics"`
	View     ViewConfig     `toml:"view" json:"view"`
}

// BusConfig controls the connection to the message bus.
type BusConfig struct {
	URL               string `toml:"url" json:"url"`
	CallTimeout       string `toml:"call_timeout" json:"call_timeout"`
	ReconnectInterval string `toml:"reconnect_interval" json:"reconnect_interval"`
}

// PresenceConfig controls daemon presence detection.
type PresenceConfig struct {
	PollInterval string `toml:"poll_interval" json:"poll_interval"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level" json:"log_level"`
	LogFormat string `toml:"log_format" json:"log_format"`
}

// JournalConfig controls the change journal. An empty Path means the
// default location under the data directory.
type JournalConfig struct {
	Enabled   bool   `toml:"enabled" json:"enabled"`
	Path      string `toml:"path" json:"path"`
	Retention string `toml:"retention" json:"retention"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Listen address
// disables it.
type MetricsConfig struct {
	Listen string `toml:"listen" json:"listen"`
}

// ViewConfig controls what the CLI prints. Hide holds gitignore-style
// patterns matched against "client/port" paths.
type ViewConfig struct {
	Hide  []string `toml:"hide" json:"hide"`
	Color string   `toml:"color" json:"color"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Empty strings mean "not specified".
type CLIOverrides struct {
	ConfigPath string // --config
	BusURL     string // --bus
	LogLevel   string // derived from --verbose / --quiet / --debug
}

// Durations returns the parsed bus and presence durations. Validate has
// already rejected unparsable values, so errors here are impossible for a
// validated Config and fall back to zero.
func (c *Config) Durations() (callTimeout, reconnect, poll, retention time.Duration) {
	callTimeout, _ = time.ParseDuration(c.Bus.CallTimeout)
	reconnect, _ = time.ParseDuration(c.Bus.ReconnectInterval)
	poll, _ = time.ParseDuration(c.Presence.PollInterval)
	retention, _ = time.ParseDuration(c.Journal.Retention)

	return callTimeout, reconnect, poll, retention
}

// JournalPath returns the journal database path, falling back to the
// default data directory.
func (c *Config) JournalPath() string {
	if c.Journal.Path != "" {
		return expandTilde(c.Journal.Path)
	}

	return DefaultJournalPath()
}
