package config

// Default values for configuration options. These are "layer 0" of the
// four-layer override chain.
const (
	defaultBusURL            = "ws://127.0.0.1:7140/bus"
	defaultCallTimeout       = "500ms"
	defaultReconnectInterval = "2s"
	defaultPollInterval      = "500ms"
	defaultLogLevel          = "info"
	defaultLogFormat         = "text"
	defaultJournalRetention  = "168h"
	defaultColor             = "auto"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding, so unset fields keep defaults.
func DefaultConfig() *Config {
	return &Config{
		Bus: BusConfig{
			URL:               defaultBusURL,
			CallTimeout:       defaultCallTimeout,
			ReconnectInterval: defaultReconnectInterval,
		},
		Presence: PresenceConfig{
			PollInterval: defaultPollInterval,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Journal: JournalConfig{
			Enabled:   true,
			Retention: defaultJournalRetention,
		},
		View: ViewConfig{
			Color: defaultColor,
		},
	}
}
