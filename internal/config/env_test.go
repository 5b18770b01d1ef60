package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadEnvOverrides(t *testing.T) {
	t.Setenv(EnvConfig, "/tmp/c.toml")
	t.Setenv(EnvBusURL, "ws://h:1/bus")
	t.Setenv(EnvLogLevel, "warn")

	assert.Equal(t, EnvOverrides{
		ConfigPath: "/tmp/c.toml",
		BusURL:     "ws://h:1/bus",
		LogLevel:   "warn",
	}, ReadEnvOverrides())
}

func TestReadEnvOverrides_BlankIsUnset(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvBusURL, "   ")
	t.Setenv(EnvLogLevel, " debug\n")

	assert.Equal(t, EnvOverrides{LogLevel: "debug"}, ReadEnvOverrides())
}

func TestEnvOverrides_Apply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		env     EnvOverrides
		wantURL string
		wantLvl string
	}{
		{"empty leaves file values", EnvOverrides{}, "ws://file:1/bus", "info"},
		{"bus url only", EnvOverrides{BusURL: "ws://env:2/bus"}, "ws://env:2/bus", "info"},
		{"log level only", EnvOverrides{LogLevel: "error"}, "ws://file:1/bus", "error"},
		{"config path is not a config value", EnvOverrides{ConfigPath: "/x.toml"}, "ws://file:1/bus", "info"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			cfg.Bus.URL = "ws://file:1/bus"
			cfg.Logging.LogLevel = "info"

			tt.env.apply(cfg)

			assert.Equal(t, tt.wantURL, cfg.Bus.URL)
			assert.Equal(t, tt.wantLvl, cfg.Logging.LogLevel)
		})
	}
}
