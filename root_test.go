package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/patchbay-go/internal/config"
)

// Global flag reset pattern: newRootCmd() binds flags via StringVar/BoolVar,
// which reset the global flag variables to their zero values. Tests must either:
//   - Build a CLIFlags value directly (direct function tests), or
//   - Use cmd.SetArgs() + cmd.Execute() to let Cobra parse flags (integration tests).

// --- buildLogger / effectiveLevel tests ---

func TestBuildLogger_Default(t *testing.T) {
	t.Parallel()

	logger, _ := buildLogger(nil, CLIFlags{}, &bytes.Buffer{})

	// Default level is Warn: Warn enabled, Info not.
	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelWarn))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
}

func TestBuildLogger_ConfigDebug(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Logging.LogLevel = "debug"

	logger, _ := buildLogger(cfg, CLIFlags{}, &bytes.Buffer{})

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestEffectiveLevel_FlagsOverrideConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Logging.LogLevel = "error"

	tests := []struct {
		name  string
		flags CLIFlags
		want  slog.Level
	}{
		{"config only", CLIFlags{}, slog.LevelError},
		{"verbose", CLIFlags{Verbose: true}, slog.LevelInfo},
		{"debug", CLIFlags{Debug: true}, slog.LevelDebug},
		{"quiet", CLIFlags{Quiet: true}, slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, effectiveLevel(cfg, tt.flags))
		})
	}
}

func TestBuildLogger_JSONFormat(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Logging.LogLevel = "info"
	cfg.Logging.LogFormat = "json"

	var buf bytes.Buffer

	logger, _ := buildLogger(cfg, CLIFlags{}, &buf)
	logger.Info("hello", slog.String("key", "value"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "value", line["key"])
}

func TestBuildLogger_LevelVarAdjusts(t *testing.T) {
	t.Parallel()

	logger, level := buildLogger(nil, CLIFlags{}, &bytes.Buffer{})
	require.False(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))

	level.Set(slog.LevelDebug)

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

// --- Cobra structure tests ---

func TestNewRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()

	expected := []string{
		"watch", "reload", "graph", "connect", "disconnect", "client", "port",
		"apps", "rooms", "project", "studio", "daemon", "history", "config",
	}
	for _, name := range expected {
		found := false

		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				found = true

				break
			}
		}

		assert.True(t, found, "expected subcommand %q not found", name)
	}
}

func TestNewRootCmd_PersistentFlags(t *testing.T) {
	cmd := newRootCmd()

	expectedFlags := []string{"config", "bus", "json", "verbose", "debug", "quiet"}
	for _, name := range expectedFlags {
		flag := cmd.PersistentFlags().Lookup(name)
		assert.NotNil(t, flag, "expected persistent flag %q not found", name)
	}
}

func TestNewRootCmd_MutualExclusivity(t *testing.T) {
	// Cobra enforces mutual exclusivity during Execute(). Verify that
	// combining --verbose/--debug/--quiet produces an error. "config path"
	// loads config from a temp file so nothing else can fail first.
	cfgPath := filepath.Join(t.TempDir(), "config.toml")

	pairs := [][]string{
		{"--verbose", "--debug"},
		{"--verbose", "--quiet"},
		{"--debug", "--quiet"},
	}

	for _, flags := range pairs {
		t.Run(flags[0]+"_"+flags[1], func(t *testing.T) {
			cmd := newRootCmd()
			cmd.SetArgs(append(flags, "--config", cfgPath, "config", "path"))

			err := cmd.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "none of the others can be")
		})
	}
}

func TestNewRootCmd_ReloadSkipsConfig(t *testing.T) {
	cmd := newRootCmd()

	sub, _, err := cmd.Find([]string{"reload"})
	require.NoError(t, err)

	sub.SetContext(context.Background())
	require.NoError(t, cmd.PersistentPreRunE(sub, nil))

	cc := mustCLIContext(sub.Context())
	assert.Nil(t, cc.Cfg)
	assert.NotNil(t, cc.Logger)
}

// --- loadConfig tests ---

func TestLoadConfig_ValidTOML(t *testing.T) {
	cfgFile := filepath.Join(t.TempDir(), "config.toml")

	tomlContent := `[bus]
url = "ws://127.0.0.1:7777/bus"

[logging]
log_level = "debug"
`
	require.NoError(t, os.WriteFile(cfgFile, []byte(tomlContent), 0o600))

	cc := &CLIContext{Flags: CLIFlags{ConfigPath: cfgFile}}

	require.NoError(t, loadConfig(cc))
	require.NotNil(t, cc.Cfg)

	assert.Equal(t, cfgFile, cc.CfgPath)
	assert.Equal(t, "ws://127.0.0.1:7777/bus", cc.Cfg.Bus.URL)
	assert.Equal(t, "debug", cc.Cfg.Logging.LogLevel)
}

func TestLoadConfig_BusFlagOverridesFile(t *testing.T) {
	cfgFile := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("[bus]\nurl = \"ws://file:1/bus\"\n"), 0o600))

	cc := &CLIContext{Flags: CLIFlags{ConfigPath: cfgFile, BusURL: "ws://flag:2/bus"}}

	require.NoError(t, loadConfig(cc))
	assert.Equal(t, "ws://flag:2/bus", cc.Cfg.Bus.URL)
}

func TestLoadConfig_MissingFile_Defaults(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "nonexistent.toml")

	cc := &CLIContext{Flags: CLIFlags{ConfigPath: cfgPath}}

	require.NoError(t, loadConfig(cc))
	require.NotNil(t, cc.Cfg)

	assert.Equal(t, config.DefaultConfig().Bus.URL, cc.Cfg.Bus.URL)
}

func TestLoadConfig_InvalidTOML(t *testing.T) {
	cfgFile := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("[bus]\nurll = \"typo\"\n"), 0o600))

	cc := &CLIContext{Flags: CLIFlags{ConfigPath: cfgFile}}

	err := loadConfig(cc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}

func TestConfigPath_PrintsResolvedPath(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.toml")

	var out bytes.Buffer

	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", cfgPath, "config", "path"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, cfgPath+"\n", out.String())
}

func TestConfigShow_JSON(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[view]\nhide = [\"system/monitor_*\"]\n"), 0o600))

	var out bytes.Buffer

	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", cfgPath, "--json", "config", "show"})

	require.NoError(t, cmd.Execute())

	var got config.Config
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, []string{"system/monitor_*"}, got.View.Hide)
}
