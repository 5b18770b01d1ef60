package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/patchbay-go/internal/bus"
	"github.com/tonimelisma/patchbay-go/internal/config"
	"github.com/tonimelisma/patchbay-go/internal/journal"
	"github.com/tonimelisma/patchbay-go/internal/patchbay"
)

// lockedBuffer is a bytes.Buffer safe for the watch goroutine and the
// test to share.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

func TestWatch_PrintsLiveChangesAndJournals(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	env := newCLIEnv(t, "")
	scriptStudio(env.bus.Fake)

	out := &lockedBuffer{}

	cmd := newRootCmd()
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--config", env.cfgPath, "--quiet", "--json", "watch"})

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	done := make(chan error, 1)

	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"studio+"`)
	}, 2*time.Second, 10*time.Millisecond)

	_, err := os.Stat(config.PIDFilePath())
	require.NoError(t, err, "watch should hold a PID file")

	sig, err := bus.NewSignal(studioObj, bus.IfacePatchbay, patchbay.SignalClientAppeared,
		uint64(8), uint64(5), "reverb")
	require.NoError(t, err)

	env.bus.events <- bus.Event{Kind: bus.EventSignal, Signal: sig}

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"subject":"reverb"`)
	}, 2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "watch did not stop after cancel")
	}

	_, err = os.Stat(config.PIDFilePath())
	assert.True(t, os.IsNotExist(err), "PID file should be removed on exit")

	cfg, err := config.Load(env.cfgPath)
	require.NoError(t, err)

	j, err := journal.Open(t.Context(), cfg.JournalPath(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	defer j.Close()

	cursor, ok, err := j.Cursor(t.Context(), "graph:"+studioObj.Path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(8), cursor.Version)
}

func TestWatch_SecondInstanceRefused(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	cleanup, err := writePIDFile(config.PIDFilePath(), "ws://127.0.0.1:7140/bus")
	require.NoError(t, err)

	defer cleanup()

	env := newCLIEnv(t, "")

	_, err = env.run("watch")
	require.ErrorIs(t, err, errWatcherRunning)
}

func TestApplyReload_UpdatesLevelAndHideFilter(t *testing.T) {
	t.Setenv(config.EnvLogLevel, "")
	t.Setenv(config.EnvBusURL, "")

	started := config.DefaultConfig()
	started.Logging.LogLevel = "warn"

	var logs bytes.Buffer

	logger, level := buildLogger(started, CLIFlags{}, &logs)
	cc := &CLIContext{Cfg: started, Logger: logger, Level: level}

	p, _ := newTestPrinter(t, true)

	next := config.DefaultConfig()
	next.Logging.LogLevel = "debug"
	next.View.Hide = []string{"system/"}
	next.Bus.URL = "ws://elsewhere:7140/bus"

	applyReload(cc, p, started, next)

	assert.Equal(t, slog.LevelDebug, level.Level())
	assert.True(t, p.filter().HiddenClient("system"))
	assert.Contains(t, logs.String(), "bus url change requires restart")
}

func TestApplyReload_FlagsKeepPrecedence(t *testing.T) {
	t.Setenv(config.EnvLogLevel, "")

	started := config.DefaultConfig()

	logger, level := buildLogger(started, CLIFlags{Quiet: true}, io.Discard)
	cc := &CLIContext{Cfg: started, Logger: logger, Level: level, Flags: CLIFlags{Quiet: true}}

	p, _ := newTestPrinter(t, true)

	next := config.DefaultConfig()
	next.Logging.LogLevel = "debug"

	applyReload(cc, p, started, next)

	assert.Equal(t, slog.LevelError, level.Level())
}

func TestReloadOnSIGHUP_AppliesOnlyChanges(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[logging]\nlog_level = \"warn\"\n"), 0o600))

	initial, err := config.Load(path)
	require.NoError(t, err)

	h := config.NewHolder(initial, path)
	hup := make(chan struct{})
	applied := make(chan *config.Config, 4)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)

	go func() {
		done <- reloadOnSIGHUP(ctx, hup, h, slog.New(slog.NewTextHandler(io.Discard, nil)), func(cfg *config.Config) {
			applied <- cfg
		})
	}()

	// Unchanged file, then a broken one: neither is applied.
	hup <- struct{}{}

	replaceFile(t, path, "[logging\n")
	hup <- struct{}{}

	replaceFile(t, path, "[logging]\nlog_level = \"debug\"\n")
	hup <- struct{}{}

	select {
	case cfg := <-applied:
		assert.Equal(t, "debug", cfg.Logging.LogLevel)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "reload was not applied")
	}

	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, applied)
	assert.Equal(t, uint64(1), h.Generation())
}

// replaceFile swaps in new content by rename so a concurrent reader never
// sees a partial file.
func replaceFile(t *testing.T, path, content string) {
	t.Helper()

	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o600))
	require.NoError(t, os.Rename(tmp, path))
}
