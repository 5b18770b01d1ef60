package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// These tests signal the test process itself and stay sequential so each
// handler is installed before its signal arrives.

func TestWatchSignals_SIGTERMCancels(t *testing.T) {
	parent, cancel := context.WithCancel(t.Context())
	defer cancel()

	ctx, _, stop := watchSignals(parent, discardLogger())
	defer stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		require.FailNow(t, "context not canceled after SIGTERM")
	}

	assert.NoError(t, parent.Err(), "only the derived context is canceled")
}

func TestWatchSignals_SIGHUPCoalesces(t *testing.T) {
	ctx, hup, stop := watchSignals(t.Context(), discardLogger())
	defer stop()

	for range 3 {
		require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGHUP))
	}

	// Give the handler time to see all three before anything is drained.
	time.Sleep(300 * time.Millisecond)

	select {
	case <-hup:
	default:
		require.FailNow(t, "SIGHUP not delivered")
	}

	select {
	case <-hup:
		assert.Fail(t, "pending SIGHUPs were not coalesced")
	default:
	}

	assert.NoError(t, ctx.Err(), "SIGHUP must not stop the watcher")
}

func TestWatchSignals_StopCancels(t *testing.T) {
	ctx, _, stop := watchSignals(t.Context(), discardLogger())

	stop()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		require.FailNow(t, "context not canceled by stop")
	}
}
