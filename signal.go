package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// watchSignals installs the watcher's signal handling. The returned context
// is canceled on the first SIGINT or SIGTERM; a second one force-exits so a
// hung teardown can still be interrupted. SIGHUPs arriving while a reload
// is pending are coalesced into one on the returned channel. stop removes
// the handlers.
//
// Handlers are installed before watchSignals returns, so a "reload" that
// finds the PID file written afterwards cannot kill the process.
func watchSignals(parent context.Context, logger *slog.Logger) (ctx context.Context, hup <-chan struct{}, stop func()) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	reload := make(chan struct{}, 1)
	done := make(chan struct{})

	go func() {
		stopping := false

		for {
			select {
			case <-done:
				return
			case sig := <-sigCh:
				if sig == syscall.SIGHUP {
					select {
					case reload <- struct{}{}:
					default:
					}

					continue
				}

				if stopping {
					logger.Warn("received second signal, forcing exit",
						slog.String("signal", sig.String()),
					)
					os.Exit(1)
				}

				logger.Info("received signal, shutting down",
					slog.String("signal", sig.String()),
				)

				stopping = true
				cancel()
			}
		}
	}()

	stop = func() {
		signal.Stop(sigCh)
		close(done)
		cancel()
	}

	return ctx, reload, stop
}
