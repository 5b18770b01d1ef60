package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/patchbay-go/internal/bus"
	"github.com/tonimelisma/patchbay-go/internal/config"
	"github.com/tonimelisma/patchbay-go/internal/session"
)

// connectTimeout bounds how long one-shot commands wait for the bus.
const connectTimeout = 5 * time.Second

// dialBus creates the bus transport for a command. Tests replace it.
var dialBus = func(cfg *config.Config, logger *slog.Logger) session.Bus {
	callTimeout, reconnect, _, _ := cfg.Durations()

	return bus.NewClient(bus.ClientConfig{
		URL:               cfg.Bus.URL,
		CallTimeout:       callTimeout,
		ReconnectInterval: reconnect,
		Logger:            logger,
	})
}

// withViews connects to the bus, waits until the daemon has been probed
// and the views of a loaded studio are built, and runs fn on the event
// loop. The session is torn down before withViews returns.
func withViews(ctx context.Context, cc *CLIContext, fn func(ctx context.Context, v *session.Views) error) error {
	_, _, poll, _ := cc.Cfg.Durations()

	s := session.New(session.Config{
		Bus:          dialBus(cc.Cfg, cc.Logger),
		PollInterval: poll,
		Logger:       cc.Logger,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)

	go func() { runErr <- s.Run(ctx) }()

	stop := func() {
		cancel()

		if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
			cc.Logger.Debug("session stopped with error",
				slog.String("error", err.Error()),
			)
		}
	}

	timer := time.NewTimer(connectTimeout)
	defer timer.Stop()

	select {
	case <-s.Ready():
	case <-timer.C:
		stop()

		return fmt.Errorf("connecting to %s: no bus connection after %s", cc.Cfg.Bus.URL, connectTimeout)
	case err := <-runErr:
		if err == nil {
			err = context.Canceled
		}

		return fmt.Errorf("connecting to %s: %w", cc.Cfg.Bus.URL, err)
	}

	err := s.Do(ctx, func(v *session.Views) error {
		return fn(ctx, v)
	})

	stop()

	return err
}

// viewsFunc is the body of a command that works on the whole view set.
type viewsFunc func(ctx context.Context, cc *CLIContext, v *session.Views, args []string) error

// viewsRunE adapts fn to a cobra RunE running on the event loop.
func viewsRunE(fn viewsFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cc := mustCLIContext(cmd.Context())

		return withViews(cmd.Context(), cc, func(ctx context.Context, v *session.Views) error {
			return fn(ctx, cc, v, args)
		})
	}
}

// requireDaemon fails when the session daemon is not on the bus.
func requireDaemon(v *session.Views) error {
	if !v.Tracker.Up() {
		return errors.New("session daemon is not running")
	}

	return nil
}
