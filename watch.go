package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/patchbay-go/internal/config"
	"github.com/tonimelisma/patchbay-go/internal/journal"
	"github.com/tonimelisma/patchbay-go/internal/session"
)

const (
	// journalPruneInterval is how often a running watch trims the journal.
	journalPruneInterval = time.Hour

	metricsShutdownTimeout = 5 * time.Second
	metricsHeaderTimeout   = 5 * time.Second
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Mirror the session and print every change",
		Long: `Connect to the bus and keep mirrors of the studio, its rooms, their graphs,
and their app lists. Every change is printed as it is applied; with --json
each change is one JSON object per line.

The watcher reconnects when the bus goes away and resynchronizes every
mirror afterwards. When [journal] is enabled each change is also recorded
for "history". Edits to the config file, or "reload", update the log level
and the [view] filters without a restart.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}

	cmd.Flags().Bool("no-journal", false, "do not record changes even if [journal] is enabled")

	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	logger := cc.Logger
	cfg := cc.Cfg

	sigCtx, hup, stopSignals := watchSignals(cmd.Context(), logger)
	defer stopSignals()

	cleanup, err := writePIDFile(config.PIDFilePath(), cfg.Bus.URL)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	_, _, poll, retention := cfg.Durations()

	var j *journal.Journal

	if noJournal, _ := cmd.Flags().GetBool("no-journal"); cfg.Journal.Enabled && !noJournal {
		j, err = journal.Open(ctx, cfg.JournalPath(), logger)
		if err != nil {
			return err
		}
		defer j.Close()
	}

	p := newPrinter(cc.Out, cc.Flags.JSON, useColor(cfg.View.Color, cc.Out), logger)
	p.SetHide(config.NewHideFilter(cfg.View.Hide))

	s := session.New(session.Config{
		Bus:          dialBus(cfg, logger),
		PollInterval: poll,
		Journal:      j,
		Observers:    p.observers(),
		Logger:       logger,
	})

	// The holder tracks the file's own settings so a reload compares like
	// with like; flag and env overrides are reapplied by applyReload.
	fileCfg, err := config.LoadOrDefault(cc.CfgPath)
	if err != nil {
		fileCfg = cfg
	}

	holder := config.NewHolder(fileCfg, cc.CfgPath)
	apply := func(next *config.Config) {
		applyReload(cc, p, cfg, next)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// Nothing else can make progress once the session is gone.
		defer cancel()

		return s.Run(gctx)
	})

	g.Go(func() error {
		if err := config.Watch(gctx, holder, logger, apply); err != nil {
			logger.Warn("config file watching disabled",
				slog.String("error", err.Error()),
			)
		}

		return nil
	})

	g.Go(func() error {
		return reloadOnSIGHUP(gctx, hup, holder, logger, apply)
	})

	if cfg.Metrics.Listen != "" {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.Metrics.Listen, logger)
		})
	}

	if j != nil {
		g.Go(func() error {
			return pruneJournal(gctx, j, retention, logger)
		})
	}

	logger.Info("watching",
		slog.String("bus", cfg.Bus.URL),
		slog.Bool("journal", j != nil),
		slog.String("metrics", cfg.Metrics.Listen),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

// applyReload pushes the reloadable parts of next into the running watch.
// The bus URL is fixed for the lifetime of the process.
func applyReload(cc *CLIContext, p *printer, started, next *config.Config) {
	env := config.ReadEnvOverrides()

	levelCfg := next
	if env.LogLevel != "" {
		pinned := *next
		pinned.Logging.LogLevel = env.LogLevel
		levelCfg = &pinned
	}

	cc.Level.Set(effectiveLevel(levelCfg, cc.Flags))
	p.SetHide(config.NewHideFilter(next.View.Hide))

	if next.Bus.URL != started.Bus.URL && cc.Flags.BusURL == "" && env.BusURL == "" {
		cc.Logger.Warn("bus url change requires restart",
			slog.String("running", started.Bus.URL),
			slog.String("configured", next.Bus.URL),
		)
	}
}

// reloadOnSIGHUP re-reads the config file on every signal from hup until
// ctx is done. An invalid file keeps the previous config.
func reloadOnSIGHUP(ctx context.Context, hup <-chan struct{}, h *config.Holder, logger *slog.Logger, apply func(*config.Config)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
		}

		logger.Info("received SIGHUP, reloading config",
			slog.String("path", h.Path()),
		)

		cfg, changed, err := h.Reload()

		switch {
		case err != nil:
			logger.Warn("config reload failed, keeping previous config",
				slog.String("error", err.Error()),
			)
		case !changed:
			logger.Info("config unchanged")
		default:
			apply(cfg)
		}
	}
}

// serveMetrics exposes the Prometheus registry on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics: listening on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: metricsHeaderTimeout,
	}

	serveErr := make(chan error, 1)

	go func() { serveErr <- srv.Serve(ln) }()

	logger.Info("serving metrics",
		slog.String("addr", ln.Addr().String()),
	)

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("metrics: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics: shutdown: %w", err)
		}

		return nil
	}
}

// pruneJournal trims the journal to retention now and then once per
// journalPruneInterval.
func pruneJournal(ctx context.Context, j *journal.Journal, retention time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(journalPruneInterval)
	defer ticker.Stop()

	for {
		n, err := j.Prune(ctx, retention)

		switch {
		case err != nil && ctx.Err() == nil:
			logger.Warn("journal prune failed",
				slog.String("error", err.Error()),
			)
		case n > 0:
			logger.Debug("journal pruned",
				slog.Int64("events", n),
				slog.Duration("retention", retention),
			)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
