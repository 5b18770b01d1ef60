package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/patchbay-go/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagBusURL     string
	flagJSON       bool
	flagVerbose    bool
	flagDebug      bool
	flagQuiet      bool
)

// skipConfigAnnotation marks commands that do not need the resolved
// configuration. PersistentPreRunE still builds a CLIContext for them, with
// a bootstrap logger and a nil Cfg.
const skipConfigAnnotation = "skip-config"

// CLIFlags is a snapshot of the persistent flags taken after parsing.
type CLIFlags struct {
	ConfigPath string
	BusURL     string
	JSON       bool
	Verbose    bool
	Debug      bool
	Quiet      bool
}

// CLIContext carries everything a command needs. It is stored in the
// command's context by PersistentPreRunE.
type CLIContext struct {
	Flags   CLIFlags
	Cfg     *config.Config // nil for skipConfigAnnotation commands
	CfgPath string
	Logger  *slog.Logger
	Out     io.Writer // command output, stdout unless redirected

	// Level is the logger's level. The watch command adjusts it on reload.
	Level *slog.LevelVar
}

type cliContextKey struct{}

func withCLIContext(ctx context.Context, cc *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cc)
}

func cliContextFrom(ctx context.Context) (*CLIContext, bool) {
	if ctx == nil {
		return nil, false
	}

	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)

	return cc, ok
}

// mustCLIContext returns the CLIContext set by PersistentPreRunE. A missing
// context is a programming error.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := cliContextFrom(ctx)
	if !ok {
		panic("BUG: CLIContext not found in command context")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patchbay-go",
		Short: "Session manager patchbay client",
		Long: `A headless client for an audio session manager. It mirrors the
routing graph, app lists and rooms of the loaded studio over the session bus,
and can watch, inspect and edit them from the command line.`,
		Version: version,
		// Silence Cobra's default error/usage printing, we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := newCLIContext(cmd)
			if err != nil {
				return err
			}

			cmd.SetContext(withCLIContext(cmd.Context(), cc))

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagBusURL, "bus", "", "bus URL (overrides [bus] url)")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable info logging")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newReloadCmd())
	cmd.AddCommand(newGraphCmd())
	cmd.AddCommand(newConnectCmd())
	cmd.AddCommand(newDisconnectCmd())
	cmd.AddCommand(newClientCmd())
	cmd.AddCommand(newPortCmd())
	cmd.AddCommand(newAppsCmd())
	cmd.AddCommand(newRoomsCmd())
	cmd.AddCommand(newProjectCmd())
	cmd.AddCommand(newStudioCmd())
	cmd.AddCommand(newDaemonCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func currentFlags() CLIFlags {
	return CLIFlags{
		ConfigPath: flagConfigPath,
		BusURL:     flagBusURL,
		JSON:       flagJSON,
		Verbose:    flagVerbose,
		Debug:      flagDebug,
		Quiet:      flagQuiet,
	}
}

// newCLIContext snapshots the flags, resolves the configuration unless the
// command opts out, and builds the logger.
func newCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	cc := &CLIContext{Flags: currentFlags(), Out: cmd.OutOrStdout()}

	if cmd.Annotations[skipConfigAnnotation] == "" {
		if err := loadConfig(cc); err != nil {
			return nil, err
		}
	}

	cc.Logger, cc.Level = buildLogger(cc.Cfg, cc.Flags, os.Stderr)

	return cc, nil
}

// loadConfig resolves the effective configuration from the four-layer
// override chain and stores it in cc.
func loadConfig(cc *CLIContext) error {
	cli := config.CLIOverrides{
		ConfigPath: cc.Flags.ConfigPath,
		BusURL:     cc.Flags.BusURL,
		LogLevel:   flagLogLevel(cc.Flags),
	}

	cfg, path, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cc.Cfg = cfg
	cc.CfgPath = path

	return nil
}

// flagLogLevel returns the log level implied by --verbose, --debug or
// --quiet, or "" when none is set.
func flagLogLevel(f CLIFlags) string {
	switch {
	case f.Debug:
		return "debug"
	case f.Verbose:
		return "info"
	case f.Quiet:
		return "error"
	default:
		return ""
	}
}

// effectiveLevel combines the config log level with the CLI flags. Flags
// always win. Without a config the bootstrap level is Warn.
func effectiveLevel(cfg *config.Config, f CLIFlags) slog.Level {
	if lvl := flagLogLevel(f); lvl != "" {
		return parseLevel(lvl)
	}

	if cfg == nil {
		return slog.LevelWarn
	}

	return parseLevel(cfg.Logging.LogLevel)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildLogger creates the logger configured by the resolved config and CLI
// flags. The returned LevelVar lets a long-running command change the level
// when the config is reloaded.
func buildLogger(cfg *config.Config, f CLIFlags, w io.Writer) (*slog.Logger, *slog.LevelVar) {
	level := new(slog.LevelVar)
	level.Set(effectiveLevel(cfg, f))

	opts := &slog.HandlerOptions{Level: level}

	if cfg != nil && strings.EqualFold(cfg.Logging.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), level
	}

	return slog.New(slog.NewTextHandler(w, opts)), level
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
