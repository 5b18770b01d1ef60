package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/patchbay-go/internal/control"
	"github.com/tonimelisma/patchbay-go/internal/session"
)

func newStudioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "studio",
		Short: "Manage studios",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the daemon and studio state",
		Args:  cobra.NoArgs,
		RunE:  viewsRunE(runStudioStatus),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved studios",
		Args:  cobra.NoArgs,
		RunE: controlRunE(func(ctx context.Context, cc *CLIContext, ctl *control.Controller, _ []string) error {
			studios, err := ctl.Studios(ctx)
			if err != nil {
				return err
			}

			if cc.Flags.JSON {
				enc := json.NewEncoder(cc.Out)
				enc.SetIndent("", "  ")

				return enc.Encode(studios)
			}

			if len(studios) == 0 {
				fmt.Fprintln(cc.Out, "No saved studios.")
				return nil
			}

			for _, s := range studios {
				fmt.Fprintln(cc.Out, s.Name)
			}

			return nil
		}),
	})

	cmd.AddCommand(newStudioNameCmd("load NAME", "Load a saved studio", "Loading studio %s\n", (*control.Controller).LoadStudio))
	cmd.AddCommand(newStudioNameCmd("new NAME", "Create and load an empty studio", "Created studio %s\n", (*control.Controller).NewStudio))
	cmd.AddCommand(newStudioNameCmd("delete NAME", "Delete a saved studio", "Deleted studio %s\n", (*control.Controller).DeleteStudio))
	cmd.AddCommand(newStudioNameCmd("rename NAME", "Rename the loaded studio", "Renamed studio to %s\n", (*control.Controller).RenameStudio))

	cmd.AddCommand(newStudioActionCmd("start", "Start the loaded studio", "Starting studio", (*control.Controller).StartStudio))
	cmd.AddCommand(newStudioActionCmd("stop", "Stop the loaded studio", "Stopping studio", (*control.Controller).StopStudio))
	cmd.AddCommand(newStudioActionCmd("save", "Save the loaded studio", "Saved studio", (*control.Controller).SaveStudio))
	cmd.AddCommand(newStudioActionCmd("unload", "Unload the loaded studio", "Unloading studio", (*control.Controller).UnloadStudio))

	return cmd
}

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Control the session daemon",
	}

	cmd.AddCommand(newStudioActionCmd("exit", "Ask the session daemon to exit", "Session daemon exiting", (*control.Controller).Exit))

	return cmd
}

// studioStatus is the --json form of "studio status".
type studioStatus struct {
	Daemon string        `json:"daemon"`
	State  control.State `json:"state"`
	Studio string        `json:"studio,omitempty"`
	Rooms  int           `json:"rooms"`
}

func runStudioStatus(_ context.Context, cc *CLIContext, v *session.Views, _ []string) error {
	st := studioStatus{
		Daemon: "absent",
		State:  v.Tracker.State(),
		Studio: v.Tracker.StudioName(),
	}

	if v.Tracker.Up() {
		st.Daemon = "running"
	}

	if v.Rooms != nil {
		st.Rooms = len(v.Rooms.Rooms())
	}

	if cc.Flags.JSON {
		return json.NewEncoder(cc.Out).Encode(st)
	}

	fmt.Fprintf(cc.Out, "Daemon: %s\n", st.Daemon)
	fmt.Fprintf(cc.Out, "State:  %s\n", st.State)

	if st.Studio != "" {
		fmt.Fprintf(cc.Out, "Studio: %s (%d rooms)\n", st.Studio, st.Rooms)
	}

	return nil
}

type controlFunc func(ctx context.Context, cc *CLIContext, ctl *control.Controller, args []string) error

// controlRunE runs fn with the daemon controller once the daemon is known
// to be present.
func controlRunE(fn controlFunc) func(*cobra.Command, []string) error {
	return viewsRunE(func(ctx context.Context, cc *CLIContext, v *session.Views, args []string) error {
		if err := requireDaemon(v); err != nil {
			return err
		}

		return fn(ctx, cc, v.Tracker.Controller(), args)
	})
}

func newStudioNameCmd(use, short, done string, call func(*control.Controller, context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: controlRunE(func(ctx context.Context, cc *CLIContext, ctl *control.Controller, args []string) error {
			if err := call(ctl, ctx, args[0]); err != nil {
				return err
			}

			cc.Statusf(done, args[0])

			return nil
		}),
	}
}

func newStudioActionCmd(use, short, done string, call func(*control.Controller, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: controlRunE(func(ctx context.Context, cc *CLIContext, ctl *control.Controller, _ []string) error {
			if err := call(ctl, ctx); err != nil {
				return err
			}

			cc.Statusf("%s\n", done)

			return nil
		}),
	}
}
