package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/patchbay-go/internal/apps"
	"github.com/tonimelisma/patchbay-go/internal/session"
)

func newAppsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apps",
		Short: "Manage supervised applications",
		Long: `List and control the applications supervised by the studio, or by a
room with --room. Apps are given by numeric id or by name.`,
	}

	cmd.PersistentFlags().String("room", "", "room name or object path")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List apps",
		Args:  cobra.NoArgs,
		RunE:  graphRunE(runAppsList),
	})

	cmd.AddCommand(newAppActionCmd("start", "Start a stopped app", "Started", (*apps.List).Start))
	cmd.AddCommand(newAppActionCmd("stop", "Stop a running app", "Stopped", (*apps.List).Stop))
	cmd.AddCommand(newAppActionCmd("kill", "Kill a running app", "Killed", (*apps.List).Kill))
	cmd.AddCommand(newAppActionCmd("remove", "Remove an app", "Removed", (*apps.List).Remove))
	cmd.AddCommand(newAppsRunCmd())
	cmd.AddCommand(newAppsShowCmd())
	cmd.AddCommand(newAppsRenameCmd())

	return cmd
}

func runAppsList(_ context.Context, cc *CLIContext, g *session.Graph, _ []string) error {
	list := g.Apps.Apps()

	if cc.Flags.JSON {
		enc := json.NewEncoder(cc.Out)
		enc.SetIndent("", "  ")

		return enc.Encode(list)
	}

	if len(list) == 0 {
		fmt.Fprintf(cc.Out, "No apps in %s.\n", g.Scope)
		return nil
	}

	rows := make([][]string, 0, len(list))
	for _, a := range list {
		rows = append(rows, []string{
			strconv.FormatUint(a.ID, 10),
			a.Name,
			appState(a),
			yesNo(a.Terminal),
			string(a.Level),
		})
	}

	pal := newPalette(cc.Out, useColor(cc.Cfg.View.Color, cc.Out))
	printStyledTable(cc.Out, pal.Header, []string{"ID", "NAME", "STATE", "TERMINAL", "LEVEL"}, rows)

	return nil
}

func appState(a apps.App) string {
	if a.Running {
		return "running"
	}

	return "stopped"
}

// findApp resolves an app by numeric id or by name.
func findApp(l *apps.List, ref string) (apps.App, error) {
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		if a, ok := l.App(id); ok {
			return a, nil
		}
	}

	for _, a := range l.Apps() {
		if a.Name == ref {
			return a, nil
		}
	}

	return apps.App{}, fmt.Errorf("%w: %q", apps.ErrUnknownApp, ref)
}

type appAction func(l *apps.List, ctx context.Context, id uint64) error

func newAppActionCmd(use, short, done string, action appAction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " APP",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: graphRunE(func(ctx context.Context, cc *CLIContext, g *session.Graph, args []string) error {
			a, err := findApp(g.Apps, args[0])
			if err != nil {
				return err
			}

			if err := action(g.Apps, ctx, a.ID); err != nil {
				return err
			}

			cc.Statusf("%s %s\n", done, a.Name)

			return nil
		}),
	}
}

func newAppsRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run COMMANDLINE",
		Short: "Run a new app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			terminal, _ := cmd.Flags().GetBool("terminal")
			levelFlag, _ := cmd.Flags().GetString("level")

			level, err := apps.ParseLevel(levelFlag)
			if err != nil {
				return err
			}

			run := graphRunE(func(ctx context.Context, cc *CLIContext, g *session.Graph, args []string) error {
				if err := g.Apps.Run(ctx, args[0], name, terminal, level); err != nil {
					return err
				}

				cc.Statusf("Started %s\n", args[0])

				return nil
			})

			return run(cmd, args)
		},
	}

	cmd.Flags().String("name", "", "app name (default: derived by the supervisor)")
	cmd.Flags().Bool("terminal", false, "run inside a terminal")
	cmd.Flags().String("level", string(apps.LevelZero), "session level: 0, 1, lash or jacksession")

	return cmd
}

func newAppsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show APP",
		Short: "Show the settings of an app",
		Args:  cobra.ExactArgs(1),
		RunE: graphRunE(func(ctx context.Context, cc *CLIContext, g *session.Graph, args []string) error {
			a, err := findApp(g.Apps, args[0])
			if err != nil {
				return err
			}

			p, err := g.Apps.Properties(ctx, a.ID)
			if err != nil {
				return err
			}

			if cc.Flags.JSON {
				enc := json.NewEncoder(cc.Out)
				enc.SetIndent("", "  ")

				return enc.Encode(p)
			}

			fmt.Fprintf(cc.Out, "Name:     %s\n", p.Name)
			fmt.Fprintf(cc.Out, "Command:  %s\n", p.CommandLine)
			fmt.Fprintf(cc.Out, "Running:  %s\n", yesNo(p.Running))
			fmt.Fprintf(cc.Out, "Terminal: %s\n", yesNo(p.Terminal))
			fmt.Fprintf(cc.Out, "Level:    %s\n", p.Level)

			return nil
		}),
	}
}

func newAppsRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename APP NAME",
		Short: "Rename an app",
		Args:  cobra.ExactArgs(2),
		RunE: graphRunE(func(ctx context.Context, cc *CLIContext, g *session.Graph, args []string) error {
			a, err := findApp(g.Apps, args[0])
			if err != nil {
				return err
			}

			p, err := g.Apps.Properties(ctx, a.ID)
			if err != nil {
				return err
			}

			p.Name = args[1]

			if err := g.Apps.SetProperties(ctx, a.ID, p); err != nil {
				return err
			}

			cc.Statusf("Renamed app %s to %s\n", a.Name, args[1])

			return nil
		}),
	}
}
