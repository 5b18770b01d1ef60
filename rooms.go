package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/patchbay-go/internal/control"
	"github.com/tonimelisma/patchbay-go/internal/rooms"
	"github.com/tonimelisma/patchbay-go/internal/session"
)

func newRoomsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "Manage the rooms of the loaded studio",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List rooms and their projects",
		Args:  cobra.NoArgs,
		RunE:  viewsRunE(runRoomsList),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "templates",
		Short: "List room templates",
		Args:  cobra.NoArgs,
		RunE:  viewsRunE(runRoomsTemplates),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "new NAME TEMPLATE",
		Short: "Create a room from a template",
		Args:  cobra.ExactArgs(2),
		RunE: viewsRunE(func(ctx context.Context, cc *CLIContext, v *session.Views, args []string) error {
			if v.Rooms == nil {
				return session.ErrNoStudio
			}

			if err := v.Rooms.NewRoom(ctx, args[0], args[1]); err != nil {
				return err
			}

			cc.Statusf("Created room %s from template %s\n", args[0], args[1])

			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a room",
		Args:  cobra.ExactArgs(1),
		RunE: viewsRunE(func(ctx context.Context, cc *CLIContext, v *session.Views, args []string) error {
			if v.Rooms == nil {
				return session.ErrNoStudio
			}

			room, err := v.Rooms.Find(args[0])
			if err != nil {
				return err
			}

			if err := v.Rooms.DeleteRoom(ctx, room.Name); err != nil {
				return err
			}

			cc.Statusf("Deleted room %s\n", room.Name)

			return nil
		}),
	})

	return cmd
}

// roomJSON is one room in --json output.
type roomJSON struct {
	rooms.Room
	Project *rooms.Project `json:"project,omitempty"`
}

func runRoomsList(_ context.Context, cc *CLIContext, v *session.Views, _ []string) error {
	if v.Rooms == nil {
		return session.ErrNoStudio
	}

	list := v.Rooms.Rooms()
	out := make([]roomJSON, 0, len(list))

	for _, r := range list {
		rj := roomJSON{Room: r}

		if g, err := v.Room(r.Object); err == nil && g.Project != nil {
			p := g.Project.Project()
			rj.Project = &p
		}

		out = append(out, rj)
	}

	if cc.Flags.JSON {
		enc := json.NewEncoder(cc.Out)
		enc.SetIndent("", "  ")

		return enc.Encode(out)
	}

	if len(out) == 0 {
		fmt.Fprintln(cc.Out, "No rooms.")
		return nil
	}

	rows := make([][]string, 0, len(out))
	for _, r := range out {
		project := ""
		if r.Project != nil {
			project = r.Project.Name
		}

		rows = append(rows, []string{r.Name, r.Template, project, r.Object})
	}

	pal := newPalette(cc.Out, useColor(cc.Cfg.View.Color, cc.Out))
	printStyledTable(cc.Out, pal.Header, []string{"NAME", "TEMPLATE", "PROJECT", "OBJECT"}, rows)

	return nil
}

func runRoomsTemplates(ctx context.Context, cc *CLIContext, v *session.Views, _ []string) error {
	if err := requireDaemon(v); err != nil {
		return err
	}

	names, err := rooms.Templates(ctx, v.Caller, control.ControlObject)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return json.NewEncoder(cc.Out).Encode(names)
	}

	for _, n := range names {
		fmt.Fprintln(cc.Out, n)
	}

	return nil
}

func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage the project loaded into a room",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show ROOM",
		Short: "Show the project loaded into a room",
		Args:  cobra.ExactArgs(1),
		RunE: projectRunE(func(_ context.Context, cc *CLIContext, p *rooms.ProjectTracker, _ []string) error {
			project := p.Project()

			if cc.Flags.JSON {
				return json.NewEncoder(cc.Out).Encode(project)
			}

			if project.Name == "" {
				fmt.Fprintln(cc.Out, "No project loaded.")
				return nil
			}

			fmt.Fprintf(cc.Out, "%s (%s)\n", project.Name, project.Dir)

			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "load ROOM DIR",
		Short: "Load a project into a room",
		Args:  cobra.ExactArgs(2),
		RunE: projectRunE(func(ctx context.Context, cc *CLIContext, p *rooms.ProjectTracker, args []string) error {
			if err := p.LoadProject(ctx, args[1]); err != nil {
				return err
			}

			cc.Statusf("Loading project from %s\n", args[1])

			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "save ROOM DIR NAME",
		Short: "Save a room's project",
		Args:  cobra.ExactArgs(3),
		RunE: projectRunE(func(ctx context.Context, cc *CLIContext, p *rooms.ProjectTracker, args []string) error {
			if err := p.SaveProject(ctx, args[1], args[2]); err != nil {
				return err
			}

			cc.Statusf("Saved project %s to %s\n", args[2], args[1])

			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "unload ROOM",
		Short: "Unload a room's project",
		Args:  cobra.ExactArgs(1),
		RunE: projectRunE(func(ctx context.Context, cc *CLIContext, p *rooms.ProjectTracker, _ []string) error {
			if err := p.UnloadProject(ctx); err != nil {
				return err
			}

			cc.Statusf("Unloaded project\n")

			return nil
		}),
	})

	return cmd
}

// projectRunE resolves the room named by the first argument and hands its
// project tracker to fn.
func projectRunE(fn func(ctx context.Context, cc *CLIContext, p *rooms.ProjectTracker, args []string) error) func(*cobra.Command, []string) error {
	return viewsRunE(func(ctx context.Context, cc *CLIContext, v *session.Views, args []string) error {
		g, err := v.Room(args[0])
		if err != nil {
			return err
		}

		return fn(ctx, cc, g.Project, args)
	})
}
