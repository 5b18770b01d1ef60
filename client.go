package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/patchbay-go/internal/patchbay"
	"github.com/tonimelisma/patchbay-go/internal/session"
)

func newClientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Edit graph clients",
		Long: `Rename, split, join or create clients of the studio graph, or of a room
graph with --room. Clients are given by name or numeric id.`,
	}

	cmd.PersistentFlags().String("room", "", "room name or object path")

	cmd.AddCommand(&cobra.Command{
		Use:   "rename CLIENT NAME",
		Short: "Rename a client",
		Args:  cobra.ExactArgs(2),
		RunE: graphRunE(func(ctx context.Context, cc *CLIContext, g *session.Graph, args []string) error {
			c, err := g.Mirror.Snapshot().FindClient(args[0])
			if err != nil {
				return err
			}

			if err := g.Mirror.RenameClient(ctx, c.ID, args[1]); err != nil {
				return err
			}

			cc.Statusf("Renamed client %s to %s\n", c.Name, args[1])

			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "split CLIENT",
		Short: "Split a client into its capture and playback halves",
		Args:  cobra.ExactArgs(1),
		RunE: graphRunE(func(ctx context.Context, cc *CLIContext, g *session.Graph, args []string) error {
			c, err := g.Mirror.Snapshot().FindClient(args[0])
			if err != nil {
				return err
			}

			if err := g.Mirror.Split(ctx, c.ID); err != nil {
				return err
			}

			cc.Statusf("Split client %s\n", c.Name)

			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "join CLIENT CLIENT",
		Short: "Merge two clients",
		Args:  cobra.ExactArgs(2),
		RunE: graphRunE(func(ctx context.Context, cc *CLIContext, g *session.Graph, args []string) error {
			snap := g.Mirror.Snapshot()

			c1, err := snap.FindClient(args[0])
			if err != nil {
				return err
			}

			c2, err := snap.FindClient(args[1])
			if err != nil {
				return err
			}

			if err := g.Mirror.Join(ctx, c1.ID, c2.ID); err != nil {
				return err
			}

			cc.Statusf("Joined clients %s and %s\n", c1.Name, c2.Name)

			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "new NAME",
		Short: "Create an empty client",
		Args:  cobra.ExactArgs(1),
		RunE: graphRunE(func(ctx context.Context, cc *CLIContext, g *session.Graph, args []string) error {
			id, err := g.Mirror.NewClient(ctx, args[0])
			if err != nil {
				return err
			}

			cc.Statusf("Created client %s (id %d)\n", args[0], id)

			return nil
		}),
	})

	cmd.AddCommand(newClientPIDCmd())
	cmd.AddCommand(newClientDictCmd())

	return cmd
}

func newClientPIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pid CLIENT",
		Short: "Print the process id behind a client",
		Args:  cobra.ExactArgs(1),
		RunE: graphRunE(func(ctx context.Context, cc *CLIContext, g *session.Graph, args []string) error {
			c, err := g.Mirror.Snapshot().FindClient(args[0])
			if err != nil {
				return err
			}

			pid, err := g.Mirror.ClientPID(ctx, c.ID)
			if err != nil {
				return err
			}

			if cc.Flags.JSON {
				return json.NewEncoder(cc.Out).Encode(map[string]any{"client": c.Name, "pid": pid})
			}

			fmt.Fprintln(cc.Out, pid)

			return nil
		}),
	}
}

// newClientDictCmd exposes the graph dict entries attached to clients.
func newClientDictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dict",
		Short: "Read and write client metadata",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get CLIENT KEY",
		Short: "Print a metadata value",
		Args:  cobra.ExactArgs(2),
		RunE: graphRunE(func(ctx context.Context, cc *CLIContext, g *session.Graph, args []string) error {
			c, err := g.Mirror.Snapshot().FindClient(args[0])
			if err != nil {
				return err
			}

			value, err := g.Mirror.DictGet(ctx, patchbay.DictClient, uint64(c.ID), args[1])
			if err != nil {
				return err
			}

			fmt.Fprintln(cc.Out, value)

			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set CLIENT KEY VALUE",
		Short: "Store a metadata value",
		Args:  cobra.ExactArgs(3),
		RunE: graphRunE(func(ctx context.Context, _ *CLIContext, g *session.Graph, args []string) error {
			c, err := g.Mirror.Snapshot().FindClient(args[0])
			if err != nil {
				return err
			}

			return g.Mirror.DictSet(ctx, patchbay.DictClient, uint64(c.ID), args[1], args[2])
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "drop CLIENT KEY",
		Short: "Remove a metadata value",
		Args:  cobra.ExactArgs(2),
		RunE: graphRunE(func(ctx context.Context, _ *CLIContext, g *session.Graph, args []string) error {
			c, err := g.Mirror.Snapshot().FindClient(args[0])
			if err != nil {
				return err
			}

			return g.Mirror.DictDrop(ctx, patchbay.DictClient, uint64(c.ID), args[1])
		}),
	})

	return cmd
}

func newPortCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "port",
		Short: "Edit graph ports",
		Long: `Rename ports or move them between clients. Ports are given as
"client:port" or by numeric id.`,
	}

	cmd.PersistentFlags().String("room", "", "room name or object path")

	cmd.AddCommand(&cobra.Command{
		Use:   "rename PORT NAME",
		Short: "Rename a port",
		Args:  cobra.ExactArgs(2),
		RunE: graphRunE(func(ctx context.Context, cc *CLIContext, g *session.Graph, args []string) error {
			snap := g.Mirror.Snapshot()

			p, err := snap.FindPort(args[0])
			if err != nil {
				return err
			}

			if err := g.Mirror.RenamePort(ctx, p.ID, args[1]); err != nil {
				return err
			}

			cc.Statusf("Renamed port %s to %s\n", portLabel(snap, p.ID), args[1])

			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "move PORT CLIENT",
		Short: "Move a port to another client",
		Args:  cobra.ExactArgs(2),
		RunE: graphRunE(func(ctx context.Context, cc *CLIContext, g *session.Graph, args []string) error {
			snap := g.Mirror.Snapshot()

			p, err := snap.FindPort(args[0])
			if err != nil {
				return err
			}

			c, err := snap.FindClient(args[1])
			if err != nil {
				return err
			}

			if p.Client == c.ID {
				return fmt.Errorf("port %s already belongs to %s", portLabel(snap, p.ID), c.Name)
			}

			if err := g.Mirror.MovePort(ctx, p.ID, c.ID); err != nil {
				return err
			}

			cc.Statusf("Moved port %s to %s\n", portLabel(snap, p.ID), c.Name)

			return nil
		}),
	})

	return cmd
}

// graphFunc is the body of a command that edits one graph.
type graphFunc func(ctx context.Context, cc *CLIContext, g *session.Graph, args []string) error

// graphRunE adapts fn to a cobra RunE that resolves the --room graph.
func graphRunE(fn graphFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cc := mustCLIContext(cmd.Context())
		room, _ := cmd.Flags().GetString("room")

		return withGraph(cmd.Context(), cc, room, func(ctx context.Context, g *session.Graph) error {
			return fn(ctx, cc, g, args)
		})
	}
}
