package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/patchbay-go/internal/patchbay"
	"github.com/tonimelisma/patchbay-go/internal/session"
)

func newConnectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connect PORT PORT",
		Short: "Connect two ports",
		Long: `Connect two ports of the studio graph, or of a room graph with --room.
Ports are given as "client:port" or by numeric id.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnect(cmd, args, true)
		},
	}

	cmd.Flags().String("room", "", "room name or object path")

	return cmd
}

func newDisconnectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disconnect PORT PORT",
		Short: "Disconnect two ports",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnect(cmd, args, false)
		},
	}

	cmd.Flags().String("room", "", "room name or object path")

	return cmd
}

func runConnect(cmd *cobra.Command, args []string, connect bool) error {
	cc := mustCLIContext(cmd.Context())
	room, _ := cmd.Flags().GetString("room")

	return withGraph(cmd.Context(), cc, room, func(ctx context.Context, g *session.Graph) error {
		snap := g.Mirror.Snapshot()

		p1, err := snap.FindPort(args[0])
		if err != nil {
			return err
		}

		p2, err := snap.FindPort(args[1])
		if err != nil {
			return err
		}

		label := portLabel(snap, p1.ID) + " -> " + portLabel(snap, p2.ID)

		if !connect {
			if !g.Mirror.Connected(p1.ID, p2.ID) {
				return fmt.Errorf("%w: %s", patchbay.ErrUnknownConnection, label)
			}

			if err := g.Mirror.DisconnectPorts(ctx, p1.ID, p2.ID); err != nil {
				return err
			}

			cc.Statusf("Disconnected %s\n", label)

			return nil
		}

		if g.Mirror.Connected(p1.ID, p2.ID) {
			cc.Statusf("Already connected %s\n", label)
			return nil
		}

		if err := g.Mirror.ConnectPorts(ctx, p1.ID, p2.ID); err != nil {
			return err
		}

		cc.Statusf("Connected %s\n", label)

		return nil
	})
}

// withGraph runs fn with the studio graph, or the graph of room when set.
func withGraph(ctx context.Context, cc *CLIContext, room string, fn func(ctx context.Context, g *session.Graph) error) error {
	return withViews(ctx, cc, func(ctx context.Context, v *session.Views) error {
		g, err := v.Graph(room)
		if err != nil {
			return err
		}

		return fn(ctx, g)
	})
}
