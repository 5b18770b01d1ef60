package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/patchbay-go/internal/config"
	"github.com/tonimelisma/patchbay-go/internal/patchbay"
	"github.com/tonimelisma/patchbay-go/internal/session"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the routing graph",
		Long: `Connect to the bus, mirror the routing graph of the loaded studio and
print it. Use --room to print a room's graph instead, or --all for the studio
and every room. Ports matched by [view] hide are left out.`,
		Args: cobra.NoArgs,
		RunE: runGraph,
	}

	cmd.Flags().String("room", "", "room name or object path")
	cmd.Flags().Bool("all", false, "print the studio and every room")
	cmd.MarkFlagsMutuallyExclusive("room", "all")

	return cmd
}

// graphJSON is one graph in --json output.
type graphJSON struct {
	Scope string `json:"scope"`
	patchbay.Snapshot
}

func runGraph(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	room, _ := cmd.Flags().GetString("room")
	all, _ := cmd.Flags().GetBool("all")
	hide := config.NewHideFilter(cc.Cfg.View.Hide)
	w := cc.Out

	return withViews(cmd.Context(), cc, func(_ context.Context, v *session.Views) error {
		var graphs []*session.Graph

		if all {
			if v.Studio == nil {
				return session.ErrNoStudio
			}

			graphs = append([]*session.Graph{v.Studio}, v.RoomGraphs()...)
		} else {
			g, err := v.Graph(room)
			if err != nil {
				return err
			}

			graphs = []*session.Graph{g}
		}

		if cc.Flags.JSON {
			out := make([]graphJSON, 0, len(graphs))
			for _, g := range graphs {
				out = append(out, graphJSON{
					Scope:    g.Scope.String(),
					Snapshot: filterSnapshot(g.Mirror.Snapshot(), hide),
				})
			}

			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")

			return enc.Encode(out)
		}

		pal := newPalette(w, useColor(cc.Cfg.View.Color, w))

		for i, g := range graphs {
			if i > 0 {
				fmt.Fprintln(w)
			}

			printGraph(w, pal, g.Scope, filterSnapshot(g.Mirror.Snapshot(), hide))
		}

		return nil
	})
}

// filterSnapshot drops hidden clients and ports, and connections touching
// them. Clients left without ports are kept unless hidden themselves.
func filterSnapshot(s patchbay.Snapshot, hide *config.HideFilter) patchbay.Snapshot {
	if hide == nil {
		return s
	}

	out := patchbay.Snapshot{Object: s.Object, Version: s.Version}
	visible := make(map[patchbay.PortID]bool)

	for _, c := range s.Clients {
		if hide.HiddenClient(c.Name) {
			continue
		}

		fc := patchbay.ClientSnapshot{ID: c.ID, Name: c.Name}

		for _, p := range c.Ports {
			if hide.HiddenPort(c.Name, p.Name) {
				continue
			}

			visible[p.ID] = true
			fc.Ports = append(fc.Ports, p)
		}

		out.Clients = append(out.Clients, fc)
	}

	for _, conn := range s.Connections {
		if visible[conn.Port1] && visible[conn.Port2] {
			out.Connections = append(out.Connections, conn)
		}
	}

	return out
}

func printGraph(w io.Writer, pal palette, scope session.Scope, s patchbay.Snapshot) {
	fmt.Fprintf(w, "%s %s\n",
		pal.Scope.Render(scope.String()),
		pal.Muted.Render(fmt.Sprintf("(%s, version %d)", s.Object, s.Version)),
	)

	if len(s.Clients) == 0 {
		fmt.Fprintln(w, "No clients.")
		return
	}

	var rows [][]string

	for _, c := range s.Clients {
		if len(c.Ports) == 0 {
			rows = append(rows, []string{strconv.FormatUint(uint64(c.ID), 10), c.Name, "", "", "", ""})
			continue
		}

		for _, p := range c.Ports {
			rows = append(rows, []string{
				strconv.FormatUint(uint64(p.ID), 10),
				c.Name,
				p.Name,
				p.Direction.String(),
				p.Kind.String(),
				portFlags(p),
			})
		}
	}

	printStyledTable(w, pal.Header, []string{"ID", "CLIENT", "PORT", "DIRECTION", "TYPE", "FLAGS"}, rows)

	if len(s.Connections) == 0 {
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, pal.Header.Render("Connections"))

	for _, conn := range s.Connections {
		fmt.Fprintf(w, "  %s -> %s\n", portLabel(s, conn.Port1), portLabel(s, conn.Port2))
	}
}

// portFlags renders the boolean port attributes as a comma list.
func portFlags(p patchbay.Port) string {
	var flags []string

	if p.Physical {
		flags = append(flags, "physical")
	}

	if p.Terminal {
		flags = append(flags, "terminal")
	}

	if p.Monitor {
		flags = append(flags, "monitor")
	}

	return strings.Join(flags, ",")
}

// portLabel renders a port as "client:port", falling back to its id.
func portLabel(s patchbay.Snapshot, id patchbay.PortID) string {
	for _, c := range s.Clients {
		for _, p := range c.Ports {
			if p.ID == id {
				return c.Name + ":" + p.Name
			}
		}
	}

	return strconv.FormatUint(uint64(id), 10)
}
