package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/patchbay-go/internal/journal"
)

const defaultHistoryLimit = 50

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show journaled changes",
		Long: `List the changes recorded by "watch", newest first. The journal is a
diagnostic record and is never used to seed the mirrors.

Use --cursors to list the last version journaled per collection, and --prune
to delete events older than the configured [journal] retention.`,
		Args: cobra.NoArgs,
		RunE: runHistory,
	}

	cmd.Flags().String("collection", "", "only events of this collection (e.g. graph:/org/ladish/Studio)")
	cmd.Flags().Int("limit", defaultHistoryLimit, "maximum number of events (0 = all)")
	cmd.Flags().Duration("since", 0, "only events recorded within this duration")
	cmd.Flags().Bool("cursors", false, "list collection cursors instead of events")
	cmd.Flags().Bool("prune", false, "delete events older than the retention period")
	cmd.MarkFlagsMutuallyExclusive("cursors", "prune")

	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	j, err := journal.Open(ctx, cc.Cfg.JournalPath(), cc.Logger)
	if err != nil {
		return err
	}
	defer j.Close()

	if prune, _ := cmd.Flags().GetBool("prune"); prune {
		_, _, _, retention := cc.Cfg.Durations()

		n, err := j.Prune(ctx, retention)
		if err != nil {
			return err
		}

		cc.Statusf("Pruned %d events older than %s\n", n, retention)

		return nil
	}

	if cursors, _ := cmd.Flags().GetBool("cursors"); cursors {
		return printCursors(cc, j, cmd)
	}

	q := journal.Query{}
	q.Collection, _ = cmd.Flags().GetString("collection")
	q.Limit, _ = cmd.Flags().GetInt("limit")

	if since, _ := cmd.Flags().GetDuration("since"); since > 0 {
		q.Since = time.Now().Add(-since)
	}

	events, err := j.Events(ctx, q)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		enc := json.NewEncoder(cc.Out)
		enc.SetIndent("", "  ")

		return enc.Encode(events)
	}

	if len(events) == 0 {
		fmt.Fprintln(cc.Out, "No journaled events.")
		return nil
	}

	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		rows = append(rows, []string{
			formatTime(ev.RecordedAt),
			ev.Collection,
			strconv.FormatUint(ev.Version, 10),
			ev.Kind,
			ev.Subject,
			ev.Detail,
		})
	}

	pal := newPalette(cc.Out, useColor(cc.Cfg.View.Color, cc.Out))
	printStyledTable(cc.Out, pal.Header, []string{"TIME", "COLLECTION", "VERSION", "KIND", "SUBJECT", "DETAIL"}, rows)

	return nil
}

func printCursors(cc *CLIContext, j *journal.Journal, cmd *cobra.Command) error {
	cursors, err := j.Cursors(cmd.Context())
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		enc := json.NewEncoder(cc.Out)
		enc.SetIndent("", "  ")

		return enc.Encode(cursors)
	}

	if len(cursors) == 0 {
		fmt.Fprintln(cc.Out, "No cursors.")
		return nil
	}

	rows := make([][]string, 0, len(cursors))
	for _, c := range cursors {
		rows = append(rows, []string{c.Collection, strconv.FormatUint(c.Version, 10), formatTime(c.UpdatedAt)})
	}

	printTable(cc.Out, []string{"COLLECTION", "VERSION", "UPDATED"}, rows)

	return nil
}
