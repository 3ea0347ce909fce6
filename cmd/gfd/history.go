package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/HaDeSMonsta/get-flight-data/pkg/history"
)

// history command flags
type historyFlags struct {
	limit     int
	jsonOut   bool
	olderThan time.Duration
}

var histFlags historyFlags

// newHistoryCmd creates the 'history' subcommand.
func newHistoryCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "history",
		Short: "List reports stored by 'gfd serve'",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}
	c.Flags().IntVarP(&histFlags.limit, "limit", "n", history.DefaultLimit, "Maximum number of entries")
	c.Flags().BoolVar(&histFlags.jsonOut, "json", false, "Print JSON instead of a table")
	c.Flags().DurationVar(&histFlags.olderThan, "prune-older-than", 0, "Delete entries older than this age before listing (0=keep all)")
	return c
}

func runHistory(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	store, err := history.Open(rt.cfg.Storage.HistoryDB)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	if histFlags.olderThan > 0 {
		removed, err := store.Prune(ctx, time.Now().Add(-histFlags.olderThan))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Pruned %d entries\n", removed)
	}

	entries, err := store.List(ctx, histFlags.limit)
	if err != nil {
		return err
	}
	if histFlags.jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	return renderHistoryTable(entries, cmd.OutOrStdout())
}

func renderHistoryTable(entries []history.Entry, w io.Writer) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No reports stored yet.")
		return err
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "Fetched", "Departure", "Rules", "Arrival", "Rules"})
	for _, e := range entries {
		tw.AppendRow(table.Row{
			e.ID,
			e.FetchedAt.Local().Format("2006-01-02 15:04"),
			e.Departure,
			e.DepFlightRules,
			e.Arrival,
			e.ArrFlightRules,
		})
	}
	tw.Render()
	return nil
}
