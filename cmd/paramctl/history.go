package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/urmzd/homai-panel/pkg/editor"
	"github.com/urmzd/homai-panel/pkg/rpc"
)

func (a *app) historyCmd() *cobra.Command {
	var (
		channel  string
		limit    int
		clearAll bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show or clear the change history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if clearAll {
				ok := a.confirmer().Confirm(ctx, editor.ConfirmRequest{
					Title:        "Clear change history?",
					Body:         fmt.Sprintf("All history of entry %s will be deleted.", a.cfg.EntryID),
					ConfirmLabel: "Clear",
					Destructive:  true,
				})
				if !ok {
					return errNotSaved
				}
				res, err := a.client.ClearChangeHistory(ctx, a.cfg.EntryID)
				if err != nil {
					return fmt.Errorf("failed to clear history: %w", err)
				}
				fmt.Fprintf(a.out, "Cleared %d history entries.\n", res.Cleared)
				return nil
			}

			hist, err := a.client.GetChangeHistory(ctx, rpc.HistoryParams{
				EntryID:        a.cfg.EntryID,
				ChannelAddress: channel,
				Limit:          limit,
			})
			if err != nil {
				return fmt.Errorf("failed to load history: %w", err)
			}
			if len(hist.Entries) == 0 {
				fmt.Fprintln(a.out, "No changes recorded.")
				return nil
			}

			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tDEVICE\tCHANNEL\tSOURCE\tCHANGES")
			fmt.Fprintln(w, "----\t------\t-------\t------\t-------")
			for _, e := range hist.Entries {
				changes := make([]string, 0, len(e.Changes))
				for _, id := range slices.Sorted(maps.Keys(e.Changes)) {
					c := e.Changes[id]
					changes = append(changes, fmt.Sprintf("%s: %v -> %v", id, c.Old, c.New))
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					e.Timestamp.Local().Format(time.DateTime), e.DeviceName, e.ChannelAddress, e.Source, strings.Join(changes, "; "))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if hist.Total > len(hist.Entries) {
				fmt.Fprintf(a.out, "\nShowing %d of %d entries.\n", len(hist.Entries), hist.Total)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "Only show changes of this channel")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of entries")
	cmd.Flags().BoolVar(&clearAll, "clear", false, "Delete the history of the entry")
	return cmd
}
